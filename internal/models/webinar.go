package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCurrency is the only settlement currency the gateway integration supports.
const DefaultCurrency = "INR"

// Webinar is the subset of a webinar's attributes the registration pipeline reads.
type Webinar struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Capacity        int       `json:"capacity"`
	PriceMinor      int64     `json:"price_minor"` // price in the smallest currency unit (paise)
	Currency        string    `json:"currency"`
	HostID          uuid.UUID `json:"host_id"`
	JoinLink        string    `json:"join_link,omitempty"`
	Platform        string    `json:"platform,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsFree reports whether registering requires no payment.
func (w *Webinar) IsFree() bool {
	return w.PriceMinor == 0
}

// HasStarted reports whether the webinar start time is at or before now.
func (w *Webinar) HasStarted(now time.Time) bool {
	return !w.StartsAt.After(now)
}

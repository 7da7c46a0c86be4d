package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the payment state of a registration.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// CanTransition reports whether moving from s to next is allowed.
// failed is terminal; a new registration is required after it.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentSuccess || next == PaymentFailed
	case PaymentSuccess:
		return next == PaymentFailed
	default:
		return false
	}
}

// Sources lists the statuses from which s may be reached.
func (s PaymentStatus) Sources() []PaymentStatus {
	var from []PaymentStatus
	for _, st := range []PaymentStatus{PaymentPending, PaymentSuccess, PaymentFailed} {
		if st.CanTransition(s) {
			from = append(from, st)
		}
	}
	return from
}

// Milestone names one of the time-driven notifications sent per registration.
type Milestone string

const (
	MilestoneReminder24h Milestone = "reminder_24h"
	MilestoneReminder1h  Milestone = "reminder_1h"
	MilestoneStarting    Milestone = "starting"
)

// Guest is the identity of an attendee who registered without an account.
type Guest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Attendee is either a platform user or a guest, never both.
// The zero value identifies nobody; build one with UserAttendee or GuestAttendee.
type Attendee struct {
	userID *uuid.UUID
	guest  *Guest
}

// UserAttendee identifies an authenticated platform user.
func UserAttendee(id uuid.UUID) Attendee {
	return Attendee{userID: &id}
}

// GuestAttendee identifies a guest by email.
func GuestAttendee(g Guest) Attendee {
	return Attendee{guest: &g}
}

// UserID returns the user id when the attendee is a platform user.
func (a Attendee) UserID() (uuid.UUID, bool) {
	if a.userID == nil {
		return uuid.Nil, false
	}
	return *a.userID, true
}

// Guest returns the guest details when the attendee registered as a guest.
func (a Attendee) Guest() (Guest, bool) {
	if a.guest == nil {
		return Guest{}, false
	}
	return *a.guest, true
}

// IsZero reports whether the attendee identifies nobody.
func (a Attendee) IsZero() bool {
	return a.userID == nil && a.guest == nil
}

// IsUser reports whether the attendee is the given platform user.
func (a Attendee) IsUser(id uuid.UUID) bool {
	return a.userID != nil && *a.userID == id
}

type attendeeJSON struct {
	Kind   string     `json:"kind"`
	UserID *uuid.UUID `json:"user_id,omitempty"`
	*Guest
}

// MarshalJSON encodes the attendee with an explicit kind tag.
func (a Attendee) MarshalJSON() ([]byte, error) {
	switch {
	case a.userID != nil:
		return json.Marshal(attendeeJSON{Kind: "user", UserID: a.userID})
	case a.guest != nil:
		return json.Marshal(attendeeJSON{Kind: "guest", Guest: a.guest})
	default:
		return []byte("null"), nil
	}
}

// Registration is an attendee's registration for a webinar.
type Registration struct {
	ID              uuid.UUID     `json:"id"`
	WebinarID       uuid.UUID     `json:"webinar_id"`
	Attendee        Attendee      `json:"attendee"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	OrderID         string        `json:"razorpay_order_id,omitempty"`
	PaymentID       string        `json:"razorpay_payment_id,omitempty"`
	Signature       string        `json:"-"`
	Reminder24hSent bool          `json:"reminder_24h_sent"`
	Reminder1hSent  bool          `json:"reminder_1h_sent"`
	StartingSent    bool          `json:"starting_sent"`
	Version         int           `json:"-"`
	RegisteredAt    time.Time     `json:"registered_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// MilestoneSent reports whether the notification for m has been recorded as sent.
func (r *Registration) MilestoneSent(m Milestone) bool {
	switch m {
	case MilestoneReminder24h:
		return r.Reminder24hSent
	case MilestoneReminder1h:
		return r.Reminder1hSent
	case MilestoneStarting:
		return r.StartingSent
	}
	return false
}

// SetMilestoneSent records m as sent. Flags only ever go from false to true.
func (r *Registration) SetMilestoneSent(m Milestone) {
	switch m {
	case MilestoneReminder24h:
		r.Reminder24hSent = true
	case MilestoneReminder1h:
		r.Reminder1hSent = true
	case MilestoneStarting:
		r.StartingSent = true
	}
}

// ContactEmail returns the address notifications for this registration go to.
// For platform users it is empty; callers resolve it from the user record.
func (r *Registration) ContactEmail() string {
	if g, ok := r.Attendee.Guest(); ok {
		return g.Email
	}
	return ""
}

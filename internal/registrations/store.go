package registrations

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/admissions/internal/models"
)

// AdmissionSnapshot is what the store observed for a webinar while holding
// its lock, just before inserting a new registration.
type AdmissionSnapshot struct {
	Capacity  int
	StartsAt  time.Time
	Duplicate bool // a non-failed registration exists for the same identity
	Held      int  // pending + success registrations
}

// Transition is a version-guarded payment state write.
type Transition struct {
	ID              uuid.UUID
	ExpectedVersion int
	To              models.PaymentStatus
	PaymentID       string
	Signature       string
}

// AttendeeRow is a paid registration with contact details resolved.
type AttendeeRow struct {
	RegistrationID uuid.UUID  `json:"registration_id"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	Guest          bool       `json:"guest"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone,omitempty"`
	RegisteredAt   time.Time  `json:"registered_at"`
}

// Store is the registration persistence used by the pipeline.
type Store interface {
	// InsertAdmitted locks the webinar, passes what it sees to check and
	// inserts reg only if check returns nil. It fills reg's generated fields.
	InsertAdmitted(ctx context.Context, reg *models.Registration, check func(AdmissionSnapshot) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	// SetOrderID records reg.OrderID on a pending registration.
	SetOrderID(ctx context.Context, reg *models.Registration) error
	// Transition returns ErrConcurrencyConflict when the row moved past
	// ExpectedVersion and a wrapped ErrConflict when the status change is not
	// allowed from the row's current status.
	Transition(ctx context.Context, t Transition) (*models.Registration, error)
	// RecordLatePayment attaches t.PaymentID to a failed registration that
	// has none yet.
	RecordLatePayment(ctx context.Context, t Transition) (*models.Registration, error)
	// Delete returns ErrConcurrencyConflict when the row moved past version.
	Delete(ctx context.Context, id uuid.UUID, version int) error
}

// Reader is the read side used by the HTTP handler.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error)
	ListAttendees(ctx context.Context, webinarID uuid.UUID) ([]AttendeeRow, error)
}

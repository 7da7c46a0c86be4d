package registrations

import (
	"errors"
	"fmt"

	"github.com/aura-webinar/admissions/internal/models"
)

// Error kinds returned by the admission and reconciliation pipeline.
// Callers match with errors.Is; detail is added by wrapping.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
	ErrCapacityExceeded    = errors.New("webinar is full")
	ErrAlreadyStarted      = errors.New("webinar has already started")
	ErrDeadlinePassed      = errors.New("cancellation deadline has passed")
	ErrInvalidSignature    = errors.New("invalid payment signature")
	ErrGateway             = errors.New("payment gateway error")
	ErrConcurrencyConflict = errors.New("registration was modified concurrently")
	ErrHoldExpired         = errors.New("registration no longer holds a seat")
)

func illegalTransition(from, to models.PaymentStatus) error {
	return fmt.Errorf("%w: payment status cannot move from %s to %s", ErrConflict, from, to)
}

package registrations

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aura-webinar/admissions/internal/models"
)

const maxPhoneLen = 32

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func emailValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// GuestDetails is what an unauthenticated caller supplies to register.
type GuestDetails struct {
	Name  string
	Email string
	Phone string
}

func (g *GuestDetails) empty() bool {
	return g == nil || (strings.TrimSpace(g.Name) == "" && strings.TrimSpace(g.Email) == "" && strings.TrimSpace(g.Phone) == "")
}

// ResolveAttendee decides who is registering. Authenticated callers register
// as themselves and must not send guest fields; everyone else must supply a
// name and a valid email.
func ResolveAttendee(caller *uuid.UUID, guest *GuestDetails) (models.Attendee, error) {
	if caller != nil {
		if *caller == uuid.Nil {
			return models.Attendee{}, fmt.Errorf("%w: invalid caller", ErrInvalidInput)
		}
		if !guest.empty() {
			return models.Attendee{}, fmt.Errorf("%w: guest details must be omitted when logged in", ErrInvalidInput)
		}
		return models.UserAttendee(*caller), nil
	}
	if guest == nil {
		return models.Attendee{}, fmt.Errorf("%w: name and email are required", ErrInvalidInput)
	}
	name := strings.TrimSpace(guest.Name)
	if name == "" {
		return models.Attendee{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	email := strings.ToLower(strings.TrimSpace(guest.Email))
	if email == "" {
		return models.Attendee{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if err := emailValidator().Var(email, "email"); err != nil {
		return models.Attendee{}, fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	phone := strings.TrimSpace(guest.Phone)
	if len(phone) > maxPhoneLen {
		return models.Attendee{}, fmt.Errorf("%w: phone is too long", ErrInvalidInput)
	}
	return models.GuestAttendee(models.Guest{Email: email, Name: name, Phone: phone}), nil
}

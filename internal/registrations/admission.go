package registrations

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/events"
	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/internal/payments"
	"github.com/aura-webinar/admissions/pkg/telemetry"
)

// RegisterInput is one registration attempt. Caller is set for
// authenticated requests, Guest otherwise.
type RegisterInput struct {
	WebinarID uuid.UUID
	Caller    *uuid.UUID
	Guest     *GuestDetails
}

// RegisterResult is returned on admission. Order is nil for free webinars.
type RegisterResult struct {
	Registration *models.Registration `json:"registration"`
	Order        *payments.Order      `json:"order,omitempty"`
	KeyID        string               `json:"key_id,omitempty"`
}

// Controller admits registrations.
type Controller struct {
	pipeline
}

// NewController creates an admission controller.
func NewController(d Deps, opts Options) *Controller {
	return &Controller{pipeline: newPipeline(d, opts)}
}

// Register validates and creates a registration. Rejections come back in
// this order: ErrNotFound, ErrInvalidInput, ErrConflict, ErrCapacityExceeded,
// ErrAlreadyStarted. Free webinars are confirmed immediately; paid ones get a
// gateway order and stay pending until VerifyPayment.
func (c *Controller) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	w, err := c.loadWebinar(ctx, in.WebinarID)
	if err != nil {
		return nil, err
	}
	attendee, err := ResolveAttendee(in.Caller, in.Guest)
	if err != nil {
		return nil, err
	}

	reg := &models.Registration{
		WebinarID:     w.ID,
		Attendee:      attendee,
		PaymentStatus: models.PaymentPending,
	}
	if w.IsFree() {
		reg.PaymentStatus = models.PaymentSuccess
	}

	err = c.Store.InsertAdmitted(ctx, reg, func(s AdmissionSnapshot) error {
		if s.Duplicate {
			return fmt.Errorf("%w: already registered for this webinar", ErrConflict)
		}
		if s.Held >= s.Capacity {
			return ErrCapacityExceeded
		}
		if !s.StartsAt.After(c.now()) {
			return ErrAlreadyStarted
		}
		return nil
	})
	if err != nil {
		c.metrics.admissions.Inc(ctx, telemetry.OutcomeAttr("rejected"))
		return nil, err
	}

	if w.IsFree() {
		c.metrics.admissions.Inc(ctx, telemetry.OutcomeAttr("confirmed"))
		c.publish(ctx, events.NewRegistrationEvent(events.TypeRegistrationConfirmed, reg))
		c.notify(ctx, "confirmation", reg, w, c.Sender.SendConfirmation)
		return &RegisterResult{Registration: reg}, nil
	}

	// The row is committed; from here on the caller going away must not
	// leave a seat held without an order.
	order, err := c.createOrder(ctx, w, reg)
	if err != nil {
		c.compensate(ctx, reg, err)
		c.metrics.admissions.Inc(ctx, telemetry.OutcomeAttr("gateway_error"))
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	reg.OrderID = order.ID
	if err := c.recordOrder(ctx, reg); err != nil {
		c.compensate(ctx, reg, err)
		c.metrics.admissions.Inc(ctx, telemetry.OutcomeAttr("error"))
		return nil, fmt.Errorf("record order: %w", err)
	}

	c.metrics.admissions.Inc(ctx, telemetry.OutcomeAttr("pending"))
	c.publish(ctx, events.NewRegistrationEvent(events.TypeRegistrationCreated, reg))
	return &RegisterResult{Registration: reg, Order: order, KeyID: c.opts.PublicKeyID}, nil
}

func (c *Controller) createOrder(parent context.Context, w *models.Webinar, reg *models.Registration) (*payments.Order, error) {
	ctx, cancel := detached(parent, c.opts.GatewayTimeout)
	defer cancel()

	notes := map[string]string{
		"webinar_id":      w.ID.String(),
		"registration_id": reg.ID.String(),
	}
	if uid, ok := reg.Attendee.UserID(); ok {
		notes["user_id"] = uid.String()
	} else {
		notes["guest_email"] = reg.ContactEmail()
	}
	currency := w.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}
	order, err := c.Gateway.CreateOrder(ctx, payments.OrderRequest{
		AmountMinor: w.PriceMinor,
		Currency:    currency,
		Receipt:     Receipt(w.ID, reg.ID),
		Notes:       notes,
	})
	if err != nil {
		return nil, err
	}
	if order == nil || order.ID == "" {
		return nil, errors.New("gateway returned no order id")
	}
	return order, nil
}

func (c *Controller) recordOrder(parent context.Context, reg *models.Registration) error {
	ctx, cancel := detached(parent, cleanupTimeout)
	defer cancel()
	return c.Store.SetOrderID(ctx, reg)
}

// compensate deletes a registration whose order could not be created so the
// seat is released.
func (c *Controller) compensate(parent context.Context, reg *models.Registration, cause error) {
	ctx, cancel := detached(parent, cleanupTimeout)
	defer cancel()
	err := c.Store.Delete(ctx, reg.ID, reg.Version)
	if err == nil {
		c.Logger.Info("released registration after order failure",
			zap.String("registration_id", reg.ID.String()),
			zap.NamedError("cause", cause))
		return
	}
	c.metrics.integrityIssues.Inc(ctx, telemetry.OutcomeAttr("compensating_delete"))
	c.Logger.Error("data integrity: compensating delete failed, registration holds a seat without an order",
		zap.String("registration_id", reg.ID.String()),
		zap.String("webinar_id", reg.WebinarID.String()),
		zap.NamedError("cause", cause),
		zap.Error(err))
}

// Receipt is the gateway receipt for a registration. It is stable for a
// (webinar, registration) pair and fits the gateway's 40 character limit.
func Receipt(webinarID, registrationID uuid.UUID) string {
	sum := sha256.Sum256([]byte(webinarID.String() + "|" + registrationID.String()))
	return "rcpt_" + hex.EncodeToString(sum[:16])
}

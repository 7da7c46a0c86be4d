package registrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/events"
	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/pkg/telemetry"
)

// VerifyInput is the signed payment callback relayed by the client.
type VerifyInput struct {
	RegistrationID uuid.UUID
	OrderID        string
	PaymentID      string
	Signature      string
}

func (in VerifyInput) validate() error {
	var missing []string
	if in.RegistrationID == uuid.Nil {
		missing = append(missing, "registration_id")
	}
	if strings.TrimSpace(in.OrderID) == "" {
		missing = append(missing, "razorpay_order_id")
	}
	if strings.TrimSpace(in.PaymentID) == "" {
		missing = append(missing, "razorpay_payment_id")
	}
	if strings.TrimSpace(in.Signature) == "" {
		missing = append(missing, "razorpay_signature")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// CancelResult describes what Cancel did.
type CancelResult struct {
	Registration *models.Registration `json:"registration"`
	Refunded     bool                 `json:"refunded"`
	RefundID     string               `json:"refund_id,omitempty"`
	Deleted      bool                 `json:"deleted"`
}

// Reconciler settles payments and cancellations.
type Reconciler struct {
	pipeline
}

// NewReconciler creates a payment reconciler.
func NewReconciler(d Deps, opts Options) *Reconciler {
	return &Reconciler{pipeline: newPipeline(d, opts)}
}

// load returns the registration if the caller may see it. A registration
// owned by someone else is reported as not found.
func (r *Reconciler) load(ctx context.Context, id uuid.UUID, caller *uuid.UUID) (*models.Registration, error) {
	reg, err := r.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller != nil && !reg.Attendee.IsUser(*caller) {
		return nil, fmt.Errorf("%w: registration", ErrNotFound)
	}
	return reg, nil
}

// VerifyPayment checks the gateway signature and settles the registration.
// A bad signature, or one issued for a different order, fails the
// registration; the client has to register again. Replaying a verification
// that already succeeded with the same payment returns the registration
// unchanged.
func (r *Reconciler) VerifyPayment(ctx context.Context, in VerifyInput, caller *uuid.UUID) (*models.Registration, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		reg, err := r.load(ctx, in.RegistrationID, caller)
		if err != nil {
			return nil, err
		}
		switch reg.PaymentStatus {
		case models.PaymentSuccess:
			if reg.PaymentID == in.PaymentID && reg.OrderID == in.OrderID {
				return reg, nil
			}
			return nil, fmt.Errorf("%w: registration is already paid", ErrConflict)
		case models.PaymentFailed:
			if reg.PaymentID == "" && reg.OrderID != "" && reg.OrderID == in.OrderID &&
				r.Gateway.VerifySignature(in.OrderID, in.PaymentID, in.Signature) {
				return nil, r.refundLatePayment(ctx, reg, in)
			}
			if reg.PaymentID != "" {
				return nil, fmt.Errorf("%w: payment for this registration was refunded", ErrConflict)
			}
			return nil, fmt.Errorf("%w: payment for this registration has failed, register again", ErrConflict)
		}

		valid := reg.OrderID != "" && reg.OrderID == in.OrderID &&
			r.Gateway.VerifySignature(in.OrderID, in.PaymentID, in.Signature)
		t := Transition{ID: reg.ID, ExpectedVersion: reg.Version, To: models.PaymentFailed}
		if valid {
			t.To = models.PaymentSuccess
			t.PaymentID = in.PaymentID
			t.Signature = in.Signature
		}
		updated, err := r.Store.Transition(ctx, t)
		if errors.Is(err, ErrConcurrencyConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, err
		}

		if !valid {
			r.Logger.Warn("payment signature rejected",
				zap.String("registration_id", reg.ID.String()),
				zap.String("order_id", in.OrderID))
			r.publish(ctx, events.NewRegistrationEvent(events.TypePaymentFailed, updated))
			return nil, ErrInvalidSignature
		}

		r.publish(ctx, events.NewRegistrationEvent(events.TypeRegistrationConfirmed, updated))
		if w, err := r.loadWebinar(ctx, updated.WebinarID); err != nil {
			r.Logger.Warn("skip confirmation, webinar unavailable",
				zap.String("registration_id", updated.ID.String()), zap.Error(err))
		} else {
			r.notify(ctx, "confirmation", updated, w, r.Sender.SendConfirmation)
		}
		return updated, nil
	}
}

// refundLatePayment returns money captured for a registration that no longer
// holds a seat, because its hold expired or an earlier callback failed it.
// The refund goes first; the payment is then recorded on the row so a replayed
// callback does not refund twice.
func (r *Reconciler) refundLatePayment(parent context.Context, reg *models.Registration, in VerifyInput) error {
	w, err := r.loadWebinar(parent, reg.WebinarID)
	if err != nil {
		return err
	}
	gctx, cancel := detached(parent, r.opts.GatewayTimeout)
	refundID, err := r.Gateway.Refund(gctx, in.PaymentID, w.PriceMinor, map[string]string{
		"reason":          "Registration hold expired before payment",
		"registration_id": reg.ID.String(),
	})
	cancel()
	if err != nil {
		r.metrics.integrityIssues.Inc(parent, telemetry.OutcomeAttr("late_payment_refund"))
		r.Logger.Error("data integrity: payment captured for a released registration and refund failed",
			zap.String("registration_id", reg.ID.String()),
			zap.String("order_id", in.OrderID),
			zap.String("payment_id", in.PaymentID),
			zap.Error(err))
		return fmt.Errorf("%w: refund late payment: %w", ErrGateway, err)
	}

	ctx, cancel := detached(parent, cleanupTimeout)
	defer cancel()
	updated, err := r.Store.RecordLatePayment(ctx, Transition{
		ID:              reg.ID,
		ExpectedVersion: reg.Version,
		PaymentID:       in.PaymentID,
		Signature:       in.Signature,
	})
	if err != nil {
		r.metrics.integrityIssues.Inc(ctx, telemetry.OutcomeAttr("late_payment_state"))
		r.Logger.Error("data integrity: late payment refunded but not recorded",
			zap.String("registration_id", reg.ID.String()),
			zap.String("payment_id", in.PaymentID),
			zap.String("refund_id", refundID),
			zap.Error(err))
		updated = reg
	}
	r.Logger.Warn("late payment refunded",
		zap.String("registration_id", reg.ID.String()),
		zap.String("payment_id", in.PaymentID),
		zap.String("refund_id", refundID))

	ev := events.NewRegistrationEvent(events.TypeRegistrationRefunded, updated)
	ev.RefundID = refundID
	r.publish(ctx, ev)
	return fmt.Errorf("%w: payment %s was refunded (%s)", ErrHoldExpired, in.PaymentID, refundID)
}

// Cancel withdraws the caller's registration up to CancellationWindow before
// the start. Paid registrations are refunded in full and marked failed;
// free or unpaid ones are deleted.
func (r *Reconciler) Cancel(ctx context.Context, id uuid.UUID, caller uuid.UUID) (*CancelResult, error) {
	for attempt := 0; ; attempt++ {
		reg, err := r.load(ctx, id, &caller)
		if err != nil {
			return nil, err
		}
		w, err := r.loadWebinar(ctx, reg.WebinarID)
		if err != nil {
			return nil, err
		}
		now := r.now()
		if w.HasStarted(now) {
			return nil, fmt.Errorf("%w: webinar has already started", ErrDeadlinePassed)
		}
		if now.After(w.StartsAt.Add(-CancellationWindow)) {
			return nil, fmt.Errorf("%w: cancellations close 24 hours before the start", ErrDeadlinePassed)
		}
		if reg.PaymentStatus == models.PaymentFailed {
			return nil, fmt.Errorf("%w: registration is already cancelled", ErrConflict)
		}

		if !w.IsFree() && reg.PaymentStatus == models.PaymentSuccess {
			return r.refund(ctx, reg, w)
		}

		err = r.Store.Delete(ctx, reg.ID, reg.Version)
		if errors.Is(err, ErrConcurrencyConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, err
		}
		r.publish(ctx, events.NewRegistrationEvent(events.TypeRegistrationCancelled, reg))
		return &CancelResult{Registration: reg, Deleted: true}, nil
	}
}

// refund returns the money first and only then fails the registration; if
// the refund call fails nothing changes.
func (r *Reconciler) refund(parent context.Context, reg *models.Registration, w *models.Webinar) (*CancelResult, error) {
	if reg.PaymentID == "" {
		return nil, fmt.Errorf("%w: paid registration has no payment id", ErrConflict)
	}
	gctx, cancel := detached(parent, r.opts.GatewayTimeout)
	refundID, err := r.Gateway.Refund(gctx, reg.PaymentID, w.PriceMinor, map[string]string{
		"reason":          "User cancellation",
		"registration_id": reg.ID.String(),
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: refund: %w", ErrGateway, err)
	}

	ctx, cancel := detached(parent, cleanupTimeout)
	defer cancel()
	updated, err := r.markRefunded(ctx, reg)
	if err != nil {
		r.metrics.integrityIssues.Inc(ctx, telemetry.OutcomeAttr("refund_state"))
		r.Logger.Error("data integrity: refund issued but registration not updated",
			zap.String("registration_id", reg.ID.String()),
			zap.String("refund_id", refundID),
			zap.Error(err))
		return nil, fmt.Errorf("record refund %s: %w", refundID, err)
	}

	ev := events.NewRegistrationEvent(events.TypeRegistrationRefunded, updated)
	ev.RefundID = refundID
	r.publish(ctx, ev)
	return &CancelResult{Registration: updated, Refunded: true, RefundID: refundID}, nil
}

func (r *Reconciler) markRefunded(ctx context.Context, reg *models.Registration) (*models.Registration, error) {
	t := Transition{ID: reg.ID, ExpectedVersion: reg.Version, To: models.PaymentFailed}
	updated, err := r.Store.Transition(ctx, t)
	if !errors.Is(err, ErrConcurrencyConflict) {
		return updated, err
	}
	cur, err := r.Store.GetByID(ctx, reg.ID)
	if err != nil {
		return nil, err
	}
	switch cur.PaymentStatus {
	case models.PaymentFailed:
		return cur, nil
	case models.PaymentSuccess:
		t.ExpectedVersion = cur.Version
		return r.Store.Transition(ctx, t)
	default:
		return nil, fmt.Errorf("%w: unexpected status %s after refund", ErrConflict, cur.PaymentStatus)
	}
}

package registrations

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/events"
	"github.com/aura-webinar/admissions/internal/models"
)

// DefaultPendingHold is how long an unpaid registration keeps its seat.
const DefaultPendingHold = 30 * time.Minute

// StaleExpirer fails unpaid holds older than a cutoff.
type StaleExpirer interface {
	ExpireStalePending(ctx context.Context, cutoff time.Time) ([]models.Registration, error)
}

// Expirer releases seats held by registrations whose payment never arrived.
type Expirer struct {
	store  StaleExpirer
	events EventPublisher
	hold   time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewExpirer creates an expirer. publisher may be nil.
func NewExpirer(store StaleExpirer, publisher EventPublisher, hold time.Duration, logger *zap.Logger) *Expirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hold <= 0 {
		hold = DefaultPendingHold
	}
	return &Expirer{store: store, events: publisher, hold: hold, logger: logger, now: time.Now}
}

// Sweep fails expired holds, which frees their seats, and returns how many
// were released. A payment completed after this point is refunded by
// VerifyPayment.
func (e *Expirer) Sweep(ctx context.Context) (int, error) {
	expired, err := e.store.ExpireStalePending(ctx, e.now().Add(-e.hold))
	if err != nil {
		return 0, err
	}
	for i := range expired {
		reg := &expired[i]
		e.logger.Info("released unpaid registration",
			zap.String("registration_id", reg.ID.String()),
			zap.String("webinar_id", reg.WebinarID.String()),
			zap.String("order_id", reg.OrderID))
		if e.events != nil {
			if err := e.events.Publish(ctx, events.NewRegistrationEvent(events.TypeRegistrationExpired, reg)); err != nil {
				e.logger.Warn("publish expiry event failed", zap.Error(err))
			}
		}
	}
	return len(expired), nil
}

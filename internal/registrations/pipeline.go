package registrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/events"
	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/internal/notify"
	"github.com/aura-webinar/admissions/internal/payments"
	"github.com/aura-webinar/admissions/internal/webinars"
	"github.com/aura-webinar/admissions/pkg/telemetry"
)

// CancellationWindow is how long before the start a registration can still be cancelled.
const CancellationWindow = 24 * time.Hour

const (
	defaultGatewayTimeout = 10 * time.Second
	defaultNotifyTimeout  = 5 * time.Second
	// cleanupTimeout bounds compensating writes that run after the caller is gone.
	cleanupTimeout = 5 * time.Second
)

// Catalog is the read-only view of webinars the pipeline needs.
type Catalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
}

// EventPublisher receives registration lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.RegistrationEvent) error
}

// Deps are the collaborators shared by Controller and Reconciler.
// Events is optional.
type Deps struct {
	Catalog Catalog
	Store   Store
	Gateway payments.Gateway
	Sender  notify.Sender
	Events  EventPublisher
	Logger  *zap.Logger
}

// Options tune timeouts and what is returned to checkout clients.
type Options struct {
	GatewayTimeout time.Duration
	NotifyTimeout  time.Duration
	// PublicKeyID is the gateway key id the browser checkout needs.
	PublicKeyID string
}

type pipeline struct {
	Deps
	opts    Options
	now     func() time.Time
	metrics *metrics
}

func newPipeline(d Deps, opts Options) pipeline {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = defaultGatewayTimeout
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	return pipeline{
		Deps:    d,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
		metrics: newMetrics(d.Logger),
	}
}

func (p *pipeline) loadWebinar(ctx context.Context, id uuid.UUID) (*models.Webinar, error) {
	w, err := p.Catalog.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, webinars.ErrNotFound) {
			return nil, fmt.Errorf("%w: webinar", ErrNotFound)
		}
		return nil, fmt.Errorf("load webinar: %w", err)
	}
	return w, nil
}

// detached returns a context that survives caller cancellation but still
// carries its values, bounded by d.
func detached(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), d)
}

type sendFunc func(ctx context.Context, n notify.Notice) error

// notify delivers best-effort: errors and timeouts are logged, never returned.
func (p *pipeline) notify(parent context.Context, what string, reg *models.Registration, w *models.Webinar, send sendFunc) {
	ctx, cancel := detached(parent, p.opts.NotifyTimeout)
	defer cancel()
	if err := send(ctx, notify.Notice{Registration: reg, Webinar: w}); err != nil {
		p.Logger.Warn("notification failed",
			zap.String("notification", what),
			zap.String("registration_id", reg.ID.String()),
			zap.Error(err))
	}
}

func (p *pipeline) publish(parent context.Context, ev events.RegistrationEvent) {
	if p.Events == nil {
		return
	}
	ctx, cancel := detached(parent, p.opts.NotifyTimeout)
	defer cancel()
	if err := p.Events.Publish(ctx, ev); err != nil {
		p.Logger.Warn("publish registration event failed",
			zap.String("type", ev.Type),
			zap.String("registration_id", ev.RegistrationID.String()),
			zap.Error(err))
	}
}

type metrics struct {
	admissions      *telemetry.Counter
	integrityIssues *telemetry.Counter
}

func newMetrics(logger *zap.Logger) *metrics {
	m := &metrics{}
	var err error
	if m.admissions, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registrations.admissions",
		Description: "Registration attempts by outcome",
	}); err != nil {
		logger.Warn("create admissions counter", zap.Error(err))
	}
	if m.integrityIssues, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registrations.compensation_failures",
		Description: "Compensating writes that failed and need manual reconciliation",
	}); err != nil {
		logger.Warn("create compensation counter", zap.Error(err))
	}
	return m
}

// Package reminders sends the time-driven notifications for paid
// registrations: a day-ahead reminder, an hour-ahead reminder and a
// "starting now" notice. Each one goes out at most once per registration.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/internal/notify"
	"github.com/aura-webinar/admissions/internal/worker"
	"github.com/aura-webinar/admissions/pkg/telemetry"
)

// Sweep cadences. They are fixed so the windows below always overlap
// consecutive runs.
const (
	Every24h      = time.Hour
	Every1h       = 5 * time.Minute
	EveryStarting = 5 * time.Minute

	defaultSendTimeout = 5 * time.Second
)

// Catalog finds webinars by start time.
type Catalog interface {
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]models.Webinar, error)
}

// Store reads paid registrations and records sent milestones.
type Store interface {
	ListPaidByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.Registration, error)
	MarkMilestoneSent(ctx context.Context, id uuid.UUID, m models.Milestone) (bool, error)
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Kind     models.Milestone `json:"kind"`
	From     time.Time        `json:"from"`
	To       time.Time        `json:"to"`
	Webinars int              `json:"webinars"`
	Sent     int              `json:"sent"`
	Failed   int              `json:"failed"`
}

// Scheduler runs reminder sweeps. It keeps no state between runs; the
// per-registration flags are the only memory.
type Scheduler struct {
	catalog     Catalog
	store       Store
	sender      notify.Sender
	sendTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time

	sent   *telemetry.Counter
	failed *telemetry.Counter
}

// NewScheduler creates a scheduler. sendTimeout bounds each individual send.
func NewScheduler(catalog Catalog, store Store, sender notify.Sender, sendTimeout time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	s := &Scheduler{
		catalog:     catalog,
		store:       store,
		sender:      sender,
		sendTimeout: sendTimeout,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	var err error
	if s.sent, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "reminders.sent",
		Description: "Milestone notifications sent and flagged",
	}); err != nil {
		logger.Warn("reminders.sent counter unavailable", zap.Error(err))
	}
	if s.failed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "reminders.failed",
		Description: "Milestone notifications that could not be sent or flagged",
	}); err != nil {
		logger.Warn("reminders.failed counter unavailable", zap.Error(err))
	}
	return s
}

// Window24h covers the whole next UTC calendar day.
func Window24h(now time.Time) (time.Time, time.Time) {
	y, m, d := now.UTC().Date()
	from := time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	return from, from.Add(24*time.Hour - time.Microsecond)
}

// Window1h covers starts between 55 and 65 minutes from now.
func Window1h(now time.Time) (time.Time, time.Time) {
	return now.Add(55 * time.Minute), now.Add(65 * time.Minute)
}

// WindowStarting covers starts from 5 minutes ago to 10 minutes ahead.
func WindowStarting(now time.Time) (time.Time, time.Time) {
	return now.Add(-5 * time.Minute), now.Add(10 * time.Minute)
}

// Sweep24h sends the day-ahead reminder for webinars starting tomorrow (UTC).
func (s *Scheduler) Sweep24h(ctx context.Context) (SweepResult, error) {
	from, to := Window24h(s.now())
	return s.sweep(ctx, models.MilestoneReminder24h, from, to, func(ctx context.Context, n notify.Notice) error {
		return s.sender.SendReminder(ctx, n, notify.Reminder24h)
	})
}

// Sweep1h sends the hour-ahead reminder.
func (s *Scheduler) Sweep1h(ctx context.Context) (SweepResult, error) {
	from, to := Window1h(s.now())
	return s.sweep(ctx, models.MilestoneReminder1h, from, to, func(ctx context.Context, n notify.Notice) error {
		return s.sender.SendReminder(ctx, n, notify.Reminder1h)
	})
}

// SweepStarting sends the "starting now" notice with the join link.
func (s *Scheduler) SweepStarting(ctx context.Context) (SweepResult, error) {
	from, to := WindowStarting(s.now())
	return s.sweep(ctx, models.MilestoneStarting, from, to, s.sender.SendStartingNotice)
}

func (s *Scheduler) sweep(ctx context.Context, m models.Milestone, from, to time.Time,
	send func(context.Context, notify.Notice) error) (SweepResult, error) {
	res := SweepResult{Kind: m, From: from, To: to}
	webinars, err := s.catalog.ListStartingBetween(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("list webinars for %s: %w", m, err)
	}
	res.Webinars = len(webinars)

	for i := range webinars {
		w := &webinars[i]
		regs, err := s.store.ListPaidByWebinar(ctx, w.ID)
		if err != nil {
			return res, fmt.Errorf("list registrations of %s: %w", w.ID, err)
		}
		for j := range regs {
			reg := &regs[j]
			if reg.MilestoneSent(m) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
			switch s.deliver(ctx, m, reg, w, send) {
			case outcomeSent:
				res.Sent++
			case outcomeFailed:
				res.Failed++
			}
		}
	}

	s.sent.Add(ctx, int64(res.Sent), telemetry.SweepKindAttr(string(m)))
	s.failed.Add(ctx, int64(res.Failed), telemetry.SweepKindAttr(string(m)))
	s.logger.Info("reminder sweep finished",
		zap.String("kind", string(m)),
		zap.Int("webinars", res.Webinars),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed))
	return res, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
)

// deliver sends one notification and then flags it. A registration some
// other run flagged in the meantime is skipped.
func (s *Scheduler) deliver(ctx context.Context, m models.Milestone, reg *models.Registration, w *models.Webinar,
	send func(context.Context, notify.Notice) error) outcome {
	log := s.logger.With(
		zap.String("kind", string(m)),
		zap.String("registration_id", reg.ID.String()),
		zap.String("webinar_id", w.ID.String()))

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	err := send(sendCtx, notify.Notice{Registration: reg, Webinar: w})
	cancel()
	if err != nil {
		log.Warn("send failed, will retry next sweep", zap.Error(err))
		return outcomeFailed
	}

	flipped, err := s.store.MarkMilestoneSent(ctx, reg.ID, m)
	if err != nil {
		log.Error("notification sent but flag not recorded", zap.Error(err))
		return outcomeFailed
	}
	if !flipped {
		log.Debug("flag already set by a concurrent sweep")
		return outcomeSkipped
	}
	return outcomeSent
}

// Tasks returns the three sweeps as periodic worker tasks.
func (s *Scheduler) Tasks() []worker.Task {
	wrap := func(run func(context.Context) (SweepResult, error)) func(context.Context) error {
		return func(ctx context.Context) error {
			_, err := run(ctx)
			return err
		}
	}
	return []worker.Task{
		{Name: "reminders:24h", Interval: Every24h, Run: wrap(s.Sweep24h)},
		{Name: "reminders:1h", Interval: Every1h, Run: wrap(s.Sweep1h)},
		{Name: "reminders:starting", Interval: EveryStarting, Run: wrap(s.SweepStarting)},
	}
}

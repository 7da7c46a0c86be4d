package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a job run on a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Locker hands out short leases so only one replica runs a task per interval.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Periodic runs tasks on their intervals until the context ends. Each task
// runs once at startup and then on every tick.
type Periodic struct {
	tasks  []Task
	locker Locker
	logger *zap.Logger
}

// NewPeriodic creates a periodic runner. locker may be nil, in which case
// every replica runs every task.
func NewPeriodic(locker Locker, logger *zap.Logger, tasks ...Task) *Periodic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Periodic{tasks: tasks, locker: locker, logger: logger}
}

// Run blocks until ctx is done and all tasks have returned.
func (p *Periodic) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range p.tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			p.loop(ctx, t)
		}(t)
	}
	wg.Wait()
	p.logger.Info("periodic tasks stopped")
}

func (p *Periodic) loop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	p.RunOnce(ctx, t)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx, t)
		}
	}
}

// RunOnce runs t if this replica wins the lease for the current interval.
// A lock error does not block the run.
func (p *Periodic) RunOnce(ctx context.Context, t Task) {
	log := p.logger.With(zap.String("task", t.Name))
	if p.locker != nil {
		// Held slightly shorter than the interval so the next tick can take it.
		ttl := t.Interval - t.Interval/10
		ok, err := p.locker.TryLock(ctx, "lock:"+t.Name, ttl)
		switch {
		case err != nil:
			log.Warn("task lock unavailable, running anyway", zap.Error(err))
		case !ok:
			log.Debug("task held by another replica")
			return
		}
	}
	start := time.Now()
	if err := t.Run(ctx); err != nil {
		log.Error("periodic task failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return
	}
	log.Debug("periodic task done", zap.Duration("took", time.Since(start)))
}

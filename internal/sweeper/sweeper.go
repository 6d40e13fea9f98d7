// Package sweeper periodically removes agents that have not been seen for a
// long time, so crashed processes do not accumulate in the presence store.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether expr is a usable 5-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("sweeper: schedule %q: %w", expr, err)
	}
	return nil
}

// Pruner deletes agents last seen longer ago than olderThan.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}

// Sweeper runs Prune on a cron schedule.
type Sweeper struct {
	pruner    Pruner
	schedule  cron.Schedule
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Sweeper. retention is how long an agent may stay silent
// before it is removed.
func New(p Pruner, schedule string, retention time.Duration, logger *slog.Logger) (*Sweeper, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("sweeper: schedule %q: %w", schedule, err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("sweeper: retention must be positive")
	}
	if logger == nil {
		logger = slog.Default().With("component", "sweeper")
	}
	return &Sweeper{
		pruner:    p,
		schedule:  sched,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Next returns the next sweep time after t.
func (s *Sweeper) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// SweepOnce prunes immediately and returns how many agents were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	n, err := s.pruner.Prune(ctx, s.retention)
	if err != nil {
		return n, fmt.Errorf("sweeper: prune: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned silent agents", "count", n, "retention", s.retention)
	}
	return n, nil
}

// Run sweeps at each scheduled time until ctx is cancelled. Prune errors are
// logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		wait := time.Until(s.Next(s.now()))
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}
	}
}

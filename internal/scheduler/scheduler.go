package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context, now time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	RunAtStart   bool
	StartupDelay time.Duration
}

// Scheduler drives the fetch-diff-aggregate pipeline on a fixed interval.
// Ticks run synchronously in the loop, so a slow tick delays the next one
// rather than overlapping it.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function until ctx is cancelled. Tick
// failures are logged and the schedule continues; the next interval is the
// retry mechanism.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunAtStart {
		s.execute(ctx, tick, time.Now().UTC())
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			s.execute(ctx, tick, t.UTC())
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, now time.Time) {
	s.logger.Info().Time("tick", now).Msg("executing scheduled tick")
	if err := tick(ctx, now); err != nil {
		s.logger.Error().Err(err).Time("tick", now).Msg("tick execution failed")
	}
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every scheduled tick.
type TickFunc func(ctx context.Context, tick time.Time) error

// Options tune scheduler behaviour. A non-empty Cron expression takes precedence over Interval.
type Options struct {
	Interval     time.Duration
	Cron         string
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives sequential execution of check runs.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	logger   zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
	if opts.Cron != "" {
		schedule, err := cron.ParseStandard(opts.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse cron expression %q: %w", opts.Cron, err)
		}
		s.schedule = schedule
		return s, nil
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive")
	}
	return s, nil
}

// Run blocks, invoking the tick function at each scheduled time until ctx is cancelled.
// Ticks never overlap; a tick that runs long delays the next one.
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

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		at := s.tickTime(next)
		s.logger.Info().Time("tick", at).Msg("executing scheduled tick")

		if err := tick(ctx, at); err != nil {
			s.logger.Error().Err(err).Time("tick", at).Msg("tick execution failed")
		}

		next = s.nextTick(next)
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if s.schedule != nil {
		return s.schedule.Next(now)
	}
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) tickTime(t time.Time) time.Time {
	if s.schedule != nil || !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}

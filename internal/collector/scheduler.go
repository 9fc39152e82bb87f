package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/bucket"
)

const cycleTimeout = 2 * time.Minute

// Sweeper is the nightly maintenance hook the scheduler drives alongside
// collection, typically the retention sweep.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Scheduler owns the periodic collection cadence and the nightly sweep.
// Jobs run on reference-zone wall time so the sweep lands in the quiet hours
// regardless of where the process is deployed.
type Scheduler struct {
	scheduler *gocron.Scheduler
	collector *Collector
	sweeper   Sweeper
	interval  time.Duration
	sweepAt   string
}

// NewScheduler wires a Collector and an optional Sweeper into a cron runner.
// sweepAt is a "HH:MM" wall-clock time in the reference zone; empty disables
// the sweep job.
func NewScheduler(c *Collector, sweeper Sweeper, interval time.Duration, sweepAt string) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(bucket.Reference),
		collector: c,
		sweeper:   sweeper,
		interval:  interval,
		sweepAt:   sweepAt,
	}
}

// Start registers the jobs and begins running them asynchronously. The first
// collection cycle fires immediately so a fresh deployment has data before
// the first interval elapses.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.collector.stations) == 0 {
		slog.Warn("[Scheduler] No stations configured, nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).StartImmediately().Do(func() {
		cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
		defer cancel()
		s.collector.RunCycle(cycleCtx)
	})
	if err != nil {
		return err
	}

	if s.sweeper != nil && s.sweepAt != "" {
		_, err = s.scheduler.Every(1).Day().At(s.sweepAt).Do(func() {
			sweepCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
			defer cancel()
			if err := s.sweeper.Sweep(sweepCtx); err != nil {
				slog.Error("[Scheduler] Retention sweep failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
	}

	slog.Info("[Scheduler] Starting",
		"interval", s.interval, "sweep_at", s.sweepAt, "stations", len(s.collector.stations))
	s.scheduler.StartAsync()
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	slog.Info("[Scheduler] Stopped")
}

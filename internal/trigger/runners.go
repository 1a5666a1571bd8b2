package trigger

import (
	"context"
	"time"

	"gridmm/internal/bootstrap"
)

var (
	_ bootstrap.Runner = (*TickRunner)(nil)
	_ bootstrap.Runner = (*RecalculateRunner)(nil)
)

// TickRunner drives Bot.Tick on a fixed interval, matching the health-check
// half of the trigger loop's four responsibilities: catching fills the
// subscription missed and keeping the persisted snapshot current even when
// nothing else happens to trigger a save.
type TickRunner struct {
	Bot      *Bot
	Interval time.Duration
}

func (r *TickRunner) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = r.Bot.tickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Bot.Tick(ctx); err != nil {
				r.Bot.logger.Error("trigger: tick failed", "bot", r.Bot.botKey, "error", err)
			}
		}
	}
}

// RecalculateRunner polls a signal file's mtime and fires a full Recalculate
// whenever it advances — a plain poll loop rather than an fsnotify watch,
// since the signal is written by an external configurator this module never
// assumes is running on the same host's filesystem events.
type RecalculateRunner struct {
	Bot      *Bot
	Interval time.Duration
}

func (r *RecalculateRunner) Run(ctx context.Context) error {
	if r.Bot.recalcSignalPath == "" {
		<-ctx.Done()
		return nil
	}

	interval := r.Interval
	if interval <= 0 {
		interval = r.Bot.recalcPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if r.Bot.RecalculateSignalFired() {
				if err := r.Bot.Recalculate(ctx); err != nil {
					r.Bot.logger.Error("trigger: recalculate failed", "bot", r.Bot.botKey, "error", err)
				}
			}
		}
	}
}

// Package maintenance holds the operator tasks that sit beside the stage
// pipelines: the recurring run loop, stage resets and the player audit.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/store"
)

// Every runs fn immediately and then once per interval until ctx is
// cancelled. A failing run is logged and the loop keeps going; only
// cancellation ends it. A zero interval runs fn once and returns its error.
func Every(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error, logger *slog.Logger) error {
	run := func() error {
		start := time.Now()
		err := fn(ctx)
		dur := time.Since(start).Round(time.Millisecond)
		if err != nil {
			logger.Warn("Scheduled run failed", "task", name, "duration", dur, "error", err)
			return err
		}
		logger.Info("Scheduled run finished", "task", name, "duration", dur)
		return nil
	}

	if interval <= 0 {
		return run()
	}
	_ = run()

	t := time.NewTicker(interval)
	defer t.Stop()
	logger.Info("Scheduler started", "task", name, "interval", interval)
	for {
		select {
		case <-t.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			_ = run()
		case <-ctx.Done():
			logger.Info("Scheduler stopped", "task", name)
			return ctx.Err()
		}
	}
}

// ResetStage forgets completion and failure history of stage so that the
// matches are processed again. Empty ids resets every match.
func ResetStage(ctx context.Context, runs store.StageRuns, name string, ids []string, logger *slog.Logger) (int64, error) {
	stage, ok := provider.ParseStage(name)
	if !ok {
		return 0, errors.Newf("unknown stage %q", name)
	}
	n, err := runs.ResetStage(ctx, stage, ids)
	if err != nil {
		return 0, errors.Wrapf(err, "reset %s", stage)
	}
	logger.Info("Stage reset", "stage", stage, "matches", len(ids), "rows", n)
	return n, nil
}

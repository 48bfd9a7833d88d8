package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"activation-platform/internal/infra/metrics"
	"activation-platform/internal/infra/redis"
)

const cleanupLockKey = "lock:activation_code_cleanup"

// Cleaner is the slice of the activation code use case the worker drives.
type Cleaner interface {
	Cleanup(ctx context.Context, maxAge time.Duration) (int64, error)
}

// CleanupWorker periodically deletes stale unused codes. With a locker,
// only the instance holding the lock runs a given tick.
type CleanupWorker struct {
	interval time.Duration
	maxAge   time.Duration
	uc       Cleaner
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewCleanupWorker(interval, maxAge time.Duration, uc Cleaner, locker redis.Locker, logger *zerolog.Logger) *CleanupWorker {
	l := logger.With().Str("component", "CleanupWorker").Logger()
	return &CleanupWorker{
		interval: interval,
		maxAge:   maxAge,
		uc:       uc,
		locker:   locker,
		log:      &l,
	}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("max_age", w.maxAge).Msg("Starting cleanup worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping cleanup worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *CleanupWorker) tick(ctx context.Context) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, cleanupLockKey, w.interval)
		if err != nil {
			if errors.Is(err, redis.ErrLockHeld) {
				metrics.IncCleanupRun("skipped")
				w.log.Debug().Msg("cleanup lock held elsewhere, skipping tick")
				return
			}
			metrics.IncCleanupRun("error")
			w.log.Error().Err(err).Msg("acquire cleanup lock")
			return
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), cleanupLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("release cleanup lock")
			}
		}()
	}

	n, err := w.uc.Cleanup(ctx, w.maxAge)
	if err != nil {
		metrics.IncCleanupRun("error")
		w.log.Error().Err(err).Msg("cleanup worker error")
		return
	}
	metrics.IncCleanupRun("ok")
	if n > 0 {
		w.log.Info().Int64("count", n).Msg("stale activation codes removed")
	}
}

package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is the period between two expiration sweeps.
const DefaultSweepInterval = time.Minute

// SweepResult summarizes one sweep.
type SweepResult struct {
	Expired        int
	FilesRemoved   int
	RecordsRemoved int
	Failures       int
}

// Sweeper periodically removes images whose deadline has passed. It only
// ever deletes: it never creates rows and never touches delete_at.
type Sweeper struct {
	store    *ContentStore
	interval time.Duration
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

// NewSweeper builds a sweeper over store. A non-positive interval falls back
// to DefaultSweepInterval. The sweeper shares the store's clock and observer.
func NewSweeper(store *ContentStore, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		observer: store.observer,
		now:      store.now,
	}
}

// Interval returns the configured period.
func (w *Sweeper) Interval() time.Duration {
	return w.interval
}

// Run sweeps every interval until ctx is done. The ticker keeps a fixed
// period; a slow sweep drops ticks instead of queueing them.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("expiration sweeper started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiration sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs one pass. Failures are logged and counted; the affected
// records stay candidates for the next pass.
func (w *Sweeper) Sweep(ctx context.Context) SweepResult {
	start := time.Now()
	var res SweepResult

	expired, err := w.store.meta.ListExpired(ctx, w.now())
	if err != nil {
		w.logger.Error("expiration sweep query failed", zap.Error(err))
		res.Failures++
		w.observer.RecordSweep(time.Since(start), res, -1)
		return res
	}
	res.Expired = len(expired)

	for _, rec := range expired {
		fileRemoved, rowRemoved, err := w.store.Remove(ctx, rec)
		if fileRemoved {
			res.FilesRemoved++
		}
		if rowRemoved {
			res.RecordsRemoved++
		}
		if err != nil {
			res.Failures++
			w.logger.Warn("expired image removal incomplete",
				zap.String("id", rec.ID), zap.String("file", rec.Filename), zap.Error(err))
		}
	}

	stored, err := w.store.meta.Count(ctx)
	if err != nil {
		stored = -1
	}
	w.observer.RecordSweep(time.Since(start), res, stored)
	if res.Expired > 0 || res.Failures > 0 {
		w.logger.Info("expiration sweep finished",
			zap.Int("expired", res.Expired),
			zap.Int("files_removed", res.FilesRemoved),
			zap.Int("records_removed", res.RecordsRemoved),
			zap.Int("failures", res.Failures))
	}
	return res
}

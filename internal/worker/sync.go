package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
)

// EntrySource lists the persistent leaderboard rows
type EntrySource interface {
	ListEntries(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// IndexRebuilder replaces a mode's whole position ordering
type IndexRebuilder interface {
	Replace(ctx context.Context, mode domain.PlayMode, pps map[int64]float64) error
}

// SyncWorker periodically rebuilds the live position index from the stored leaderboard rows
type SyncWorker struct {
	entries EntrySource
	index   IndexRebuilder
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	entries EntrySource,
	index IndexRebuilder,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		entries: entries,
		index:   index,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start rebuilds the index once and then keeps it in sync in the background
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error("initial index sync failed", "error", err)
	}
	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("index sync failed", "error", err)
			}
		}
	}
}

// RunOnce rebuilds every mode's ordering from the stored rows
func (w *SyncWorker) RunOnce(ctx context.Context) error {
	startTime := time.Now()

	entries, err := w.entries.ListEntries(ctx)
	if err != nil {
		return err
	}

	var pps [domain.ModeCount]map[int64]float64
	for i := range pps {
		pps[i] = make(map[int64]float64)
	}
	for _, e := range entries {
		for _, mode := range domain.Modes {
			if pp := e.Modes[mode].PerformancePoints; pp > 0 {
				pps[mode][e.UserID] = pp
			}
		}
	}

	errorCount := 0
	for _, mode := range domain.Modes {
		if err := w.index.Replace(ctx, mode, pps[mode]); err != nil {
			w.logger.Error("failed to rebuild ranking", "mode", mode.String(), "error", err)
			errorCount++
		}
	}

	w.logger.Info("index sync completed",
		"duration", time.Since(startTime),
		"entries", len(entries),
		"errors", errorCount,
	)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

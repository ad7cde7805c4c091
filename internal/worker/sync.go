package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/playful-minds/progression/internal/config"
	"github.com/playful-minds/progression/internal/postgres"
	"github.com/playful-minds/progression/internal/redis"
)

// SyncWorker periodically rebuilds the Redis board caches from PostgreSQL.
// The database is the durable source of truth for highscores; the worker
// repairs the cache after restarts and after any missed cache writes.
type SyncWorker struct {
	cache    *redis.BoardCache
	postgres *postgres.Repository
	config   *config.SyncConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	cache *redis.BoardCache,
	postgres *postgres.Repository,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		cache:    cache,
		postgres: postgres,
		config:   cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

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

// run is the main worker loop
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
			w.syncAll(ctx)
		}
	}
}

// syncAll rebuilds every board cache from the database
func (w *SyncWorker) syncAll(ctx context.Context) {
	w.logger.Info("starting sync cycle")
	startTime := time.Now()

	activities, err := w.postgres.ListBoardActivities(ctx)
	if err != nil {
		w.logger.Error("failed to list boards for sync", "error", err)
		return
	}

	syncedCount := 0
	errorCount := 0

	for _, activityKey := range activities {
		if err := w.SyncBoard(ctx, activityKey); err != nil {
			w.logger.Error("failed to sync board",
				"activity_key", activityKey,
				"error", err,
			)
			errorCount++
		} else {
			syncedCount++
		}
	}

	duration := time.Since(startTime)
	w.logger.Info("sync cycle completed",
		"duration", duration,
		"synced", syncedCount,
		"errors", errorCount,
	)
}

// SyncBoard replaces one board cache with the database contents
func (w *SyncWorker) SyncBoard(ctx context.Context, activityKey string) error {
	w.logger.Debug("syncing board from database", "activity_key", activityKey)

	entries, err := w.postgres.LoadBoard(ctx, activityKey)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		// An empty board in the database means any cached entries are stale.
		return w.cache.DropBoard(ctx, activityKey)
	}

	if err := w.cache.ReplaceBoard(ctx, activityKey, entries); err != nil {
		return err
	}

	w.logger.Debug("synced board from database",
		"activity_key", activityKey,
		"entry_count", len(entries),
	)

	return nil
}

// SyncAllFromDatabase rebuilds all board caches. Used at startup so the
// cache is warm before serving reads.
func (w *SyncWorker) SyncAllFromDatabase(ctx context.Context) error {
	w.logger.Info("syncing all boards from database")

	activities, err := w.postgres.ListBoardActivities(ctx)
	if err != nil {
		return err
	}

	for _, activityKey := range activities {
		if err := w.SyncBoard(ctx, activityKey); err != nil {
			w.logger.Error("failed to sync board from database",
				"activity_key", activityKey,
				"error", err,
			)
			// Continue with other boards
		}
	}

	w.logger.Info("completed syncing all boards from database", "count", len(activities))
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single sync cycle (useful for manual triggers)
func (w *SyncWorker) RunOnce(ctx context.Context) {
	w.syncAll(ctx)
}

package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Purger deletes records in a namespace that have not been written recently
type Purger interface {
	PurgeStale(ctx context.Context, namespace string, olderThan time.Duration) (int64, error)
}

// PurgeTarget names a namespace whose records are safe to drop after MaxAge
type PurgeTarget struct {
	Namespace string
	MaxAge    time.Duration
}

// CleanupManager periodically removes stale guard records from stores that
// do not expire keys on their own
type CleanupManager struct {
	purger   Purger
	targets  []PurgeTarget
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(purger Purger, targets []PurgeTarget, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		purger:   purger,
		targets:  targets,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the cleanup loop until ctx is done or Stop is called
func (cm *CleanupManager) Start(ctx context.Context) error {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return nil
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return nil
		}
	}
}

// runCleanup purges each target once
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, target := range cm.targets {
		rowsDeleted, err := cm.purger.PurgeStale(cleanupCtx, target.Namespace, target.MaxAge)
		if err != nil {
			cm.logger.Error("failed to purge stale records",
				slog.String("namespace", target.Namespace),
				slog.Any("error", err))
			continue
		}

		if rowsDeleted > 0 {
			cm.logger.Info("stale record cleanup completed",
				slog.String("namespace", target.Namespace),
				slog.Int64("rows_deleted", rowsDeleted))
		}
	}
}

// Stop signals the cleanup manager to stop. It is safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

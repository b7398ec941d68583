// Package cleanup provides the background worker that purges expired
// entries from in-process caches.
package cleanup

import (
	"context"
	"time"

	"github.com/AtRiskMedia/readership/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/metrics"
)

// Worker handles background cache cleanup operations
type Worker struct {
	cache  interfaces.ExpiringCache
	config *Config
	logger *logging.ChanneledLogger
	now    func() time.Time
}

// NewWorker creates a new cleanup worker with injected configuration
func NewWorker(cache interfaces.ExpiringCache, config *Config, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		cache:  cache,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Start runs the cleanup loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	w.logger.Cache().Info("Cache cleanup worker started",
		"interval", w.config.CleanupInterval,
		"verbose", w.config.VerboseReporting)

	for {
		select {
		case <-ctx.Done():
			w.logger.Cache().Info("Cache cleanup worker stopping")
			return
		case <-ticker.C:
			w.performCleanup()
		}
	}
}

// performCleanup purges expired entries once and returns the count.
func (w *Worker) performCleanup() int {
	start := time.Now()
	removed := w.cache.PurgeExpired(w.now())
	metrics.CacheEvictions.Add(float64(removed))

	if removed > 0 || w.config.VerboseReporting {
		w.logger.Cache().Info("Cache cleanup finished",
			"removed", removed,
			"remaining", w.cache.Len(),
			"duration", time.Since(start))
	}
	return removed
}

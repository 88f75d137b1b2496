package jobs

import (
	"context"

	"github.com/kitkwok/tightzone/pkg/logger"
)

// Pruner drops cache entries too old to serve even as a fallback
type Pruner interface {
	Prune() int
}

// CacheCleanupJob evicts expired news cache entries
type CacheCleanupJob struct {
	cache  Pruner
	logger *logger.Logger
}

// NewCacheCleanupJob creates a new cache cleanup job
func NewCacheCleanupJob(cache Pruner, log *logger.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		cache:  cache,
		logger: log,
	}
}

// Name returns the job name
func (j *CacheCleanupJob) Name() string {
	return "news_cache_cleanup"
}

// Schedule returns the cron schedule (every 15 minutes)
func (j *CacheCleanupJob) Schedule() string {
	return "0 */15 * * * *"
}

// Run executes the cache cleanup
func (j *CacheCleanupJob) Run(ctx context.Context) error {
	if removed := j.cache.Prune(); removed > 0 {
		j.logger.WithField("removed", removed).Info("News cache cleanup completed")
	}
	return nil
}

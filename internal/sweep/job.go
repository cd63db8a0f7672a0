package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/eternisai/group-notifier/internal/logger"
	"github.com/eternisai/group-notifier/internal/metrics"
)

// ExpiredTokenDeleter bulk-deletes tokens registered before a cutoff.
type ExpiredTokenDeleter interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Job removes delivery tokens older than the retention window.
type Job struct {
	store     ExpiredTokenDeleter
	retention time.Duration
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewJob creates a token sweep job. m may be nil.
func NewJob(store ExpiredTokenDeleter, retention time.Duration, logger *logger.Logger, m *metrics.Metrics) *Job {
	return &Job{
		store:     store,
		retention: retention,
		logger:    logger.WithComponent("sweep"),
		metrics:   m,
		now:       time.Now,
	}
}

// Run deletes every token registered before now minus the retention window.
func (j *Job) Run(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.retention)
	log := j.logger.WithContext(logger.WithOperation(ctx, "token-sweep"))

	deleted, err := j.store.DeleteExpiredBefore(ctx, cutoff)
	j.metrics.ObserveSweep(deleted, err)

	if err != nil {
		log.Error("failed to remove old tokens",
			slog.Time("cutoff", cutoff),
			slog.Int("deleted", deleted),
			slog.String("error", err.Error()))
		return deleted, err
	}

	if deleted == 0 {
		log.Info("no old tokens to remove", slog.Time("cutoff", cutoff))
		return 0, nil
	}

	log.Info("removed old tokens",
		slog.Time("cutoff", cutoff),
		slog.Int("deleted", deleted))

	return deleted, nil
}

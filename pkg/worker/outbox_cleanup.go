package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

type OutboxCleanupConfig struct {
	Retention time.Duration
	Interval  time.Duration
}

// OutboxCleanupWorker deletes processed outbox events older than the
// retention window. Failed events are kept for inspection.
type OutboxCleanupWorker struct {
	repo   repository.OutboxRepository
	config OutboxCleanupConfig
	logger *logger.Logger
	now    func() time.Time
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, config OutboxCleanupConfig, logger *logger.Logger) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		repo:   repo,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	if w.config.Interval <= 0 || w.config.Retention <= 0 {
		w.logger.Warn("outbox cleanup disabled")
		return
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *OutboxCleanupWorker) RunOnce(ctx context.Context) int64 {
	cutoff := w.now().Add(-w.config.Retention)
	n, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error(err, "Failed to clean up outbox")
		return 0
	}
	if n > 0 {
		w.logger.Info("Cleaned up outbox", "deleted", n, "cutoff", cutoff)
	}
	return n
}

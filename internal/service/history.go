package service

import (
	"context"
	"time"

	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/logger"
)

// HistoryWriter persists finished jobs.
type HistoryWriter interface {
	Upsert(ctx context.Context, rec *domain.ConversionRecord) error
}

// HistoryRecorder writes a record each time a job reaches a terminal state.
// Register Observe with the job store.
type HistoryRecorder struct {
	repo    HistoryWriter
	timeout time.Duration
}

// NewHistoryRecorder creates a recorder; timeout bounds each write.
func NewHistoryRecorder(repo HistoryWriter, timeout time.Duration) *HistoryRecorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HistoryRecorder{repo: repo, timeout: timeout}
}

// Observe is a jobstore.Observer.
func (h *HistoryRecorder) Observe(prev, next domain.Job) {
	if !next.State.IsTerminal() || prev.State == next.State {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	rec := domain.RecordFromJob(next)
	if err := h.repo.Upsert(ctx, &rec); err != nil {
		logger.With(logger.Fields{
			logger.FieldJobID:  next.ID,
			logger.FieldStatus: string(next.State),
		}).Warn(ctx, "Failed to record job history: %v", err)
	}
}

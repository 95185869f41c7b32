package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/laha-editions/proforma/internal/jobs"
)

const (
	// TaskProformaExpireSweep expires SENT proformas past their validity.
	TaskProformaExpireSweep = "proforma:expire_sweep"
)

// ExpireSweepPayload carries scheduling metadata.
type ExpireSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewExpireSweepTask constructs an Asynq task for the expiry sweep.
func NewExpireSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ExpireSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProformaExpireSweep, body, asynq.Queue(QueueDefault)), nil
}

// Sweeper expires overdue proformas and reports how many moved.
type Sweeper interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// NewExpireSweepHandler runs sweeper for every scheduled sweep task.
func NewExpireSweepHandler(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ExpireSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskProformaExpireSweep)
		count, err := sweeper.ExpireOverdue(ctx)
		metrics.AddProcessed(TaskProformaExpireSweep, count)
		if err != nil {
			logger.Error("proforma expire sweep", slog.Int("expired", count), slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("proforma expire sweep",
			slog.Int("expired", count),
			slog.Time("scheduled_for", payload.ScheduledFor),
		)
		return tracker.End(nil)
	}
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian/internal/recon"
)

// AutoReconcileJob runs the batch reconciler from the worker.
type AutoReconcileJob struct {
	service *recon.Service
	logger  *slog.Logger
}

// NewAutoReconcileJob constructs the job.
func NewAutoReconcileJob(service *recon.Service, logger *slog.Logger) *AutoReconcileJob {
	return &AutoReconcileJob{service: service, logger: logger}
}

// Handle processes TaskAutoReconcile tasks.
func (j *AutoReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AutoReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	result, err := j.service.AutoReconcileAll(ctx, payload.ActorID)
	if err != nil {
		if errors.Is(err, recon.ErrBatchRunning) {
			j.logger.Info("auto reconcile skipped, another run in progress")
			return nil
		}
		return err
	}
	j.logger.Info("scheduled auto reconcile finished",
		slog.Int("total", result.Total),
		slog.Int("matched", result.Matched),
		slog.Int("unmatched", result.Unmatched),
		slog.Int("failed", result.Failed))
	return nil
}

package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian/internal/ledger"
)

// LedgerIntegrityJob runs the nightly journal balance check.
type LedgerIntegrityJob struct {
	service *ledger.Service
	logger  *slog.Logger
}

// NewLedgerIntegrityJob constructs the job.
func NewLedgerIntegrityJob(service *ledger.Service, logger *slog.Logger) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{service: service, logger: logger}
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	unbalanced, err := j.service.VerifyIntegrity(ctx)
	if err != nil {
		return err
	}
	if len(unbalanced) == 0 {
		j.logger.Info("ledger integrity check passed")
		return nil
	}
	ids := make([]string, 0, len(unbalanced))
	for _, id := range unbalanced {
		ids = append(ids, id.String())
	}
	j.logger.Error("ledger integrity check found unbalanced transactions",
		slog.Int("count", len(unbalanced)),
		slog.Any("group_ids", ids))
	return nil
}

package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAutoReconcile drives a batch auto-reconciliation run.
	TaskAutoReconcile = "recon:auto_reconcile"
	// TaskLedgerIntegrity scans the ledger for unbalanced groups.
	TaskLedgerIntegrity = "ledger:integrity_check"
)

// AutoReconcilePayload identifies the actor a scheduled run posts as.
type AutoReconcilePayload struct {
	ActorID int64 `json:"actor_id"`
}

// NewAutoReconcileTask constructs an Asynq task.
func NewAutoReconcileTask(payload AutoReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAutoReconcile, data), nil
}

// NewLedgerIntegrityTask constructs an Asynq task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

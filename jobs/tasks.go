package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity verifies that the trial balance still balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskReconAutoScan sweeps open statements for auto-acceptable matches.
	TaskReconAutoScan = "recon:autoscan"
)

// ReconAutoScanPayload narrows the scan to one statement. A zero
// StatementID means every statement with unmatched transactions.
type ReconAutoScanPayload struct {
	StatementID int64 `json:"statement_id"`
}

// NewLedgerIntegrityTask constructs the integrity sweep task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewReconAutoScanTask constructs an auto-scan task.
func NewReconAutoScanTask(payload ReconAutoScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconAutoScan, data), nil
}

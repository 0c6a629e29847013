package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity is the task type for the nightly ledger audit.
	TaskLedgerIntegrity = "ledger:integrity"
)

// LedgerIntegrityPayload configures a ledger integrity run.
type LedgerIntegrityPayload struct {
	// Concurrency bounds the number of accounts checked in parallel.
	Concurrency int `json:"concurrency"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger audit.
func NewLedgerIntegrityTask(concurrency int) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerIntegrityPayload{Concurrency: concurrency})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

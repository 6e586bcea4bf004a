package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueBatch carries period batches, which run serially per period.
	QueueBatch = "batch"

	// TaskPeriodCutoff cuts periods whose cut date has been reached.
	TaskPeriodCutoff = "periods:cutoff"
	// TaskPaymentSweep derives due-date statuses of installments.
	TaskPaymentSweep = "payments:sweep"
	// TaskStatementOverdue flags unpaid statements after the payment date.
	TaskStatementOverdue = "statements:overdue"
	// TaskIdempotencyCleanup drops expired Idempotency-Key records.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// TaskNames lists every task the worker serves.
func TaskNames() []string {
	return []string{TaskPeriodCutoff, TaskPaymentSweep, TaskStatementOverdue, TaskIdempotencyCleanup}
}

// DatePayload carries an optional as-of date (YYYY-MM-DD). Empty means today.
type DatePayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// CutoffPayload targets one period, or every due period when PeriodID is zero.
type CutoffPayload struct {
	DatePayload
	PeriodID int64 `json:"period_id,omitempty"`
}

func (p DatePayload) date(now time.Time) (time.Time, error) {
	if p.AsOf == "" {
		return now, nil
	}
	return time.Parse(time.DateOnly, p.AsOf)
}

// NewTask builds a task of the given type with a dated payload.
func NewTask(taskType string, asOf time.Time) (*asynq.Task, error) {
	payload := DatePayload{}
	if !asOf.IsZero() {
		payload.AsOf = asOf.Format(time.DateOnly)
	}
	switch taskType {
	case TaskPeriodCutoff:
		return marshalTask(taskType, CutoffPayload{DatePayload: payload})
	case TaskPaymentSweep, TaskStatementOverdue, TaskIdempotencyCleanup:
		return marshalTask(taskType, payload)
	default:
		return nil, fmt.Errorf("jobs: unknown task %q", taskType)
	}
}

// NewCutoffTask builds a cutoff task for one period.
func NewCutoffTask(periodID int64) (*asynq.Task, error) {
	return marshalTask(TaskPeriodCutoff, CutoffPayload{PeriodID: periodID})
}

func marshalTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is TriggerExecution's lifecycle state (§3).
type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "pending"
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionTimeout ExecutionStatus = "timeout"
)

// TriggerExecution records one firing of a trigger (§3). Invariants:
// status ∈ {running, success, failed, timeout} ⇒ started_at set;
// status ∈ {success, failed, timeout} ⇒ completed_at set and
// duration_ms = completed_at − started_at in ms.
type TriggerExecution struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	TriggerID      uuid.UUID
	MonitorMatchID *uuid.UUID
	ExecutionType  string
	ExecutionData  json.RawMessage
	Status         ExecutionStatus
	StartedAt      *time.Time
	CompletedAt    *time.Time
	DurationMs     *int64
	RetryCount     int
	ErrorMessage   *string
	CreatedAt      time.Time
}

// TriggerExecutionStats is get_execution_stats' return shape (§4.5.3).
type TriggerExecutionStats struct {
	SuccessRate       float64 `json:"success_rate"`
	RetryRate         float64 `json:"retry_rate"`
	AverageDurationMs float64 `json:"average_duration_ms"`
}

// applyExecutionStatus computes the field changes for update_execution_status
// (§4.5.3), a pure function over the current execution, the target status,
// an optional error message, and the injected current time.
func applyExecutionStatus(e TriggerExecution, status ExecutionStatus, errMsg *string, now time.Time) TriggerExecution {
	e.Status = status
	if errMsg != nil {
		e.ErrorMessage = errMsg
	}

	switch status {
	case ExecutionRunning:
		if e.StartedAt == nil {
			e.StartedAt = &now
		}
	case ExecutionSuccess, ExecutionFailed, ExecutionTimeout:
		e.CompletedAt = &now
		if e.StartedAt != nil {
			durationMs := e.CompletedAt.Sub(*e.StartedAt).Milliseconds()
			e.DurationMs = &durationMs
		}
	}
	return e
}

// applyRetry computes the field changes for retry_execution (§4.5.3): reset
// to pending, clear timing, increment retry_count.
func applyRetry(e TriggerExecution) TriggerExecution {
	e.Status = ExecutionPending
	e.StartedAt = nil
	e.CompletedAt = nil
	e.DurationMs = nil
	e.ErrorMessage = nil
	e.RetryCount++
	return e
}

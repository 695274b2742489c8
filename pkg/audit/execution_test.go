package audit

import (
	"testing"
	"time"
)

func TestApplyExecutionStatusRunningStampsStartedAt(t *testing.T) {
	now := time.Now()
	e := applyExecutionStatus(TriggerExecution{}, ExecutionRunning, nil, now)

	if e.Status != ExecutionRunning {
		t.Errorf("status = %v, want running", e.Status)
	}
	if e.StartedAt == nil || !e.StartedAt.Equal(now) {
		t.Error("started_at should be stamped on transition to running")
	}
}

func TestApplyExecutionStatusRunningDoesNotRestampStartedAt(t *testing.T) {
	original := time.Now().Add(-time.Minute)
	e := TriggerExecution{StartedAt: &original}

	e = applyExecutionStatus(e, ExecutionRunning, nil, time.Now())

	if !e.StartedAt.Equal(original) {
		t.Error("started_at must not be overwritten once already set")
	}
}

func TestApplyExecutionStatusSuccessComputesDuration(t *testing.T) {
	started := time.Now().Add(-2 * time.Second)
	e := TriggerExecution{StartedAt: &started}

	now := started.Add(1500 * time.Millisecond)
	e = applyExecutionStatus(e, ExecutionSuccess, nil, now)

	if e.CompletedAt == nil || !e.CompletedAt.Equal(now) {
		t.Error("completed_at should be stamped on terminal transition")
	}
	if e.DurationMs == nil || *e.DurationMs != 1500 {
		t.Errorf("duration_ms = %v, want 1500", e.DurationMs)
	}
}

func TestApplyExecutionStatusFailedWithoutStartedAtLeavesDurationNil(t *testing.T) {
	e := applyExecutionStatus(TriggerExecution{}, ExecutionFailed, nil, time.Now())

	if e.DurationMs != nil {
		t.Error("duration_ms should stay nil when started_at was never set")
	}
	if e.CompletedAt == nil {
		t.Error("completed_at should still be stamped on a terminal transition")
	}
}

func TestApplyExecutionStatusStoresErrorMessage(t *testing.T) {
	msg := "webhook returned 500"
	e := applyExecutionStatus(TriggerExecution{}, ExecutionFailed, &msg, time.Now())

	if e.ErrorMessage == nil || *e.ErrorMessage != msg {
		t.Errorf("error_message = %v, want %q", e.ErrorMessage, msg)
	}
}

func TestApplyRetryResetsState(t *testing.T) {
	started := time.Now()
	completed := started.Add(time.Second)
	duration := int64(1000)
	errMsg := "timed out"

	e := TriggerExecution{
		Status: ExecutionFailed, StartedAt: &started, CompletedAt: &completed,
		DurationMs: &duration, ErrorMessage: &errMsg, RetryCount: 1,
	}

	e = applyRetry(e)

	if e.Status != ExecutionPending {
		t.Errorf("status = %v, want pending", e.Status)
	}
	if e.StartedAt != nil || e.CompletedAt != nil || e.DurationMs != nil || e.ErrorMessage != nil {
		t.Error("retry should clear all timing and error fields")
	}
	if e.RetryCount != 2 {
		t.Errorf("retry_count = %d, want 2", e.RetryCount)
	}
}

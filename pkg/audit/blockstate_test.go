package audit

import (
	"testing"
	"time"
)

func TestApplyMetricsUpdateEWMA(t *testing.T) {
	now := time.Now()
	bs := BlockState{}

	bs = applyMetricsUpdate(bs, 100, 1000, now)
	if bs.AverageProcessingTimeMs == nil || *bs.AverageProcessingTimeMs != 1000 {
		t.Fatalf("first sample should seed the average: got %v", bs.AverageProcessingTimeMs)
	}

	bs = applyMetricsUpdate(bs, 101, 500, now)
	if bs.AverageProcessingTimeMs == nil || *bs.AverageProcessingTimeMs != 950 {
		t.Fatalf("average_processing_time_ms = %v, want 950", bs.AverageProcessingTimeMs)
	}
	if *bs.LastProcessedBlock != 101 {
		t.Errorf("last_processed_block = %d, want 101", *bs.LastProcessedBlock)
	}
}

func TestApplyStatusUpdateToError(t *testing.T) {
	now := time.Now()
	bs := BlockState{ErrorCount: 2}
	errMsg := "rpc timeout"

	bs = applyStatusUpdate(bs, StatusError, &errMsg, now)

	if bs.ProcessingStatus != StatusError {
		t.Errorf("processing_status = %v, want error", bs.ProcessingStatus)
	}
	if bs.ErrorCount != 3 {
		t.Errorf("error_count = %d, want 3", bs.ErrorCount)
	}
	if bs.LastError == nil || *bs.LastError != errMsg {
		t.Errorf("last_error = %v, want %q", bs.LastError, errMsg)
	}
	if bs.LastErrorAt == nil || !bs.LastErrorAt.Equal(now) {
		t.Errorf("last_error_at not stamped")
	}
}

func TestApplyStatusUpdateToIdleClearsErrors(t *testing.T) {
	errMsg := "boom"
	bs := BlockState{ErrorCount: 5, LastError: &errMsg}

	bs = applyStatusUpdate(bs, StatusIdle, nil, time.Now())

	if bs.ErrorCount != 0 || bs.LastError != nil {
		t.Errorf("idle transition should clear error fields, got error_count=%d last_error=%v", bs.ErrorCount, bs.LastError)
	}
}

func TestApplyStatusUpdateToPausedLeavesMetricsUntouched(t *testing.T) {
	block := int64(42)
	bs := BlockState{LastProcessedBlock: &block, ErrorCount: 1}

	bs = applyStatusUpdate(bs, StatusPaused, nil, time.Now())

	if bs.ProcessingStatus != StatusPaused {
		t.Errorf("processing_status = %v, want paused", bs.ProcessingStatus)
	}
	if *bs.LastProcessedBlock != 42 || bs.ErrorCount != 1 {
		t.Error("paused transition must not touch metrics or error fields")
	}
}

func TestComputeStatsZeroBlocksProcessed(t *testing.T) {
	now := time.Now()
	stats := computeStats(BlockState{}, 3, now.Add(-time.Hour), now)

	if stats.TotalBlocksProcessed != 0 || stats.ErrorRate != 0 {
		t.Errorf("expected zero blocks processed and zero error rate, got %+v", stats)
	}
	if stats.TotalMissedBlocks != 3 {
		t.Errorf("total_missed_blocks = %d, want 3", stats.TotalMissedBlocks)
	}
	if stats.UptimePercentage != 100 {
		t.Errorf("uptime_percentage = %v, want 100 when last_error_at/last_processed_at are nil", stats.UptimePercentage)
	}
}

func TestComputeStatsErrorRate(t *testing.T) {
	block := int64(200)
	bs := BlockState{LastProcessedBlock: &block, ErrorCount: 10}
	now := time.Now()

	stats := computeStats(bs, 0, now.Add(-time.Hour), now)

	if stats.ErrorRate != 5 {
		t.Errorf("error_rate = %v, want 5 (100*10/200)", stats.ErrorRate)
	}
}

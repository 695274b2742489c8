// Package audit implements the Audit Services (C5): the block-state state
// machine, the missed-block retry workflow, and monitor-match/trigger-
// execution recording and statistics (§4.5). Unlike the configuration
// services in pkg/monitor/pkg/network/pkg/trigger, these are write-heavy,
// worker-driven records — there is no tenant-scoped cache layer here, only
// the database.
package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProcessingStatus is BlockState's lifecycle state (§4.5.1).
type ProcessingStatus string

const (
	StatusIdle       ProcessingStatus = "idle"
	StatusProcessing ProcessingStatus = "processing"
	StatusError      ProcessingStatus = "error"
	StatusPaused     ProcessingStatus = "paused"
)

// BlockState tracks a tenant's ingestion progress on one network (§3).
type BlockState struct {
	ID                      uuid.UUID
	TenantID                uuid.UUID
	NetworkID               uuid.UUID
	ProcessingStatus        ProcessingStatus
	LastProcessedBlock      *int64
	LastProcessedAt         *time.Time
	LastError               *string
	LastErrorAt             *time.Time
	ErrorCount              int
	BlocksPerMinute         decimal.Decimal
	AverageProcessingTimeMs *int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// BlockProcessingStats is get_processing_stats' return shape (§4.5.1).
type BlockProcessingStats struct {
	PeriodStart          time.Time `json:"period_start"`
	PeriodEnd            time.Time `json:"period_end"`
	TotalBlocksProcessed int64     `json:"total_blocks_processed"`
	TotalMissedBlocks    int64     `json:"total_missed_blocks"`
	ErrorRate            float64   `json:"error_rate"`
	UptimePercentage     float64   `json:"uptime_percentage"`
}

// applyStatusUpdate computes the field changes for update_status (§4.5.1) as
// a pure function over the current state, the target status, and an
// optional error message; now is injected so the transition is testable
// without a clock.
func applyStatusUpdate(bs BlockState, status ProcessingStatus, errMsg *string, now time.Time) BlockState {
	bs.ProcessingStatus = status
	switch status {
	case StatusError:
		bs.LastError = errMsg
		bs.LastErrorAt = &now
		bs.ErrorCount++
	case StatusProcessing:
		bs.LastProcessedAt = &now
	case StatusIdle:
		bs.ErrorCount = 0
		bs.LastError = nil
	case StatusPaused:
		// metrics and error fields are left untouched
	}
	return bs
}

// applyMetricsUpdate computes the field changes for update_metrics (§4.5.1):
// the running average is an EWMA with weight 0.1 on the new sample,
// truncated to an integer.
func applyMetricsUpdate(bs BlockState, blockNumber, processingTimeMs int64, now time.Time) BlockState {
	bs.LastProcessedBlock = &blockNumber
	bs.LastProcessedAt = &now

	if bs.AverageProcessingTimeMs == nil {
		avg := processingTimeMs
		bs.AverageProcessingTimeMs = &avg
		return bs
	}

	avg := int64(0.9*float64(*bs.AverageProcessingTimeMs) + 0.1*float64(processingTimeMs))
	bs.AverageProcessingTimeMs = &avg
	return bs
}

// computeStats derives BlockProcessingStats from the current state plus the
// pre-counted number of missed blocks in the period (§4.5.1); the missed-
// block count itself requires a database query and is supplied by the
// caller (Service.GetProcessingStats).
func computeStats(bs BlockState, totalMissedBlocks int64, periodStart, periodEnd time.Time) BlockProcessingStats {
	stats := BlockProcessingStats{
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		TotalMissedBlocks: totalMissedBlocks,
	}
	if bs.LastProcessedBlock != nil {
		stats.TotalBlocksProcessed = *bs.LastProcessedBlock
	}

	if stats.TotalBlocksProcessed > 0 {
		stats.ErrorRate = 100 * float64(bs.ErrorCount) / float64(stats.TotalBlocksProcessed)
	}

	if bs.LastErrorAt == nil || bs.LastProcessedAt == nil {
		stats.UptimePercentage = 100
	} else {
		periodSeconds := periodEnd.Sub(periodStart).Seconds()
		downSeconds := bs.LastErrorAt.Sub(*bs.LastProcessedAt).Seconds()
		if periodSeconds > 0 {
			stats.UptimePercentage = 100 * (periodSeconds - downSeconds) / periodSeconds
		}
	}

	return stats
}

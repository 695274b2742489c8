package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service is the tenant-scoped facade over block-state tracking, the
// missed-block retry workflow, and monitor-match/trigger-execution
// recording (C5, §4.5). It carries no cache — every operation is a direct
// database read/write, since these rows are written by workers rather than
// served through the configuration API's read-through path.
type Service struct {
	blockStates  *BlockStateStore
	missedBlocks *MissedBlockStore
	matches      *MatchStore
	executions   *ExecutionStore
	logger       *slog.Logger
}

// NewService creates a Service.
func NewService(blockStates *BlockStateStore, missedBlocks *MissedBlockStore, matches *MatchStore, executions *ExecutionStore, logger *slog.Logger) *Service {
	return &Service{blockStates: blockStates, missedBlocks: missedBlocks, matches: matches, executions: executions, logger: logger}
}

// GetOrCreateBlockState returns the existing block state for
// (tenantID, networkID) or creates an idle one (§4.5.1 get_or_create).
func (s *Service) GetOrCreateBlockState(ctx context.Context, tenantID, networkID uuid.UUID) (BlockState, error) {
	return s.blockStates.GetOrCreate(ctx, tenantID, networkID)
}

// UpdateStatus transitions a block state's processing_status (§4.5.1
// update_status).
func (s *Service) UpdateStatus(ctx context.Context, tenantID, networkID uuid.UUID, status ProcessingStatus, errMsg *string) (BlockState, error) {
	bs, err := s.blockStates.GetOrCreate(ctx, tenantID, networkID)
	if err != nil {
		return BlockState{}, err
	}
	bs = applyStatusUpdate(bs, status, errMsg, time.Now())
	return s.blockStates.Save(ctx, bs)
}

// UpdateMetrics records a processed block's height and processing time,
// updating the EWMA average (§4.5.1 update_metrics).
func (s *Service) UpdateMetrics(ctx context.Context, tenantID, networkID uuid.UUID, blockNumber, processingTimeMs int64) (BlockState, error) {
	bs, err := s.blockStates.GetOrCreate(ctx, tenantID, networkID)
	if err != nil {
		return BlockState{}, err
	}
	bs = applyMetricsUpdate(bs, blockNumber, processingTimeMs, time.Now())
	return s.blockStates.Save(ctx, bs)
}

// GetProcessingStats computes BlockProcessingStats over the last `hours`
// (§4.5.1 get_processing_stats). Only missed blocks are counted inside that
// window: the error rate uses the block state's error_count, which counts
// errors since the last transition to idle and is not limited to `hours`.
func (s *Service) GetProcessingStats(ctx context.Context, tenantID, networkID uuid.UUID, hours int) (BlockProcessingStats, error) {
	bs, err := s.blockStates.GetOrCreate(ctx, tenantID, networkID)
	if err != nil {
		return BlockProcessingStats{}, err
	}

	periodEnd := time.Now()
	periodStart := periodEnd.Add(-time.Duration(hours) * time.Hour)

	missed, err := s.missedBlocks.CountSince(ctx, tenantID, networkID, periodStart)
	if err != nil {
		return BlockProcessingStats{}, err
	}

	return computeStats(bs, missed, periodStart, periodEnd), nil
}

// RecordMissedBlock delegates to the missed-block workflow (§4.5.2 record).
func (s *Service) RecordMissedBlock(ctx context.Context, tenantID, networkID uuid.UUID, blockNumber int64, reason string) (MissedBlock, error) {
	return s.missedBlocks.Record(ctx, tenantID, networkID, blockNumber, reason)
}

// MarkMissedBlockProcessed delegates to the missed-block workflow (§4.5.2
// mark_processed).
func (s *Service) MarkMissedBlockProcessed(ctx context.Context, id uuid.UUID) error {
	return s.missedBlocks.MarkProcessed(ctx, id)
}

// GetUnprocessedMissedBlocks returns unprocessed rows, capping limit at 100
// when the caller asks for more or doesn't specify (§4.5.2 get_unprocessed).
func (s *Service) GetUnprocessedMissedBlocks(ctx context.Context, tenantID, networkID uuid.UUID, limit int) ([]MissedBlock, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.missedBlocks.GetUnprocessed(ctx, tenantID, networkID, limit)
}

// BulkRetryMissedBlocks delegates to the missed-block workflow (§4.5.2
// bulk_retry).
func (s *Service) BulkRetryMissedBlocks(ctx context.Context, ids []uuid.UUID, maxRetries int) (int, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return s.missedBlocks.BulkRetry(ctx, ids, maxRetries)
}

// RecordMatch delegates to the match store (§4.5.3 record_match).
func (s *Service) RecordMatch(ctx context.Context, m MonitorMatch) (MonitorMatch, error) {
	return s.matches.Record(ctx, m)
}

// UpdateTriggerCounts delegates to the match store (§4.5.3
// update_trigger_counts).
func (s *Service) UpdateTriggerCounts(ctx context.Context, matchID uuid.UUID, executed, failed int) error {
	return s.matches.UpdateTriggerCounts(ctx, matchID, executed, failed)
}

// GetRecentMatches delegates to the match store, defaulting hours/limit per
// §4.5.3 get_recent_matches.
func (s *Service) GetRecentMatches(ctx context.Context, tenantID uuid.UUID, monitorID *uuid.UUID, hours, limit int) ([]MonitorMatch, error) {
	if hours <= 0 {
		hours = 24
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.matches.GetRecent(ctx, tenantID, monitorID, hours, limit)
}

// RecordExecution inserts a trigger execution with status=pending (§4.5.3
// record_execution).
func (s *Service) RecordExecution(ctx context.Context, tenantID, triggerID uuid.UUID, executionType string, data []byte, matchID *uuid.UUID) (TriggerExecution, error) {
	return s.executions.Record(ctx, TriggerExecution{
		TenantID: tenantID, TriggerID: triggerID, MonitorMatchID: matchID,
		ExecutionType: executionType, ExecutionData: data,
	})
}

// UpdateExecutionStatus transitions an execution's status, stamping
// started_at/completed_at/duration_ms per §4.5.3 update_execution_status.
func (s *Service) UpdateExecutionStatus(ctx context.Context, execID uuid.UUID, status ExecutionStatus, errMsg *string) (TriggerExecution, error) {
	e, err := s.executions.Get(ctx, execID)
	if err != nil {
		return TriggerExecution{}, err
	}
	e = applyExecutionStatus(e, status, errMsg, time.Now())
	return s.executions.Save(ctx, e)
}

// RetryExecution resets an execution to pending and increments retry_count
// (§4.5.3 retry_execution).
func (s *Service) RetryExecution(ctx context.Context, execID uuid.UUID) (TriggerExecution, error) {
	e, err := s.executions.Get(ctx, execID)
	if err != nil {
		return TriggerExecution{}, err
	}
	e = applyRetry(e)
	return s.executions.Save(ctx, e)
}

// BulkRetryExecutions selects executions among ids eligible for retry and
// applies the retry_execution transformation to each, returning the count
// affected (§4.5.3 bulk_retry).
func (s *Service) BulkRetryExecutions(ctx context.Context, ids []uuid.UUID, maxRetries int) (int, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryable, err := s.executions.GetRetryable(ctx, ids, maxRetries)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range retryable {
		if _, err := s.executions.Save(ctx, applyRetry(e)); err != nil {
			s.logger.Error("bulk-retrying trigger execution", "execution_id", e.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// GetExecutionStats delegates to the execution store, defaulting hours per
// §4.5.3 get_execution_stats.
func (s *Service) GetExecutionStats(ctx context.Context, tenantID uuid.UUID, triggerID *uuid.UUID, hours int) (TriggerExecutionStats, error) {
	if hours <= 0 {
		hours = 24
	}
	return s.executions.Stats(ctx, tenantID, triggerID, hours)
}

package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blip0/control-plane/pkg/apierr"
	"github.com/blip0/control-plane/pkg/repo"
)

// ExecutionStore persists TriggerExecution rows.
type ExecutionStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewExecutionStore creates an ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool, logger *slog.Logger) *ExecutionStore {
	return &ExecutionStore{pool: pool, logger: logger}
}

const executionColumns = `id, tenant_id, trigger_id, monitor_match_id, execution_type,
	execution_data, status, started_at, completed_at, duration_ms, retry_count,
	error_message, created_at`

func scanExecution(row pgx.Row) (TriggerExecution, error) {
	var e TriggerExecution
	err := row.Scan(
		&e.ID, &e.TenantID, &e.TriggerID, &e.MonitorMatchID, &e.ExecutionType, &e.ExecutionData,
		&e.Status, &e.StartedAt, &e.CompletedAt, &e.DurationMs, &e.RetryCount, &e.ErrorMessage,
		&e.CreatedAt,
	)
	return e, err
}

// Record inserts a new execution with status=pending, retry_count=0 (§4.5.3
// record_execution).
func (s *ExecutionStore) Record(ctx context.Context, e TriggerExecution) (TriggerExecution, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO trigger_executions (id, tenant_id, trigger_id, monitor_match_id, execution_type,
			execution_data, status, retry_count, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, 'pending', 0, now())
		RETURNING `+executionColumns,
		e.TenantID, e.TriggerID, e.MonitorMatchID, e.ExecutionType, e.ExecutionData,
	)
	created, err := scanExecution(row)
	if err != nil {
		return TriggerExecution{}, fmt.Errorf("recording trigger execution: %w", err)
	}
	return created, nil
}

// Get fetches a single execution by id.
func (s *ExecutionStore) Get(ctx context.Context, id uuid.UUID) (TriggerExecution, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM trigger_executions WHERE id = $1`, id)
	e, err := scanExecution(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return TriggerExecution{}, apierr.NotFound("trigger execution %s not found", id)
		}
		return TriggerExecution{}, fmt.Errorf("getting trigger execution: %w", err)
	}
	return e, nil
}

// Save persists the full row (used after applying a pure transformation).
func (s *ExecutionStore) Save(ctx context.Context, e TriggerExecution) (TriggerExecution, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE trigger_executions SET
			status = $1, started_at = $2, completed_at = $3, duration_ms = $4,
			retry_count = $5, error_message = $6
		WHERE id = $7
		RETURNING `+executionColumns,
		e.Status, e.StartedAt, e.CompletedAt, e.DurationMs, e.RetryCount, e.ErrorMessage, e.ID,
	)
	updated, err := scanExecution(row)
	if err != nil {
		return TriggerExecution{}, fmt.Errorf("saving trigger execution: %w", err)
	}
	return updated, nil
}

// GetRetryable returns executions among ids with status ∈ {failed, timeout}
// and retry_count < maxRetries (§4.5.3 bulk_retry's selection criterion).
func (s *ExecutionStore) GetRetryable(ctx context.Context, ids []uuid.UUID, maxRetries int) ([]TriggerExecution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+` FROM trigger_executions
		WHERE id = ANY($1) AND status IN ('failed', 'timeout') AND retry_count < $2`,
		ids, maxRetries,
	)
	if err != nil {
		return nil, fmt.Errorf("listing retryable executions: %w", err)
	}
	defer rows.Close()

	var items []TriggerExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning trigger execution row: %w", err)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// Stats computes TriggerExecutionStats for tenantID (optionally narrowed to
// triggerID) over the last `hours` (§4.5.3 get_execution_stats).
func (s *ExecutionStore) Stats(ctx context.Context, tenantID uuid.UUID, triggerID *uuid.UUID, hours int) (TriggerExecutionStats, error) {
	query := `
		SELECT
			count(*) AS total,
			count(*) FILTER (WHERE status = 'success') AS succeeded,
			count(*) FILTER (WHERE retry_count > 0) AS retried,
			coalesce(avg(duration_ms) FILTER (WHERE duration_ms IS NOT NULL), 0) AS avg_duration
		FROM trigger_executions
		WHERE tenant_id = $1 AND created_at >= now() - ($2 || ' hours')::interval`
	args := []any{tenantID, hours}
	if triggerID != nil {
		query += " AND trigger_id = $3"
		args = append(args, *triggerID)
	}

	var total, succeeded, retried int64
	var avgDuration float64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&total, &succeeded, &retried, &avgDuration); err != nil {
		return TriggerExecutionStats{}, fmt.Errorf("computing execution stats: %w", err)
	}

	if total == 0 {
		return TriggerExecutionStats{}, nil
	}
	return TriggerExecutionStats{
		SuccessRate:       100 * float64(succeeded) / float64(total),
		RetryRate:         100 * float64(retried) / float64(total),
		AverageDurationMs: avgDuration,
	}, nil
}

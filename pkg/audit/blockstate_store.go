package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blip0/control-plane/pkg/repo"
)

// BlockStateStore persists BlockState rows, one per (tenant_id, network_id).
type BlockStateStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewBlockStateStore creates a BlockStateStore.
func NewBlockStateStore(pool *pgxpool.Pool, logger *slog.Logger) *BlockStateStore {
	return &BlockStateStore{pool: pool, logger: logger}
}

const blockStateColumns = `id, tenant_id, network_id, processing_status, last_processed_block,
	last_processed_at, last_error, last_error_at, error_count, blocks_per_minute,
	average_processing_time_ms, created_at, updated_at`

func scanBlockState(row pgx.Row) (BlockState, error) {
	var bs BlockState
	err := row.Scan(
		&bs.ID, &bs.TenantID, &bs.NetworkID, &bs.ProcessingStatus, &bs.LastProcessedBlock,
		&bs.LastProcessedAt, &bs.LastError, &bs.LastErrorAt, &bs.ErrorCount, &bs.BlocksPerMinute,
		&bs.AverageProcessingTimeMs, &bs.CreatedAt, &bs.UpdatedAt,
	)
	return bs, err
}

// GetOrCreate returns the existing row for (tenantID, networkID) or inserts
// a fresh idle one (§4.5.1).
func (s *BlockStateStore) GetOrCreate(ctx context.Context, tenantID, networkID uuid.UUID) (BlockState, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+blockStateColumns+` FROM block_states WHERE tenant_id = $1 AND network_id = $2`, tenantID, networkID)
	bs, err := scanBlockState(row)
	if err == nil {
		return bs, nil
	}
	if !repo.IsNoRows(err) {
		return BlockState{}, fmt.Errorf("getting block state: %w", err)
	}

	row = s.pool.QueryRow(ctx, `
		INSERT INTO block_states (id, tenant_id, network_id, processing_status, error_count,
			blocks_per_minute, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, 'idle', 0, 0, now(), now())
		ON CONFLICT (tenant_id, network_id) DO UPDATE SET updated_at = block_states.updated_at
		RETURNING `+blockStateColumns,
		tenantID, networkID,
	)
	bs, err = scanBlockState(row)
	if err != nil {
		return BlockState{}, fmt.Errorf("creating block state: %w", err)
	}
	return bs, nil
}

// Save persists the full row (used after applying a pure transformation).
func (s *BlockStateStore) Save(ctx context.Context, bs BlockState) (BlockState, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE block_states SET
			processing_status = $1, last_processed_block = $2, last_processed_at = $3,
			last_error = $4, last_error_at = $5, error_count = $6, blocks_per_minute = $7,
			average_processing_time_ms = $8, updated_at = now()
		WHERE id = $9
		RETURNING `+blockStateColumns,
		bs.ProcessingStatus, bs.LastProcessedBlock, bs.LastProcessedAt, bs.LastError, bs.LastErrorAt,
		bs.ErrorCount, bs.BlocksPerMinute, bs.AverageProcessingTimeMs, bs.ID,
	)
	updated, err := scanBlockState(row)
	if err != nil {
		return BlockState{}, fmt.Errorf("saving block state: %w", err)
	}
	return updated, nil
}

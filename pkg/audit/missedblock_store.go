package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blip0/control-plane/pkg/apierr"
)

// MissedBlockStore persists MissedBlock rows.
type MissedBlockStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewMissedBlockStore creates a MissedBlockStore.
func NewMissedBlockStore(pool *pgxpool.Pool, logger *slog.Logger) *MissedBlockStore {
	return &MissedBlockStore{pool: pool, logger: logger}
}

const missedBlockColumns = `id, tenant_id, network_id, block_number, reason, retry_count,
	processed, processed_at, created_at`

func scanMissedBlock(row pgx.Row) (MissedBlock, error) {
	var mb MissedBlock
	err := row.Scan(
		&mb.ID, &mb.TenantID, &mb.NetworkID, &mb.BlockNumber, &mb.Reason, &mb.RetryCount,
		&mb.Processed, &mb.ProcessedAt, &mb.CreatedAt,
	)
	return mb, err
}

// Record inserts a fresh row for (tenantID, networkID, blockNumber), or, if
// one already exists, increments its retry_count and overwrites reason
// (§4.5.2).
func (s *MissedBlockStore) Record(ctx context.Context, tenantID, networkID uuid.UUID, blockNumber int64, reason string) (MissedBlock, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO missed_blocks (id, tenant_id, network_id, block_number, reason, retry_count, processed, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, 0, false, now())
		ON CONFLICT ON CONSTRAINT unique_missed_block DO UPDATE SET
			retry_count = missed_blocks.retry_count + 1,
			reason = excluded.reason
		RETURNING `+missedBlockColumns,
		tenantID, networkID, blockNumber, reason,
	)
	mb, err := scanMissedBlock(row)
	if err != nil {
		return MissedBlock{}, fmt.Errorf("recording missed block: %w", err)
	}
	return mb, nil
}

// MarkProcessed sets processed=true, processed_at=now() (§4.5.2).
func (s *MissedBlockStore) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE missed_blocks SET processed = true, processed_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking missed block processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.NotFound("missed block %s not found", id)
	}
	return nil
}

// GetUnprocessed returns unprocessed rows ordered by block_number ascending,
// capped at limit (default/max 100 enforced by the service) (§4.5.2).
func (s *MissedBlockStore) GetUnprocessed(ctx context.Context, tenantID, networkID uuid.UUID, limit int) ([]MissedBlock, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+missedBlockColumns+` FROM missed_blocks
		WHERE tenant_id = $1 AND network_id = $2 AND processed = false
		ORDER BY block_number ASC
		LIMIT $3`,
		tenantID, networkID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing unprocessed missed blocks: %w", err)
	}
	defer rows.Close()

	var items []MissedBlock
	for rows.Next() {
		mb, err := scanMissedBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning missed block row: %w", err)
		}
		items = append(items, mb)
	}
	return items, rows.Err()
}

// CountSince counts rows created at or after since, for block-processing
// stats (§4.5.1 total_missed_blocks).
func (s *MissedBlockStore) CountSince(ctx context.Context, tenantID, networkID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM missed_blocks
		WHERE tenant_id = $1 AND network_id = $2 AND created_at >= $3`,
		tenantID, networkID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting missed blocks: %w", err)
	}
	return n, nil
}

// BulkRetry resets retry_count=0 and reason="Marked for retry" on every row
// in ids with processed=false and retry_count < maxRetries, and returns the
// number of rows affected; rows at or above maxRetries are skipped (§4.5.2).
func (s *MissedBlockStore) BulkRetry(ctx context.Context, ids []uuid.UUID, maxRetries int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE missed_blocks SET retry_count = 0, reason = 'Marked for retry'
		WHERE id = ANY($1) AND processed = false AND retry_count < $2`,
		ids, maxRetries,
	)
	if err != nil {
		return 0, fmt.Errorf("bulk-retrying missed blocks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

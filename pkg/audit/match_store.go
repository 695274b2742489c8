package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MatchStore persists MonitorMatch rows.
type MatchStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewMatchStore creates a MatchStore.
func NewMatchStore(pool *pgxpool.Pool, logger *slog.Logger) *MatchStore {
	return &MatchStore{pool: pool, logger: logger}
}

const matchColumns = `id, tenant_id, monitor_id, network_id, block_number, transaction_hash,
	match_data, triggers_executed, triggers_failed, created_at`

func scanMatch(row pgx.Row) (MonitorMatch, error) {
	var m MonitorMatch
	err := row.Scan(
		&m.ID, &m.TenantID, &m.MonitorID, &m.NetworkID, &m.BlockNumber, &m.TransactionHash,
		&m.MatchData, &m.TriggersExecuted, &m.TriggersFailed, &m.CreatedAt,
	)
	return m, err
}

// Record inserts a new match row with triggers_executed/failed at zero
// (§4.5.3 record_match).
func (s *MatchStore) Record(ctx context.Context, m MonitorMatch) (MonitorMatch, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO monitor_matches (id, tenant_id, monitor_id, network_id, block_number,
			transaction_hash, match_data, triggers_executed, triggers_failed, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, 0, 0, now())
		RETURNING `+matchColumns,
		m.TenantID, m.MonitorID, m.NetworkID, m.BlockNumber, m.TransactionHash, m.MatchData,
	)
	created, err := scanMatch(row)
	if err != nil {
		return MonitorMatch{}, fmt.Errorf("recording monitor match: %w", err)
	}
	return created, nil
}

// UpdateTriggerCounts monotonically increments triggers_executed/failed by
// the given deltas (§4.5.3 update_trigger_counts).
func (s *MatchStore) UpdateTriggerCounts(ctx context.Context, matchID uuid.UUID, executed, failed int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE monitor_matches SET triggers_executed = triggers_executed + $1, triggers_failed = triggers_failed + $2
		WHERE id = $3`,
		executed, failed, matchID,
	)
	if err != nil {
		return fmt.Errorf("updating trigger counts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("monitor match %s not found", matchID)
	}
	return nil
}

// GetRecent returns matches for tenantID (optionally narrowed to monitorID)
// created within the last `hours`, newest first, capped at limit (§4.5.3
// get_recent_matches).
func (s *MatchStore) GetRecent(ctx context.Context, tenantID uuid.UUID, monitorID *uuid.UUID, hours, limit int) ([]MonitorMatch, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	query := `SELECT ` + matchColumns + ` FROM monitor_matches WHERE tenant_id = $1 AND created_at >= $2`
	args := []any{tenantID, since}
	if monitorID != nil {
		query += " AND monitor_id = $3"
		args = append(args, *monitorID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing recent matches: %w", err)
	}
	defer rows.Close()

	var items []MonitorMatch
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning monitor match row: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

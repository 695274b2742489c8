package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blip0/control-plane/pkg/apierr"
	"github.com/blip0/control-plane/pkg/repo"
)

// Store provides database CRUD for Monitor, tenant-scoped on every method.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

const monitorColumns = `id, tenant_id, name, slug, description, paused, active, networks, addresses,
	match_functions, match_events, match_transactions, trigger_conditions, triggers,
	validated, validation_errors, last_validated_at, created_at, updated_at`

func scanMonitor(row pgx.Row) (Monitor, error) {
	var m Monitor
	var addresses, validationErrors []byte
	err := row.Scan(
		&m.ID, &m.TenantID, &m.Name, &m.Slug, &m.Description, &m.Paused, &m.Active,
		&m.Networks, &addresses,
		&m.MatchFunctions, &m.MatchEvents, &m.MatchTransactions, &m.TriggerConditions, &m.Triggers,
		&m.Validated, &validationErrors, &m.LastValidatedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return Monitor{}, err
	}
	if len(addresses) > 0 {
		if err := json.Unmarshal(addresses, &m.Addresses); err != nil {
			return Monitor{}, fmt.Errorf("decoding addresses: %w", err)
		}
	}
	if len(validationErrors) > 0 {
		if err := json.Unmarshal(validationErrors, &m.ValidationErrors); err != nil {
			return Monitor{}, fmt.Errorf("decoding validation_errors: %w", err)
		}
	}
	return m, nil
}

// Create inserts a monitor using tx so the caller (the quota engine) can run
// it inside the same transaction as the counter update (§4.6).
func (s *Store) Create(ctx context.Context, tx pgx.Tx, m Monitor) (Monitor, error) {
	addresses, err := json.Marshal(m.Addresses)
	if err != nil {
		return Monitor{}, fmt.Errorf("encoding addresses: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO monitors (
			id, tenant_id, name, slug, description, paused, active, networks, addresses,
			match_functions, match_events, match_transactions, trigger_conditions, triggers,
			validated, validation_errors, created_at, updated_at
		) VALUES (
			gen_random_uuid(), $1, $2, $3, $4, false, true, $5, $6, $7, $8, $9, $10, $11, false, '{}', now(), now()
		) RETURNING `+monitorColumns,
		m.TenantID, m.Name, m.Slug, m.Description, m.Networks, addresses,
		nullableRaw(m.MatchFunctions), nullableRaw(m.MatchEvents), nullableRaw(m.MatchTransactions),
		nullableRaw(m.TriggerConditions), m.Triggers,
	)

	created, err := scanMonitor(row)
	if err != nil {
		if repo.IsUniqueViolation(err) {
			return Monitor{}, apierr.Duplicate("slug", "monitor slug %q already exists for this tenant", m.Slug)
		}
		return Monitor{}, fmt.Errorf("inserting monitor: %w", err)
	}
	return created, nil
}

func nullableRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`[]`)
	}
	return raw
}

// Get fetches a monitor scoped to tenantID.
func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (Monitor, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	m, err := scanMonitor(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Monitor{}, apierr.NotFound("monitor %s not found", id)
		}
		return Monitor{}, fmt.Errorf("getting monitor: %w", err)
	}
	return m, nil
}

// List returns a page of monitors scoped to tenantID.
func (s *Store) List(ctx context.Context, tenantID uuid.UUID, filters *repo.Filters, sortSpec repo.Sort, page repo.Page) ([]Monitor, int, error) {
	whereClause, args := filters.Clause(2)
	where := "WHERE tenant_id = $1"
	if whereClause != "" {
		where += " AND " + whereClause
	}
	args = append([]any{tenantID}, args...)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM monitors `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting monitors: %w", err)
	}

	limitParam := len(args) + 1
	offsetParam := len(args) + 2
	query := fmt.Sprintf(`SELECT %s FROM monitors %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		monitorColumns, where, sortSpec.SQL(), limitParam, offsetParam)

	rows, err := s.pool.Query(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing monitors: %w", err)
	}
	defer rows.Close()

	var items []Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning monitor row: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating monitor rows: %w", err)
	}

	return items, total, nil
}

// ListAllForTenant returns every monitor for a tenant, unpaginated — used by
// refresh_all to rebuild denormalized views and the active-set in bulk.
func (s *Store) ListAllForTenant(ctx context.Context, tenantID uuid.UUID) ([]Monitor, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing all monitors: %w", err)
	}
	defer rows.Close()

	var items []Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning monitor row: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// Patch is the set of columns Update may patch; nil fields are left unchanged.
type Patch struct {
	Name              *string
	Slug              *string
	Description       *string
	Networks          *[]string
	Addresses         *[]Address
	MatchFunctions    json.RawMessage
	MatchEvents       json.RawMessage
	MatchTransactions json.RawMessage
	TriggerConditions json.RawMessage
	Triggers          *[]string
}

// Update applies a partial patch and returns the updated row.
func (s *Store) Update(ctx context.Context, tenantID, id uuid.UUID, patch Patch) (Monitor, error) {
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return Monitor{}, err
	}

	if patch.Name != nil {
		current.Name = *patch.Name
	}
	if patch.Slug != nil {
		current.Slug = *patch.Slug
	}
	if patch.Description != nil {
		current.Description = *patch.Description
	}
	if patch.Networks != nil {
		current.Networks = *patch.Networks
	}
	if patch.Addresses != nil {
		current.Addresses = *patch.Addresses
	}
	if patch.MatchFunctions != nil {
		current.MatchFunctions = patch.MatchFunctions
	}
	if patch.MatchEvents != nil {
		current.MatchEvents = patch.MatchEvents
	}
	if patch.MatchTransactions != nil {
		current.MatchTransactions = patch.MatchTransactions
	}
	if patch.TriggerConditions != nil {
		current.TriggerConditions = patch.TriggerConditions
	}
	if patch.Triggers != nil {
		current.Triggers = *patch.Triggers
	}

	addresses, err := json.Marshal(current.Addresses)
	if err != nil {
		return Monitor{}, fmt.Errorf("encoding addresses: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE monitors SET
			name = $1, slug = $2, description = $3, networks = $4, addresses = $5,
			match_functions = $6, match_events = $7, match_transactions = $8, trigger_conditions = $9,
			triggers = $10, updated_at = now()
		WHERE tenant_id = $11 AND id = $12
		RETURNING `+monitorColumns,
		current.Name, current.Slug, current.Description, current.Networks, addresses,
		nullableRaw(current.MatchFunctions), nullableRaw(current.MatchEvents), nullableRaw(current.MatchTransactions),
		nullableRaw(current.TriggerConditions), current.Triggers, tenantID, id,
	)

	updated, err := scanMonitor(row)
	if err != nil {
		if repo.IsUniqueViolation(err) {
			return Monitor{}, apierr.Duplicate("slug", "monitor slug %q already exists for this tenant", current.Slug)
		}
		if repo.IsNoRows(err) {
			return Monitor{}, apierr.NotFound("monitor %s not found", id)
		}
		return Monitor{}, fmt.Errorf("updating monitor: %w", err)
	}
	return updated, nil
}

// SetPausedActive applies the pause()/resume() minimal patch (§4.4.2).
func (s *Store) SetPausedActive(ctx context.Context, tenantID, id uuid.UUID, paused, active bool) (Monitor, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE monitors SET paused = $1, active = $2, updated_at = now()
		WHERE tenant_id = $3 AND id = $4
		RETURNING `+monitorColumns,
		paused, active, tenantID, id,
	)
	m, err := scanMonitor(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Monitor{}, apierr.NotFound("monitor %s not found", id)
		}
		return Monitor{}, fmt.Errorf("updating monitor paused/active: %w", err)
	}
	return m, nil
}

// SetValidation persists a Validate() outcome.
func (s *Store) SetValidation(ctx context.Context, tenantID, id uuid.UUID, isValid bool, errs map[string]string) (Monitor, error) {
	raw, err := json.Marshal(errs)
	if err != nil {
		return Monitor{}, fmt.Errorf("encoding validation_errors: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE monitors SET validated = $1, validation_errors = $2, last_validated_at = now(), updated_at = now()
		WHERE tenant_id = $3 AND id = $4
		RETURNING `+monitorColumns,
		isValid, raw, tenantID, id,
	)
	m, err := scanMonitor(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Monitor{}, apierr.NotFound("monitor %s not found", id)
		}
		return Monitor{}, fmt.Errorf("updating monitor validation: %w", err)
	}
	return m, nil
}

// SoftDelete sets active=false; it does not touch quota counters (§4.6: soft
// delete does not decrement — soft-deleted monitors keep counting against
// the cap).
func (s *Store) SoftDelete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE monitors SET active = false, updated_at = now() WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("soft-deleting monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.NotFound("monitor %s not found", id)
	}
	return nil
}

// HardDelete removes the row within tx, so the caller (the quota engine) can
// decrement the counter in the same transaction.
func (s *Store) HardDelete(ctx context.Context, tx pgx.Tx, tenantID, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM monitors WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("hard-deleting monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.NotFound("monitor %s not found", id)
	}
	return nil
}

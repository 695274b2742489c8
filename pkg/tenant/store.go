package tenant

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

// Store provides database operations for tenants and their limits.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

const tenantColumns = `id, name, slug, plan, status, settings, created_at, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Plan, &t.Status, &t.Settings, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

const limitsColumns = `tenant_id, max_monitors, max_networks, max_triggers, max_api_calls_per_hour,
	max_storage_gb, max_concurrent_operations, current_monitors, current_networks,
	current_triggers, current_storage_gb`

func scanLimits(row pgx.Row) (Limits, error) {
	var l Limits
	err := row.Scan(
		&l.TenantID, &l.MaxMonitors, &l.MaxNetworks, &l.MaxTriggers, &l.MaxAPICallsPerHour,
		&l.MaxStorageGB, &l.MaxConcurrentOperations, &l.CurrentMonitors, &l.CurrentNetworks,
		&l.CurrentTriggers, &l.CurrentStorageGB,
	)
	return l, err
}

// Create inserts a tenant and its TenantLimits row in the same transaction
// (§3: "creation of one implies creation of the other").
func (s *Store) Create(ctx context.Context, name, slug string, plan Plan, settings json.RawMessage) (Tenant, error) {
	if settings == nil {
		settings = json.RawMessage(`{}`)
	}

	var created Tenant
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO tenants (id, name, slug, plan, status, settings, created_at, updated_at)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, now(), now())
			RETURNING `+tenantColumns,
			name, slug, plan, StatusActive, settings,
		)

		var err error
		created, err = scanTenant(row)
		if err != nil {
			if repo.IsUniqueViolation(err) {
				return apierr.Duplicate("slug", "tenant slug %q already exists", slug)
			}
			return fmt.Errorf("inserting tenant: %w", err)
		}

		c := CapsForPlan(plan)
		_, err = tx.Exec(ctx, `
			INSERT INTO tenant_limits (
				tenant_id, max_monitors, max_networks, max_triggers, max_api_calls_per_hour,
				max_storage_gb, max_concurrent_operations,
				current_monitors, current_networks, current_triggers, current_storage_gb
			) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, 0, 0)`,
			created.ID, c.MaxMonitors, c.MaxNetworks, c.MaxTriggers, c.MaxAPICallsPerHour,
			c.MaxStorageGB, c.MaxConcurrentOperations,
		)
		if err != nil {
			return fmt.Errorf("inserting tenant_limits: %w", err)
		}

		return nil
	})
	if err != nil {
		return Tenant{}, err
	}

	s.logger.Info("tenant created", "tenant_id", created.ID, "slug", slug, "plan", plan)
	return created, nil
}

// Get fetches a tenant by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Tenant{}, apierr.NotFound("tenant %s not found", id)
		}
		return Tenant{}, fmt.Errorf("getting tenant: %w", err)
	}
	return t, nil
}

// GetBySlug fetches a tenant by its unique slug.
func (s *Store) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
	t, err := scanTenant(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Tenant{}, apierr.NotFound("tenant %q not found", slug)
		}
		return Tenant{}, fmt.Errorf("getting tenant by slug: %w", err)
	}
	return t, nil
}

// GetLimits fetches a tenant's TenantLimits row.
func (s *Store) GetLimits(ctx context.Context, tenantID uuid.UUID) (Limits, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+limitsColumns+` FROM tenant_limits WHERE tenant_id = $1`, tenantID)
	l, err := scanLimits(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Limits{}, apierr.NotFound("tenant_limits for tenant %s not found", tenantID)
		}
		return Limits{}, fmt.Errorf("getting tenant limits: %w", err)
	}
	return l, nil
}

// List returns a page of tenants ordered by sortSpec.
func (s *Store) List(ctx context.Context, filters *repo.Filters, sortSpec repo.Sort, page repo.Page) ([]Tenant, int, error) {
	whereClause, args := filters.Clause(1)
	where := ""
	if whereClause != "" {
		where = "WHERE " + whereClause
	}

	var total int
	countQuery := `SELECT count(*) FROM tenants ` + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting tenants: %w", err)
	}

	limitParam := len(args) + 1
	offsetParam := len(args) + 2
	query := fmt.Sprintf(`SELECT %s FROM tenants %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		tenantColumns, where, sortSpec.SQL(), limitParam, offsetParam)

	rows, err := s.pool.Query(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var items []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning tenant row: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating tenant rows: %w", err)
	}

	return items, total, nil
}

// SetStatus transitions a tenant's lifecycle status (§3).
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tenants SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("updating tenant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.NotFound("tenant %s not found", id)
	}
	s.logger.Info("tenant status changed", "tenant_id", id, "status", status)
	return nil
}

// SetPlan recomputes a tenant's caps from the static plan table. It never
// retroactively decrements current_X counters; if a counter now exceeds its
// new cap the caller is responsible for surfacing a reconciliation warning
// (§4.6).
func (s *Store) SetPlan(ctx context.Context, id uuid.UUID, plan Plan) (overCap bool, err error) {
	c := CapsForPlan(plan)

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, execErr := tx.Exec(ctx, `UPDATE tenants SET plan = $1, updated_at = now() WHERE id = $2`, plan, id)
		if execErr != nil {
			return fmt.Errorf("updating tenant plan: %w", execErr)
		}
		if tag.RowsAffected() == 0 {
			return apierr.NotFound("tenant %s not found", id)
		}

		row := tx.QueryRow(ctx, `
			UPDATE tenant_limits
			SET max_monitors = $1, max_networks = $2, max_triggers = $3,
				max_api_calls_per_hour = $4, max_storage_gb = $5, max_concurrent_operations = $6
			WHERE tenant_id = $7
			RETURNING current_monitors > $1 OR current_networks > $2 OR current_triggers > $3 OR current_storage_gb > $5`,
			c.MaxMonitors, c.MaxNetworks, c.MaxTriggers, c.MaxAPICallsPerHour, c.MaxStorageGB, c.MaxConcurrentOperations, id,
		)
		return row.Scan(&overCap)
	})
	if err != nil {
		return false, err
	}

	if overCap {
		s.logger.Warn("tenant plan change left counters over cap, reconciliation needed", "tenant_id", id, "plan", plan)
	}
	return overCap, nil
}


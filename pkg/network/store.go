package network

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blip0/control-plane/pkg/apierr"
	"github.com/blip0/control-plane/pkg/cache"
	"github.com/blip0/control-plane/pkg/repo"
)

// cacheTTL is how long a cached Network survives before it must be
// refetched; mutations invalidate explicitly, so this is a safety net only.
const cacheTTL = time.Hour

func slugKey(slug string) string { return fmt.Sprintf("platform:networks:%s", slug) }
func idKey(id uuid.UUID) string  { return fmt.Sprintf("platform:network:id:%s", id) }

// Store provides database-backed CRUD for Network, write-through cached on
// both of the keys networks are addressed by (§4.4.3: "writes populate both
// platform:networks:{slug} and platform:network:id:{id}; deletes clear both").
type Store struct {
	pool   *pgxpool.Pool
	cache  *cache.Client
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool, c *cache.Client, logger *slog.Logger) *Store {
	return &Store{pool: pool, cache: c, logger: logger}
}

const networkColumns = `id, tenant_id, name, slug, network_type, chain_id, network_passphrase,
	block_time_ms, rpc_urls, confirmation_blocks, cron_schedule, max_past_blocks, store_blocks,
	active, validated, validation_errors, last_validated_at, created_at, updated_at`

func scanNetwork(row pgx.Row) (Network, error) {
	var n Network
	var rpcURLs, validationErrors []byte
	err := row.Scan(
		&n.ID, &n.TenantID, &n.Name, &n.Slug, &n.NetworkType, &n.ChainID, &n.NetworkPassphrase,
		&n.BlockTimeMs, &rpcURLs, &n.ConfirmationBlocks, &n.CronSchedule, &n.MaxPastBlocks, &n.StoreBlocks,
		&n.Active, &n.Validated, &validationErrors, &n.LastValidatedAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return Network{}, err
	}
	if len(rpcURLs) > 0 {
		if err := json.Unmarshal(rpcURLs, &n.RPCURLs); err != nil {
			return Network{}, fmt.Errorf("decoding rpc_urls: %w", err)
		}
	}
	if len(validationErrors) > 0 {
		if err := json.Unmarshal(validationErrors, &n.ValidationErrors); err != nil {
			return Network{}, fmt.Errorf("decoding validation_errors: %w", err)
		}
	}
	return n, nil
}

// Create inserts a network. A nil TenantID marks it platform-managed.
func (s *Store) Create(ctx context.Context, n Network) (Network, error) {
	rpcURLs, err := json.Marshal(n.RPCURLs)
	if err != nil {
		return Network{}, fmt.Errorf("encoding rpc_urls: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO networks (
			id, tenant_id, name, slug, network_type, chain_id, network_passphrase,
			block_time_ms, rpc_urls, confirmation_blocks, cron_schedule, max_past_blocks, store_blocks,
			active, validated, validation_errors, created_at, updated_at
		) VALUES (
			gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, false, '{}', now(), now()
		) RETURNING `+networkColumns,
		n.TenantID, n.Name, n.Slug, n.NetworkType, n.ChainID, n.NetworkPassphrase,
		n.BlockTimeMs, rpcURLs, n.ConfirmationBlocks, n.CronSchedule, n.MaxPastBlocks, n.StoreBlocks, n.Active,
	)

	created, err := scanNetwork(row)
	if err != nil {
		if repo.IsUniqueViolation(err) {
			return Network{}, apierr.Duplicate("slug", "network slug %q already exists", n.Slug)
		}
		return Network{}, fmt.Errorf("inserting network: %w", err)
	}

	s.writeThrough(ctx, created)
	s.logger.Info("network created", "network_id", created.ID, "slug", created.Slug)
	return created, nil
}

// GetBySlug fetches a network by slug, preferring the cache.
func (s *Store) GetBySlug(ctx context.Context, slug string) (Network, error) {
	var cached Network
	if err := s.cache.Get(ctx, slugKey(slug), &cached); err == nil {
		return cached, nil
	}

	row := s.pool.QueryRow(ctx, `SELECT `+networkColumns+` FROM networks WHERE slug = $1`, slug)
	n, err := scanNetwork(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Network{}, apierr.NotFound("network %q not found", slug)
		}
		return Network{}, fmt.Errorf("getting network by slug: %w", err)
	}

	s.writeThrough(ctx, n)
	return n, nil
}

// Get fetches a network by id, preferring the cache.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Network, error) {
	var cached Network
	if err := s.cache.Get(ctx, idKey(id), &cached); err == nil {
		return cached, nil
	}

	row := s.pool.QueryRow(ctx, `SELECT `+networkColumns+` FROM networks WHERE id = $1`, id)
	n, err := scanNetwork(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Network{}, apierr.NotFound("network %s not found", id)
		}
		return Network{}, fmt.Errorf("getting network: %w", err)
	}

	s.writeThrough(ctx, n)
	return n, nil
}

// List returns a page of networks matching filters, across all tenants and
// platform-managed networks; it takes no tenant scope.
func (s *Store) List(ctx context.Context, filters *repo.Filters, sortSpec repo.Sort, page repo.Page) ([]Network, int, error) {
	whereClause, args := filters.Clause(1)
	where := ""
	if whereClause != "" {
		where = "WHERE " + whereClause
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM networks `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting networks: %w", err)
	}

	limitParam := len(args) + 1
	offsetParam := len(args) + 2
	query := fmt.Sprintf(`SELECT %s FROM networks %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		networkColumns, where, sortSpec.SQL(), limitParam, offsetParam)

	rows, err := s.pool.Query(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing networks: %w", err)
	}
	defer rows.Close()

	var items []Network
	for rows.Next() {
		n, err := scanNetwork(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning network row: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating network rows: %w", err)
	}

	return items, total, nil
}

// ListAllForValidation returns every network to be probed by a bulk
// validation run, optionally scoped to tenantID (nil means platform-wide,
// covering every tenant plus platform-managed networks) (§5 "Bulk validation
// fans out the same primitive across networks in parallel").
func (s *Store) ListAllForValidation(ctx context.Context, tenantID *uuid.UUID) ([]Network, error) {
	where := ""
	args := []any{}
	if tenantID != nil {
		where = "WHERE tenant_id = $1"
		args = append(args, *tenantID)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+networkColumns+` FROM networks `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("listing networks for validation: %w", err)
	}
	defer rows.Close()

	var items []Network
	for rows.Next() {
		n, err := scanNetwork(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning network row: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// UpdateValidation persists the outcome of a Validator.Validate call.
func (s *Store) UpdateValidation(ctx context.Context, id uuid.UUID, result ValidationResult) (Network, error) {
	validationErrors, err := json.Marshal(result.Errors)
	if err != nil {
		return Network{}, fmt.Errorf("encoding validation_errors: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE networks
		SET validated = $1, validation_errors = $2, last_validated_at = now(), updated_at = now()
		WHERE id = $3
		RETURNING `+networkColumns,
		result.IsValid, validationErrors, id,
	)

	n, err := scanNetwork(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Network{}, apierr.NotFound("network %s not found", id)
		}
		return Network{}, fmt.Errorf("updating network validation: %w", err)
	}

	s.writeThrough(ctx, n)
	return n, nil
}

// SetActive toggles a network's active flag.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) (Network, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE networks SET active = $1, updated_at = now() WHERE id = $2
		RETURNING `+networkColumns,
		active, id,
	)

	n, err := scanNetwork(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Network{}, apierr.NotFound("network %s not found", id)
		}
		return Network{}, fmt.Errorf("updating network active flag: %w", err)
	}

	s.writeThrough(ctx, n)
	return n, nil
}

// Delete removes a network and clears both cache keys.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM networks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting network: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.NotFound("network %s not found", id)
	}

	if _, err := s.cache.Delete(ctx, idKey(n.ID), slugKey(n.Slug)); err != nil {
		s.logger.Error("evicting deleted network from cache", "network_id", n.ID, "error", err)
	}
	return nil
}

// writeThrough populates both cache keys a network is addressed by. Cache
// failures are logged, never surfaced — Postgres remains the source of truth.
func (s *Store) writeThrough(ctx context.Context, n Network) {
	opts := cache.SetOptions{TTL: cacheTTL}
	if _, err := s.cache.Set(ctx, idKey(n.ID), n, opts); err != nil {
		s.logger.Error("caching network by id", "network_id", n.ID, "error", err)
	}
	if _, err := s.cache.Set(ctx, slugKey(n.Slug), n, opts); err != nil {
		s.logger.Error("caching network by slug", "slug", n.Slug, "error", err)
	}
}

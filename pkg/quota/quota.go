// Package quota implements the quota engine (C6): every entity lifecycle
// operation that changes a counted resource goes through a single
// transactional path that locks the tenant's limits row, checks the cap,
// performs the caller's mutation, and updates the counter — all inside one
// database transaction (§4.6).
package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blip0/control-plane/pkg/apierr"
)

// Resource is a counted entity kind on TenantLimits.
type Resource string

const (
	ResourceMonitors Resource = "monitors"
	ResourceNetworks Resource = "networks"
	ResourceTriggers Resource = "triggers"
)

var columnNames = map[Resource]struct{ max, current string }{
	ResourceMonitors: {"max_monitors", "current_monitors"},
	ResourceNetworks: {"max_networks", "current_networks"},
	ResourceTriggers: {"max_triggers", "current_triggers"},
}

// Engine enforces quota caps around entity lifecycle mutations.
type Engine struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a quota Engine.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Engine {
	return &Engine{pool: pool, logger: logger}
}

// Reserve performs the full quota-engine transaction (§4.6): it locks the
// tenant's TenantLimits row, checks the requested delta against the cap,
// invokes mutate with the transaction (the caller's entity insert/delete),
// updates the counter, and commits. A positive delta that would push
// current_X past max_X fails with apierr.QuotaExceeded before mutate runs.
// A negative delta (hard-delete) clamps the counter at zero rather than
// erroring.
func (e *Engine) Reserve(ctx context.Context, tenantID uuid.UUID, resource Resource, delta int, mutate func(tx pgx.Tx) error) error {
	cols, ok := columnNames[resource]
	if !ok {
		return fmt.Errorf("quota: unknown resource %q", resource)
	}

	return pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		var current, max int
		err := tx.QueryRow(ctx,
			fmt.Sprintf(`SELECT %s, %s FROM tenant_limits WHERE tenant_id = $1 FOR UPDATE`, cols.current, cols.max),
			tenantID,
		).Scan(&current, &max)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apierr.NotFound("tenant_limits for tenant %s not found", tenantID)
			}
			return fmt.Errorf("quota: locking tenant_limits: %w", err)
		}

		next, err := applyDelta(current, max, delta)
		if err != nil {
			return err
		}
		if delta < 0 && current+delta < 0 {
			e.logger.Warn("quota counter underflow clamped to zero",
				"tenant_id", tenantID, "resource", resource, "current", current, "delta", delta)
		}

		if err := mutate(tx); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			fmt.Sprintf(`UPDATE tenant_limits SET %s = $1 WHERE tenant_id = $2`, cols.current),
			next, tenantID,
		)
		if err != nil {
			return fmt.Errorf("quota: updating counter: %w", err)
		}

		return nil
	})
}

// applyDelta is the pure decision at the heart of the engine: reject an
// over-cap increment, clamp an under-zero decrement.
func applyDelta(current, max, delta int) (int, error) {
	next := current + delta
	if delta > 0 && next > max {
		return 0, apierr.QuotaExceeded("quota exceeded: %d + %d > %d", current, delta, max)
	}
	if next < 0 {
		return 0, nil
	}
	return next, nil
}

// Package tenant implements the Tenant and TenantLimits entities (§3): the
// isolation unit that owns monitors, triggers, and networks. Tenancy is
// row-level — every tenant-owned table carries a tenant_id column and every
// query is scoped by it — rather than the schema-per-tenant model, because
// the cache key namespace (§6, `tenant:{tenant_id}:...`) and every entity's
// FK shape assume one shared schema.
package tenant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the tenant lifecycle state (§3).
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// Plan is the billing tier, which determines TenantLimits caps via the
// static plan table (planCapsTable in plans.go).
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Tenant is the isolation unit owning monitors, triggers, and audit records.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	Plan      Plan
	Status    Status
	Settings  json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Limits holds the per-resource caps and live counters for a tenant (§3).
// Every counted resource must satisfy 0 <= current_X <= max_X; the engine
// enforcing that invariant lives in pkg/quota.
type Limits struct {
	TenantID uuid.UUID

	MaxMonitors             int
	MaxNetworks             int
	MaxTriggers             int
	MaxAPICallsPerHour      int
	MaxStorageGB            decimal.Decimal
	MaxConcurrentOperations int

	CurrentMonitors  int
	CurrentNetworks  int
	CurrentTriggers  int
	CurrentStorageGB decimal.Decimal
}

// IsActive reports whether write operations are permitted for this tenant
// (§3: suspended blocks writes but retains data; deleted detaches entirely).
func (t Tenant) IsActive() bool {
	return t.Status == StatusActive
}

type contextKey string

const tenantKey contextKey = "resolved_tenant"

// NewContext stores the resolved Tenant in the context.
func NewContext(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// FromContext extracts the resolved Tenant from the context, or nil if absent.
func FromContext(ctx context.Context) *Tenant {
	v, _ := ctx.Value(tenantKey).(*Tenant)
	return v
}

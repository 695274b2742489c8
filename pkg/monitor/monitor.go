// Package monitor implements the Monitor entity and its tenant-scoped
// configuration service (C4.4.2): write-through cached CRUD, denormalized
// monitor-with-triggers projections, active-set maintenance, validation, and
// cloning.
package monitor

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Address is one on-chain address a monitor watches, with opaque
// contract-specific metadata (ABI fragments, specs) the workers interpret.
type Address struct {
	Address       string          `json:"address"`
	ContractSpecs json.RawMessage `json:"contract_specs,omitempty"`
}

// Monitor is a tenant-owned rule matching on-chain events, functions, and
// transactions across one or more networks (§3).
type Monitor struct {
	ID                uuid.UUID         `json:"id"`
	TenantID          uuid.UUID         `json:"tenant_id"`
	Name              string            `json:"name"`
	Slug              string            `json:"slug"`
	Description       string            `json:"description,omitempty"`
	Paused            bool              `json:"paused"`
	Active            bool              `json:"active"`
	Networks          []string          `json:"networks"`
	Addresses         []Address         `json:"addresses"`
	MatchFunctions    json.RawMessage   `json:"match_functions,omitempty"`
	MatchEvents       json.RawMessage   `json:"match_events,omitempty"`
	MatchTransactions json.RawMessage   `json:"match_transactions,omitempty"`
	TriggerConditions json.RawMessage   `json:"trigger_conditions,omitempty"`
	Triggers          []string          `json:"triggers"`
	Validated         bool              `json:"validated"`
	ValidationErrors  map[string]string `json:"validation_errors,omitempty"`
	LastValidatedAt   *time.Time        `json:"last_validated_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsRunnable reports whether the monitor should be considered by workers
// (§3: "runnable iff active ∧ ¬paused ∧ validated").
func (m Monitor) IsRunnable() bool {
	return m.Active && !m.Paused && m.Validated
}

// WithTriggers is the denormalized projection workers read instead of
// joining triggers themselves (§4.4.2 get_with_triggers).
type WithTriggers struct {
	Monitor
	ResolvedTriggers []TriggerRef `json:"resolved_triggers"`
}

// TriggerRef is the minimal trigger shape embedded in a denormalized
// monitor projection.
type TriggerRef struct {
	ID         uuid.UUID `json:"id"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	TriggerType string   `json:"trigger_type"`
	Active     bool      `json:"active"`
}

// ValidationResult is the outcome of Service.Validate (§4.4.2).
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/blip0/control-plane/pkg/apierr"
	"github.com/blip0/control-plane/pkg/cache"
	"github.com/blip0/control-plane/pkg/changefeed"
	"github.com/blip0/control-plane/pkg/quota"
	"github.com/blip0/control-plane/pkg/repo"
)

// cacheTTL is the monitor entity TTL of §4.4.1 (30 minutes).
const cacheTTL = 30 * time.Minute

// activeSetTTL is refreshed on every add, per §4.4.1.
const activeSetTTL = time.Hour

func entityKey(tenantID, id uuid.UUID) string {
	return fmt.Sprintf("tenant:%s:monitor:%s", tenantID, id)
}

func activeSetKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("tenant:%s:monitors:active", tenantID)
}

// Service is the tenant-scoped monitor configuration service (C4.4.2).
type Service struct {
	store     *Store
	cache     *cache.Client
	quota     *quota.Engine
	publisher *changefeed.Publisher
	triggers  TriggerLookup
	logger    *slog.Logger
}

// TriggerLookup resolves trigger slugs/ids to the denormalized reference
// shape get_with_triggers embeds; pkg/trigger's Store satisfies it.
type TriggerLookup interface {
	ResolveRefs(ctx context.Context, tenantID uuid.UUID, slugsOrIDs []string) ([]TriggerRef, error)
}

// NewService creates a Service.
func NewService(store *Store, c *cache.Client, q *quota.Engine, publisher *changefeed.Publisher, triggers TriggerLookup, logger *slog.Logger) *Service {
	return &Service{store: store, cache: c, quota: q, publisher: publisher, triggers: triggers, logger: logger}
}

// Get reads through the cache, falling back to the database on a miss
// (§4.4.1).
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (Monitor, error) {
	var m Monitor
	if err := s.cache.Get(ctx, entityKey(tenantID, id), &m); err == nil {
		return m, nil
	}

	m, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Monitor{}, err
	}
	s.cacheSet(ctx, m)
	return m, nil
}

// List delegates straight to the store; listing is not cached (only
// single-entity reads and the active-set are, per §4.4.1/§4.4.2).
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filters *repo.Filters, sortSpec repo.Sort, page repo.Page) ([]Monitor, int, error) {
	return s.store.List(ctx, tenantID, filters, sortSpec, page)
}

// Create enforces (tenant_id, slug) uniqueness via the store's unique
// constraint, reserves quota, inserts, caches, updates the active-set, and
// publishes a change event (§4.4.2).
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, m Monitor) (Monitor, error) {
	m.TenantID = tenantID

	var created Monitor
	err := s.quota.Reserve(ctx, tenantID, quota.ResourceMonitors, 1, func(tx pgx.Tx) error {
		var err error
		created, err = s.store.Create(ctx, tx, m)
		return err
	})
	if err != nil {
		return Monitor{}, err
	}

	s.cacheSet(ctx, created)
	s.syncActiveSet(ctx, created)
	s.publish(ctx, tenantID, changefeed.ActionCreate, created.ID)
	return created, nil
}

// Update applies patch, recomputes runnability, and adjusts active-set
// membership and cache accordingly (§4.4.2).
func (s *Service) Update(ctx context.Context, tenantID, id uuid.UUID, patch Patch) (Monitor, error) {
	updated, err := s.store.Update(ctx, tenantID, id, patch)
	if err != nil {
		return Monitor{}, err
	}

	s.cacheSet(ctx, updated)
	s.syncActiveSet(ctx, updated)
	s.publish(ctx, tenantID, changefeed.ActionUpdate, updated.ID)
	return updated, nil
}

// Pause applies {paused=true, active=false} (§4.4.2).
func (s *Service) Pause(ctx context.Context, tenantID, id uuid.UUID) (Monitor, error) {
	return s.setPausedActive(ctx, tenantID, id, true, false)
}

// Resume applies {paused=false, active=true} (§4.4.2).
func (s *Service) Resume(ctx context.Context, tenantID, id uuid.UUID) (Monitor, error) {
	return s.setPausedActive(ctx, tenantID, id, false, true)
}

func (s *Service) setPausedActive(ctx context.Context, tenantID, id uuid.UUID, paused, active bool) (Monitor, error) {
	m, err := s.store.SetPausedActive(ctx, tenantID, id, paused, active)
	if err != nil {
		return Monitor{}, err
	}
	s.cacheSet(ctx, m)
	s.syncActiveSet(ctx, m)
	s.publish(ctx, tenantID, changefeed.ActionUpdate, m.ID)
	return m, nil
}

// Delete removes a monitor from the active-set unconditionally, invalidates
// its cache entry, and performs the store-level soft/hard delete. Hard
// delete goes through the quota engine; soft delete does not touch counters
// (§4.6). Cache transport errors surface as apierr.Transient per the
// decision recorded in DESIGN.md's Open Question #3; store errors are
// returned as the store reports them.
func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID, hard bool) error {
	if _, err := s.cache.Delete(ctx, entityKey(tenantID, id)); err != nil {
		return apierr.Transient(err, "evicting monitor %s from cache", id)
	}
	if err := s.cache.SRem(ctx, activeSetKey(tenantID), id.String()); err != nil {
		return apierr.Transient(err, "removing monitor %s from active set", id)
	}

	if hard {
		err := s.quota.Reserve(ctx, tenantID, quota.ResourceMonitors, -1, func(tx pgx.Tx) error {
			return s.store.HardDelete(ctx, tx, tenantID, id)
		})
		if err != nil {
			return err
		}
	} else {
		if err := s.store.SoftDelete(ctx, tenantID, id); err != nil {
			return err
		}
	}

	s.publish(ctx, tenantID, changefeed.ActionDelete, id)
	return nil
}

// GetWithTriggers resolves the monitor's triggers, materializes the
// denormalized projection, writes it to the entity's cache key (replacing
// the plain view), and returns it (§4.4.2).
func (s *Service) GetWithTriggers(ctx context.Context, tenantID, id uuid.UUID) (WithTriggers, error) {
	m, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return WithTriggers{}, err
	}
	return s.buildWithTriggers(ctx, tenantID, m)
}

// buildWithTriggers resolves m's triggers and caches the denormalized
// projection for an already-fetched Monitor, so callers that already hold a
// batch of rows (RefreshAll) never re-fetch them one at a time.
func (s *Service) buildWithTriggers(ctx context.Context, tenantID uuid.UUID, m Monitor) (WithTriggers, error) {
	refs, err := s.triggers.ResolveRefs(ctx, tenantID, m.Triggers)
	if err != nil {
		return WithTriggers{}, fmt.Errorf("resolving monitor triggers: %w", err)
	}

	view := WithTriggers{Monitor: m, ResolvedTriggers: refs}
	if _, err := s.cache.Set(ctx, entityKey(tenantID, m.ID), view, cache.SetOptions{TTL: cacheTTL}); err != nil {
		s.logger.Error("caching denormalized monitor view", "monitor_id", m.ID, "error", err)
	}
	return view, nil
}

// Validate runs the §4.4.2 validation rules and persists the outcome.
func (s *Service) Validate(ctx context.Context, tenantID, id uuid.UUID) (ValidationResult, error) {
	m, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return ValidationResult{}, err
	}

	result := validateMonitor(m)

	errs := make(map[string]string, len(result.Errors))
	for i, e := range result.Errors {
		errs[fmt.Sprintf("error_%d", i)] = e
	}

	updated, err := s.store.SetValidation(ctx, tenantID, id, result.IsValid, errs)
	if err != nil {
		return ValidationResult{}, err
	}

	s.cacheSet(ctx, updated)
	s.syncActiveSet(ctx, updated)
	return result, nil
}

func validateMonitor(m Monitor) ValidationResult {
	result := ValidationResult{IsValid: true}

	if m.Name == "" {
		result.Errors = append(result.Errors, "name must not be empty")
	}
	if m.Slug == "" {
		result.Errors = append(result.Errors, "slug must not be empty")
	}
	if len(m.Networks) == 0 {
		result.Errors = append(result.Errors, "at least one network must be configured")
	}
	for _, a := range m.Addresses {
		if a.Address == "" {
			result.Errors = append(result.Errors, "every address entry requires an address field")
			break
		}
	}

	if len(m.MatchFunctions) == 0 && len(m.MatchEvents) == 0 && len(m.MatchTransactions) == 0 {
		result.Warnings = append(result.Warnings, "no match_functions, match_events, or match_transactions configured")
	}
	if len(m.Triggers) == 0 {
		result.Warnings = append(result.Warnings, "no triggers configured")
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// Clone copies a monitor's configuration under a new name/slug, paused, via
// the normal create path (§4.4.2).
func (s *Service) Clone(ctx context.Context, tenantID, srcID uuid.UUID, newName, newSlug string) (Monitor, error) {
	src, err := s.store.Get(ctx, tenantID, srcID)
	if err != nil {
		return Monitor{}, err
	}

	clone := Monitor{
		TenantID:          tenantID,
		Name:              newName,
		Slug:              newSlug,
		Description:       fmt.Sprintf("Cloned from %s", src.Name),
		Networks:          append([]string(nil), src.Networks...),
		Addresses:         append([]Address(nil), src.Addresses...),
		MatchFunctions:    src.MatchFunctions,
		MatchEvents:       src.MatchEvents,
		MatchTransactions: src.MatchTransactions,
		TriggerConditions: src.TriggerConditions,
		Triggers:          append([]string(nil), src.Triggers...),
	}

	created, err := s.Create(ctx, tenantID, clone)
	if err != nil {
		return Monitor{}, err
	}

	return s.Pause(ctx, tenantID, created.ID)
}

// RefreshAll deletes every cached entry and the active-set for tenantID,
// rebuilds denormalized views for every monitor, and re-adds every runnable
// monitor to the active-set (§4.4.2). ListAllForTenant already reads every
// row in one batch query, so the rebuild loop below reuses each fetched
// Monitor directly instead of re-fetching it through GetWithTriggers, which
// would otherwise issue one extra per-monitor SELECT for data already held.
func (s *Service) RefreshAll(ctx context.Context, tenantID uuid.UUID) (int, error) {
	if _, err := s.cache.DeletePattern(ctx, fmt.Sprintf("tenant:%s:monitor:*", tenantID)); err != nil {
		return 0, apierr.Transient(err, "clearing monitor cache for tenant %s", tenantID)
	}
	if _, err := s.cache.Delete(ctx, activeSetKey(tenantID)); err != nil {
		return 0, apierr.Transient(err, "clearing active set for tenant %s", tenantID)
	}

	monitors, err := s.store.ListAllForTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	for _, m := range monitors {
		if _, err := s.buildWithTriggers(ctx, tenantID, m); err != nil {
			s.logger.Error("rebuilding denormalized monitor view", "monitor_id", m.ID, "error", err)
			continue
		}
		s.syncActiveSet(ctx, m)
	}

	return len(monitors), nil
}

// GetActiveIDs returns the active-set's current membership without
// rebuilding it from the database on a miss (§4.4.2: "workers rebuild via
// refresh_all").
func (s *Service) GetActiveIDs(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	return s.cache.SMembers(ctx, activeSetKey(tenantID))
}

func (s *Service) cacheSet(ctx context.Context, m Monitor) {
	if _, err := s.cache.Set(ctx, entityKey(m.TenantID, m.ID), m, cache.SetOptions{TTL: cacheTTL}); err != nil {
		s.logger.Error("caching monitor", "monitor_id", m.ID, "error", err)
	}
}

func (s *Service) syncActiveSet(ctx context.Context, m Monitor) {
	key := activeSetKey(m.TenantID)
	if m.IsRunnable() {
		if err := s.cache.SAdd(ctx, key, m.ID.String()); err != nil {
			s.logger.Error("adding monitor to active set", "monitor_id", m.ID, "error", err)
			return
		}
	} else {
		if err := s.cache.SRem(ctx, key, m.ID.String()); err != nil {
			s.logger.Error("removing monitor from active set", "monitor_id", m.ID, "error", err)
			return
		}
	}
	if _, err := s.cache.Expire(ctx, key, activeSetTTL); err != nil {
		s.logger.Error("refreshing active set ttl", "tenant_id", m.TenantID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, tenantID uuid.UUID, action changefeed.Action, id uuid.UUID) {
	msg := changefeed.Message{TenantID: &tenantID, Action: action, MonitorID: &id, Timestamp: time.Now()}
	if err := s.publisher.Publish(ctx, changefeed.ChannelMonitor, msg); err != nil {
		s.logger.Error("publishing monitor change", "monitor_id", id, "error", err)
	}
}

package trigger

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

// cacheTTL is the trigger entity TTL (§4.4.4: 1 hour).
const cacheTTL = time.Hour

func entityKey(tenantID, id uuid.UUID) string {
	return fmt.Sprintf("tenant:%s:trigger:%s", tenantID, id)
}

// Service is the tenant-scoped trigger configuration service (C4.4.4).
type Service struct {
	store     *Store
	cache     *cache.Client
	quota     *quota.Engine
	publisher *changefeed.Publisher
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(store *Store, c *cache.Client, q *quota.Engine, publisher *changefeed.Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, cache: c, quota: q, publisher: publisher, logger: logger}
}

// Get reads through the cache, falling back to the database on a miss.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (Trigger, error) {
	var t Trigger
	if err := s.cache.Get(ctx, entityKey(tenantID, id), &t); err == nil {
		return t, nil
	}

	t, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return Trigger{}, err
	}
	s.cacheSet(ctx, t)
	return t, nil
}

// List delegates straight to the store; listing is not cached.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, filters *repo.Filters, sortSpec repo.Sort, page repo.Page) ([]Trigger, int, error) {
	return s.store.List(ctx, tenantID, filters, sortSpec, page)
}

// Create reserves quota, inserts the trigger plus its companion record in
// one transaction, caches, and publishes a change event.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, t Trigger) (Trigger, error) {
	t.TenantID = tenantID

	var created Trigger
	err := s.quota.Reserve(ctx, tenantID, quota.ResourceTriggers, 1, func(tx pgx.Tx) error {
		var err error
		created, err = s.store.Create(ctx, tx, t)
		return err
	})
	if err != nil {
		return Trigger{}, err
	}

	s.cacheSet(ctx, created)
	s.publish(ctx, tenantID, changefeed.ActionCreate, created.ID)
	return created, nil
}

// Update applies patch, including a same-transaction rewrite of the
// companion record, then caches and publishes the result (§4.4.4).
func (s *Service) Update(ctx context.Context, tenantID, id uuid.UUID, patch Patch) (Trigger, error) {
	updated, err := s.store.Update(ctx, tenantID, id, patch)
	if err != nil {
		return Trigger{}, err
	}

	s.cacheSet(ctx, updated)
	s.publish(ctx, tenantID, changefeed.ActionUpdate, updated.ID)
	return updated, nil
}

// Activate sets active=true (§4.4.4 "Analogous for triggers").
func (s *Service) Activate(ctx context.Context, tenantID, id uuid.UUID) (Trigger, error) {
	return s.setActive(ctx, tenantID, id, true)
}

// Deactivate sets active=false.
func (s *Service) Deactivate(ctx context.Context, tenantID, id uuid.UUID) (Trigger, error) {
	return s.setActive(ctx, tenantID, id, false)
}

func (s *Service) setActive(ctx context.Context, tenantID, id uuid.UUID, active bool) (Trigger, error) {
	t, err := s.store.SetActive(ctx, tenantID, id, active)
	if err != nil {
		return Trigger{}, err
	}
	s.cacheSet(ctx, t)
	s.publish(ctx, tenantID, changefeed.ActionUpdate, t.ID)
	return t, nil
}

// Validate checks the trigger's companion record is internally consistent
// (§3) and persists the outcome.
func (s *Service) Validate(ctx context.Context, tenantID, id uuid.UUID) (ValidationResult, error) {
	t, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return ValidationResult{}, err
	}

	result := validateTrigger(t)

	errs := make(map[string]string, len(result.Errors))
	for i, e := range result.Errors {
		errs[fmt.Sprintf("error_%d", i)] = e
	}

	updated, err := s.store.SetValidation(ctx, tenantID, id, result.IsValid, errs)
	if err != nil {
		return ValidationResult{}, err
	}
	s.cacheSet(ctx, updated)

	return result, nil
}

func validateTrigger(t Trigger) ValidationResult {
	result := ValidationResult{IsValid: true}

	if t.Name == "" {
		result.Errors = append(result.Errors, "name must not be empty")
	}
	if t.Slug == "" {
		result.Errors = append(result.Errors, "slug must not be empty")
	}

	switch t.TriggerType {
	case TypeEmail:
		if t.Email == nil {
			result.Errors = append(result.Errors, "email trigger is missing its email configuration")
			break
		}
		if t.Email.Host == "" {
			result.Errors = append(result.Errors, "email configuration requires a host")
		}
		if len(t.Email.Recipients) == 0 {
			result.Errors = append(result.Errors, "email configuration requires at least one recipient")
		}
		if t.Webhook != nil {
			result.Errors = append(result.Errors, "email trigger must not carry a webhook configuration")
		}
	case TypeWebhook:
		if t.Webhook == nil {
			result.Errors = append(result.Errors, "webhook trigger is missing its webhook configuration")
			break
		}
		if t.Webhook.URL.Value == "" {
			result.Errors = append(result.Errors, "webhook configuration requires a url")
		}
		if t.Email != nil {
			result.Errors = append(result.Errors, "webhook trigger must not carry an email configuration")
		}
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("unknown trigger_type %q", t.TriggerType))
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// Delete evicts the cache entry and deletes the trigger; hard delete runs
// through the quota engine, soft delete does not touch counters (§4.6),
// mirroring monitor.Service.Delete's decision on cache error handling.
func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID, hard bool) error {
	if _, err := s.cache.Delete(ctx, entityKey(tenantID, id)); err != nil {
		return apierr.Transient(err, "evicting trigger %s from cache", id)
	}

	if hard {
		err := s.quota.Reserve(ctx, tenantID, quota.ResourceTriggers, -1, func(tx pgx.Tx) error {
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

func (s *Service) cacheSet(ctx context.Context, t Trigger) {
	if _, err := s.cache.Set(ctx, entityKey(t.TenantID, t.ID), t, cache.SetOptions{TTL: cacheTTL}); err != nil {
		s.logger.Error("caching trigger", "trigger_id", t.ID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, tenantID uuid.UUID, action changefeed.Action, id uuid.UUID) {
	msg := changefeed.Message{TenantID: &tenantID, Action: action, TriggerID: &id, Timestamp: time.Now()}
	if err := s.publisher.Publish(ctx, changefeed.ChannelTrigger, msg); err != nil {
		s.logger.Error("publishing trigger change", "trigger_id", id, "error", err)
	}
}

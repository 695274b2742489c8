package network

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/blip0/control-plane/pkg/apierr"
	"github.com/blip0/control-plane/pkg/changefeed"
)

// bulkValidationConcurrency bounds how many networks ValidateAll probes at
// once, independent of how many RPC endpoints each network's own Validate
// fans out to (§5, §D.3).
const bulkValidationConcurrency = 8

// cronParser validates a Network's cron_schedule against the standard
// five-field cron grammar (§3 Network.cron_schedule) without ever running a
// schedule itself — the ingestion worker that actually polls on this cadence
// lives outside the control plane.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// validateCronSchedule rejects a malformed cron expression before it is
// persisted. An empty expression is allowed — it means "no scheduled
// polling", left to the caller to interpret.
func validateCronSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return apierr.BadRequest("invalid cron_schedule %q: %v", expr, err)
	}
	return nil
}

// Service wires the store, the liveness validator, and the change publisher
// together (§4.4.3): creating a network with validate_rpcs=true runs the
// validator inline before the row is ever persisted as validated.
type Service struct {
	store     *Store
	validator *Validator
	publisher *changefeed.Publisher
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(store *Store, validator *Validator, publisher *changefeed.Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, validator: validator, publisher: publisher, logger: logger}
}

// Create inserts a network. When validateRPCs is true, the new network's
// endpoints are probed immediately and the result persisted before returning.
func (s *Service) Create(ctx context.Context, n Network, validateRPCs bool) (Network, error) {
	if err := validateCronSchedule(n.CronSchedule); err != nil {
		return Network{}, err
	}

	created, err := s.store.Create(ctx, n)
	if err != nil {
		return Network{}, err
	}

	if validateRPCs {
		created, err = s.runValidation(ctx, created)
		if err != nil {
			return Network{}, err
		}
	}

	s.publish(ctx, changefeed.ActionCreate, created.ID)
	return created, nil
}

// Validate re-runs the liveness validator against an existing network and
// persists the outcome.
func (s *Service) Validate(ctx context.Context, id uuid.UUID) (Network, error) {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return Network{}, err
	}

	n, err = s.runValidation(ctx, n)
	if err != nil {
		return Network{}, err
	}

	s.publish(ctx, changefeed.ActionUpdate, n.ID)
	return n, nil
}

// ValidateAll fans Validate out across every network matching tenantID (nil
// scopes platform-wide) with a bounded worker pool, so a large fleet of
// networks is revalidated in parallel rather than one request at a time
// (§5 "Bulk validation fans out the same primitive across networks in
// parallel"; §D.3 names the errgroup.SetLimit-bounded pool explicitly).
func (s *Service) ValidateAll(ctx context.Context, tenantID *uuid.UUID) ([]Network, error) {
	networks, err := s.store.ListAllForValidation(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	results := make([]Network, len(networks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkValidationConcurrency)

	for i, n := range networks {
		i, n := i, n
		g.Go(func() error {
			updated, err := s.runValidation(gctx, n)
			if err != nil {
				return fmt.Errorf("validating network %s: %w", n.ID, err)
			}
			results[i] = updated
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, n := range results {
		s.publish(ctx, changefeed.ActionUpdate, n.ID)
	}
	return results, nil
}

func (s *Service) runValidation(ctx context.Context, n Network) (Network, error) {
	result := s.validator.Validate(ctx, n)
	updated, err := s.store.UpdateValidation(ctx, n.ID, result)
	if err != nil {
		return Network{}, fmt.Errorf("persisting validation result: %w", err)
	}
	return updated, nil
}

// SetActive activates or deactivates a network and publishes the change.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (Network, error) {
	n, err := s.store.SetActive(ctx, id, active)
	if err != nil {
		return Network{}, err
	}
	s.publish(ctx, changefeed.ActionUpdate, n.ID)
	return n, nil
}

// Delete removes a network and publishes the change.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, changefeed.ActionDelete, id)
	return nil
}

func (s *Service) publish(ctx context.Context, action changefeed.Action, id uuid.UUID) {
	msg := changefeed.Message{Action: action, NetworkID: &id, Timestamp: time.Now()}
	if err := s.publisher.Publish(ctx, changefeed.ChannelNetwork, msg); err != nil {
		s.logger.Error("publishing network change", "network_id", id, "error", err)
	}
}

package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blip0/control-plane/pkg/apierr"
	"github.com/blip0/control-plane/pkg/monitor"
	"github.com/blip0/control-plane/pkg/repo"
)

// Store provides database CRUD for Trigger and its polymorphic companion
// records, tenant-scoped on every method.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

const triggerColumns = `id, tenant_id, name, slug, trigger_type, description, active,
	validated, validation_errors, last_validated_at, created_at, updated_at`

func scanTrigger(row pgx.Row) (Trigger, error) {
	var t Trigger
	var validationErrors []byte
	err := row.Scan(
		&t.ID, &t.TenantID, &t.Name, &t.Slug, &t.TriggerType, &t.Description, &t.Active,
		&t.Validated, &validationErrors, &t.LastValidatedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return Trigger{}, err
	}
	if len(validationErrors) > 0 {
		if err := json.Unmarshal(validationErrors, &t.ValidationErrors); err != nil {
			return Trigger{}, fmt.Errorf("decoding validation_errors: %w", err)
		}
	}
	return t, nil
}

const emailColumns = `trigger_id, host, port, username_source, username_value, password_source,
	password_value, sender, recipients, message_title, message_body`

func scanEmail(row pgx.Row) (EmailConfig, error) {
	var e EmailConfig
	var triggerID uuid.UUID
	err := row.Scan(
		&triggerID, &e.Host, &e.Port, &e.Username.Source, &e.Username.Value, &e.Password.Source,
		&e.Password.Value, &e.Sender, &e.Recipients, &e.MessageTitle, &e.MessageBody,
	)
	return e, err
}

const webhookColumns = `trigger_id, url_source, url_value, method, headers, secret_source,
	secret_value, message_title, message_body`

func scanWebhook(row pgx.Row) (WebhookConfig, error) {
	var w WebhookConfig
	var triggerID uuid.UUID
	var headers []byte
	var secretSource, secretValue *string
	err := row.Scan(
		&triggerID, &w.URL.Source, &w.URL.Value, &w.Method, &headers, &secretSource, &secretValue,
		&w.MessageTitle, &w.MessageBody,
	)
	if err != nil {
		return WebhookConfig{}, err
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &w.Headers); err != nil {
			return WebhookConfig{}, fmt.Errorf("decoding headers: %w", err)
		}
	}
	if secretSource != nil && secretValue != nil {
		w.Secret = &Credential{Source: CredentialSource(*secretSource), Value: *secretValue}
	}
	return w, nil
}

// Create inserts a trigger and its companion record in the same transaction
// (§3, §4.4.4), using tx so the caller (the quota engine) can share it with
// the counter update.
func (s *Store) Create(ctx context.Context, tx pgx.Tx, t Trigger) (Trigger, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO triggers (id, tenant_id, name, slug, trigger_type, description, active,
			validated, validation_errors, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, true, false, '{}', now(), now())
		RETURNING `+triggerColumns,
		t.TenantID, t.Name, t.Slug, t.TriggerType, t.Description,
	)

	created, err := scanTrigger(row)
	if err != nil {
		if repo.IsUniqueViolation(err) {
			return Trigger{}, apierr.Duplicate("slug", "trigger slug %q already exists for this tenant", t.Slug)
		}
		return Trigger{}, fmt.Errorf("inserting trigger: %w", err)
	}

	switch t.TriggerType {
	case TypeEmail:
		if t.Email == nil {
			return Trigger{}, apierr.BadRequest("email trigger requires an email configuration")
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO email_triggers (trigger_id, host, port, username_source, username_value,
				password_source, password_value, sender, recipients, message_title, message_body)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			created.ID, t.Email.Host, t.Email.Port, t.Email.Username.Source, t.Email.Username.Value,
			t.Email.Password.Source, t.Email.Password.Value, t.Email.Sender, t.Email.Recipients,
			t.Email.MessageTitle, t.Email.MessageBody,
		); err != nil {
			return Trigger{}, fmt.Errorf("inserting email_triggers companion: %w", err)
		}
		created.Email = t.Email

	case TypeWebhook:
		if t.Webhook == nil {
			return Trigger{}, apierr.BadRequest("webhook trigger requires a webhook configuration")
		}
		headers, err := json.Marshal(t.Webhook.Headers)
		if err != nil {
			return Trigger{}, fmt.Errorf("encoding headers: %w", err)
		}
		var secretSource, secretValue *string
		if t.Webhook.Secret != nil {
			s := string(t.Webhook.Secret.Source)
			v := t.Webhook.Secret.Value
			secretSource, secretValue = &s, &v
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO webhook_triggers (trigger_id, url_source, url_value, method, headers,
				secret_source, secret_value, message_title, message_body)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			created.ID, t.Webhook.URL.Source, t.Webhook.URL.Value, t.Webhook.Method, headers,
			secretSource, secretValue, t.Webhook.MessageTitle, t.Webhook.MessageBody,
		); err != nil {
			return Trigger{}, fmt.Errorf("inserting webhook_triggers companion: %w", err)
		}
		created.Webhook = t.Webhook

	default:
		return Trigger{}, apierr.BadRequest("unknown trigger_type %q", t.TriggerType)
	}

	return created, nil
}

// Get fetches a trigger with its companion record, scoped to tenantID.
func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (Trigger, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+triggerColumns+` FROM triggers WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	t, err := scanTrigger(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Trigger{}, apierr.NotFound("trigger %s not found", id)
		}
		return Trigger{}, fmt.Errorf("getting trigger: %w", err)
	}

	if err := loadCompanion(ctx, s.pool, &t); err != nil {
		return Trigger{}, err
	}
	return t, nil
}

// querier is the read surface loadCompanion needs, satisfied by both
// *pgxpool.Pool and pgx.Tx so it can run against the pool or inside Update's
// transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadCompanion(ctx context.Context, q querier, t *Trigger) error {
	switch t.TriggerType {
	case TypeEmail:
		row := q.QueryRow(ctx, `SELECT `+emailColumns+` FROM email_triggers WHERE trigger_id = $1`, t.ID)
		e, err := scanEmail(row)
		if err != nil {
			return fmt.Errorf("loading email_triggers companion: %w", err)
		}
		t.Email = &e
	case TypeWebhook:
		row := q.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhook_triggers WHERE trigger_id = $1`, t.ID)
		w, err := scanWebhook(row)
		if err != nil {
			return fmt.Errorf("loading webhook_triggers companion: %w", err)
		}
		t.Webhook = &w
	}
	return nil
}

// List returns a page of triggers scoped to tenantID (companion records are
// not loaded for list results — callers that need them call Get per item).
func (s *Store) List(ctx context.Context, tenantID uuid.UUID, filters *repo.Filters, sortSpec repo.Sort, page repo.Page) ([]Trigger, int, error) {
	whereClause, args := filters.Clause(2)
	where := "WHERE tenant_id = $1"
	if whereClause != "" {
		where += " AND " + whereClause
	}
	args = append([]any{tenantID}, args...)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM triggers `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting triggers: %w", err)
	}

	limitParam := len(args) + 1
	offsetParam := len(args) + 2
	query := fmt.Sprintf(`SELECT %s FROM triggers %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		triggerColumns, where, sortSpec.SQL(), limitParam, offsetParam)

	rows, err := s.pool.Query(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing triggers: %w", err)
	}
	defer rows.Close()

	var items []Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning trigger row: %w", err)
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

// SetValidation persists the outcome of validating a trigger's companion
// record.
func (s *Store) SetValidation(ctx context.Context, tenantID, id uuid.UUID, isValid bool, errs map[string]string) (Trigger, error) {
	raw, err := json.Marshal(errs)
	if err != nil {
		return Trigger{}, fmt.Errorf("encoding validation_errors: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE triggers SET validated = $1, validation_errors = $2, last_validated_at = now(), updated_at = now()
		WHERE tenant_id = $3 AND id = $4
		RETURNING `+triggerColumns,
		isValid, raw, tenantID, id,
	)
	t, err := scanTrigger(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Trigger{}, apierr.NotFound("trigger %s not found", id)
		}
		return Trigger{}, fmt.Errorf("updating trigger validation: %w", err)
	}
	if err := loadCompanion(ctx, s.pool, &t); err != nil {
		return Trigger{}, err
	}
	return t, nil
}

// Patch is the set of fields Update may change. Email/Webhook, when set,
// fully replace the companion record — matching Create, the companion is
// always written whole rather than field-by-field (§3).
type Patch struct {
	Name        *string
	Slug        *string
	Description *string
	Email       *EmailConfig
	Webhook     *WebhookConfig
}

// Update applies patch to the trigger row and rewrites its companion record
// in the same transaction (§3, §4.4.4: "Creation, update, and deletion of a
// trigger are accompanied by corresponding mutations of the companion
// record... in the same database scope").
func (s *Store) Update(ctx context.Context, tenantID, id uuid.UUID, patch Patch) (Trigger, error) {
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return Trigger{}, err
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
	if patch.Email != nil {
		if current.TriggerType != TypeEmail {
			return Trigger{}, apierr.BadRequest("cannot set email configuration on a %s trigger", current.TriggerType)
		}
		current.Email = patch.Email
	}
	if patch.Webhook != nil {
		if current.TriggerType != TypeWebhook {
			return Trigger{}, apierr.BadRequest("cannot set webhook configuration on a %s trigger", current.TriggerType)
		}
		current.Webhook = patch.Webhook
	}

	var updated Trigger
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE triggers SET name = $1, slug = $2, description = $3, updated_at = now()
			WHERE tenant_id = $4 AND id = $5
			RETURNING `+triggerColumns,
			current.Name, current.Slug, current.Description, tenantID, id,
		)

		var err error
		updated, err = scanTrigger(row)
		if err != nil {
			if repo.IsUniqueViolation(err) {
				return apierr.Duplicate("slug", "trigger slug %q already exists for this tenant", current.Slug)
			}
			if repo.IsNoRows(err) {
				return apierr.NotFound("trigger %s not found", id)
			}
			return fmt.Errorf("updating trigger: %w", err)
		}

		switch updated.TriggerType {
		case TypeEmail:
			e := current.Email
			if _, err := tx.Exec(ctx, `
				UPDATE email_triggers SET host = $1, port = $2, username_source = $3, username_value = $4,
					password_source = $5, password_value = $6, sender = $7, recipients = $8,
					message_title = $9, message_body = $10
				WHERE trigger_id = $11`,
				e.Host, e.Port, e.Username.Source, e.Username.Value, e.Password.Source, e.Password.Value,
				e.Sender, e.Recipients, e.MessageTitle, e.MessageBody, updated.ID,
			); err != nil {
				return fmt.Errorf("updating email_triggers companion: %w", err)
			}
			updated.Email = e

		case TypeWebhook:
			w := current.Webhook
			headers, err := json.Marshal(w.Headers)
			if err != nil {
				return fmt.Errorf("encoding headers: %w", err)
			}
			var secretSource, secretValue *string
			if w.Secret != nil {
				src := string(w.Secret.Source)
				val := w.Secret.Value
				secretSource, secretValue = &src, &val
			}
			if _, err := tx.Exec(ctx, `
				UPDATE webhook_triggers SET url_source = $1, url_value = $2, method = $3, headers = $4,
					secret_source = $5, secret_value = $6, message_title = $7, message_body = $8
				WHERE trigger_id = $9`,
				w.URL.Source, w.URL.Value, w.Method, headers, secretSource, secretValue,
				w.MessageTitle, w.MessageBody, updated.ID,
			); err != nil {
				return fmt.Errorf("updating webhook_triggers companion: %w", err)
			}
			updated.Webhook = w
		}

		return nil
	})
	if err != nil {
		return Trigger{}, err
	}

	return updated, nil
}

// ResolveRefs resolves trigger slugs or ids to the denormalized reference
// shape monitor.Service.GetWithTriggers embeds (satisfies
// monitor.TriggerLookup).
func (s *Store) ResolveRefs(ctx context.Context, tenantID uuid.UUID, slugsOrIDs []string) ([]monitor.TriggerRef, error) {
	if len(slugsOrIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, slug, name, trigger_type, active FROM triggers
		WHERE tenant_id = $1 AND (slug = ANY($2) OR id::text = ANY($2))`,
		tenantID, slugsOrIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("resolving trigger refs: %w", err)
	}
	defer rows.Close()

	var refs []monitor.TriggerRef
	for rows.Next() {
		var ref monitor.TriggerRef
		if err := rows.Scan(&ref.ID, &ref.Slug, &ref.Name, &ref.TriggerType, &ref.Active); err != nil {
			return nil, fmt.Errorf("scanning trigger ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// SetActive toggles activate()/deactivate() (§4.4.4).
func (s *Store) SetActive(ctx context.Context, tenantID, id uuid.UUID, active bool) (Trigger, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE triggers SET active = $1, updated_at = now() WHERE tenant_id = $2 AND id = $3
		RETURNING `+triggerColumns,
		active, tenantID, id,
	)
	t, err := scanTrigger(row)
	if err != nil {
		if repo.IsNoRows(err) {
			return Trigger{}, apierr.NotFound("trigger %s not found", id)
		}
		return Trigger{}, fmt.Errorf("updating trigger active flag: %w", err)
	}
	if err := loadCompanion(ctx, s.pool, &t); err != nil {
		return Trigger{}, err
	}
	return t, nil
}

// SoftDelete sets active=false; no quota interaction (mirrors monitor's
// soft-delete semantics — the cap stays charged per §4.6).
func (s *Store) SoftDelete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE triggers SET active = false, updated_at = now() WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("soft-deleting trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.NotFound("trigger %s not found", id)
	}
	return nil
}

// HardDelete removes the trigger row within tx; the companion row cascades
// via its foreign key.
func (s *Store) HardDelete(ctx context.Context, tx pgx.Tx, tenantID, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM triggers WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("hard-deleting trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.NotFound("trigger %s not found", id)
	}
	return nil
}

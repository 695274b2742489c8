// Package trigger implements the polymorphic Trigger entity (email/webhook)
// and its tenant-scoped configuration service (C4.4.4): each trigger row has
// exactly one companion record, written in the same database transaction as
// the parent (§3).
package trigger

import (
	"time"

	"github.com/google/uuid"
)

// Type is the trigger's notification mechanism.
type Type string

const (
	TypeEmail   Type = "email"
	TypeWebhook Type = "webhook"
)

// CredentialSource records where a credential-bearing field's value should
// be resolved from; the value itself is never validated against the
// referenced store (§3).
type CredentialSource string

const (
	SourcePlain               CredentialSource = "Plain"
	SourceEnvironment         CredentialSource = "Environment"
	SourceHashicorpCloudVault CredentialSource = "HashicorpCloudVault"
)

// Credential is a source-tagged opaque string value.
type Credential struct {
	Source CredentialSource `json:"source"`
	Value  string           `json:"value"`
}

// HTTPMethod is the method a WebhookTrigger fires with.
type HTTPMethod string

const (
	MethodGet    HTTPMethod = "GET"
	MethodPost   HTTPMethod = "POST"
	MethodPut    HTTPMethod = "PUT"
	MethodPatch  HTTPMethod = "PATCH"
	MethodDelete HTTPMethod = "DELETE"
)

// EmailConfig is EmailTrigger's companion record (§3).
type EmailConfig struct {
	Host         string     `json:"host"`
	Port         int        `json:"port"`
	Username     Credential `json:"username"`
	Password     Credential `json:"password"`
	Sender       string     `json:"sender"`
	Recipients   []string   `json:"recipients"`
	MessageTitle string     `json:"message_title"`
	MessageBody  string     `json:"message_body"`
}

// WebhookConfig is WebhookTrigger's companion record (§3).
type WebhookConfig struct {
	URL          Credential        `json:"url"`
	Method       HTTPMethod        `json:"method"`
	Headers      map[string]string `json:"headers,omitempty"`
	Secret       *Credential       `json:"secret,omitempty"`
	MessageTitle string            `json:"message_title"`
	MessageBody  string            `json:"message_body"`
}

// Trigger is a tenant-owned notification action fired by a monitor match
// (§3). Exactly one of Email/Webhook is populated, matching TriggerType.
type Trigger struct {
	ID               uuid.UUID         `json:"id"`
	TenantID         uuid.UUID         `json:"tenant_id"`
	Name             string            `json:"name"`
	Slug             string            `json:"slug"`
	TriggerType      Type              `json:"trigger_type"`
	Description      string            `json:"description,omitempty"`
	Active           bool              `json:"active"`
	Validated        bool              `json:"validated"`
	ValidationErrors map[string]string `json:"validation_errors,omitempty"`
	LastValidatedAt  *time.Time        `json:"last_validated_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`

	Email   *EmailConfig   `json:"email,omitempty"`
	Webhook *WebhookConfig `json:"webhook,omitempty"`
}

// ValidationResult is the outcome of validating a trigger's companion
// record.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

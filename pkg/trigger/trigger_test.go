package trigger

import (
	"testing"

	"github.com/google/uuid"
)

func TestValidateTriggerRequiresName(t *testing.T) {
	tr := Trigger{TriggerType: TypeEmail, Email: &EmailConfig{Host: "smtp.example.com", Recipients: []string{"a@example.com"}}}
	result := validateTrigger(tr)
	if result.IsValid {
		t.Fatal("expected invalid result for trigger missing name/slug")
	}
}

func TestValidateEmailTriggerRequiresConfig(t *testing.T) {
	tr := Trigger{Name: "alerts", Slug: "alerts", TriggerType: TypeEmail}
	result := validateTrigger(tr)
	if result.IsValid {
		t.Fatal("expected invalid result for email trigger with no email configuration")
	}
}

func TestValidateEmailTriggerRejectsWebhookCompanion(t *testing.T) {
	tr := Trigger{
		Name: "alerts", Slug: "alerts", TriggerType: TypeEmail,
		Email:   &EmailConfig{Host: "smtp.example.com", Recipients: []string{"a@example.com"}},
		Webhook: &WebhookConfig{URL: Credential{Value: "https://example.com"}},
	}
	result := validateTrigger(tr)
	if result.IsValid {
		t.Fatal("expected invalid result: exactly one companion record must match trigger_type")
	}
}

func TestValidateWebhookTriggerRequiresURL(t *testing.T) {
	tr := Trigger{
		Name: "on-call", Slug: "on-call", TriggerType: TypeWebhook,
		Webhook: &WebhookConfig{Method: MethodPost},
	}
	result := validateTrigger(tr)
	if result.IsValid {
		t.Fatal("expected invalid result for webhook configuration with an empty url")
	}
}

func TestValidateFullyConfiguredEmailTriggerIsValid(t *testing.T) {
	tr := Trigger{
		Name: "alerts", Slug: "alerts", TriggerType: TypeEmail,
		Email: &EmailConfig{
			Host: "smtp.example.com", Port: 587,
			Sender: "noreply@example.com", Recipients: []string{"oncall@example.com"},
		},
	}
	result := validateTrigger(tr)
	if !result.IsValid {
		t.Fatalf("expected valid result, got errors=%v", result.Errors)
	}
}

func TestValidateUnknownTriggerType(t *testing.T) {
	tr := Trigger{Name: "x", Slug: "x", TriggerType: Type("sms")}
	result := validateTrigger(tr)
	if result.IsValid {
		t.Fatal("expected invalid result for unrecognized trigger_type")
	}
}

func TestEntityKeyNamespacing(t *testing.T) {
	tenantID := uuid.New()
	triggerID := uuid.New()
	if got := entityKey(tenantID, triggerID); got != "tenant:"+tenantID.String()+":trigger:"+triggerID.String() {
		t.Errorf("entityKey() = %q", got)
	}
}

func TestCreateTriggerRequestToTrigger(t *testing.T) {
	req := createTriggerRequest{
		Name: "on-call", Slug: "on-call", TriggerType: TypeWebhook,
		Webhook: &webhookConfigRequest{
			URL:    credentialRequest{Source: SourcePlain, Value: "https://hooks.example.com"},
			Method: MethodPost,
		},
	}
	tr := req.toTrigger()

	if tr.TriggerType != TypeWebhook || tr.Webhook == nil {
		t.Fatalf("toTrigger() mismatched trigger_type/webhook: %+v", tr)
	}
	if tr.Webhook.URL.Value != "https://hooks.example.com" {
		t.Errorf("webhook url not carried through: %+v", tr.Webhook.URL)
	}
	if tr.Email != nil {
		t.Error("webhook request should not populate Email")
	}
}

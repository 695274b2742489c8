package monitor

import (
	"testing"

	"github.com/google/uuid"
)

func TestIsRunnable(t *testing.T) {
	cases := []struct {
		name      string
		active    bool
		paused    bool
		validated bool
		want      bool
	}{
		{"fully runnable", true, false, true, true},
		{"paused", true, true, true, false},
		{"inactive", false, false, true, false},
		{"unvalidated", true, false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Monitor{Active: tc.active, Paused: tc.paused, Validated: tc.validated}
			if got := m.IsRunnable(); got != tc.want {
				t.Errorf("IsRunnable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateMonitorErrors(t *testing.T) {
	m := Monitor{}
	result := validateMonitor(m)

	if result.IsValid {
		t.Fatal("expected invalid result for empty monitor")
	}
	wantErrors := []string{"name must not be empty", "slug must not be empty", "at least one network must be configured"}
	if len(result.Errors) != len(wantErrors) {
		t.Fatalf("errors = %v, want %v", result.Errors, wantErrors)
	}
}

func TestValidateMonitorAddressWithoutAddressField(t *testing.T) {
	m := Monitor{
		Name:     "m",
		Slug:     "m",
		Networks: []string{"ethereum-mainnet"},
		Addresses: []Address{
			{Address: ""},
		},
	}
	result := validateMonitor(m)
	if result.IsValid {
		t.Fatal("expected invalid result for address missing the address field")
	}
}

func TestValidateMonitorWarningsWithNoMatchersOrTriggers(t *testing.T) {
	m := Monitor{
		Name:     "m",
		Slug:     "m",
		Networks: []string{"ethereum-mainnet"},
	}
	result := validateMonitor(m)
	if !result.IsValid {
		t.Fatalf("expected valid result, got errors=%v", result.Errors)
	}
	if len(result.Warnings) != 2 {
		t.Errorf("warnings = %v, want 2 (no matchers, no triggers)", result.Warnings)
	}
}

func TestValidateMonitorFullyConfiguredHasNoWarnings(t *testing.T) {
	m := Monitor{
		Name:        "m",
		Slug:        "m",
		Networks:    []string{"ethereum-mainnet"},
		MatchEvents: []byte(`[{"event":"Transfer"}]`),
		Triggers:    []string{"email-alerts"},
		Addresses:   []Address{{Address: "0xabc"}},
	}
	result := validateMonitor(m)
	if !result.IsValid || len(result.Warnings) != 0 {
		t.Errorf("got valid=%v warnings=%v, want valid with no warnings", result.IsValid, result.Warnings)
	}
}

func TestEntityKeyAndActiveSetKeyNamespacing(t *testing.T) {
	tenantID := uuid.New()
	monitorID := uuid.New()

	if got := entityKey(tenantID, monitorID); got != "tenant:"+tenantID.String()+":monitor:"+monitorID.String() {
		t.Errorf("entityKey() = %q", got)
	}
	if got := activeSetKey(tenantID); got != "tenant:"+tenantID.String()+":monitors:active" {
		t.Errorf("activeSetKey() = %q", got)
	}
}

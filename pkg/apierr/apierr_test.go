package apierr

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want int
	}{
		{"bad request", KindBadRequest, http.StatusBadRequest},
		{"forbidden", KindForbidden, http.StatusForbidden},
		{"not found", KindNotFound, http.StatusNotFound},
		{"duplicate", KindDuplicate, http.StatusConflict},
		{"quota exceeded", KindQuotaExceeded, http.StatusConflict},
		{"transient", KindTransient, http.StatusServiceUnavailable},
		{"internal", KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.kind.StatusCode(); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDuplicateCarriesField(t *testing.T) {
	err := Duplicate("slug", "slug %q already exists", "m1")
	if err.Field != "slug" {
		t.Errorf("expected field=slug, got %q", err.Field)
	}
	if err.Kind != KindDuplicate {
		t.Errorf("expected KindDuplicate, got %s", err.Kind)
	}
}

func TestWrapPreservesExistingKind(t *testing.T) {
	orig := NotFound("monitor %s not found", "abc")
	wrapped := Wrap(orig)
	if wrapped.Kind != KindNotFound {
		t.Errorf("expected Wrap to preserve KindNotFound, got %s", wrapped.Kind)
	}
}

func TestWrapClassifiesUnknownAsInternal(t *testing.T) {
	wrapped := Wrap(errors.New("boom"))
	if wrapped.Kind != KindInternal {
		t.Errorf("expected KindInternal, got %s", wrapped.Kind)
	}
	if wrapped.Message == "boom" {
		t.Errorf("internal error message must not leak the raw cause")
	}
}

func TestIsMatchesOnKindOnly(t *testing.T) {
	a := NotFound("monitor %s not found", "abc")
	b := NotFound("trigger %s not found", "xyz")
	if !errors.Is(a, b) {
		t.Errorf("expected two NotFound errors to match via errors.Is")
	}

	c := Duplicate("slug", "dup")
	if errors.Is(a, c) {
		t.Errorf("expected NotFound and Duplicate to not match")
	}
}

func TestTransientUnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transient(cause, "cache unreachable")
	if !errors.Is(err, cause) {
		t.Errorf("expected Transient to unwrap to its cause")
	}
}

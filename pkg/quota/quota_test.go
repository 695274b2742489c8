package quota

import (
	"errors"
	"testing"

	"github.com/blip0/control-plane/pkg/apierr"
)

func TestApplyDeltaWithinCap(t *testing.T) {
	next, err := applyDelta(3, 5, 1)
	if err != nil {
		t.Fatalf("applyDelta() error = %v", err)
	}
	if next != 4 {
		t.Errorf("next = %d, want 4", next)
	}
}

func TestApplyDeltaExceedsCap(t *testing.T) {
	_, err := applyDelta(5, 5, 1)
	if err == nil {
		t.Fatal("expected QuotaExceeded error")
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindQuotaExceeded {
		t.Errorf("error = %v, want KindQuotaExceeded", err)
	}
}

func TestApplyDeltaAtExactCap(t *testing.T) {
	next, err := applyDelta(4, 5, 1)
	if err != nil {
		t.Fatalf("applyDelta() error = %v", err)
	}
	if next != 5 {
		t.Errorf("next = %d, want 5", next)
	}
}

func TestApplyDeltaDecrementClampsAtZero(t *testing.T) {
	next, err := applyDelta(0, 5, -1)
	if err != nil {
		t.Fatalf("applyDelta() error = %v", err)
	}
	if next != 0 {
		t.Errorf("next = %d, want 0 (clamped)", next)
	}
}

func TestApplyDeltaNormalDecrement(t *testing.T) {
	next, err := applyDelta(3, 5, -1)
	if err != nil {
		t.Fatalf("applyDelta() error = %v", err)
	}
	if next != 2 {
		t.Errorf("next = %d, want 2", next)
	}
}

func TestColumnNamesCoverAllResources(t *testing.T) {
	for _, r := range []Resource{ResourceMonitors, ResourceNetworks, ResourceTriggers} {
		cols, ok := columnNames[r]
		if !ok {
			t.Fatalf("missing column mapping for resource %s", r)
		}
		if cols.max == "" || cols.current == "" {
			t.Errorf("resource %s has empty column name", r)
		}
	}
}

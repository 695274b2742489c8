package repo

import (
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
)

var monitorFields = []Field{
	{Param: "name", Column: "name", Kind: KindString},
	{Param: "slug", Column: "slug", Kind: KindExact},
	{Param: "active", Column: "active", Kind: KindBool},
	{Param: "network_slug", Column: "network_slug", Kind: KindString},
	{Param: "validated", Column: "validated", Kind: KindBool},
	{Param: "last_validated_at", Column: "last_validated_at", Kind: KindTime},
}

func TestParseFiltersBareFields(t *testing.T) {
	values := url.Values{"active": {"true"}, "name": {"swap"}}
	f, err := ParseFilters(values, monitorFields)
	if err != nil {
		t.Fatalf("ParseFilters() error = %v", err)
	}
	clause, args := f.Clause(1)
	if !strings.Contains(clause, "active = $") {
		t.Errorf("clause missing active condition: %s", clause)
	}
	if !strings.Contains(clause, "name ILIKE $") {
		t.Errorf("clause missing name ILIKE condition: %s", clause)
	}
	if len(args) != 2 {
		t.Errorf("len(args) = %d, want 2", len(args))
	}
}

func TestParseFiltersTemporalSuffixes(t *testing.T) {
	values := url.Values{"last_validated_at_after": {"2026-01-01T00:00:00Z"}}
	f, err := ParseFilters(values, monitorFields)
	if err != nil {
		t.Fatalf("ParseFilters() error = %v", err)
	}
	clause, args := f.Clause(1)
	if !strings.Contains(clause, "last_validated_at >= $1") {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 1 {
		t.Errorf("len(args) = %d, want 1", len(args))
	}
}

func TestParseFiltersHasPrefix(t *testing.T) {
	values := url.Values{"has_last_validated_at": {"true"}}
	f, err := ParseFilters(values, monitorFields)
	if err != nil {
		t.Fatalf("ParseFilters() error = %v", err)
	}
	clause, args := f.Clause(1)
	if clause != "last_validated_at IS NOT NULL" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 0 {
		t.Errorf("len(args) = %d, want 0", len(args))
	}
}

func TestParseFiltersInSuffix(t *testing.T) {
	values := url.Values{"slug_in": {"a,b,c"}}
	f, err := ParseFilters(values, monitorFields)
	if err != nil {
		t.Fatalf("ParseFilters() error = %v", err)
	}
	clause, args := f.Clause(1)
	if clause != "slug IN ($1,$2,$3)" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 3 {
		t.Errorf("len(args) = %d, want 3", len(args))
	}
}

func TestParseFiltersInvalidBool(t *testing.T) {
	values := url.Values{"active": {"maybe"}}
	if _, err := ParseFilters(values, monitorFields); err == nil {
		t.Error("expected error for invalid boolean")
	}
}

func TestParseFiltersUnknownParamIgnored(t *testing.T) {
	values := url.Values{"totally_unrelated": {"x"}}
	f, err := ParseFilters(values, monitorFields)
	if err != nil {
		t.Fatalf("ParseFilters() error = %v", err)
	}
	if !f.Empty() {
		t.Error("expected no conditions for an unrecognized query parameter")
	}
}

func TestParseSort(t *testing.T) {
	allowed := map[string]string{"name": "name", "created_at": "created_at"}

	s, err := ParseSort("", "", allowed)
	if err != nil || s != DefaultSort {
		t.Errorf("ParseSort empty = %v, %v, want default", s, err)
	}

	s, err = ParseSort("name", "asc", allowed)
	if err != nil {
		t.Fatalf("ParseSort() error = %v", err)
	}
	if s.SQL() != "name ASC" {
		t.Errorf("SQL() = %q", s.SQL())
	}

	if _, err := ParseSort("nonexistent", "asc", allowed); err == nil {
		t.Error("expected error for unknown sort field")
	}

	if _, err := ParseSort("name", "sideways", allowed); err == nil {
		t.Error("expected error for invalid sort order")
	}
}

func TestParsePage(t *testing.T) {
	p, err := ParsePage("", "")
	if err != nil || p.Number != 1 || p.Size != 25 {
		t.Errorf("defaults = %+v, %v", p, err)
	}

	p, err = ParsePage("3", "10")
	if err != nil {
		t.Fatalf("ParsePage() error = %v", err)
	}
	if p.Offset() != 20 {
		t.Errorf("Offset() = %d, want 20", p.Offset())
	}

	if _, err := ParsePage("0", ""); err == nil {
		t.Error("expected error for page=0")
	}
	if _, err := ParsePage("", "1000"); err == nil {
		t.Error("expected error for size over max")
	}
}

func TestPages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 25, 0},
		{1, 25, 1},
		{25, 25, 1},
		{26, 25, 2},
	}
	for _, tt := range tests {
		if got := Pages(tt.total, tt.size); got != tt.want {
			t.Errorf("Pages(%d, %d) = %d, want %d", tt.total, tt.size, got, tt.want)
		}
	}
}

func TestNewPageResult(t *testing.T) {
	items := []string{"a", "b"}
	p := Page{Number: 2, Size: 2}
	result := NewPageResult(items, p, 5)

	if result.Total != 5 || result.Page != 2 || result.Size != 2 || result.Pages != 3 {
		t.Errorf("result = %+v", result)
	}
}

func TestBuildBulkCreateStatements(t *testing.T) {
	rows := [][]any{
		{"a", 1},
		{"b", 2},
	}
	stmts := buildBulkCreateStatements("monitors", "slug, size", rows)
	if len(stmts) != 2 {
		t.Fatalf("len(stmts) = %d, want 2", len(stmts))
	}
	want := "INSERT INTO monitors (slug, size) VALUES ($1, $2)"
	if stmts[0].SQL != want {
		t.Errorf("stmts[0].SQL = %q, want %q", stmts[0].SQL, want)
	}
	if len(stmts[0].Args) != 2 || stmts[0].Args[0] != "a" {
		t.Errorf("stmts[0].Args = %v", stmts[0].Args)
	}
}

func TestBuildBulkCreateStatementsEmpty(t *testing.T) {
	if stmts := buildBulkCreateStatements("monitors", "slug", nil); stmts != nil {
		t.Errorf("expected nil statements for no rows, got %v", stmts)
	}
}

func TestBuildBulkSetFieldStatements(t *testing.T) {
	tenantID := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	stmts := buildBulkSetFieldStatements("monitors", "active", tenantID, ids, false)
	if len(stmts) != 2 {
		t.Fatalf("len(stmts) = %d, want 2", len(stmts))
	}
	want := "UPDATE monitors SET active = $1, updated_at = now() WHERE tenant_id = $2 AND id = $3"
	for i, st := range stmts {
		if st.SQL != want {
			t.Errorf("stmts[%d].SQL = %q, want %q", i, st.SQL, want)
		}
		if st.Args[0] != false || st.Args[1] != tenantID || st.Args[2] != ids[i] {
			t.Errorf("stmts[%d].Args = %v", i, st.Args)
		}
	}
}

func TestBuildBulkSetFieldStatementsEmpty(t *testing.T) {
	if stmts := buildBulkSetFieldStatements("monitors", "active", uuid.New(), nil, false); stmts != nil {
		t.Errorf("expected nil statements for no ids, got %v", stmts)
	}
}

func TestBuildBulkDeleteStatements(t *testing.T) {
	tenantID := uuid.New()
	ids := []uuid.UUID{uuid.New()}

	stmts := buildBulkDeleteStatements("triggers", tenantID, ids)
	if len(stmts) != 1 {
		t.Fatalf("len(stmts) = %d, want 1", len(stmts))
	}
	want := "DELETE FROM triggers WHERE tenant_id = $1 AND id = $2"
	if stmts[0].SQL != want {
		t.Errorf("stmts[0].SQL = %q, want %q", stmts[0].SQL, want)
	}
	if stmts[0].Args[0] != tenantID || stmts[0].Args[1] != ids[0] {
		t.Errorf("stmts[0].Args = %v", stmts[0].Args)
	}
}

func TestBuildBulkDeleteStatementsEmpty(t *testing.T) {
	if stmts := buildBulkDeleteStatements("triggers", uuid.New(), nil); stmts != nil {
		t.Errorf("expected nil statements for no ids, got %v", stmts)
	}
}

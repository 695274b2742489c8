// Package repo provides the generic repository vocabulary shared by every
// entity store (§4.2): filter parsing, sort validation, and pagination
// helpers built on top of raw pgx SQL — the same style the domain stores
// use for scanning rows by hand rather than through a generated query layer.
package repo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal surface every store needs: a single connection, a
// pooled connection, and a transaction all satisfy it, so stores work
// unmodified whether called inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// FieldKind describes how a filterable column is compared.
type FieldKind int

const (
	// KindString supports bare (case-insensitive substring) matching plus
	// field_in.
	KindString FieldKind = iota
	// KindExact supports only exact equality and field_in (slug, email, url).
	KindExact
	// KindUUID supports exact equality and field_in over uuid.UUID values.
	KindUUID
	// KindBool supports exact equality only.
	KindBool
	// KindNumber supports equality, field_gte, field_lte, and field_in.
	KindNumber
	// KindTime supports field_after / field_before; a bare value falls back
	// to equality.
	KindTime
	// KindNullable is compared by equality like KindExact. has_X (IS [NOT]
	// NULL) is accepted for a field of any kind.
	KindNullable
)

// Field declares one filterable entity column and the query-parameter name
// client requests use to address it.
type Field struct {
	Param  string // query parameter name, e.g. "network_slug"
	Column string // SQL column name, e.g. "network_slug"
	Kind   FieldKind
}

// Filters is a parsed, validated set of WHERE conditions built from request
// query parameters, per the filter grammar of §4.2.
type Filters struct {
	conds []condition
}

type condition struct {
	sql string
	arg any
}

// ParseFilters interprets r's query values against the allowed fields,
// applying the suffix grammar:
//
//	field_after / field_before  → temporal >= / <=
//	field_gte / field_lte       → numeric inequality
//	field_in                    → IN (...), comma-separated
//	has_X                       → X IS [NOT] NULL
//	bare field                  → exact match (KindExact/KindUUID/KindBool),
//	                              case-insensitive substring (KindString)
//
// Unknown query parameters are ignored (pagination/sort params are handled
// separately by the caller). Malformed values for a recognized field return
// an error naming the offending parameter.
func ParseFilters(values url.Values, fields []Field) (*Filters, error) {
	byParam := make(map[string]Field, len(fields))
	for _, f := range fields {
		byParam[f.Param] = f
	}

	f := &Filters{}
	for key, vals := range values {
		if len(vals) == 0 || vals[0] == "" {
			continue
		}
		raw := vals[0]

		switch {
		case strings.HasPrefix(key, "has_"):
			field, ok := byParam[strings.TrimPrefix(key, "has_")]
			if !ok {
				continue
			}
			want, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: must be a boolean", key)
			}
			op := "IS NOT NULL"
			if !want {
				op = "IS NULL"
			}
			f.conds = append(f.conds, condition{sql: fmt.Sprintf("%s %s", field.Column, op)})

		case strings.HasSuffix(key, "_after"):
			field, ok := byParam[strings.TrimSuffix(key, "_after")]
			if !ok || field.Kind != KindTime {
				continue
			}
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, fmt.Errorf("%s: must be an RFC3339 timestamp", key)
			}
			f.conds = append(f.conds, condition{sql: field.Column + " >= ?", arg: t})

		case strings.HasSuffix(key, "_before"):
			field, ok := byParam[strings.TrimSuffix(key, "_before")]
			if !ok || field.Kind != KindTime {
				continue
			}
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, fmt.Errorf("%s: must be an RFC3339 timestamp", key)
			}
			f.conds = append(f.conds, condition{sql: field.Column + " <= ?", arg: t})

		case strings.HasSuffix(key, "_gte"):
			field, ok := byParam[strings.TrimSuffix(key, "_gte")]
			if !ok || field.Kind != KindNumber {
				continue
			}
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: must be numeric", key)
			}
			f.conds = append(f.conds, condition{sql: field.Column + " >= ?", arg: n})

		case strings.HasSuffix(key, "_lte"):
			field, ok := byParam[strings.TrimSuffix(key, "_lte")]
			if !ok || field.Kind != KindNumber {
				continue
			}
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: must be numeric", key)
			}
			f.conds = append(f.conds, condition{sql: field.Column + " <= ?", arg: n})

		case strings.HasSuffix(key, "_in"):
			field, ok := byParam[strings.TrimSuffix(key, "_in")]
			if !ok {
				continue
			}
			parts := strings.Split(raw, ",")
			args, err := coerceMany(field.Kind, parts)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
			f.conds = append(f.conds, condition{sql: fmt.Sprintf("%s IN (%s)", field.Column, placeholders), arg: args})

		default:
			field, ok := byParam[key]
			if !ok {
				continue
			}
			switch field.Kind {
			case KindString:
				f.conds = append(f.conds, condition{sql: field.Column + " ILIKE ?", arg: "%" + raw + "%"})
			case KindUUID:
				id, err := uuid.Parse(raw)
				if err != nil {
					return nil, fmt.Errorf("%s: must be a UUID", key)
				}
				f.conds = append(f.conds, condition{sql: field.Column + " = ?", arg: id})
			case KindBool:
				b, err := strconv.ParseBool(raw)
				if err != nil {
					return nil, fmt.Errorf("%s: must be a boolean", key)
				}
				f.conds = append(f.conds, condition{sql: field.Column + " = ?", arg: b})
			case KindNumber:
				n, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					return nil, fmt.Errorf("%s: must be numeric", key)
				}
				f.conds = append(f.conds, condition{sql: field.Column + " = ?", arg: n})
			default: // KindExact, KindTime, KindNullable fall back to equality
				f.conds = append(f.conds, condition{sql: field.Column + " = ?", arg: raw})
			}
		}
	}

	return f, nil
}

func coerceMany(kind FieldKind, parts []string) ([]any, error) {
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		switch kind {
		case KindUUID:
			id, err := uuid.Parse(p)
			if err != nil {
				return nil, fmt.Errorf("%q is not a valid UUID", p)
			}
			out = append(out, id)
		default:
			out = append(out, p)
		}
	}
	return out, nil
}

// Clause renders the accumulated conditions as `AND`-joined SQL using
// PostgreSQL positional placeholders starting at startParam (1-based), and
// returns the flattened argument list in the same order.
func (f *Filters) Clause(startParam int) (string, []any) {
	if f == nil || len(f.conds) == 0 {
		return "", nil
	}

	var b strings.Builder
	var args []any
	n := startParam

	for i, c := range f.conds {
		if i > 0 {
			b.WriteString(" AND ")
		}
		sql := c.sql
		for strings.Contains(sql, "?") {
			sql = strings.Replace(sql, "?", fmt.Sprintf("$%d", n), 1)
			n++
		}
		b.WriteString(sql)

		switch v := c.arg.(type) {
		case nil:
			// conditions with no placeholder (has_X) carry no argument
		case []any:
			args = append(args, v...)
		default:
			args = append(args, v)
		}
	}

	return b.String(), args
}

// Empty reports whether no conditions were parsed.
func (f *Filters) Empty() bool {
	return f == nil || len(f.conds) == 0
}

// Sort is a validated `{field, order}` pair (§4.2). Unknown sort fields are
// rejected at construction time, never silently ignored.
type Sort struct {
	Column string
	Order  string // "asc" or "desc"
}

// DefaultSort is applied when the caller requests no sort.
var DefaultSort = Sort{Column: "created_at", Order: "desc"}

// ParseSort validates a requested sort field/order against allowedColumns
// (a map from API field name to SQL column name).
func ParseSort(field, order string, allowedColumns map[string]string) (Sort, error) {
	if field == "" {
		return DefaultSort, nil
	}

	col, ok := allowedColumns[field]
	if !ok {
		keys := make([]string, 0, len(allowedColumns))
		for k := range allowedColumns {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Sort{}, fmt.Errorf("unknown sort field %q (allowed: %s)", field, strings.Join(keys, ", "))
	}

	switch order {
	case "", "desc":
		order = "desc"
	case "asc":
	default:
		return Sort{}, fmt.Errorf("sort order must be 'asc' or 'desc', got %q", order)
	}

	return Sort{Column: col, Order: order}, nil
}

// SQL renders the ORDER BY clause.
func (s Sort) SQL() string {
	return fmt.Sprintf("%s %s", s.Column, strings.ToUpper(s.Order))
}

// Page describes validated offset pagination input (§4.2: page ≥ 1, size ∈ [1,100]).
type Page struct {
	Number int
	Size   int
}

const maxPageSize = 100

// ParsePage validates page/size query parameters.
func ParsePage(pageStr, sizeStr string) (Page, error) {
	p := Page{Number: 1, Size: 25}

	if pageStr != "" {
		n, err := strconv.Atoi(pageStr)
		if err != nil || n < 1 {
			return p, fmt.Errorf("page must be an integer >= 1")
		}
		p.Number = n
	}

	if sizeStr != "" {
		n, err := strconv.Atoi(sizeStr)
		if err != nil || n < 1 || n > maxPageSize {
			return p, fmt.Errorf("size must be an integer between 1 and %d", maxPageSize)
		}
		p.Size = n
	}

	return p, nil
}

// Offset returns the SQL OFFSET for this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// Pages computes the total page count for total rows.
func Pages(total, size int) int {
	if size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// PageResult is the uniform `{ items, total, page, size, pages }` envelope (§6).
type PageResult[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

// NewPageResult builds the envelope from a fetched page and total count.
func NewPageResult[T any](items []T, p Page, total int) PageResult[T] {
	return PageResult[T]{
		Items: items,
		Total: total,
		Page:  p.Number,
		Size:  p.Size,
		Pages: Pages(total, p.Size),
	}
}

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (SQLSTATE 23505), the signal every create path uses to turn a
// database error into apierr.Duplicate.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// IsNoRows reports whether err is pgx's "no rows in result set" sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// BatchStatement is one SQL statement with its positional args, queued as
// part of a bulk round trip.
type BatchStatement struct {
	SQL  string
	Args []any
}

// BulkExec sends every statement in stmts as a single pipelined round trip
// via pgx's batch protocol (§4.2: bulk_create/bulk_update/bulk_delete share
// this mechanism — only the SQL each entity store builds differs). Returns
// the first error encountered.
func BulkExec(ctx context.Context, db DBTX, stmts []BatchStatement) error {
	if len(stmts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, st := range stmts {
		batch.Queue(st.SQL, st.Args...)
	}

	results := db.SendBatch(ctx, batch)
	defer results.Close()
	for range stmts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("bulk exec: %w", err)
		}
	}
	return nil
}

// buildBulkCreateStatements renders one INSERT per row, kept separate from
// BulkCreate so the statement shape is unit-testable without a database.
func buildBulkCreateStatements(table, columns string, rows [][]any) []BatchStatement {
	if len(rows) == 0 {
		return nil
	}
	stmts := make([]BatchStatement, len(rows))
	for i, row := range rows {
		placeholders := make([]string, len(row))
		for j := range row {
			placeholders[j] = fmt.Sprintf("$%d", j+1)
		}
		stmts[i] = BatchStatement{
			SQL:  fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, table, columns, strings.Join(placeholders, ", ")),
			Args: row,
		}
	}
	return stmts
}

// BulkCreate inserts one row per entry in rows as a single batched round
// trip (§4.2 bulk_create). columns is the literal column list; each entry
// in rows supplies one VALUES tuple in the same order.
func BulkCreate(ctx context.Context, db DBTX, table, columns string, rows [][]any) error {
	stmts := buildBulkCreateStatements(table, columns, rows)
	if err := BulkExec(ctx, db, stmts); err != nil {
		return fmt.Errorf("bulk-inserting into %s: %w", table, err)
	}
	return nil
}

// buildBulkSetFieldStatements renders one UPDATE per id, kept separate from
// BulkSetField so the statement shape is unit-testable without a database.
func buildBulkSetFieldStatements(table, column string, tenantID uuid.UUID, ids []uuid.UUID, value any) []BatchStatement {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, updated_at = now() WHERE tenant_id = $2 AND id = $3`, table, column)
	stmts := make([]BatchStatement, len(ids))
	for i, id := range ids {
		stmts[i] = BatchStatement{SQL: query, Args: []any{value, tenantID, id}}
	}
	return stmts
}

// BulkSetField updates column to value for every id in ids belonging to
// table, tenant-scoped, as a single batched round trip (§4.2 bulk_update;
// SPEC_FULL.md §C — carried forward from original_source's
// `crud/base.py` bulk_update_field helper).
func BulkSetField(ctx context.Context, db DBTX, table, column string, tenantID uuid.UUID, ids []uuid.UUID, value any) error {
	stmts := buildBulkSetFieldStatements(table, column, tenantID, ids, value)
	if err := BulkExec(ctx, db, stmts); err != nil {
		return fmt.Errorf("bulk-setting %s.%s: %w", table, column, err)
	}
	return nil
}

// buildBulkDeleteStatements renders one DELETE per id, kept separate from
// BulkDelete so the statement shape is unit-testable without a database.
func buildBulkDeleteStatements(table string, tenantID uuid.UUID, ids []uuid.UUID) []BatchStatement {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1 AND id = $2`, table)
	stmts := make([]BatchStatement, len(ids))
	for i, id := range ids {
		stmts[i] = BatchStatement{SQL: query, Args: []any{tenantID, id}}
	}
	return stmts
}

// BulkDelete removes every row in table whose id is in ids, tenant-scoped,
// as a single batched round trip (§4.2 bulk_delete).
func BulkDelete(ctx context.Context, db DBTX, table string, tenantID uuid.UUID, ids []uuid.UUID) error {
	stmts := buildBulkDeleteStatements(table, tenantID, ids)
	if err := BulkExec(ctx, db, stmts); err != nil {
		return fmt.Errorf("bulk-deleting from %s: %w", table, err)
	}
	return nil
}

// Exists reports whether a row with the given id exists in table, scoped to
// tenantID when it is non-nil (platform-scoped entities like networks pass
// nil) (§4.2 exists(**fields)).
func Exists(ctx context.Context, db DBTX, table string, tenantID *uuid.UUID, id uuid.UUID) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1`, table)
	args := []any{id}
	if tenantID != nil {
		query += ` AND tenant_id = $2`
		args = append(args, *tenantID)
	}
	query += `)`

	var exists bool
	if err := db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking existence in %s: %w", table, err)
	}
	return exists, nil
}

// Count returns the number of rows in table matching filters, scoped to
// tenantID when it is non-nil (§4.2 count(filters, tenant_scope?)).
func Count(ctx context.Context, db DBTX, table string, tenantID *uuid.UUID, filters *Filters) (int, error) {
	where := ""
	var args []any
	startParam := 1
	if tenantID != nil {
		where = "WHERE tenant_id = $1"
		args = append(args, *tenantID)
		startParam = 2
	}
	if clause, fargs := filters.Clause(startParam); clause != "" {
		if where == "" {
			where = "WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, fargs...)
	}

	var total int
	query := fmt.Sprintf(`SELECT count(*) FROM %s %s`, table, where)
	if err := db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return total, nil
}

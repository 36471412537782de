// Package sqlsource evaluates query plans in a SQL database. Filters, ordering
// and paging are translated to parameterised SQL; only the columns of the
// root table are available, so paths through related records are rejected.
package sqlsource

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/nrjais/emquery/pkg/executor"
	"github.com/nrjais/emquery/pkg/member"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// ColumnTag names the column of a field; the default is the snake_case field
// name. `db:"-"` skips the field.
const ColumnTag = "db"

type column struct {
	name  string
	field string
	index []int
}

// Source reads records of T from one table.
type Source[T any] struct {
	q       Querier
	dialect Dialect
	table   string
	columns []column
}

var _ executor.Source[struct{}] = (*Source[struct{}])(nil)

func New[T any](q Querier, dialect Dialect, table string) (*Source[T], error) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("sql source type %s is not a struct", t)
	}
	s := &Source[T]{q: q, dialect: dialect, table: table}
	for _, f := range member.Fields(t) {
		if !member.IsScalar(f.Type) || throughPointer(t, f.Index) {
			continue
		}
		name := f.Tag.Get(ColumnTag)
		if name == "-" {
			continue
		}
		if name == "" {
			name = SnakeCase(f.Name)
		}
		s.columns = append(s.columns, column{name: name, field: f.Name, index: f.Index})
	}
	if len(s.columns) == 0 {
		return nil, fmt.Errorf("sql source type %s has no scalar fields", t)
	}
	return s, nil
}

// throughPointer reports promoted fields reached through an embedded pointer,
// which cannot be scanned into without allocating.
func throughPointer(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Pointer {
			return true
		}
		t = f.Type
	}
	return false
}

func (s *Source[T]) column(field string) (column, bool) {
	for _, c := range s.columns {
		if c.field == field {
			return c, true
		}
	}
	return column{}, false
}

func (s *Source[T]) Count(ctx context.Context, plan executor.Plan) (int, error) {
	tr := &translator[T]{src: s}
	where, err := tr.where(plan.Filter)
	if err != nil {
		return 0, err
	}
	stmt := "SELECT COUNT(*) FROM " + quoteIdent(s.table) + where
	slog.Debug("Counting rows", "dialect", s.dialect, "sql", stmt)

	rows, err := s.q.Query(ctx, stmt, tr.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", s.table, err)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to scan row count of %s: %w", s.table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating row count of %s: %w", s.table, err)
	}
	return n, nil
}

func (s *Source[T]) Fetch(ctx context.Context, plan executor.Plan) ([]T, error) {
	stmt, args, err := s.SelectSQL(plan)
	if err != nil {
		return nil, err
	}
	slog.Debug("Fetching rows", "dialect", s.dialect, "sql", stmt)

	rows, err := s.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var item T
		v := reflect.ValueOf(&item).Elem()
		dest := make([]any, len(s.columns))
		for i, c := range s.columns {
			dest[i] = v.FieldByIndex(c.index).Addr().Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", s.table, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", s.table, err)
	}
	return out, nil
}

// SelectSQL renders the statement Fetch runs for plan.
func (s *Source[T]) SelectSQL(plan executor.Plan) (string, []any, error) {
	tr := &translator[T]{src: s}
	where, err := tr.where(plan.Filter)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range s.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(c.name))
	}
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(s.table))
	b.WriteString(where)

	if len(plan.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range plan.OrderBy {
			c, err := tr.column(o.Path)
			if err != nil {
				return "", nil, err
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quoteIdent(c.name))
			if o.Descending {
				b.WriteString(" DESC NULLS LAST")
			} else {
				b.WriteString(" ASC NULLS FIRST")
			}
		}
	}

	switch {
	case plan.Take != nil:
		b.WriteString(" LIMIT " + tr.arg(*plan.Take))
	case plan.Skip > 0 && s.dialect == SQLite:
		b.WriteString(" LIMIT -1")
	}
	if plan.Skip > 0 {
		b.WriteString(" OFFSET " + tr.arg(plan.Skip))
	}
	return b.String(), tr.args, nil
}

// SnakeCase converts a Go field name: CreatedDate -> created_date, ID -> id.
func SnakeCase(name string) string {
	r := []rune(name)
	var b strings.Builder
	for i, c := range r {
		if unicode.IsUpper(c) {
			prevLower := i > 0 && (unicode.IsLower(r[i-1]) || unicode.IsDigit(r[i-1]))
			nextLower := i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) && unicode.IsUpper(r[i-1])
			if (prevLower || nextLower) && b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(c))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

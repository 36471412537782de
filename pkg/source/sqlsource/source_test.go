package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrjais/emquery/pkg/executor"
	"github.com/nrjais/emquery/pkg/filter"
	"github.com/nrjais/emquery/pkg/qerr"
	"github.com/nrjais/emquery/pkg/query"
	"github.com/nrjais/emquery/pkg/shape"
	"github.com/nrjais/emquery/pkg/typeconfig"
)

type owner struct {
	Name string
}

type row struct {
	Id      int `query:"key"`
	Name    string
	Score   *float64
	Active  bool
	Tag     string `db:"label"`
	Owner   *owner
	Skipped string `db:"-"`
}

var rowType = reflect.TypeFor[row]()

func ptr[T any](v T) *T {
	return &v
}

func rows() []row {
	return []row{
		{Id: 1, Name: "Alpha", Score: ptr(1.5), Active: true, Tag: "x"},
		{Id: 2, Name: "beta", Active: false, Tag: "y"},
		{Id: 3, Name: "Gamma", Score: ptr(2.5), Active: true},
		{Id: 4, Name: "delta", Score: ptr(2.0), Active: true, Tag: "x"},
		{Id: 5, Name: "Omega", Active: false, Tag: "z"},
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE rows (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		score REAL,
		active BOOLEAN NOT NULL,
		label TEXT NOT NULL
	)`)
	require.NoError(t, err)
	for _, r := range rows() {
		_, err := db.Exec("INSERT INTO rows (id, name, score, active, label) VALUES (?, ?, ?, ?, ?)",
			r.Id, r.Name, r.Score, r.Active, r.Tag)
		require.NoError(t, err)
	}
	return db
}

func plan(t *testing.T, filterText, orderBy string, skip int, take *int) executor.Plan {
	t.Helper()
	n, err := filter.Parse(rowType, filterText)
	require.NoError(t, err)
	orders, err := query.ParseOrderBy(rowType, orderBy, nil)
	require.NoError(t, err)
	return executor.Plan{Type: rowType, Filter: n, OrderBy: orders, Skip: skip, Take: take}
}

const selectAll = `SELECT "id", "name", "score", "active", "label" FROM "rows"`

func TestSelectSQL(t *testing.T) {
	testCases := []struct {
		name     string
		dialect  Dialect
		plan     func(t *testing.T) executor.Plan
		wantSQL  string
		wantArgs []any
	}{
		{"no filter", SQLite, func(t *testing.T) executor.Plan { return plan(t, "", "", 0, nil) },
			selectAll, nil},
		{"comparison", SQLite, func(t *testing.T) executor.Plan { return plan(t, "Name eq 'x'", "", 0, nil) },
			selectAll + ` WHERE "name" = ?`, []any{"x"}},
		{"tagged column", SQLite, func(t *testing.T) executor.Plan { return plan(t, "Tag ge 'x'", "", 0, nil) },
			selectAll + ` WHERE "label" >= ?`, []any{"x"}},
		{"not equal keeps nulls", Postgres, func(t *testing.T) executor.Plan { return plan(t, "Score ne 1.5 and Active", "", 0, nil) },
			selectAll + ` WHERE (("score" <> $1 OR "score" IS NULL) AND "active" = $2)`, []any{1.5, true}},
		{"is null", SQLite, func(t *testing.T) executor.Plan { return plan(t, "Score eq null or Score ne null", "", 0, nil) },
			selectAll + ` WHERE ("score" IS NULL OR "score" IS NOT NULL)`, nil},
		{"ordering against null", SQLite, func(t *testing.T) executor.Plan { return plan(t, "Score lt null", "", 0, nil) },
			selectAll + ` WHERE 1 = 0`, nil},
		{"not", SQLite, func(t *testing.T) executor.Plan { return plan(t, "not(Active)", "", 0, nil) },
			selectAll + ` WHERE NOT COALESCE(("active" = ?), FALSE)`, []any{true}},
		{"starts with escapes wildcards", SQLite, func(t *testing.T) executor.Plan { return plan(t, "startsWith(Name,'A_b%')", "", 0, nil) },
			selectAll + ` WHERE LOWER("name") LIKE ? ESCAPE '\'`, []any{`a\_b\%%`}},
		{"ends with", SQLite, func(t *testing.T) executor.Plan { return plan(t, "endsWith(Name,'Ga')", "", 0, nil) },
			selectAll + ` WHERE LOWER("name") LIKE ? ESCAPE '\'`, []any{`%ga`}},
		{"contains", Postgres, func(t *testing.T) executor.Plan { return plan(t, "contains(Name,'et')", "", 0, nil) },
			selectAll + ` WHERE LOWER("name") LIKE $1 ESCAPE '\'`, []any{`%et%`}},
		{"membership", Postgres, func(t *testing.T) executor.Plan { return plan(t, "Id in (1, 2)", "", 0, nil) },
			selectAll + ` WHERE "id" IN ($1, $2)`, []any{1, 2}},
		{"membership with null", SQLite, func(t *testing.T) executor.Plan { return plan(t, "Score in (1.5, null)", "", 0, nil) },
			selectAll + ` WHERE ("score" IN (?) OR "score" IS NULL)`, []any{1.5}},
		{"only null membership", SQLite, func(t *testing.T) executor.Plan { return plan(t, "Score in (null)", "", 0, nil) },
			selectAll + ` WHERE "score" IS NULL`, nil},
		{"order and page", Postgres, func(t *testing.T) executor.Plan { return plan(t, "Id gt 1", "Name desc,Id", 2, ptr(3)) },
			selectAll + ` WHERE "id" > $1 ORDER BY "name" DESC NULLS LAST, "id" ASC NULLS FIRST LIMIT $2 OFFSET $3`, []any{1, 3, 2}},
		{"sqlite offset without limit", SQLite, func(t *testing.T) executor.Plan { return plan(t, "", "Id", 2, nil) },
			selectAll + ` ORDER BY "id" ASC NULLS FIRST LIMIT -1 OFFSET ?`, []any{2}},
		{"postgres offset without limit", Postgres, func(t *testing.T) executor.Plan { return plan(t, "", "Id", 2, nil) },
			selectAll + ` ORDER BY "id" ASC NULLS FIRST OFFSET $1`, []any{2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src, err := New[row](nil, tc.dialect, "rows")
			require.NoError(t, err)

			stmt, args, err := src.SelectSQL(tc.plan(t))
			require.NoError(t, err)
			assert.Equal(t, tc.wantSQL, stmt)
			assert.Equal(t, tc.wantArgs, args)
		})
	}
}

func TestSelectSQL_RelatedPathsRejected(t *testing.T) {
	src, err := New[row](nil, SQLite, "rows")
	require.NoError(t, err)

	_, _, err = src.SelectSQL(plan(t, "Owner.Name eq 'x'", "", 0, nil))
	assert.ErrorIs(t, err, qerr.ErrPolicy)
	assert.EqualError(t, err, "Property Owner.Name cannot be queried on table rows")

	_, _, err = src.SelectSQL(plan(t, "", "Owner.Name", 0, nil))
	assert.ErrorIs(t, err, qerr.ErrPolicy)

	_, err = src.Count(context.Background(), plan(t, "not(Owner.Name eq 'x')", "", 0, nil))
	assert.ErrorIs(t, err, qerr.ErrPolicy)
}

func TestNew_Errors(t *testing.T) {
	_, err := New[int](nil, SQLite, "t")
	assert.EqualError(t, err, "sql source type int is not a struct")

	_, err = New[struct{ Owner *owner }](nil, SQLite, "t")
	assert.ErrorContains(t, err, "has no scalar fields")
}

func TestSnakeCase(t *testing.T) {
	testCases := map[string]string{
		"Id":                 "id",
		"ID":                 "id",
		"CreatedDate":        "created_date",
		"IsAuthorizedToSign": "is_authorized_to_sign",
		"HTTPServer":         "http_server",
		"ParentId":           "parent_id",
		"name":               "name",
	}
	for in, want := range testCases {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}

func TestDialect_String(t *testing.T) {
	assert.Equal(t, "sqlite", SQLite.String())
	assert.Equal(t, "postgres", Postgres.String())
}

// TestSource_MatchesInMemory runs the same queries through SQLite and the
// in-memory executor and expects identical envelopes.
func TestSource_MatchesInMemory(t *testing.T) {
	db := openTestDB(t)
	src, err := New[row](FromDB(db), SQLite, "rows")
	require.NoError(t, err)

	reg := typeconfig.NewRegistry()
	exec := executor.New()

	queries := []string{
		"orderBy=Id",
		"filter=Score gt 1&orderBy=Id",
		"filter=Score ne 2&orderBy=Id",
		"filter=not(Score gt 2)&orderBy=Id",
		"filter=contains(Name,'AL')&orderBy=Id",
		"filter=startsWith(Name,'g') or endsWith(Name,'TA')&orderBy=Name",
		"filter=Active&orderBy=Name desc&skip=1&take=2",
		"filter=Score in (2.5, null)&orderBy=Id",
		"filter=Tag eq 'x' or Id eq 2&orderBy=Score desc",
		"filter=Tag ne 'x'&orderBy=Score,Id",
		"select=Name,Score&filter=Id le 3&orderBy=Id",
		"skip=3",
		"filter=Active&count=true",
		"filter=Score lt null&count=true",
	}

	for _, raw := range queries {
		t.Run(raw, func(t *testing.T) {
			q, err := query.Parse(reg, rowType, raw)
			require.NoError(t, err)

			want, err := executor.Apply(exec, rows(), q)
			require.NoError(t, err)
			got, err := executor.ApplySource[row](context.Background(), exec, src, q)
			require.NoError(t, err)

			assert.Equal(t, want.Query, got.Query)
			assert.Equal(t, plain(want.Data), plain(got.Data))
		})
	}
}

func plain(data any) any {
	records, ok := data.([]any)
	if !ok {
		return data
	}
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = r.(*shape.Record).Map()
	}
	return out
}

type failingQuerier struct {
	err error
}

func (f *failingQuerier) Query(context.Context, string, ...any) (Rows, error) {
	return nil, f.err
}

func TestSource_QueryErrors(t *testing.T) {
	boom := errors.New("boom")
	src, err := New[row](&failingQuerier{err: boom}, Postgres, "rows")
	require.NoError(t, err)

	_, err = src.Fetch(context.Background(), plan(t, "", "", 0, nil))
	assert.ErrorIs(t, err, boom)
	assert.EqualError(t, err, "failed to query rows: boom")

	_, err = src.Count(context.Background(), plan(t, "", "", 0, nil))
	assert.ErrorIs(t, err, boom)
	assert.EqualError(t, err, "failed to count rows in rows: boom")
}

func TestSource_ClosedDB(t *testing.T) {
	db := openTestDB(t)
	src, err := New[row](FromDB(db), SQLite, "rows")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = src.Fetch(context.Background(), plan(t, "", "", 0, nil))
	assert.ErrorContains(t, err, "failed to query rows")
}

package executor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrjais/emquery/pkg/filter"
	"github.com/nrjais/emquery/pkg/qerr"
	"github.com/nrjais/emquery/pkg/query"
	"github.com/nrjais/emquery/pkg/shape"
	"github.com/nrjais/emquery/pkg/typeconfig"
)

type entity struct {
	Id   int `query:"key"`
	Name string
	Rank *int
	Kind string
}

type unkeyed struct {
	Name string
}

var entityType = reflect.TypeFor[entity]()

func ptr[T any](v T) *T {
	return &v
}

func entities() []entity {
	return []entity{
		{Id: 3, Name: "c", Kind: "a", Rank: ptr(2)},
		{Id: 1, Name: "a", Kind: "a"},
		{Id: 5, Name: "e", Kind: "b", Rank: ptr(1)},
		{Id: 2, Name: "b", Kind: "a", Rank: ptr(3)},
		{Id: 4, Name: "d", Kind: "b"},
	}
}

func parse(t *testing.T, reg *typeconfig.Registry, typ reflect.Type, raw string) *query.Query {
	t.Helper()
	q, err := query.Parse(reg, typ, raw)
	require.NoError(t, err)
	return q
}

func names(t *testing.T, env *query.Envelope) []string {
	t.Helper()
	rows, ok := env.Data.([]any)
	require.True(t, ok, "data is %T", env.Data)
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		v, _ := row.(*shape.Record).Get("name")
		out = append(out, v.(string))
	}
	return out
}

func TestApply(t *testing.T) {
	reg := typeconfig.NewRegistry()

	testCases := []struct {
		name      string
		raw       string
		wantNames []string
		wantQuery string
	}{
		{"filter and order", "filter=Kind eq 'a'&orderBy=Name desc", []string{"c", "b", "a"}, "filter=Kind eq 'a'&orderBy=Name desc"},
		{"paging injects the key order", "skip=1&take=2", []string{"b", "c"}, "orderBy=Id&skip=1&take=2"},
		{"skip past the end", "skip=10", []string{}, "orderBy=Id&skip=10"},
		{"missing values sort first", "orderBy=Rank", []string{"a", "d", "e", "c", "b"}, "orderBy=Rank"},
		{"missing values sort last descending", "orderBy=Rank desc", []string{"b", "c", "e", "a", "d"}, "orderBy=Rank desc"},
		{"secondary order", "orderBy=Kind,Name desc", []string{"c", "b", "a", "e", "d"}, "orderBy=Kind,Name desc"},
		{"unordered keeps source order", "filter=Kind eq 'b'", []string{"e", "d"}, "filter=Kind eq 'b'"},
		{"absent value is not equal", "filter=Rank ne 2&orderBy=Id", []string{"a", "b", "d", "e"}, "filter=Rank ne 2&orderBy=Id"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := Apply(New(), entities(), parse(t, reg, entityType, tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.wantNames, names(t, env))
			assert.Equal(t, tc.wantQuery, env.Query.String())
		})
	}
}

func TestApply_Projection(t *testing.T) {
	reg := typeconfig.NewRegistry()

	env, err := Apply(New(), entities(), parse(t, reg, entityType, "filter=Id le 3&orderBy=Id"))
	require.NoError(t, err)
	rows := env.Data.([]any)
	require.Len(t, rows, 3)
	assert.Equal(t, map[string]any{"id": 1, "name": "a", "rank": nil, "kind": "a"}, rows[0].(*shape.Record).Map())
	assert.Equal(t, map[string]any{"id": 3, "name": "c", "rank": 2, "kind": "a"}, rows[2].(*shape.Record).Map())

	env, err = Apply(New(), entities(), parse(t, reg, entityType, "select=Name&filter=Id eq 5"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "e"}, env.Data.([]any)[0].(*shape.Record).Map())
}

func TestApply_Count(t *testing.T) {
	reg := typeconfig.NewRegistry()
	q := parse(t, reg, entityType, "filter=Kind eq 'a'")
	q.Count = true
	q.Take = ptr(1)

	env, err := Apply(New(), entities(), q)
	require.NoError(t, err)
	assert.Equal(t, 3, env.Data)
	assert.Equal(t, "filter=Kind eq 'a'&count=true", env.Query.String())
}

func TestApply_Meta(t *testing.T) {
	reg := typeconfig.NewRegistry()
	env, err := Apply(New(), entities(), parse(t, reg, entityType, "select=Name,Rank&meta=true&take=1"))
	require.NoError(t, err)

	s, ok := env.Data.(*shape.Shape)
	require.True(t, ok)
	assert.Equal(t, []string{"name", "rank"}, s.Names())
	rank, _ := s.Field("rank")
	assert.Equal(t, shape.Integer, rank.Type)
	assert.Equal(t, "select=Name,Rank&meta=true", env.Query.String())
}

type clashing struct {
	Id  int `query:"key"`
	URL string
	Url string
}

func TestApply_MetaRejectsInvalidShape(t *testing.T) {
	items := []clashing{{Id: 1, URL: "a", Url: "b"}}
	_, err := Apply(New(), items, parse(t, typeconfig.NewRegistry(), reflect.TypeFor[clashing](), "meta=true"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid clashing shape")
}

func TestApply_MaxPageSize(t *testing.T) {
	reg := typeconfig.NewRegistry()
	require.NoError(t, typeconfig.Configure[entity](reg).AllowFilteringAndSorting("Id").MaxPageSize(2).Err())

	testCases := []struct {
		raw       string
		wantLen   int
		wantQuery string
	}{
		{"orderBy=Id&take=10", 2, "orderBy=Id&take=2"},
		{"orderBy=Id&take=1", 1, "orderBy=Id&take=1"},
		{"", 2, "orderBy=Id&take=2"},
		{"take=0", 0, "orderBy=Id&take=0"},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			env, err := Apply(New(), entities(), parse(t, reg, entityType, tc.raw))
			require.NoError(t, err)
			assert.Len(t, env.Data, tc.wantLen)
			assert.Equal(t, tc.wantQuery, env.Query.String())
		})
	}

	t.Run("echo runs the same page", func(t *testing.T) {
		for _, raw := range []string{"", "take=0", "orderBy=Id&take=10"} {
			first, err := Apply(New(), entities(), parse(t, reg, entityType, raw))
			require.NoError(t, err)
			again, err := Apply(New(), entities(), parse(t, reg, entityType, first.Query.String()))
			require.NoError(t, err)
			assert.Equal(t, names(t, first), names(t, again), raw)
			assert.Equal(t, first.Query, again.Query, raw)
		}
	})

	t.Run("registry default", func(t *testing.T) {
		reg := typeconfig.NewRegistry(typeconfig.WithDefaultMaxPageSize(3))
		env, err := Apply(New(), entities(), parse(t, reg, entityType, "orderBy=Id"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, names(t, env))
	})
}

func TestApply_PagingNeedsOrder(t *testing.T) {
	reg := typeconfig.NewRegistry()
	items := []unkeyed{{"x"}, {"y"}}

	_, err := Apply(New(), items, parse(t, reg, reflect.TypeFor[unkeyed](), "take=1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, qerr.ErrPolicy)
	assert.Equal(t, "You cannot use Skip or Take without OrderBy or OrderByDescending.", err.Error())
	var pe *qerr.PolicyError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, query.KeyOrderBy, pe.Field)

	for _, raw := range []string{"take=1&count=true", "skip=1&meta=true"} {
		_, err := Apply(New(), items, parse(t, reg, reflect.TypeFor[unkeyed](), raw))
		assert.ErrorIs(t, err, qerr.ErrPolicy, raw)
	}

	env, err := Apply(New(), items, parse(t, reg, reflect.TypeFor[unkeyed](), "orderBy=Name desc&take=1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, names(t, env))

	require.NoError(t, typeconfig.Configure[unkeyed](reg).DefaultOrderBy("Name").Err())
	env, err = Apply(New(), items, parse(t, reg, reflect.TypeFor[unkeyed](), "skip=1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, names(t, env))
	assert.Equal(t, "orderBy=Name&skip=1", env.Query.String())
}

func TestApply_DoesNotModifyQuery(t *testing.T) {
	reg := typeconfig.NewRegistry(typeconfig.WithDefaultMaxPageSize(1))
	q := parse(t, reg, entityType, "take=5")

	_, err := Apply(New(), entities(), q)
	require.NoError(t, err)
	assert.Empty(t, q.OrderBy)
	assert.Equal(t, 5, *q.Take)
}

func TestApply_LogsDefaultOrder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := Apply(New(WithLogger(logger)), entities(), parse(t, typeconfig.NewRegistry(), entityType, "take=1"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Applying default order by")
	assert.Contains(t, buf.String(), "order_by=Id")
}

type fakeSource struct {
	count func(ctx context.Context, plan Plan) (int, error)
	fetch func(ctx context.Context, plan Plan) ([]entity, error)
}

func (f *fakeSource) Count(ctx context.Context, plan Plan) (int, error) {
	return f.count(ctx, plan)
}

func (f *fakeSource) Fetch(ctx context.Context, plan Plan) ([]entity, error) {
	return f.fetch(ctx, plan)
}

func TestApplySource(t *testing.T) {
	reg := typeconfig.NewRegistry()
	boom := errors.New("boom")

	t.Run("plan", func(t *testing.T) {
		var got Plan
		src := &fakeSource{fetch: func(_ context.Context, plan Plan) ([]entity, error) {
			got = plan
			return []entity{{Id: 4, Name: "d"}}, nil
		}}

		env, err := ApplySource[entity](context.Background(), New(), src, parse(t, reg, entityType, "filter=Id gt 1&skip=2&take=3"))
		require.NoError(t, err)
		assert.Equal(t, []string{"d"}, names(t, env))

		assert.Equal(t, entityType, got.Type)
		assert.Equal(t, "Id gt 1", filter.Format(got.Filter))
		assert.Equal(t, "Id", query.FormatOrderBy(got.OrderBy))
		assert.Equal(t, 2, got.Skip)
		require.NotNil(t, got.Take)
		assert.Equal(t, 3, *got.Take)
	})

	t.Run("fetch error", func(t *testing.T) {
		src := &fakeSource{fetch: func(context.Context, Plan) ([]entity, error) { return nil, boom }}
		_, err := ApplySource[entity](context.Background(), New(), src, parse(t, reg, entityType, ""))
		assert.ErrorIs(t, err, boom)
		assert.EqualError(t, err, "failed to fetch entity records: boom")
	})

	t.Run("count error", func(t *testing.T) {
		src := &fakeSource{count: func(context.Context, Plan) (int, error) { return 0, boom }}
		_, err := ApplySource[entity](context.Background(), New(), src, parse(t, reg, entityType, "count=true"))
		assert.ErrorIs(t, err, boom)
		assert.EqualError(t, err, "failed to count entity records: boom")
	})

	t.Run("context is passed through", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		src := &fakeSource{fetch: func(ctx context.Context, _ Plan) ([]entity, error) { return nil, ctx.Err() }}
		_, err := ApplySource[entity](ctx, New(), src, parse(t, reg, entityType, ""))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

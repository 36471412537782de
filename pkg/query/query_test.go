package query

import (
	"encoding/json"
	"errors"
	"net/url"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrjais/emquery/pkg/filter"
	"github.com/nrjais/emquery/pkg/projection"
	"github.com/nrjais/emquery/pkg/qerr"
	"github.com/nrjais/emquery/pkg/typeconfig"
)

type base struct {
	Id int `query:"key"`
}

type customer struct {
	base
	Name   string
	Secret string
}

type contact struct {
	base
	Name               string
	Email              string
	CustomerId         int
	Customer           *customer
	IsAuthorizedToSign bool
}

var contactType = reflect.TypeFor[contact]()

func newRegistry(t *testing.T) *typeconfig.Registry {
	t.Helper()
	reg := typeconfig.NewRegistry()
	require.NoError(t, typeconfig.Configure[contact](reg).
		AllowFilteringAndSorting("Id", "Name", "CustomerId", "Customer", "IsAuthorizedToSign").
		Extension("Customer").
		Err())
	require.NoError(t, typeconfig.Configure[customer](reg).
		AllowFilteringAndSorting("Id", "Name").
		Exclude("Secret").
		Err())
	return reg
}

func TestParse_Canonical(t *testing.T) {
	reg := newRegistry(t)

	testCases := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", ""},
		{"reordered", "take=2&filter=Id le 5", "filter=Id le 5&take=2"},
		{"leading question mark", "?filter=Id in 1,2", "filter=Id in (1, 2)"},
		{"ampersand inside a literal", "select=name,customer.name&filter=name eq 'a&b'", "select=Name,Customer.Name&filter=Name eq 'a&b'"},
		{"zero skip is dropped", "orderBy=Name desc,Id&skip=0&take=10", "orderBy=Name desc,Id&take=10"},
		{"zero take is kept", "take=0&orderBy=Id", "orderBy=Id&take=0"},
		{"count drops ordering and paging", "count=true&take=5&orderBy=Id&filter=Id gt 1", "filter=Id gt 1&count=true"},
		{"meta keeps only the projection", "meta=true&filter=Id eq 1&extend=Customer", "extend=Customer&meta=true"},
		{"keys are case-insensitive", "ORDERBY=id asc", "orderBy=Id"},
		{"false flags are dropped", "count=false&meta=false", ""},
		{"blank paging values", "skip=&take= ", ""},
		{"nested filter path", "filter=customer.name eq 'Acme' or not(IsAuthorizedToSign)", "filter=Customer.Name eq 'Acme' or not(IsAuthorizedToSign)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := Parse(reg, contactType, tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, q.String())

			again, err := Parse(reg, contactType, q.String())
			require.NoError(t, err)
			assert.Equal(t, q.String(), again.String())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	reg := newRegistry(t)

	testCases := []struct {
		name      string
		raw       string
		wantErr   error
		wantField string
		wantMsg   string
	}{
		{"unknown key", "foo=1", qerr.ErrParse, "", "Unknown query parameter foo"},
		{"negative skip", "skip=-1", qerr.ErrParse, KeySkip, "Skip cannot be negative"},
		{"non-numeric take", "take=abc", qerr.ErrParse, KeyTake, "Could not parse take value: abc"},
		{"bad count flag", "count=maybe", qerr.ErrParse, KeyCount, "Could not parse count value: maybe"},
		{"filter syntax", "filter=Id eq", qerr.ErrParse, KeyFilter, ""},
		{"column not indexed", "filter=Email eq 'x'", qerr.ErrPolicy, KeyFilter, "Column contact.Email cannot be used for filtering and ordering."},
		{"excluded selection", "select=Customer.Secret", qerr.ErrPolicy, KeySelect, "Property Secret of type customer cannot be selected"},
		{"not an extension", "extend=Name", qerr.ErrPolicy, KeyExtend, "Property Name is not an extension on type contact"},
		{"excluded extension property", "select=Customer&extend=Customer(Secret)", qerr.ErrPolicy, KeyExtend, "Property Secret of type customer cannot be selected"},
		{"order by relation", "orderBy=Customer", qerr.ErrParse, KeyOrderBy, "Cannot order by Customer of type customer"},
		{"order by unindexed column", "orderBy=Email desc", qerr.ErrPolicy, KeyOrderBy, "Column contact.Email cannot be used for filtering and ordering."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(reg, contactType, tc.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			if tc.wantMsg != "" {
				assert.Equal(t, tc.wantMsg, err.Error())
			}

			var field string
			var pe *qerr.ParseError
			var po *qerr.PolicyError
			switch {
			case errors.As(err, &pe):
				field = pe.Field
			case errors.As(err, &po):
				field = po.Field
			}
			assert.Equal(t, tc.wantField, field)
		})
	}
}

func TestParse_FilterErrorCarriesText(t *testing.T) {
	_, err := Parse(newRegistry(t), contactType, "filter=Foo eq 1")
	var pe *qerr.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KeyFilter, pe.Field)
	assert.Equal(t, "Foo eq 1", pe.Query)
}

func TestParseValues(t *testing.T) {
	reg := newRegistry(t)

	q, err := ParseValues(reg, contactType, url.Values{
		"filter": {"Id gt 1"},
		"Take":   {"1", "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "filter=Id gt 1&take=2", q.String())

	_, err = ParseValues(reg, contactType, url.Values{"page": {"1"}})
	assert.ErrorIs(t, err, qerr.ErrParse)
}

func TestEncodeAndNormalized(t *testing.T) {
	reg := newRegistry(t)
	q, err := Parse(reg, contactType, "filter=Name eq 'a b'&take=2")
	require.NoError(t, err)

	assert.Equal(t, "filter=Name+eq+%27a+b%27&take=2", q.Encode())

	data, err := json.Marshal(q.Normalized())
	require.NoError(t, err)
	assert.JSONEq(t, `{"filter":"Name eq 'a b'","take":2}`, string(data))

	testCases := []struct {
		raw  string
		want string
	}{
		{"filter=Id gt 1&orderBy=Name&skip=1&take=2&count=true", `{"filter":"Id gt 1","count":true}`},
		{"select=Name&filter=Id gt 1&orderBy=Name&take=2&meta=true", `{"select":"Name","meta":true}`},
		{"orderBy=Id&take=0", `{"orderBy":"Id","take":0}`},
	}
	for _, tc := range testCases {
		q, err := Parse(reg, contactType, tc.raw)
		require.NoError(t, err)
		data, err := json.Marshal(q.Normalized())
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(data), tc.raw)
	}
}

func TestClone(t *testing.T) {
	reg := newRegistry(t)
	q, err := Parse(reg, contactType, "select=Name&extend=Customer(Name)&orderBy=Id&take=3")
	require.NoError(t, err)

	c := q.Clone()
	*c.Take = 9
	c.Select = append(c.Select, c.Select[0])
	c.Extend[0].Properties[0].Name = "Id"
	c.OrderBy[0].Descending = true

	assert.Equal(t, "select=Name&extend=Customer(Name)&orderBy=Id&take=3", q.String())
	assert.Same(t, q.Registry(), c.Registry())
}

func TestShape(t *testing.T) {
	reg := newRegistry(t)
	q, err := Parse(reg, contactType, "select=Name,Customer.Name")
	require.NoError(t, err)

	s, err := q.Shape()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "customer_name"}, s.Names())

	q, err = Parse(reg, contactType, "")
	require.NoError(t, err)
	s, err = q.Shape()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "email", "customerId", "isAuthorizedToSign"}, s.Names())
}

func TestParser_Cache(t *testing.T) {
	reg := newRegistry(t)

	for _, size := range []int{0, 8} {
		p, err := NewParser(reg, size)
		require.NoError(t, err)
		assert.Same(t, reg, p.Registry())

		first, err := p.Parse(contactType, "take=2")
		require.NoError(t, err)
		*first.Take = 5

		second, err := p.Parse(contactType, "take=2")
		require.NoError(t, err)
		assert.Equal(t, 2, *second.Take, "cache size %d", size)

		byValues, err := p.ParseValues(contactType, url.Values{"take": {"2"}})
		require.NoError(t, err)
		assert.Equal(t, "take=2", byValues.String())

		_, err = p.Parse(contactType, "take=x")
		assert.ErrorIs(t, err, qerr.ErrParse)
	}

	_, err := NewParser(reg, -1)
	require.NoError(t, err)
}

func TestBuilder(t *testing.T) {
	reg := newRegistry(t)

	testCases := []struct {
		name  string
		build func() (*Query, error)
		want  string
	}{
		{"where clauses are and-ed", func() (*Query, error) {
			return From[contact](reg).
				Where(filter.Field("Name").StartsWith("A")).
				Where(filter.Field("Id").Le(5)).
				OrderByDesc("Name").
				Skip(1).
				Take(10).
				Build()
		}, "filter=startsWith(Name,'A') and Id le 5&orderBy=Name desc&skip=1&take=10"},
		{"where text replaces the filter", func() (*Query, error) {
			return From[contact](reg).
				Where(filter.Field("Id").Eq(1)).
				WhereText("Id in (2, 3)").
				Build()
		}, "filter=Id in (2, 3)"},
		{"select and extend", func() (*Query, error) {
			return From[contact](reg).
				Select("Name", "Customer").
				Extend("Customer(Name)").
				Build()
		}, "select=Name,Customer&extend=Customer(Name)"},
		{"order by ascending", func() (*Query, error) {
			return From[contact](reg).OrderBy("CustomerId").OrderBy("Id").Build()
		}, "orderBy=CustomerId,Id"},
		{"count", func() (*Query, error) {
			return From[contact](reg).Where(filter.Field("IsAuthorizedToSign")).Count().Build()
		}, "filter=IsAuthorizedToSign&count=true"},
		{"meta", func() (*Query, error) {
			return From[contact](reg).Meta().Build()
		}, "meta=true"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := tc.build()
			require.NoError(t, err)
			assert.Equal(t, tc.want, q.String())
		})
	}
}

func TestBuilder_Errors(t *testing.T) {
	reg := newRegistry(t)

	testCases := []struct {
		name    string
		b       *Builder[contact]
		wantErr error
	}{
		{"unindexed filter column", From[contact](reg).Where(filter.Field("Email").Eq("x")).Take(1), qerr.ErrPolicy},
		{"unknown select path", From[contact](reg).Select("Nope"), qerr.ErrParse},
		{"not an extension", From[contact](reg).Extend("Name"), qerr.ErrPolicy},
		{"bad extend text", From[contact](reg).Extend("a()"), qerr.ErrParse},
		{"not an extension with a selection", From[contact](reg).Select("Name").Extend("Name"), qerr.ErrPolicy},
		{"negative take", From[contact](reg).Take(-1), qerr.ErrParse},
		{"mistyped constant", From[contact](reg).Where(filter.Field("Id").Eq("one")), qerr.ErrParse},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := tc.b.Build()
			assert.Nil(t, q)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	_, err := Parse(reg, contactType, "select=Name&extend=Name")
	var pe *qerr.PolicyError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KeyExtend, pe.Field)
}

type contactCard struct {
	Name         string
	CustomerName string `path:"Customer.Name"`
}

func TestProject(t *testing.T) {
	reg := newRegistry(t)
	q, err := From[contact](reg).Where(filter.Field("IsAuthorizedToSign")).Build()
	require.NoError(t, err)

	sel, err := projection.NewSelector[contactCard]()
	require.NoError(t, err)

	typed, err := Project(q, sel)
	require.NoError(t, err)
	assert.Equal(t, "select=Name,Customer.Name&filter=IsAuthorizedToSign", typed.Query.String())
	assert.Nil(t, q.Select)

	cards, err := typed.Results(&Envelope{Data: []any{
		map[string]any{"name": "Road Runner", "customer_name": "Acme Corporation"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []contactCard{{Name: "Road Runner", CustomerName: "Acme Corporation"}}, cards)

	_, err = typed.Results(&Envelope{Data: float64(3)})
	assert.EqualError(t, err, "envelope data is float64, not a record list")

	type secretCard struct {
		Secret string `path:"Customer.Secret"`
	}
	secret, err := projection.NewSelector[secretCard]()
	require.NoError(t, err)
	_, err = Project(q, secret)
	assert.ErrorIs(t, err, qerr.ErrPolicy)

	type missingCard struct{ Nope string }
	missing, err := projection.NewSelector[missingCard]()
	require.NoError(t, err)
	_, err = Project(q, missing)
	assert.ErrorIs(t, err, qerr.ErrParse)
}

// Package query models a query over one record type and converts it to and
// from the canonical query string.
package query

import (
	"reflect"
	"slices"
	"strings"

	"github.com/nrjais/emquery/pkg/filter"
	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/projection"
	"github.com/nrjais/emquery/pkg/qerr"
	"github.com/nrjais/emquery/pkg/shape"
	"github.com/nrjais/emquery/pkg/typeconfig"
)

const (
	KeySelect  = "select"
	KeyExtend  = "extend"
	KeyFilter  = "filter"
	KeyOrderBy = "orderBy"
	KeySkip    = "skip"
	KeyTake    = "take"
	KeyCount   = "count"
	KeyMeta    = "meta"
)

type Order struct {
	Path       member.Path
	Descending bool
}

// Query is a filter, projection, ordering and page over records of Type.
// A nil Select means the default projection.
type Query struct {
	Type    reflect.Type
	Filter  filter.Node
	Select  []member.Path
	Extend  []projection.Extend
	OrderBy []Order
	Skip    *int
	Take    *int
	Count   bool
	Meta    bool

	reg *typeconfig.Registry
}

func New(reg *typeconfig.Registry, t reflect.Type) *Query {
	return &Query{Type: member.Elem(t), reg: reg}
}

func NewFor[T any](reg *typeconfig.Registry) *Query {
	return New(reg, reflect.TypeFor[T]())
}

func (q *Query) Registry() *typeconfig.Registry {
	return q.reg
}

func (q *Query) Config() *typeconfig.Config {
	return q.reg.Get(q.Type)
}

// Clone copies q; predicate trees are immutable and shared.
func (q *Query) Clone() *Query {
	c := *q
	c.Select = slices.Clone(q.Select)
	c.Extend = projection.CloneExtend(q.Extend)
	c.OrderBy = slices.Clone(q.OrderBy)
	c.Skip = cloneInt(q.Skip)
	c.Take = cloneInt(q.Take)
	return &c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	n := *p
	return &n
}

func (q *Query) SetFilter(text string) error {
	n, err := filter.Parse(q.Type, text, filter.WithChecker(q.Config()))
	if err != nil {
		return qerr.WithField(err, KeyFilter, text)
	}
	q.Filter = n
	return nil
}

func (q *Query) FilterText() string {
	return filter.Format(q.Filter)
}

func (q *Query) SetSelect(text string) error {
	paths, err := projection.ParseSelect(q.Type, text)
	if err == nil && len(paths) > 0 {
		_, err = projection.Build(q.reg, q.Type, paths, q.Extend)
	}
	if err != nil {
		return qerr.WithField(err, KeySelect, text)
	}
	q.Select = paths
	return nil
}

func (q *Query) SelectText() string {
	return projection.FormatSelect(q.Select)
}

func (q *Query) SetExtend(text string) error {
	forest, err := projection.ParseExtend(text)
	if err == nil && len(forest) > 0 {
		_, err = projection.Build(q.reg, q.Type, q.Select, forest)
	}
	if err != nil {
		return qerr.WithField(err, KeyExtend, text)
	}
	q.Extend = forest
	return nil
}

func (q *Query) ExtendText() string {
	return projection.FormatExtend(q.Extend)
}

func (q *Query) SetOrderBy(text string) error {
	orders, err := ParseOrderBy(q.Type, text, q.Config())
	if err != nil {
		return qerr.WithField(err, KeyOrderBy, text)
	}
	q.OrderBy = orders
	return nil
}

func (q *Query) OrderByText() string {
	return FormatOrderBy(q.OrderBy)
}

func (q *Query) SetSkip(n int) error {
	if n < 0 {
		return &qerr.ParseError{Field: KeySkip, Message: "Skip cannot be negative"}
	}
	q.Skip = &n
	return nil
}

func (q *Query) SetTake(n int) error {
	if n < 0 {
		return &qerr.ParseError{Field: KeyTake, Message: "Take cannot be negative"}
	}
	q.Take = &n
	return nil
}

// Shape is the projection of the query's select and extend.
func (q *Query) Shape() (*shape.Shape, error) {
	return projection.Build(q.reg, q.Type, q.Select, q.Extend)
}

// ParseOrderBy reads "Path [asc|desc]" terms separated by commas. Every path
// must be a sortable scalar the checker accepts.
func ParseOrderBy(t reflect.Type, text string, checker filter.Checker) ([]Order, error) {
	var orders []Order
	for _, term := range strings.Split(text, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		desc := false
		lower := strings.ToLower(term)
		switch {
		case strings.HasSuffix(lower, " desc"):
			desc = true
			term = strings.TrimSpace(term[:len(term)-len(" desc")])
		case strings.HasSuffix(lower, " asc"):
			term = strings.TrimSpace(term[:len(term)-len(" asc")])
		}
		path, err := member.Resolve(t, term)
		if err != nil {
			return nil, err
		}
		if !member.IsScalar(path.Type()) {
			return nil, qerr.Parse(text, "Cannot order by %s of type %s", path, member.TypeName(path.Type()))
		}
		if checker != nil {
			if err := checker.CheckFilterable(path); err != nil {
				return nil, err
			}
		}
		orders = append(orders, Order{Path: path, Descending: desc})
	}
	return orders, nil
}

func FormatOrderBy(orders []Order) string {
	parts := make([]string, len(orders))
	for i, o := range orders {
		parts[i] = o.Path.String()
		if o.Descending {
			parts[i] += " desc"
		}
	}
	return strings.Join(parts, ",")
}

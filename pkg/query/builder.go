package query

import (
	"fmt"

	"github.com/nrjais/emquery/pkg/filter"
	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/projection"
	"github.com/nrjais/emquery/pkg/qerr"
	"github.com/nrjais/emquery/pkg/typeconfig"
)

// Builder assembles a query in Go code. The first failing step is kept and
// returned by Build.
//
//	q, err := query.From[Contact](reg).
//		Where(filter.Field("Name").StartsWith("A")).
//		OrderBy("Name").
//		Take(10).
//		Build()
type Builder[T any] struct {
	q   *Query
	err error
}

func From[T any](reg *typeconfig.Registry) *Builder[T] {
	return &Builder[T]{q: NewFor[T](reg)}
}

func (b *Builder[T]) do(fn func(q *Query) error) *Builder[T] {
	if b.err == nil {
		b.err = fn(b.q)
	}
	return b
}

// Where ands e onto the current filter.
func (b *Builder[T]) Where(e filter.Expr) *Builder[T] {
	return b.do(func(q *Query) error {
		n, err := filter.Bind(q.Type, e, filter.WithChecker(q.Config()))
		if err != nil {
			return qerr.WithField(err, KeyFilter, "")
		}
		if q.Filter != nil && n != nil {
			n = &filter.Logical{Op: filter.OpAnd, Left: q.Filter, Right: n}
		}
		if n != nil {
			q.Filter = n
		}
		return nil
	})
}

// WhereText replaces the filter with parsed text.
func (b *Builder[T]) WhereText(text string) *Builder[T] {
	return b.do(func(q *Query) error { return q.SetFilter(text) })
}

func (b *Builder[T]) Select(paths ...string) *Builder[T] {
	return b.do(func(q *Query) error {
		for _, p := range paths {
			resolved, err := member.Resolve(q.Type, p)
			if err != nil {
				return qerr.WithField(err, KeySelect, p)
			}
			q.Select = append(q.Select, resolved)
		}
		return nil
	})
}

func (b *Builder[T]) Extend(text string) *Builder[T] {
	return b.do(func(q *Query) error {
		forest, err := projection.ParseExtend(text)
		if err == nil {
			err = projection.CheckExtends(q.reg, q.Type, forest)
		}
		if err != nil {
			return qerr.WithField(err, KeyExtend, text)
		}
		q.Extend = append(q.Extend, forest...)
		return nil
	})
}

func (b *Builder[T]) OrderBy(path string) *Builder[T] {
	return b.order(path, false)
}

func (b *Builder[T]) OrderByDesc(path string) *Builder[T] {
	return b.order(path, true)
}

func (b *Builder[T]) order(path string, desc bool) *Builder[T] {
	return b.do(func(q *Query) error {
		orders, err := ParseOrderBy(q.Type, path, q.Config())
		if err != nil {
			return qerr.WithField(err, KeyOrderBy, path)
		}
		for _, o := range orders {
			o.Descending = desc
			q.OrderBy = append(q.OrderBy, o)
		}
		return nil
	})
}

func (b *Builder[T]) Skip(n int) *Builder[T] {
	return b.do(func(q *Query) error { return q.SetSkip(n) })
}

func (b *Builder[T]) Take(n int) *Builder[T] {
	return b.do(func(q *Query) error { return q.SetTake(n) })
}

func (b *Builder[T]) Count() *Builder[T] {
	return b.do(func(q *Query) error {
		q.Count = true
		return nil
	})
}

func (b *Builder[T]) Meta() *Builder[T] {
	return b.do(func(q *Query) error {
		q.Meta = true
		return nil
	})
}

// Build validates the projection and returns the query.
func (b *Builder[T]) Build() (*Query, error) {
	if b.err != nil {
		return nil, b.err
	}
	if _, err := b.q.Shape(); err != nil {
		return nil, qerr.WithField(err, KeySelect, b.q.SelectText())
	}
	return b.q.Clone(), nil
}

// Typed pairs a query with a selector that rebuilds R from its results.
type Typed[R any] struct {
	Query    *Query
	Selector *projection.Selector[R]
}

// Project replaces the selection of q with the paths of sel.
func Project[R any](q *Query, sel *projection.Selector[R]) (*Typed[R], error) {
	paths, err := sel.Bind(q.Type)
	if err != nil {
		return nil, qerr.WithField(err, KeySelect, "")
	}
	c := q.Clone()
	c.Select = paths
	if _, err := c.Shape(); err != nil {
		return nil, qerr.WithField(err, KeySelect, c.SelectText())
	}
	return &Typed[R]{Query: c, Selector: sel}, nil
}

// Results rebuilds R values from an envelope's data.
func (t *Typed[R]) Results(env *Envelope) ([]R, error) {
	data, ok := env.Data.([]any)
	if !ok {
		return nil, fmt.Errorf("envelope data is %T, not a record list", env.Data)
	}
	return t.Selector.ReconstructAll(data)
}

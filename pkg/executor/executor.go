// Package executor runs queries: filter, count, order, page and project.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/nrjais/emquery/pkg/filter"
	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/projection"
	"github.com/nrjais/emquery/pkg/qerr"
	"github.com/nrjais/emquery/pkg/query"
)

// Plan is the validated part of a query a Source has to evaluate. Take is
// already clamped to the type's page size; nil means unlimited.
type Plan struct {
	Type    reflect.Type
	Filter  filter.Node
	OrderBy []query.Order
	Skip    int
	Take    *int
}

// Source produces the records of one type. Count and Fetch must apply the
// plan's filter; Fetch also applies ordering and paging.
type Source[T any] interface {
	Count(ctx context.Context, plan Plan) (int, error)
	Fetch(ctx context.Context, plan Plan) ([]T, error)
}

type Executor struct {
	logger *slog.Logger
}

type Option func(*Executor)

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

func New(opts ...Option) *Executor {
	e := &Executor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs q over an in-memory slice.
func Apply[T any](e *Executor, items []T, q *query.Query) (*query.Envelope, error) {
	return ApplySource[T](context.Background(), e, Slice[T](items), q)
}

// ApplySource runs q against src. The returned envelope echoes the query as
// executed, including an injected default order and the effective take.
func ApplySource[T any](ctx context.Context, e *Executor, src Source[T], q *query.Query) (*query.Envelope, error) {
	c, err := e.prepare(q)
	if err != nil {
		return nil, err
	}

	s, err := c.Shape()
	if err != nil {
		return nil, err
	}
	if c.Meta {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s shape: %w", member.TypeName(c.Type), err)
		}
		return &query.Envelope{Query: c.Normalized(), Data: s}, nil
	}

	plan := Plan{Type: c.Type, Filter: c.Filter, OrderBy: c.OrderBy, Take: c.Take}
	if c.Skip != nil {
		plan.Skip = *c.Skip
	}

	if c.Count {
		n, err := src.Count(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s records: %w", member.TypeName(c.Type), err)
		}
		return &query.Envelope{Query: c.Normalized(), Data: n}, nil
	}

	items, err := src.Fetch(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s records: %w", member.TypeName(c.Type), err)
	}
	data := projection.ProjectAll(s, reflect.ValueOf(items))
	return &query.Envelope{Query: c.Normalized(), Data: data}, nil
}

// prepare clones q, orders paged queries and clamps take. Count and meta
// queries are checked for ordering like any other but never clamped.
func (e *Executor) prepare(q *query.Query) (*query.Query, error) {
	c := q.Clone()
	cfg := c.Config()

	if (c.Skip != nil || c.Take != nil) && len(c.OrderBy) == 0 {
		def := cfg.DefaultOrderBy()
		if def == "" {
			return nil, &qerr.PolicyError{
				Field:   query.KeyOrderBy,
				Message: "You cannot use Skip or Take without OrderBy or OrderByDescending.",
			}
		}
		if err := e.orderBy(c, def); err != nil {
			return nil, err
		}
	}
	if c.Count || c.Meta {
		return c, nil
	}

	c.Take = cfg.PageSize(c.Take)
	if c.Take != nil && len(c.OrderBy) == 0 {
		// The page size alone limits the result; order it when the type allows.
		if def := cfg.DefaultOrderBy(); def != "" {
			if err := e.orderBy(c, def); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (e *Executor) orderBy(c *query.Query, def string) error {
	orders, err := query.ParseOrderBy(c.Type, def, nil)
	if err != nil {
		return fmt.Errorf("failed to apply default order by %q: %w", def, err)
	}
	e.logger.Debug("Applying default order by", "type", member.TypeName(c.Type), "order_by", def)
	c.OrderBy = orders
	return nil
}

package executor

import (
	"context"
	"reflect"
	"slices"

	"github.com/nrjais/emquery/pkg/filter"
	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/query"
)

// Slice is an in-memory Source.
type Slice[T any] []T

func (s Slice[T]) Count(_ context.Context, plan Plan) (int, error) {
	return len(s.match(plan.Filter)), nil
}

func (s Slice[T]) Fetch(_ context.Context, plan Plan) ([]T, error) {
	matched := s.match(plan.Filter)
	if len(plan.OrderBy) > 0 {
		cmp := compareBy(plan.OrderBy)
		slices.SortStableFunc(matched, func(a, b T) int {
			return cmp(reflect.ValueOf(a), reflect.ValueOf(b))
		})
	}
	return page(matched, plan.Skip, plan.Take), nil
}

func (s Slice[T]) match(n filter.Node) []T {
	pred := filter.Compile(n)
	out := make([]T, 0, len(s))
	for _, item := range s {
		if pred(reflect.ValueOf(item)) {
			out = append(out, item)
		}
	}
	return out
}

// compareBy orders by each key in turn. Missing values sort first.
func compareBy(orders []query.Order) func(a, b reflect.Value) int {
	return func(a, b reflect.Value) int {
		for _, o := range orders {
			av, aok := o.Path.Get(a)
			bv, bok := o.Path.Get(b)
			var r int
			switch {
			case !aok && !bok:
			case !aok:
				r = -1
			case !bok:
				r = 1
			default:
				r = member.Compare(av, bv)
			}
			if o.Descending {
				r = -r
			}
			if r != 0 {
				return r
			}
		}
		return 0
	}
}

func page[T any](items []T, skip int, take *int) []T {
	if skip >= len(items) {
		return items[:0]
	}
	items = items[skip:]
	if take != nil && *take < len(items) {
		items = items[:*take]
	}
	return items
}

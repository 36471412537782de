// Package mongosource evaluates query plans against a MongoDB collection.
// Paths through embedded documents map to dotted field names, so nested
// filters and orderings are pushed down as well.
package mongosource

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nrjais/emquery/pkg/executor"
	"github.com/nrjais/emquery/pkg/filter"
	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/qerr"
)

// Collection is the part of *mongo.Collection the source uses.
type Collection interface {
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

type Source[T any] struct {
	coll Collection
}

var _ executor.Source[struct{}] = (*Source[struct{}])(nil)

func New[T any](coll Collection) *Source[T] {
	return &Source[T]{coll: coll}
}

func (s *Source[T]) Count(ctx context.Context, plan executor.Plan) (int, error) {
	f, err := Filter(plan.Filter)
	if err != nil {
		return 0, err
	}
	n, err := s.coll.CountDocuments(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(n), nil
}

func (s *Source[T]) Fetch(ctx context.Context, plan executor.Plan) ([]T, error) {
	f, err := Filter(plan.Filter)
	if err != nil {
		return nil, err
	}
	opts, err := FindOptions(plan)
	if err != nil {
		return nil, err
	}
	slog.Debug("Finding documents", "filter", f, "sort", opts.Sort)

	cursor, err := s.coll.Find(ctx, f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}
	defer cursor.Close(ctx)

	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return out, nil
}

// FindOptions renders ordering and paging.
func FindOptions(plan executor.Plan) (*options.FindOptions, error) {
	opts := options.Find()
	if len(plan.OrderBy) > 0 {
		sort := bson.D{}
		for _, o := range plan.OrderBy {
			key, err := FieldName(o.Path)
			if err != nil {
				return nil, err
			}
			dir := 1
			if o.Descending {
				dir = -1
			}
			sort = append(sort, bson.E{Key: key, Value: dir})
		}
		opts.SetSort(sort)
	}
	if plan.Skip > 0 {
		opts.SetSkip(int64(plan.Skip))
	}
	if plan.Take != nil {
		opts.SetLimit(int64(*plan.Take))
	}
	return opts, nil
}

// Filter renders a predicate as a query document; nil matches everything.
func Filter(n filter.Node) (bson.D, error) {
	if n == nil {
		return bson.D{}, nil
	}
	return render(n)
}

var mongoOps = map[filter.Op]string{
	filter.Eq: "$eq",
	filter.Ne: "$ne",
	filter.Lt: "$lt",
	filter.Le: "$lte",
	filter.Gt: "$gt",
	filter.Ge: "$gte",
}

func render(n filter.Node) (bson.D, error) {
	switch v := n.(type) {
	case *filter.Comparison:
		key, err := FieldName(v.Path)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: key, Value: bson.D{{Key: mongoOps[v.Op], Value: v.Value.Value}}}}, nil
	case *filter.Logical:
		left, err := render(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := render(v.Right)
		if err != nil {
			return nil, err
		}
		op := "$and"
		if v.Op == filter.OpOr {
			op = "$or"
		}
		return bson.D{{Key: op, Value: bson.A{left, right}}}, nil
	case *filter.Negation:
		inner, err := render(v.Operand)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$nor", Value: bson.A{inner}}}, nil
	case *filter.StringFunc:
		key, err := FieldName(v.Path)
		if err != nil {
			return nil, err
		}
		pattern := regexp.QuoteMeta(v.Value.Value.(string))
		switch v.Func {
		case filter.StartsWith:
			pattern = "^" + pattern
		case filter.EndsWith:
			pattern = pattern + "$"
		}
		return bson.D{{Key: key, Value: bson.D{
			{Key: "$regex", Value: pattern},
			{Key: "$options", Value: "i"},
		}}}, nil
	case *filter.Membership:
		key, err := FieldName(v.Path)
		if err != nil {
			return nil, err
		}
		values := make(bson.A, len(v.Values))
		for i, c := range v.Values {
			values[i] = c.Value
		}
		return bson.D{{Key: key, Value: bson.D{{Key: "$in", Value: values}}}}, nil
	case *filter.Member:
		key, err := FieldName(v.Path)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: key, Value: true}}, nil
	}
	return nil, qerr.Policy("", "Unsupported predicate %T", n)
}

// FieldName maps a path to the dotted document field the bson codec uses:
// the bson tag name, or the lower-cased Go field name. Paths through
// unexported fields, including unexported embedded structs, are never decoded
// and cannot be queried.
func FieldName(p member.Path) (string, error) {
	parts := make([]string, len(p.Segments))
	for i, seg := range p.Segments {
		name, ok := bsonName(seg)
		if !ok {
			return "", qerr.Policy(p.String(), "Property %s is not stored in documents of type %s", p, member.TypeName(p.Root))
		}
		parts[i] = name
	}
	return strings.Join(parts, "."), nil
}

// bsonName follows the codec's rules: embedded structs are subdocuments
// unless tagged inline.
func bsonName(seg member.Segment) (string, bool) {
	t := member.Elem(seg.Owner)
	var parts []string
	for i, idx := range seg.Index {
		f := t.Field(idx)
		if !f.IsExported() {
			return "", false
		}
		t = member.Elem(f.Type)
		name, opts, _ := strings.Cut(f.Tag.Get("bson"), ",")
		if i < len(seg.Index)-1 && f.Anonymous && strings.Contains(opts, "inline") {
			continue
		}
		if name == "" || name == "-" {
			name = strings.ToLower(f.Name)
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, "."), true
}

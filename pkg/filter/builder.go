package filter

import (
	"reflect"

	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/qerr"
)

// Expr is an unbound predicate built in Go code. Bind resolves its field
// names against a record type.
//
//	filter.And(filter.Field("Id").Le(5), filter.Field("Description").StartsWith("Ent"))
type Expr interface {
	bind(root reflect.Type) (Node, error)
}

// FieldRef names a property path; used on its own it is a boolean predicate.
type FieldRef string

func Field(path string) FieldRef {
	return FieldRef(path)
}

func (f FieldRef) Eq(v any) Expr { return comparisonExpr{Eq, f, v} }
func (f FieldRef) Ne(v any) Expr { return comparisonExpr{Ne, f, v} }
func (f FieldRef) Lt(v any) Expr { return comparisonExpr{Lt, f, v} }
func (f FieldRef) Le(v any) Expr { return comparisonExpr{Le, f, v} }
func (f FieldRef) Gt(v any) Expr { return comparisonExpr{Gt, f, v} }
func (f FieldRef) Ge(v any) Expr { return comparisonExpr{Ge, f, v} }

func (f FieldRef) In(values ...any) Expr { return membershipExpr{f, values} }

func (f FieldRef) Contains(s string) Expr   { return funcExpr{Contains, f, s} }
func (f FieldRef) StartsWith(s string) Expr { return funcExpr{StartsWith, f, s} }
func (f FieldRef) EndsWith(s string) Expr   { return funcExpr{EndsWith, f, s} }

func (f FieldRef) bind(root reflect.Type) (Node, error) {
	path, err := member.Resolve(root, string(f))
	if err != nil {
		return nil, err
	}
	if path.Kind() != member.Bool {
		return nil, qerr.Parse(string(f), "Property %s is not a boolean", path)
	}
	return &Member{Path: path}, nil
}

func And(a, b Expr, more ...Expr) Expr {
	return logicalExpr{OpAnd, append([]Expr{a, b}, more...)}
}

func Or(a, b Expr, more ...Expr) Expr {
	return logicalExpr{OpOr, append([]Expr{a, b}, more...)}
}

func Not(e Expr) Expr {
	return notExpr{e}
}

// Bind resolves e against t, applying the same typing and checks as Parse.
func Bind(t reflect.Type, e Expr, opts ...Option) (Node, error) {
	if e == nil {
		return nil, nil
	}
	n, err := e.bind(member.Elem(t))
	if err != nil {
		return nil, err
	}
	if o := newOptions(opts); o.checker != nil {
		if err := checkPaths(n, o.checker); err != nil {
			return nil, err
		}
	}
	return n, nil
}

type comparisonExpr struct {
	op    Op
	field FieldRef
	value any
}

func (c comparisonExpr) bind(root reflect.Type) (Node, error) {
	path, err := member.Resolve(root, string(c.field))
	if err != nil {
		return nil, err
	}
	value, err := coerceValue(path, c.value)
	if err != nil {
		return nil, err
	}
	if c.op.Ordering() && path.Kind() == member.Bool {
		return nil, qerr.Parse(path.String(), "Operator %s cannot be applied to boolean property %s", c.op, path)
	}
	return &Comparison{Op: c.op, Path: path, Value: value}, nil
}

type membershipExpr struct {
	field  FieldRef
	values []any
}

func (m membershipExpr) bind(root reflect.Type) (Node, error) {
	path, err := member.Resolve(root, string(m.field))
	if err != nil {
		return nil, err
	}
	if len(m.values) == 0 {
		return nil, qerr.Parse(path.String(), "Expected at least one value for %s in", path)
	}
	n := &Membership{Path: path}
	for _, v := range m.values {
		c, err := coerceValue(path, v)
		if err != nil {
			return nil, err
		}
		n.Values = append(n.Values, c)
	}
	return n, nil
}

type funcExpr struct {
	fn    Func
	field FieldRef
	value string
}

func (f funcExpr) bind(root reflect.Type) (Node, error) {
	path, err := member.Resolve(root, string(f.field))
	if err != nil {
		return nil, err
	}
	if path.Kind() != member.String {
		return nil, qerr.Parse(path.String(), "Function '%s' requires a string property, %s is %s", f.fn, path, member.TypeName(path.Type()))
	}
	value, err := coerceValue(path, f.value)
	if err != nil {
		return nil, err
	}
	return &StringFunc{Func: f.fn, Path: path, Value: value}, nil
}

type logicalExpr struct {
	op       LogicalOp
	operands []Expr
}

func (l logicalExpr) bind(root reflect.Type) (Node, error) {
	var out Node
	for _, e := range l.operands {
		n, err := e.bind(root)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = n
			continue
		}
		out = &Logical{Op: l.op, Left: out, Right: n}
	}
	return out, nil
}

type notExpr struct {
	operand Expr
}

func (n notExpr) bind(root reflect.Type) (Node, error) {
	inner, err := n.operand.bind(root)
	if err != nil {
		return nil, err
	}
	return &Negation{Operand: inner}, nil
}

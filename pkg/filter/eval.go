package filter

import (
	"reflect"
	"strings"

	"github.com/nrjais/emquery/pkg/member"
)

// Predicate reports whether a record matches.
type Predicate func(v reflect.Value) bool

// Compile turns n into a Predicate. A nil Node matches everything.
//
// A value missing because of a nil pointer on the path equals null, differs
// from every non-null constant, and fails every ordering comparison.
func Compile(n Node) Predicate {
	switch v := n.(type) {
	case nil:
		return func(reflect.Value) bool { return true }
	case *Comparison:
		return compileComparison(v)
	case *Logical:
		left, right := Compile(v.Left), Compile(v.Right)
		if v.Op == OpAnd {
			return func(r reflect.Value) bool { return left(r) && right(r) }
		}
		return func(r reflect.Value) bool { return left(r) || right(r) }
	case *Negation:
		inner := Compile(v.Operand)
		return func(r reflect.Value) bool { return !inner(r) }
	case *StringFunc:
		return compileStringFunc(v)
	case *Membership:
		values := make([]reflect.Value, 0, len(v.Values))
		hasNull := false
		for _, c := range v.Values {
			if c.IsNull() {
				hasNull = true
				continue
			}
			values = append(values, reflect.ValueOf(c.Value))
		}
		path := v.Path
		return func(r reflect.Value) bool {
			leaf, ok := path.Get(r)
			if !ok {
				return hasNull
			}
			for _, want := range values {
				if member.Compare(leaf, want) == 0 {
					return true
				}
			}
			return false
		}
	case *Member:
		path := v.Path
		return func(r reflect.Value) bool {
			leaf, ok := path.Get(r)
			return ok && leaf.Bool()
		}
	}
	return func(reflect.Value) bool { return false }
}

func compileComparison(c *Comparison) Predicate {
	path, op := c.Path, c.Op
	if c.Value.IsNull() {
		return func(r reflect.Value) bool {
			_, ok := path.Get(r)
			switch op {
			case Eq:
				return !ok
			case Ne:
				return ok
			}
			return false
		}
	}
	want := reflect.ValueOf(c.Value.Value)
	return func(r reflect.Value) bool {
		leaf, ok := path.Get(r)
		if !ok {
			return op == Ne
		}
		res := member.Compare(leaf, want)
		switch op {
		case Eq:
			return res == 0
		case Ne:
			return res != 0
		case Lt:
			return res < 0
		case Le:
			return res <= 0
		case Gt:
			return res > 0
		case Ge:
			return res >= 0
		}
		return false
	}
}

func compileStringFunc(f *StringFunc) Predicate {
	path := f.Path
	needle := strings.ToLower(reflect.ValueOf(f.Value.Value).String())
	var test func(s string) bool
	switch f.Func {
	case StartsWith:
		test = func(s string) bool { return strings.HasPrefix(s, needle) }
	case EndsWith:
		test = func(s string) bool { return strings.HasSuffix(s, needle) }
	default:
		test = func(s string) bool { return strings.Contains(s, needle) }
	}
	return func(r reflect.Value) bool {
		leaf, ok := path.Get(r)
		return ok && test(strings.ToLower(leaf.String()))
	}
}

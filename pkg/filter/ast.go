// Package filter parses, prints and evaluates filter predicates.
//
// A predicate is an immutable tree of Node values bound to a record type.
// Trees come from Parse (text) or Bind (the combinator builder) and render
// back to text with Format.
package filter

import (
	"reflect"

	"github.com/nrjais/emquery/pkg/member"
)

type Node interface {
	node()
}

type Op int

const (
	Eq Op = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

var opTokens = map[Op]string{
	Eq: "eq",
	Ne: "ne",
	Lt: "lt",
	Le: "le",
	Gt: "gt",
	Ge: "ge",
}

func (o Op) String() string {
	return opTokens[o]
}

// Ordering reports operators that need an ordered type.
func (o Op) Ordering() bool {
	return o != Eq && o != Ne
}

type LogicalOp int

const (
	OpAnd LogicalOp = iota
	OpOr
)

func (o LogicalOp) String() string {
	if o == OpAnd {
		return "and"
	}
	return "or"
}

type Func int

const (
	Contains Func = iota
	StartsWith
	EndsWith
)

func (f Func) String() string {
	switch f {
	case StartsWith:
		return "startsWith"
	case EndsWith:
		return "endsWith"
	default:
		return "contains"
	}
}

// Constant is a literal coerced to the type of the path it is compared with.
// A nil Value is null.
type Constant struct {
	Value any
	Type  reflect.Type
}

func (c Constant) IsNull() bool {
	return c.Value == nil
}

type Comparison struct {
	Op    Op
	Path  member.Path
	Value Constant
}

type Logical struct {
	Op          LogicalOp
	Left, Right Node
}

type Negation struct {
	Operand Node
}

// StringFunc is a case-insensitive string test.
type StringFunc struct {
	Func  Func
	Path  member.Path
	Value Constant
}

type Membership struct {
	Path   member.Path
	Values []Constant
}

// Member is a boolean field used as a predicate.
type Member struct {
	Path member.Path
}

func (*Comparison) node() {}
func (*Logical) node()    {}
func (*Negation) node()   {}
func (*StringFunc) node() {}
func (*Membership) node() {}
func (*Member) node()     {}

// Paths lists every path referenced by n, in order of appearance.
func Paths(n Node) []member.Path {
	var out []member.Path
	Walk(n, func(n Node) {
		switch v := n.(type) {
		case *Comparison:
			out = append(out, v.Path)
		case *StringFunc:
			out = append(out, v.Path)
		case *Membership:
			out = append(out, v.Path)
		case *Member:
			out = append(out, v.Path)
		}
	})
	return out
}

// Walk visits n and its descendants depth first.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch v := n.(type) {
	case *Logical:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case *Negation:
		Walk(v.Operand, fn)
	}
}

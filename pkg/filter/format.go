package filter

import (
	"strings"
)

// Format renders n in the filter grammar. Parse(Format(n)) yields an
// equivalent predicate; or-groups are parenthesised only under and.
func Format(n Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	write(&b, n)
	return b.String()
}

func write(b *strings.Builder, n Node) {
	switch v := n.(type) {
	case *Comparison:
		b.WriteString(v.Path.String())
		b.WriteByte(' ')
		b.WriteString(v.Op.String())
		b.WriteByte(' ')
		b.WriteString(formatConstant(v.Value))
	case *Logical:
		writeOperand(b, v.Op, v.Left)
		b.WriteByte(' ')
		b.WriteString(v.Op.String())
		b.WriteByte(' ')
		writeOperand(b, v.Op, v.Right)
	case *Negation:
		b.WriteString("not(")
		write(b, v.Operand)
		b.WriteByte(')')
	case *StringFunc:
		b.WriteString(v.Func.String())
		b.WriteByte('(')
		b.WriteString(v.Path.String())
		b.WriteByte(',')
		b.WriteString(formatConstant(v.Value))
		b.WriteByte(')')
	case *Membership:
		b.WriteString(v.Path.String())
		b.WriteString(" in (")
		for i, c := range v.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(formatConstant(c))
		}
		b.WriteByte(')')
	case *Member:
		b.WriteString(v.Path.String())
	}
}

func writeOperand(b *strings.Builder, parent LogicalOp, n Node) {
	if l, ok := n.(*Logical); ok && parent == OpAnd && l.Op == OpOr {
		b.WriteByte('(')
		write(b, n)
		b.WriteByte(')')
		return
	}
	write(b, n)
}

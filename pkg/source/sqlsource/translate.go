package sqlsource

import (
	"strings"

	"github.com/nrjais/emquery/pkg/filter"
	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/qerr"
)

var sqlOps = map[filter.Op]string{
	filter.Eq: "=",
	filter.Ne: "<>",
	filter.Lt: "<",
	filter.Le: "<=",
	filter.Gt: ">",
	filter.Ge: ">=",
}

// translator renders predicates with the same null handling as in-memory
// evaluation: a null column differs from every value and fails orderings.
type translator[T any] struct {
	src  *Source[T]
	args []any
}

func (t *translator[T]) arg(v any) string {
	t.args = append(t.args, v)
	return t.src.dialect.placeholder(len(t.args))
}

func (t *translator[T]) where(n filter.Node) (string, error) {
	if n == nil {
		return "", nil
	}
	cond, err := t.expr(n)
	if err != nil {
		return "", err
	}
	return " WHERE " + cond, nil
}

func (t *translator[T]) column(p member.Path) (column, error) {
	if len(p.Segments) == 1 {
		if c, ok := t.src.column(p.Leaf().Name); ok {
			return c, nil
		}
	}
	return column{}, qerr.Policy(p.String(), "Property %s cannot be queried on table %s", p, t.src.table)
}

func (t *translator[T]) expr(n filter.Node) (string, error) {
	switch v := n.(type) {
	case *filter.Comparison:
		c, err := t.column(v.Path)
		if err != nil {
			return "", err
		}
		col := quoteIdent(c.name)
		if v.Value.IsNull() {
			switch v.Op {
			case filter.Eq:
				return col + " IS NULL", nil
			case filter.Ne:
				return col + " IS NOT NULL", nil
			}
			return "1 = 0", nil
		}
		cond := col + " " + sqlOps[v.Op] + " " + t.arg(v.Value.Value)
		if v.Op == filter.Ne {
			cond = "(" + cond + " OR " + col + " IS NULL)"
		}
		return cond, nil

	case *filter.Logical:
		left, err := t.expr(v.Left)
		if err != nil {
			return "", err
		}
		right, err := t.expr(v.Right)
		if err != nil {
			return "", err
		}
		return "(" + left + " " + strings.ToUpper(v.Op.String()) + " " + right + ")", nil

	case *filter.Negation:
		inner, err := t.expr(v.Operand)
		if err != nil {
			return "", err
		}
		return "NOT COALESCE((" + inner + "), FALSE)", nil

	case *filter.StringFunc:
		c, err := t.column(v.Path)
		if err != nil {
			return "", err
		}
		needle := escapeLike(strings.ToLower(v.Value.Value.(string)))
		switch v.Func {
		case filter.StartsWith:
			needle += "%"
		case filter.EndsWith:
			needle = "%" + needle
		default:
			needle = "%" + needle + "%"
		}
		return "LOWER(" + quoteIdent(c.name) + ") LIKE " + t.arg(needle) + ` ESCAPE '\'`, nil

	case *filter.Membership:
		c, err := t.column(v.Path)
		if err != nil {
			return "", err
		}
		col := quoteIdent(c.name)
		var (
			holders []string
			hasNull bool
		)
		for _, value := range v.Values {
			if value.IsNull() {
				hasNull = true
				continue
			}
			holders = append(holders, t.arg(value.Value))
		}
		switch {
		case len(holders) == 0:
			return col + " IS NULL", nil
		case hasNull:
			return "(" + col + " IN (" + strings.Join(holders, ", ") + ") OR " + col + " IS NULL)", nil
		}
		return col + " IN (" + strings.Join(holders, ", ") + ")", nil

	case *filter.Member:
		c, err := t.column(v.Path)
		if err != nil {
			return "", err
		}
		return quoteIdent(c.name) + " = " + t.arg(true), nil
	}
	return "", qerr.Policy("", "Unsupported predicate %T", n)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

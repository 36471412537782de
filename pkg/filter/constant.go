package filter

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/qerr"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05.999999999"
)

var timeType = reflect.TypeOf(time.Time{})

type literalKind int

const (
	litNull literalKind = iota
	litBool
	litNumber
	litString
)

type literal struct {
	kind literalKind
	// text is the number text or the unescaped string body.
	text string
	// raw is the literal as written, used in messages.
	raw string
}

func (l literal) bool() bool {
	return strings.EqualFold(l.text, "true")
}

// coerce converts a literal to the leaf type of p.
func coerce(p member.Path, lit literal, query string) (Constant, error) {
	base := member.Elem(p.Type())
	fail := func() (Constant, error) {
		return Constant{}, qerr.Parse(query, "Could not parse %s constant with value: %s", member.TypeName(base), lit.raw)
	}

	if lit.kind == litNull {
		if !p.Nullable() {
			return fail()
		}
		return Constant{Type: base}, nil
	}

	var value any
	switch member.KindOf(base) {
	case member.Bool:
		if lit.kind != litBool {
			return fail()
		}
		value = lit.bool()
	case member.Int:
		if lit.kind != litNumber {
			return fail()
		}
		n, err := strconv.ParseInt(lit.text, 10, base.Bits())
		if err != nil {
			return fail()
		}
		value = n
	case member.Uint:
		if lit.kind != litNumber {
			return fail()
		}
		n, err := strconv.ParseUint(lit.text, 10, base.Bits())
		if err != nil {
			return fail()
		}
		value = n
	case member.Float:
		if lit.kind != litNumber {
			return fail()
		}
		f, err := strconv.ParseFloat(lit.text, base.Bits())
		if err != nil {
			return fail()
		}
		value = f
	case member.String:
		if lit.kind != litString {
			return fail()
		}
		value = lit.text
	case member.Time:
		if lit.kind != litString {
			return fail()
		}
		t, ok := parseTime(lit.text)
		if !ok {
			return fail()
		}
		return Constant{Value: t, Type: base}, nil
	default:
		return Constant{}, qerr.Parse(query, "Property %s of type %s cannot be compared", p, member.TypeName(base))
	}
	return Constant{Value: reflect.ValueOf(value).Convert(base).Interface(), Type: base}, nil
}

// coerceValue converts a Go value supplied to the builder.
func coerceValue(p member.Path, v any) (Constant, error) {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			rv = reflect.Value{}
			break
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return coerce(p, literal{kind: litNull, raw: "null"}, p.String())
	}

	raw := fmt.Sprint(rv.Interface())
	switch {
	case rv.Type() == timeType:
		if member.KindOf(p.Type()) != member.Time {
			break
		}
		// Literals carry no zone, so bound times are kept in UTC like parsed ones.
		t := rv.Interface().(time.Time).UTC()
		return Constant{Value: reflect.ValueOf(t).Convert(member.Elem(p.Type())).Interface(), Type: member.Elem(p.Type())}, nil
	case rv.Kind() == reflect.Bool:
		return coerce(p, literal{kind: litBool, text: strconv.FormatBool(rv.Bool()), raw: raw}, p.String())
	case rv.CanInt():
		return coerce(p, literal{kind: litNumber, text: strconv.FormatInt(rv.Int(), 10), raw: raw}, p.String())
	case rv.CanUint():
		return coerce(p, literal{kind: litNumber, text: strconv.FormatUint(rv.Uint(), 10), raw: raw}, p.String())
	case rv.CanFloat():
		return coerce(p, literal{kind: litNumber, text: strconv.FormatFloat(rv.Float(), 'f', -1, 64), raw: raw}, p.String())
	case rv.Kind() == reflect.String:
		return coerce(p, literal{kind: litString, text: rv.String(), raw: quote(rv.String())}, p.String())
	}
	base := member.Elem(p.Type())
	return Constant{}, qerr.Parse(p.String(), "Could not parse %s constant with value: %s", member.TypeName(base), raw)
}

// parseTime reads a date or a date and time in UTC. Fractional seconds are
// accepted after the seconds field.
func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-1-2", "2006-1-2T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatConstant(c Constant) string {
	if c.IsNull() {
		return "null"
	}
	rv := reflect.ValueOf(c.Value)
	if rv.Type().ConvertibleTo(timeType) && member.KindOf(rv.Type()) == member.Time {
		t := rv.Convert(timeType).Interface().(time.Time).UTC()
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return "'" + t.Format(dateLayout) + "'"
		}
		return "'" + t.Format(dateTimeLayout) + "'"
	}
	switch {
	case rv.Kind() == reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case rv.CanInt():
		return strconv.FormatInt(rv.Int(), 10)
	case rv.CanUint():
		return strconv.FormatUint(rv.Uint(), 10)
	case rv.CanFloat():
		return strconv.FormatFloat(rv.Float(), 'f', -1, rv.Type().Bits())
	case rv.Kind() == reflect.String:
		return quote(rv.String())
	}
	return fmt.Sprint(c.Value)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

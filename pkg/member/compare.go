package member

import (
	"reflect"
	"time"

	"golang.org/x/exp/constraints"
)

func compareOrdered[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Compare orders two scalar values of the same kind. Strings compare
// ordinally, false sorts before true. Values of unrelated kinds compare equal.
func Compare(a, b reflect.Value) int {
	switch KindOf(a.Type()) {
	case Int:
		return compareOrdered(a.Int(), toInt(b))
	case Uint:
		return compareOrdered(a.Uint(), toUint(b))
	case Float:
		return compareOrdered(a.Float(), toFloat(b))
	case String:
		return compareOrdered(a.String(), b.String())
	case Bool:
		return compareOrdered(boolRank(a.Bool()), boolRank(b.Bool()))
	case Time:
		return asTime(a).Compare(asTime(b))
	}
	return 0
}

func toInt(v reflect.Value) int64 {
	switch {
	case v.CanInt():
		return v.Int()
	case v.CanUint():
		return int64(v.Uint())
	case v.CanFloat():
		return int64(v.Float())
	}
	return 0
}

func toUint(v reflect.Value) uint64 {
	switch {
	case v.CanUint():
		return v.Uint()
	case v.CanInt():
		return uint64(v.Int())
	case v.CanFloat():
		return uint64(v.Float())
	}
	return 0
}

func toFloat(v reflect.Value) float64 {
	switch {
	case v.CanFloat():
		return v.Float()
	case v.CanInt():
		return float64(v.Int())
	case v.CanUint():
		return float64(v.Uint())
	}
	return 0
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func asTime(v reflect.Value) time.Time {
	return v.Convert(timeType).Interface().(time.Time)
}

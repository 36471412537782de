package projection

import (
	"reflect"
	"time"

	"github.com/nrjais/emquery/pkg/shape"
)

var timeType = reflect.TypeOf(time.Time{})

// Project applies s to one record. The result is a *shape.Record, or nil
// when v is a nil pointer.
func Project(s *shape.Shape, v reflect.Value) any {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil
	}

	rec := shape.NewRecord(len(s.Fields))
	for _, f := range s.Fields {
		val, ok := f.Source.Get(v)
		if !ok {
			rec.Set(f.Name, nil)
			continue
		}
		switch {
		case f.Shape != nil && f.Collection:
			items := make([]any, 0, val.Len())
			for i := 0; i < val.Len(); i++ {
				items = append(items, Project(f.Shape, val.Index(i)))
			}
			rec.Set(f.Name, items)
		case f.Shape != nil:
			rec.Set(f.Name, Project(f.Shape, val))
		case f.Format != "" && val.Type().ConvertibleTo(timeType):
			rec.Set(f.Name, val.Convert(timeType).Interface().(time.Time).Format(f.Format))
		default:
			rec.Set(f.Name, val.Interface())
		}
	}
	return rec
}

// ProjectAll applies s to every element of a slice value.
func ProjectAll(s *shape.Shape, items reflect.Value) []any {
	out := make([]any, 0, items.Len())
	for i := 0; i < items.Len(); i++ {
		out = append(out, Project(s, items.Index(i)))
	}
	return out
}

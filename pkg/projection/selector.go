package projection

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/shape"
)

// PathTag overrides the source path of a selector field:
//
//	type ContactCard struct {
//		Name         string
//		CustomerName string `path:"Customer.Name"`
//	}
const PathTag = "path"

// Selector derives an explicit selection from the fields of R and rebuilds
// R values from projected records.
type Selector[R any] struct {
	paths  []string
	keys   map[string]string // R field name -> output key
	scalar bool
}

// NewSelector selects one path per exported field of the struct type R.
func NewSelector[R any]() (*Selector[R], error) {
	t := reflect.TypeFor[R]()
	if member.Elem(t).Kind() != reflect.Struct || member.KindOf(t) == member.Time {
		return nil, fmt.Errorf("selector type %s is not a struct, use SelectValue", t)
	}
	s := &Selector[R]{keys: make(map[string]string)}
	for _, f := range member.Fields(t) {
		path := f.Tag.Get(PathTag)
		if path == "-" {
			continue
		}
		if path == "" {
			path = f.Name
		}
		s.paths = append(s.paths, path)
		s.keys[f.Name] = flatKey(path)
	}
	if len(s.paths) == 0 {
		return nil, fmt.Errorf("selector type %s has no exported fields", t)
	}
	return s, nil
}

// SelectValue selects a single path and rebuilds R from its value.
func SelectValue[R any](path string) *Selector[R] {
	return &Selector[R]{paths: []string{path}, scalar: true}
}

func (s *Selector[R]) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Bind resolves the selected paths against the record type t.
func (s *Selector[R]) Bind(t reflect.Type) ([]member.Path, error) {
	out := make([]member.Path, 0, len(s.paths))
	for _, p := range s.paths {
		resolved, err := member.Resolve(t, p)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

// Reconstruct rebuilds an R from a projected record, either a *shape.Record or
// a decoded JSON object. Keys match case-insensitively.
func (s *Selector[R]) Reconstruct(v any) (R, error) {
	var out R
	obj, err := asMap(v)
	if err != nil {
		return out, err
	}

	var input any
	if s.scalar {
		key := flatKey(s.paths[0])
		val, _ := lookupFold(obj, key)
		input = val
	} else {
		fields := make(map[string]any, len(s.keys))
		for name, key := range s.keys {
			if val, ok := lookupFold(obj, key); ok {
				fields[name] = val
			}
		}
		input = fields
	}

	if err := decode(input, &out); err != nil {
		return out, fmt.Errorf("failed to reconstruct %s: %w", reflect.TypeFor[R](), err)
	}
	return out, nil
}

// ReconstructAll rebuilds every record of a data slice.
func (s *Selector[R]) ReconstructAll(data []any) ([]R, error) {
	out := make([]R, 0, len(data))
	for _, d := range data {
		r, err := s.Reconstruct(d)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func asMap(v any) (map[string]any, error) {
	switch x := v.(type) {
	case *shape.Record:
		return x.Map(), nil
	case map[string]any:
		return x, nil
	case nil:
		return map[string]any{}, nil
	}
	return nil, fmt.Errorf("expected an object, got %T", v)
}

func lookupFold(obj map[string]any, key string) (any, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func decode(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       stringToTimeHook,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func stringToTimeHook(from, to reflect.Type, data any) (any, error) {
	if to != timeType || from.Kind() != reflect.String {
		return data, nil
	}
	s := data.(string)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("cannot parse %q as a time", s)
}

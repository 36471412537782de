// Package member resolves dotted property paths against Go struct types.
//
// Names are matched case-insensitively against exported fields, including
// fields promoted from embedded structs. Pointers are followed transparently,
// so a path may cross optional relations.
package member

import (
	"reflect"
	"strings"
	"time"

	"github.com/nrjais/emquery/pkg/qerr"
)

// Kind classifies the leaf type of a path.
type Kind int

const (
	Invalid Kind = iota
	Bool
	Int
	Uint
	Float
	String
	Time
	Struct
	Collection
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Uint:
		return "uint"
	case Float:
		return "float"
	case String:
		return "string"
	case Time:
		return "time"
	case Struct:
		return "struct"
	case Collection:
		return "collection"
	default:
		return "invalid"
	}
}

var timeType = reflect.TypeOf(time.Time{})

// TagName is the struct tag read for field markers, e.g. `query:"key"`.
const TagName = "query"

type Segment struct {
	Name  string
	Index []int
	Type  reflect.Type
	Owner reflect.Type
}

// Path is a resolved chain of field accesses starting at Root.
type Path struct {
	Root     reflect.Type
	Segments []Segment
}

func (p Path) String() string {
	names := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		names[i] = s.Name
	}
	return strings.Join(names, ".")
}

func (p Path) IsZero() bool {
	return len(p.Segments) == 0
}

func (p Path) Leaf() Segment {
	return p.Segments[len(p.Segments)-1]
}

// Type returns the declared type of the leaf field.
func (p Path) Type() reflect.Type {
	return p.Leaf().Type
}

func (p Path) Kind() Kind {
	return KindOf(p.Type())
}

// Nullable reports whether the value at the path may be absent.
func (p Path) Nullable() bool {
	for _, s := range p.Segments {
		if isNullable(s.Type) {
			return true
		}
	}
	return false
}

func (p Path) Equal(other Path) bool {
	if p.Root != other.Root || len(p.Segments) != len(other.Segments) {
		return false
	}
	for i := range p.Segments {
		if p.Segments[i].Name != other.Segments[i].Name || p.Segments[i].Owner != other.Segments[i].Owner {
			return false
		}
	}
	return true
}

// Get walks the path on v. The second result is false when a nil pointer
// interrupts the walk or the leaf itself is a nil pointer.
func (p Path) Get(v reflect.Value) (reflect.Value, bool) {
	cur := v
	for _, s := range p.Segments {
		cur = deref(cur)
		if !cur.IsValid() || cur.Kind() != reflect.Struct {
			return reflect.Value{}, false
		}
		cur = cur.FieldByIndex(s.Index)
	}
	cur = deref(cur)
	if !cur.IsValid() {
		return reflect.Value{}, false
	}
	return cur, true
}

// Resolve turns a dotted, case-insensitive path into a Path on root.
func Resolve(root reflect.Type, dotted string) (Path, error) {
	root = Elem(root)
	path := Path{Root: root}
	cur := root
	for _, name := range strings.Split(strings.TrimSpace(dotted), ".") {
		name = strings.TrimSpace(name)
		field, ok := Lookup(cur, name)
		if !ok {
			return Path{}, qerr.Parse(dotted, "Property %s was not found on type %s", name, TypeName(cur))
		}
		path.Segments = append(path.Segments, Segment{
			Name:  field.Name,
			Index: field.Index,
			Type:  field.Type,
			Owner: cur,
		})
		cur = Elem(field.Type)
	}
	return path, nil
}

// Child extends p with a field of the leaf type.
func (p Path) Child(name string) (Path, error) {
	owner := p.Root
	if !p.IsZero() {
		owner = Elem(p.Type())
	}
	field, ok := Lookup(owner, name)
	if !ok {
		return Path{}, qerr.Parse(name, "Property %s was not found on type %s", name, TypeName(owner))
	}
	segs := make([]Segment, len(p.Segments), len(p.Segments)+1)
	copy(segs, p.Segments)
	segs = append(segs, Segment{Name: field.Name, Index: field.Index, Type: field.Type, Owner: owner})
	return Path{Root: p.Root, Segments: segs}, nil
}

// Lookup finds an exported field of t by case-insensitive name.
func Lookup(t reflect.Type, name string) (reflect.StructField, bool) {
	for _, f := range Fields(t) {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// Fields lists the exported, non-embedded fields visible on t, promoted
// fields of embedded structs in their embedding position.
func Fields(t reflect.Type) []reflect.StructField {
	t = Elem(t)
	if t.Kind() != reflect.Struct {
		return nil
	}
	var out []reflect.StructField
	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		if shadowed(t, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// shadowed reports fields hidden by a shallower field of the same name.
func shadowed(t reflect.Type, f reflect.StructField) bool {
	top, ok := t.FieldByName(f.Name)
	return ok && len(top.Index) != len(f.Index)
}

// KeyField returns the first field tagged `query:"key"`.
func KeyField(t reflect.Type) (reflect.StructField, bool) {
	for _, f := range Fields(t) {
		if hasTag(f, "key") {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func hasTag(f reflect.StructField, flag string) bool {
	for _, part := range strings.Split(f.Tag.Get(TagName), ",") {
		if strings.TrimSpace(part) == flag {
			return true
		}
	}
	return false
}

// Elem strips pointer indirections.
func Elem(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// CollectionElem returns the element type of a slice or array of structs.
func CollectionElem(t reflect.Type) (reflect.Type, bool) {
	t = Elem(t)
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return nil, false
	}
	elem := Elem(t.Elem())
	if elem.Kind() != reflect.Struct || elem == timeType {
		return nil, false
	}
	return elem, true
}

func KindOf(t reflect.Type) Kind {
	t = Elem(t)
	if t == timeType {
		return Time
	}
	switch t.Kind() {
	case reflect.Bool:
		return Bool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Uint
	case reflect.Float32, reflect.Float64:
		return Float
	case reflect.String:
		return String
	case reflect.Struct:
		return Struct
	case reflect.Slice, reflect.Array:
		if _, ok := CollectionElem(t); ok {
			return Collection
		}
	}
	return Invalid
}

// IsScalar reports types that project as leaf values and can be compared.
func IsScalar(t reflect.Type) bool {
	switch KindOf(t) {
	case Bool, Int, Uint, Float, String, Time:
		return true
	}
	return false
}

// TypeName is the short type name used in messages.
func TypeName(t reflect.Type) string {
	t = Elem(t)
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

func isNullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

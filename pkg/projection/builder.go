// Package projection turns select and extend requests into record shapes and
// applies those shapes to records.
package projection

import (
	"log/slog"
	"reflect"
	"slices"

	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/qerr"
	"github.com/nrjais/emquery/pkg/shape"
	"github.com/nrjais/emquery/pkg/typeconfig"
)

// Build computes the shape of root records for an explicit selection, or for
// the default projection when selected is empty. Extension fields appear
// only when named in extends. A related type already being expanded higher up
// the same branch is left out instead of recursing.
func Build(reg *typeconfig.Registry, root reflect.Type, selected []member.Path, extends []Extend) (*shape.Shape, error) {
	root = member.Elem(root)
	b := &builder{reg: reg, root: reg.Get(root)}
	if len(selected) > 0 {
		if err := CheckExtends(reg, root, extends); err != nil {
			return nil, err
		}
		return b.explicit(root, selected, extends)
	}
	return b.defaults(member.Path{Root: root}, root, extends, []reflect.Type{root})
}

// CheckExtends verifies every root of extends is a visible extension of t.
// Nested entries are checked when the related shape is built.
func CheckExtends(reg *typeconfig.Registry, t reflect.Type, extends []Extend) error {
	t = member.Elem(t)
	cfg := reg.Get(t)
	for _, e := range extends {
		f, ok := member.Lookup(t, e.Name)
		if !ok {
			return qerr.Parse(e.Name, "Property %s was not found on type %s", e.Name, member.TypeName(t))
		}
		if !cfg.IsExtension(f.Name) {
			return qerr.Policy(e.Name, "Property %s is not an extension on type %s", f.Name, member.TypeName(t))
		}
		if cfg.IsExcluded(f.Name) {
			return qerr.Policy(e.Name, "Property %s of type %s cannot be selected", f.Name, member.TypeName(t))
		}
	}
	return nil
}

type builder struct {
	reg  *typeconfig.Registry
	root *typeconfig.Config
}

func (b *builder) explicit(root reflect.Type, selected []member.Path, extends []Extend) (*shape.Shape, error) {
	s := &shape.Shape{Type: member.TypeName(root)}
	stack := []reflect.Type{root}
	for _, p := range selected {
		for i := range p.Segments {
			prefix := member.Path{Root: p.Root, Segments: p.Segments[:i+1]}
			if b.root.IsPathExcluded(prefix) {
				seg := p.Segments[i]
				return nil, qerr.Policy(p.String(), "Property %s of type %s cannot be selected", seg.Name, member.TypeName(seg.Owner))
			}
		}
		key := FlatKey(p)
		if _, dup := s.Field(key); dup {
			continue
		}

		var sub []Extend
		if len(p.Segments) == 1 {
			if e, ok := Find(extends, p.Leaf().Name); ok {
				sub = e.Properties
			}
		}
		field, keep, err := b.field(key, p, p, sub, stack)
		if err != nil {
			return nil, err
		}
		if keep {
			s.Fields = append(s.Fields, field)
		}
	}
	return s, nil
}

// defaults builds the default projection of t, reached from the root through
// prefix.
func (b *builder) defaults(prefix member.Path, t reflect.Type, extends []Extend, stack []reflect.Type) (*shape.Shape, error) {
	cfg := b.reg.Get(t)
	if err := CheckExtends(b.reg, t, extends); err != nil {
		return nil, err
	}

	s := &shape.Shape{Type: member.TypeName(t)}
	for _, f := range member.Fields(t) {
		full := appendField(prefix, t, f)
		if cfg.IsExcluded(f.Name) || b.root.IsExcluded(full.String()) {
			continue
		}
		ext, extended := Find(extends, f.Name)
		if cfg.IsExtension(f.Name) && !extended {
			continue
		}
		local := appendField(member.Path{Root: t}, t, f)
		field, keep, err := b.field(Key(f.Name), local, full, ext.Properties, stack)
		if err != nil {
			return nil, err
		}
		if keep {
			s.Fields = append(s.Fields, field)
		}
	}
	return s, nil
}

// subset builds a shape holding only the fields an extend entry names.
func (b *builder) subset(prefix member.Path, t reflect.Type, props []Extend, stack []reflect.Type) (*shape.Shape, error) {
	cfg := b.reg.Get(t)
	s := &shape.Shape{Type: member.TypeName(t)}
	for _, e := range props {
		f, ok := member.Lookup(t, e.Name)
		if !ok {
			return nil, qerr.Parse(e.Name, "Property %s was not found on type %s", e.Name, member.TypeName(t))
		}
		full := appendField(prefix, t, f)
		if cfg.IsExcluded(f.Name) || b.root.IsExcluded(full.String()) {
			return nil, qerr.Policy(e.Name, "Property %s of type %s cannot be selected", f.Name, member.TypeName(t))
		}
		if _, dup := s.Field(Key(f.Name)); dup {
			continue
		}
		local := appendField(member.Path{Root: t}, t, f)
		field, keep, err := b.field(Key(f.Name), local, full, e.Properties, stack)
		if err != nil {
			return nil, err
		}
		if keep {
			s.Fields = append(s.Fields, field)
		}
	}
	return s, nil
}

// field describes one output key read through source. Related records get
// a nested shape; keep is false when the cycle guard drops the field.
func (b *builder) field(key string, source, full member.Path, sub []Extend, stack []reflect.Type) (shape.Field, bool, error) {
	leaf := source.Leaf()
	field := shape.Field{
		Name:   key,
		Path:   source.String(),
		Type:   shape.DataTypeOf(leaf.Type),
		Source: source,
	}

	var related reflect.Type
	switch member.KindOf(leaf.Type) {
	case member.Time:
		if df, ok := typeconfig.AttributeOf[typeconfig.DateFormat](b.reg.Get(leaf.Owner), leaf.Name); ok {
			field.Format = df.Layout
		}
		return field, true, nil
	case member.Struct:
		related = member.Elem(leaf.Type)
	case member.Collection:
		related, _ = member.CollectionElem(leaf.Type)
		field.Collection = true
	default:
		return field, true, nil
	}

	if slices.Contains(stack, related) {
		slog.Debug("Dropping field that would recurse into an enclosing type", "field", full.String(), "type", member.TypeName(related))
		return shape.Field{}, false, nil
	}
	next := append(slices.Clone(stack), related)

	var (
		nested *shape.Shape
		err    error
	)
	if len(sub) > 0 {
		nested, err = b.subset(full, related, sub, next)
	} else {
		nested, err = b.defaults(full, related, nil, next)
	}
	if err != nil {
		return shape.Field{}, false, err
	}
	field.Shape = nested
	return field, true, nil
}

func appendField(prefix member.Path, owner reflect.Type, f reflect.StructField) member.Path {
	segs := make([]member.Segment, len(prefix.Segments), len(prefix.Segments)+1)
	copy(segs, prefix.Segments)
	segs = append(segs, member.Segment{Name: f.Name, Index: f.Index, Type: f.Type, Owner: owner})
	return member.Path{Root: prefix.Root, Segments: segs}
}

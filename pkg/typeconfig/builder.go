package typeconfig

import (
	"reflect"
	"strings"

	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/qerr"
)

// Builder records configuration calls for one type. The first invalid call
// stops the chain; Err reports it.
//
//	err := typeconfig.Configure[Contact](reg).
//		AllowFilteringAndSorting("Name").
//		Extension("Customer").
//		MaxPageSize(50).
//		Err()
type Builder struct {
	cfg *Config
	err error
}

func Configure[T any](r *Registry) *Builder {
	return r.Configure(reflect.TypeFor[T]())
}

// ConfigureBase configures B for every type that embeds B, is assignable to
// it, or implements it when B is an interface.
func ConfigureBase[B any](r *Registry) *Builder {
	return r.ConfigureBase(reflect.TypeFor[B]())
}

func (r *Registry) Configure(t reflect.Type) *Builder {
	return newBuilder(r.Get(t))
}

func (r *Registry) ConfigureBase(t reflect.Type) *Builder {
	t = member.Elem(t)
	return newBuilder(r.base(t))
}

func newBuilder(cfg *Config) *Builder {
	cfg.mu.Lock()
	cfg.configured = true
	cfg.mu.Unlock()
	return &Builder{cfg: cfg}
}

func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) Config() *Config {
	return b.cfg
}

func (b *Builder) AllowFilteringAndSorting(fields ...string) *Builder {
	return b.set(fields, func(c *Column) { c.Indexed = true })
}

func (b *Builder) Disallow(fields ...string) *Builder {
	return b.set(fields, func(c *Column) { c.Indexed = false })
}

// Exclude hides fields from results and filters. Dotted names hide a field
// of a related type only when it is reached from this type.
func (b *Builder) Exclude(fields ...string) *Builder {
	for _, f := range fields {
		if b.err != nil {
			return b
		}
		if !strings.Contains(f, ".") {
			b.set([]string{f}, func(c *Column) { c.Excluded = true })
			continue
		}
		path, err := member.Resolve(b.cfg.typ, f)
		if err != nil {
			b.err = &qerr.ConfigError{Message: "invalid exclusion on " + member.TypeName(b.cfg.typ), Err: err}
			return b
		}
		b.column(path.String(), func(c *Column) { c.Excluded = true })
	}
	return b
}

func (b *Builder) Include(fields ...string) *Builder {
	return b.set(fields, func(c *Column) { c.Excluded = false })
}

// ExcludeAll hides every field currently declared on the type; Include can
// bring individual fields back.
func (b *Builder) ExcludeAll() *Builder {
	if b.err != nil {
		return b
	}
	for _, f := range member.Fields(b.cfg.typ) {
		b.column(f.Name, func(c *Column) { c.Excluded = true })
	}
	return b
}

// Extension marks related fields as opt-in: they are left out of results
// unless requested through extend or select.
func (b *Builder) Extension(fields ...string) *Builder {
	for _, f := range fields {
		if b.err != nil {
			return b
		}
		if sf, ok := b.field(f); ok {
			kind := member.KindOf(sf.Type)
			if kind != member.Struct && kind != member.Collection {
				b.err = qerr.Config("Property %s on type %s is not a navigation property and cannot be an extension", sf.Name, member.TypeName(b.cfg.typ))
				return b
			}
		}
		b.set([]string{f}, func(c *Column) { c.Extension = true })
	}
	return b
}

func (b *Builder) Attribute(field string, attr Attribute) *Builder {
	if b.err != nil {
		return b
	}
	if attr == nil {
		b.err = qerr.Config("Attribute for %s on type %s is nil", field, member.TypeName(b.cfg.typ))
		return b
	}
	if sf, ok := b.field(field); ok {
		if err := attr.Validate(sf); err != nil {
			b.err = &qerr.ConfigError{Message: "invalid attribute on " + member.TypeName(b.cfg.typ) + "." + sf.Name, Err: err}
			return b
		}
	}
	return b.set([]string{field}, func(c *Column) { c.Attributes = append(c.Attributes, attr) })
}

// MaxPageSize limits take; 0 removes any inherited limit.
func (b *Builder) MaxPageSize(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < 0 {
		b.err = qerr.Config("Max page size of type %s cannot be negative: %d", member.TypeName(b.cfg.typ), n)
		return b
	}
	b.cfg.mu.Lock()
	b.cfg.maxPageSize = &n
	b.cfg.mu.Unlock()
	return b
}

func (b *Builder) DefaultOrderBy(field string) *Builder {
	if b.err != nil {
		return b
	}
	name := field
	if b.cfg.typ.Kind() == reflect.Struct {
		path, err := member.Resolve(b.cfg.typ, field)
		if err != nil {
			b.err = &qerr.ConfigError{Message: "invalid default order by on " + member.TypeName(b.cfg.typ), Err: err}
			return b
		}
		if !member.IsScalar(path.Type()) {
			b.err = qerr.Config("Default order by %s on type %s is not a sortable field", path, member.TypeName(b.cfg.typ))
			return b
		}
		name = path.String()
	}
	b.cfg.mu.Lock()
	b.cfg.defaultOrderBy = name
	b.cfg.mu.Unlock()
	return b
}

// field resolves a direct field. Interface base types have no fields to check
// against, so names are accepted as given.
func (b *Builder) field(name string) (reflect.StructField, bool) {
	if b.cfg.typ.Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}
	sf, ok := member.Lookup(b.cfg.typ, name)
	if !ok {
		b.err = qerr.Config("Property %s was not found on type %s", name, member.TypeName(b.cfg.typ))
	}
	return sf, ok
}

func (b *Builder) set(fields []string, fn func(*Column)) *Builder {
	for _, f := range fields {
		if b.err != nil {
			return b
		}
		name := f
		if sf, ok := b.field(f); ok {
			name = sf.Name
		} else if b.err != nil {
			return b
		}
		b.column(name, fn)
	}
	return b
}

func (b *Builder) column(name string, fn func(*Column)) {
	b.cfg.mu.Lock()
	defer b.cfg.mu.Unlock()
	key := strings.ToLower(name)
	col, ok := b.cfg.columns[key]
	if !ok {
		col = &Column{}
		b.cfg.columns[key] = col
	}
	fn(col)
}

package typeconfig

import (
	"reflect"
	"strings"
	"sync"

	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/qerr"
)

// Column holds the flags of one field, or of a nested path such as
// Customer.Code when the exclusion only applies below this type.
type Column struct {
	Indexed    bool
	Excluded   bool
	Extension  bool
	Attributes []Attribute
}

// Config is the policy for one record type. Reads merge in every base
// configuration that applies to the type; a flag set anywhere wins.
type Config struct {
	reg *Registry
	typ reflect.Type

	mu             sync.RWMutex
	columns        map[string]*Column
	maxPageSize    *int
	defaultOrderBy string
	configured     bool
}

func newConfig(r *Registry, t reflect.Type) *Config {
	return &Config{
		reg:     r,
		typ:     t,
		columns: make(map[string]*Column),
	}
}

func (c *Config) Type() reflect.Type {
	return c.typ
}

func (c *Config) bases() []*Config {
	if c.reg == nil {
		return nil
	}
	all := c.reg.basesFor(c.typ)
	out := all[:0]
	for _, b := range all {
		if b != c {
			out = append(out, b)
		}
	}
	return out
}

// Configured is true once the type, or a base that applies to it, has been
// configured explicitly. Only configured types restrict filtering.
func (c *Config) Configured() bool {
	if c.ownConfigured() {
		return true
	}
	for _, b := range c.bases() {
		if b.ownConfigured() {
			return true
		}
	}
	return false
}

func (c *Config) ownConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configured
}

func (c *Config) ownColumn(name string) (Column, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, ok := c.columns[strings.ToLower(name)]
	if !ok {
		return Column{}, false
	}
	return *col, true
}

// Column returns the merged flags of a field.
func (c *Config) Column(name string) Column {
	merged, _ := c.ownColumn(name)
	for _, b := range c.bases() {
		col, ok := b.ownColumn(name)
		if !ok {
			continue
		}
		merged.Indexed = merged.Indexed || col.Indexed
		merged.Excluded = merged.Excluded || col.Excluded
		merged.Extension = merged.Extension || col.Extension
		merged.Attributes = append(merged.Attributes, col.Attributes...)
	}
	return merged
}

func (c *Config) IsIndexed(name string) bool {
	return c.Column(name).Indexed
}

func (c *Config) IsExcluded(name string) bool {
	return c.Column(name).Excluded
}

func (c *Config) IsExtension(name string) bool {
	return c.Column(name).Extension
}

// AttributeOf returns the first attribute of type A attached to field.
func AttributeOf[A Attribute](c *Config, field string) (A, bool) {
	for _, a := range c.Column(field).Attributes {
		if v, ok := a.(A); ok {
			return v, true
		}
	}
	var zero A
	return zero, false
}

// MaxPageSize is the effective limit on take; 0 means unlimited.
func (c *Config) MaxPageSize() int {
	if n, ok := c.ownMaxPageSize(); ok {
		return n
	}
	for _, b := range c.bases() {
		if n, ok := b.ownMaxPageSize(); ok {
			return n
		}
	}
	if c.reg != nil {
		return c.reg.DefaultMaxPageSize()
	}
	return 0
}

func (c *Config) ownMaxPageSize() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.maxPageSize == nil {
		return 0, false
	}
	return *c.maxPageSize, true
}

// PageSize applies the max page size to a requested take. With no limit the
// request is returned as is; with no request the limit itself is used.
func (c *Config) PageSize(requested *int) *int {
	limit := c.MaxPageSize()
	if limit <= 0 {
		return requested
	}
	if requested == nil || *requested > limit {
		if requested != nil {
			c.reg.logger.Debug("Clamping take to max page size", "type", member.TypeName(c.typ), "requested", *requested, "max", limit)
		}
		return &limit
	}
	n := *requested
	return &n
}

// DefaultOrderBy is the explicit default order-by of the type or its bases,
// falling back to the first field tagged `query:"key"`.
func (c *Config) DefaultOrderBy() string {
	if s := c.ownDefaultOrderBy(); s != "" {
		return s
	}
	for _, b := range c.bases() {
		if s := b.ownDefaultOrderBy(); s != "" {
			return s
		}
	}
	if f, ok := member.KeyField(c.typ); ok {
		return f.Name
	}
	return ""
}

func (c *Config) ownDefaultOrderBy() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultOrderBy
}

// CheckFilterable rejects paths that cross an excluded field, or a field that
// is not indexed on a configured type.
func (c *Config) CheckFilterable(p member.Path) error {
	for i, seg := range p.Segments {
		owner := c
		if i > 0 {
			owner = c.reg.Get(seg.Owner)
		}
		denied := owner.IsExcluded(seg.Name) || (owner.Configured() && !owner.IsIndexed(seg.Name))
		if !denied && i > 0 {
			prefix := member.Path{Root: p.Root, Segments: p.Segments[:i+1]}
			denied = c.IsExcluded(prefix.String())
		}
		if denied {
			return qerr.Policy(p.String(), "Column %s.%s cannot be used for filtering and ordering.", member.TypeName(seg.Owner), seg.Name)
		}
	}
	return nil
}

// IsPathExcluded reports whether the field at the end of p is hidden, either on
// its owning type or as a nested exclusion of this root type.
func (c *Config) IsPathExcluded(p member.Path) bool {
	leaf := p.Leaf()
	owner := c
	if len(p.Segments) > 1 {
		owner = c.reg.Get(leaf.Owner)
	}
	if owner.IsExcluded(leaf.Name) {
		return true
	}
	return len(p.Segments) > 1 && c.IsExcluded(p.String())
}

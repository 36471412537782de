// Package typeconfig keeps the per-type query policy: which fields may be
// filtered and sorted, which are hidden, which are opt-in extensions, and how
// results are paged.
//
// Configuration happens once at startup through Configure and ConfigureBase.
// After that the registry is read concurrently by every query; mutating it
// while queries run is not supported.
package typeconfig

import (
	"log/slog"
	"reflect"
	"sync"

	"github.com/nrjais/emquery/pkg/member"
)

type Registry struct {
	entries sync.Map // reflect.Type -> *entry

	mu                 sync.RWMutex
	bases              []*Config
	defaultMaxPageSize int

	logger *slog.Logger
}

type entry struct {
	once sync.Once
	cfg  *Config
}

type Option func(*Registry)

// WithDefaultMaxPageSize caps take for types that set no limit of their own.
func WithDefaultMaxPageSize(n int) Option {
	return func(r *Registry) {
		r.defaultMaxPageSize = n
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the configuration of t, creating it on first use. Concurrent
// callers asking for the same type receive the same instance.
func (r *Registry) Get(t reflect.Type) *Config {
	t = member.Elem(t)
	v, _ := r.entries.LoadOrStore(t, &entry{})
	e := v.(*entry)
	e.once.Do(func() {
		e.cfg = newConfig(r, t)
	})
	return e.cfg
}

func For[T any](r *Registry) *Config {
	return r.Get(reflect.TypeFor[T]())
}

func (r *Registry) SetDefaultMaxPageSize(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultMaxPageSize = n
}

func (r *Registry) DefaultMaxPageSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultMaxPageSize
}

// base returns the base configuration for t, creating it if needed.
func (r *Registry) base(t reflect.Type) *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bases {
		if b.typ == t {
			return b
		}
	}
	b := newConfig(r, t)
	r.bases = append(r.bases, b)
	return b
}

// basesFor lists the base configurations that apply to t.
func (r *Registry) basesFor(t reflect.Type) []*Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Config
	for _, b := range r.bases {
		if appliesTo(b.typ, t) {
			out = append(out, b)
		}
	}
	return out
}

// appliesTo reports whether a base configuration declared for base covers t:
// t implements the interface base, is assignable to it, or embeds it.
func appliesTo(base, t reflect.Type) bool {
	if base == t {
		return true
	}
	if base.Kind() == reflect.Interface {
		return t.Implements(base) || reflect.PointerTo(t).Implements(base)
	}
	if t.AssignableTo(base) {
		return true
	}
	return embeds(t, base, 0)
}

func embeds(t, base reflect.Type, depth int) bool {
	if t.Kind() != reflect.Struct || depth > 8 {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := member.Elem(f.Type)
		if ft == base || embeds(ft, base, depth+1) {
			return true
		}
	}
	return false
}

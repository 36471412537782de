// Package catalog maps the entity names clients query to record types and the
// sources that hold them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/nrjais/emquery/pkg/executor"
	"github.com/nrjais/emquery/pkg/query"
	"github.com/nrjais/emquery/pkg/shape"
	"github.com/nrjais/emquery/pkg/typeconfig"
)

var ErrNotFound = errors.New("entity not found")

// Entity is one queryable collection.
type Entity interface {
	Name() string
	Type() reflect.Type
	Execute(ctx context.Context, q *query.Query) (*query.Envelope, error)
}

type entity[T any] struct {
	name string
	exec *executor.Executor
	src  executor.Source[T]
}

func (e *entity[T]) Name() string {
	return e.name
}

func (e *entity[T]) Type() reflect.Type {
	return reflect.TypeFor[T]()
}

func (e *entity[T]) Execute(ctx context.Context, q *query.Query) (*query.Envelope, error) {
	return executor.ApplySource[T](ctx, e.exec, e.src, q)
}

// Catalog is safe for concurrent lookups. Entities are registered at startup.
type Catalog struct {
	parser *query.Parser
	exec   *executor.Executor

	mu       sync.RWMutex
	entities map[string]Entity
}

func New(parser *query.Parser, exec *executor.Executor) *Catalog {
	return &Catalog{
		parser:   parser,
		exec:     exec,
		entities: make(map[string]Entity),
	}
}

func (c *Catalog) Registry() *typeconfig.Registry {
	return c.parser.Registry()
}

func (c *Catalog) Parser() *query.Parser {
	return c.parser
}

// Register serves src under name. Names are matched case-insensitively.
func Register[T any](c *Catalog, name string, src executor.Source[T]) error {
	return c.add(&entity[T]{name: name, exec: c.exec, src: src})
}

// RegisterSlice serves a fixed set of records from memory.
func RegisterSlice[T any](c *Catalog, name string, items []T) error {
	return Register[T](c, name, executor.Slice[T](items))
}

func (c *Catalog) add(e Entity) error {
	key := strings.ToLower(e.Name())
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entities[key]; ok {
		return fmt.Errorf("entity %s is already registered as %s", e.Name(), existing.Name())
	}
	c.entities[key] = e
	slog.Info("Registered entity", "name", e.Name(), "type", e.Type().String())
	return nil
}

func (c *Catalog) Lookup(name string) (Entity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e, nil
}

// Names lists the registered entities in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entities))
	for _, e := range c.entities {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// Query parses a canonical query string for the named entity and runs it.
func (c *Catalog) Query(ctx context.Context, name, raw string) (*query.Envelope, error) {
	e, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	q, err := c.parser.Parse(e.Type(), raw)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, q)
}

// QueryValues runs a query given as transport values, e.g. an HTTP query.
func (c *Catalog) QueryValues(ctx context.Context, name string, vals url.Values) (*query.Envelope, error) {
	e, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	q, err := c.parser.ParseValues(e.Type(), vals)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, q)
}

// Schema describes the default projection of the named entity.
func (c *Catalog) Schema(name string) (*shape.Shape, error) {
	e, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	s, err := query.New(c.Registry(), e.Type()).Shape()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s shape: %w", e.Name(), err)
	}
	return s, nil
}

package query

import (
	"fmt"
	"net/url"
	"reflect"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nrjais/emquery/pkg/typeconfig"
)

type cacheKey struct {
	t      reflect.Type
	raw    string
	values bool
}

// Parser parses canonical query strings, remembering recent results. Cached
// queries are cloned before they are handed out.
type Parser struct {
	reg   *typeconfig.Registry
	cache *lru.Cache[cacheKey, *Query]
}

// NewParser caches up to size parsed queries; size 0 disables the cache.
func NewParser(reg *typeconfig.Registry, size int) (*Parser, error) {
	p := &Parser{reg: reg}
	if size > 0 {
		cache, err := lru.New[cacheKey, *Query](size)
		if err != nil {
			return nil, fmt.Errorf("failed to create query cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

func (p *Parser) Registry() *typeconfig.Registry {
	return p.reg
}

func (p *Parser) Parse(t reflect.Type, raw string) (*Query, error) {
	return p.cached(cacheKey{t: t, raw: raw}, func() (*Query, error) {
		return Parse(p.reg, t, raw)
	})
}

// ParseValues parses transport values; they are cached by their encoding.
func (p *Parser) ParseValues(t reflect.Type, vals url.Values) (*Query, error) {
	return p.cached(cacheKey{t: t, raw: vals.Encode(), values: true}, func() (*Query, error) {
		return ParseValues(p.reg, t, vals)
	})
}

func (p *Parser) cached(key cacheKey, parse func() (*Query, error)) (*Query, error) {
	if p.cache != nil {
		if q, ok := p.cache.Get(key); ok {
			return q.Clone(), nil
		}
	}
	q, err := parse()
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		p.cache.Add(key, q.Clone())
	}
	return q, nil
}

package query

import (
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/nrjais/emquery/pkg/qerr"
	"github.com/nrjais/emquery/pkg/typeconfig"
)

// Data is the normalized, transport form of a query: only fields that differ
// from their defaults are set.
type Data struct {
	Select  string `json:"select,omitempty"`
	Extend  string `json:"extend,omitempty"`
	Filter  string `json:"filter,omitempty"`
	OrderBy string `json:"orderBy,omitempty"`
	Skip    *int   `json:"skip,omitempty"`
	Take    *int   `json:"take,omitempty"`
	Count   *bool  `json:"count,omitempty"`
	Meta    *bool  `json:"meta,omitempty"`
}

// Envelope is a query result: the query that produced it and either the
// projected records, a count, or a shape description.
type Envelope struct {
	Query Data `json:"query"`
	Data  any  `json:"data"`
}

// Normalized echoes q the way String renders it: meta=true drops filter,
// ordering and paging, count=true drops ordering and paging.
func (q *Query) Normalized() Data {
	d := Data{
		Select: q.SelectText(),
		Extend: q.ExtendText(),
	}
	if q.Meta {
		d.Meta = flag(true)
		return d
	}
	d.Filter = q.FilterText()
	if q.Count {
		d.Count = flag(true)
		return d
	}
	d.OrderBy = q.OrderByText()
	d.Skip = positive(q.Skip)
	d.Take = copyInt(q.Take)
	return d
}

func flag(b bool) *bool {
	return &b
}

func positive(p *int) *int {
	if p == nil || *p <= 0 {
		return nil
	}
	return copyInt(p)
}

// copyInt keeps an explicit take=0, which differs from no take at all.
func copyInt(p *int) *int {
	if p == nil || *p < 0 {
		return nil
	}
	n := *p
	return &n
}

// String renders the canonical query string, unescaped.
func (q *Query) String() string {
	return q.Normalized().String()
}

// Encode renders the canonical query string with URL-escaped values.
func (q *Query) Encode() string {
	return q.Normalized().Encode()
}

func (d Data) String() string {
	return d.render(func(s string) string { return s })
}

func (d Data) Encode() string {
	return d.render(url.QueryEscape)
}

// render emits select, extend, filter, orderBy, skip, take in that order.
// meta=true keeps only the projection; count=true drops ordering and paging.
func (d Data) render(escape func(string) string) string {
	var parts []string
	add := func(key, value string) {
		if value != "" {
			parts = append(parts, key+"="+escape(value))
		}
	}

	add(KeySelect, d.Select)
	add(KeyExtend, d.Extend)
	if d.Meta != nil && *d.Meta {
		add(KeyMeta, "true")
		return strings.Join(parts, "&")
	}
	add(KeyFilter, d.Filter)
	if d.Count != nil && *d.Count {
		add(KeyCount, "true")
		return strings.Join(parts, "&")
	}
	add(KeyOrderBy, d.OrderBy)
	if d.Skip != nil {
		add(KeySkip, strconv.Itoa(*d.Skip))
	}
	if d.Take != nil {
		add(KeyTake, strconv.Itoa(*d.Take))
	}
	return strings.Join(parts, "&")
}

var knownKeys = map[string]string{
	"select":  KeySelect,
	"extend":  KeyExtend,
	"filter":  KeyFilter,
	"orderby": KeyOrderBy,
	"skip":    KeySkip,
	"take":    KeyTake,
	"count":   KeyCount,
	"meta":    KeyMeta,
}

// applyOrder is the order fields are set in; select is checked against extend.
var applyOrder = []string{KeyExtend, KeySelect, KeyFilter, KeyOrderBy, KeySkip, KeyTake, KeyCount, KeyMeta}

// Parse reads an unescaped canonical query string. The text is only split on
// '&' where a known key follows, so filter literals may contain '&'.
func Parse(reg *typeconfig.Registry, t reflect.Type, raw string) (*Query, error) {
	values := make(map[string]string)
	for _, part := range splitCanonical(strings.TrimPrefix(raw, "?")) {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		canonical, ok := knownKeys[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			return nil, &qerr.ParseError{Query: raw, Message: "Unknown query parameter " + key}
		}
		values[canonical] = value
	}
	return build(reg, t, values)
}

// ParseValues reads already unescaped transport values, e.g. an HTTP query.
func ParseValues(reg *typeconfig.Registry, t reflect.Type, vals url.Values) (*Query, error) {
	values := make(map[string]string)
	for key, vs := range vals {
		canonical, ok := knownKeys[strings.ToLower(key)]
		if !ok {
			return nil, &qerr.ParseError{Query: key, Message: "Unknown query parameter " + key}
		}
		if len(vs) > 0 {
			values[canonical] = vs[len(vs)-1]
		}
	}
	return build(reg, t, values)
}

func build(reg *typeconfig.Registry, t reflect.Type, values map[string]string) (*Query, error) {
	q := New(reg, t)
	for _, key := range applyOrder {
		value, ok := values[key]
		if !ok {
			continue
		}
		if err := q.set(key, value); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (q *Query) set(key, value string) error {
	switch key {
	case KeySelect:
		return q.SetSelect(value)
	case KeyExtend:
		return q.SetExtend(value)
	case KeyFilter:
		return q.SetFilter(value)
	case KeyOrderBy:
		return q.SetOrderBy(value)
	case KeySkip, KeyTake:
		if strings.TrimSpace(value) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return &qerr.ParseError{Field: key, Query: value, Message: "Could not parse " + key + " value: " + value, Err: err}
		}
		if key == KeySkip {
			return q.SetSkip(n)
		}
		return q.SetTake(n)
	case KeyCount, KeyMeta:
		if strings.TrimSpace(value) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return &qerr.ParseError{Field: key, Query: value, Message: "Could not parse " + key + " value: " + value, Err: err}
		}
		if key == KeyCount {
			q.Count = b
		} else {
			q.Meta = b
		}
	}
	return nil
}

func splitCanonical(raw string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] != '&' {
			continue
		}
		if eq := strings.IndexByte(raw[i+1:], '='); eq >= 0 {
			if _, ok := knownKeys[strings.ToLower(strings.TrimSpace(raw[i+1:i+1+eq]))]; ok {
				parts = append(parts, raw[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, raw[start:])
}

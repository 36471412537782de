package api

import (
	"context"
	"net/url"

	"github.com/nrjais/emquery/pkg/query"
)

// Catalog is the part of *catalog.Catalog the handlers use.
type Catalog interface {
	QueryValues(ctx context.Context, name string, vals url.Values) (*query.Envelope, error)
	Names() []string
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code classifies the error.
	Code string `json:"code,omitempty"`

	// Field is the query parameter the error refers to, if known.
	Field string `json:"field,omitempty"`

	// Query is the offending query text, if known.
	Query string `json:"query,omitempty"`
}

// EntitiesResponse lists the queryable entities.
type EntitiesResponse struct {
	Entities []string `json:"entities"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Entities int    `json:"entities"`
}

const (
	CodeParse    = "PARSE_ERROR"
	CodePolicy   = "POLICY_ERROR"
	CodeNotFound = "ENTITY_NOT_FOUND"
	CodeInternal = "QUERY_FAILED"
)

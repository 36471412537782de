package grpcapi

import (
	"context"

	"github.com/nrjais/emquery/pkg/query"
)

// Catalog is the part of *catalog.Catalog the server uses.
type Catalog interface {
	Query(ctx context.Context, name, raw string) (*query.Envelope, error)
	Names() []string
}

package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nrjais/emquery/internal/catalog"
	"github.com/nrjais/emquery/internal/metrics"
	_ "github.com/nrjais/emquery/pkg/compression"
	"github.com/nrjais/emquery/pkg/qerr"
	"github.com/nrjais/emquery/pkg/query"
	pb "github.com/nrjais/emquery/pkg/protos"
)

// Error detail codes, shared with the HTTP transport.
const (
	CodeParse    = "PARSE_ERROR"
	CodePolicy   = "POLICY_ERROR"
	CodeNotFound = "ENTITY_NOT_FOUND"
	CodeInternal = "QUERY_FAILED"
)

type server struct {
	catalog Catalog
}

func NewQueryServer(c Catalog) pb.QueryServiceServer {
	return &server{catalog: c}
}

// NewServer returns a gRPC server with the query service registered. Clients
// may compress requests with zstd or gzip.
func NewServer(c Catalog, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	pb.RegisterQueryServiceServer(s, NewQueryServer(c))
	return s
}

func (s *server) Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	entity, raw, err := pb.ParseQueryRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	logger := slog.With("entity", entity, "transport", metrics.TransportGRPC)
	logger.Debug("gRPC Query request", "query", raw)

	env, err := s.catalog.Query(ctx, entity, raw)
	metrics.Observe(entity, metrics.TransportGRPC, start, rowCount(env), err)
	if err != nil {
		return nil, queryStatus(logger, err).Err()
	}

	out, err := EnvelopeStruct(env)
	if err != nil {
		logger.Error("Failed to encode query result", "error", err)
		return nil, status.Error(codes.Internal, "Failed to encode query result")
	}
	return out, nil
}

func (s *server) ListEntities(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	names := s.catalog.Names()
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = n
	}
	out, err := structpb.NewStruct(map[string]any{pb.FieldEntities: values})
	if err != nil {
		return nil, status.Error(codes.Internal, "Failed to encode entity list")
	}
	return out, nil
}

// queryStatus maps query errors to gRPC codes. Parse and policy errors carry
// the offending field and query text as a struct detail.
func queryStatus(logger *slog.Logger, err error) *status.Status {
	var (
		parseErr  *qerr.ParseError
		policyErr *qerr.PolicyError
	)
	switch {
	case errors.As(err, &parseErr):
		logger.Warn("Rejected malformed query", "error", err, "field", parseErr.Field, "query", parseErr.Query)
		return withDetail(status.New(codes.InvalidArgument, parseErr.Message), CodeParse, parseErr.Field, parseErr.Query)
	case errors.As(err, &policyErr):
		logger.Warn("Rejected query by policy", "error", err, "field", policyErr.Field, "query", policyErr.Query)
		return withDetail(status.New(codes.InvalidArgument, policyErr.Message), CodePolicy, policyErr.Field, policyErr.Query)
	case errors.Is(err, catalog.ErrNotFound):
		return status.New(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, err.Error())
	}
	logger.Error("Query failed", "error", err)
	return status.New(codes.Internal, "Failed to execute query")
}

func withDetail(st *status.Status, code, field, query string) *status.Status {
	detail, err := structpb.NewStruct(map[string]any{
		"code":  code,
		"field": field,
		"query": query,
	})
	if err != nil {
		return st
	}
	withDetails, err := st.WithDetails(protoadapt.MessageV1Of(detail))
	if err != nil {
		return st
	}
	return withDetails
}

// EnvelopeStruct converts a result envelope through its JSON form, so the
// message carries exactly what the HTTP transport would send.
func EnvelopeStruct(env *query.Envelope) (*structpb.Struct, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return out, nil
}

func rowCount(env *query.Envelope) int {
	if env == nil {
		return -1
	}
	if rows, ok := env.Data.([]any); ok {
		return len(rows)
	}
	return -1
}

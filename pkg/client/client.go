// Package client queries an emquery server over gRPC.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	lop "github.com/samber/lo/parallel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nrjais/emquery/pkg/compression"
	pb "github.com/nrjais/emquery/pkg/protos"
	"github.com/nrjais/emquery/pkg/qerr"
	"github.com/nrjais/emquery/pkg/query"
)

// ErrEntityNotFound is returned when the server has no entity of the
// requested name.
var ErrEntityNotFound = errors.New("entity not found")

type ClientConfig struct {
	ServerAddr string
	// Compression is the request compressor: "", "none", "zstd" or "gzip".
	Compression string
	// Timeout bounds each call when the context has no earlier deadline.
	Timeout time.Duration
	// DialOptions are appended to the defaults, e.g. a custom dialer.
	DialOptions []grpc.DialOption
}

type Client struct {
	conn       *grpc.ClientConn
	config     ClientConfig
	grpcClient pb.QueryServiceClient
	callOpts   []grpc.CallOption
}

// NewClient creates a client for the server at config.ServerAddr. The
// connection is established lazily on the first call.
func NewClient(config ClientConfig) (*Client, error) {
	if config.ServerAddr == "" {
		return nil, fmt.Errorf("server address is required")
	}
	if !compression.Valid(config.Compression) {
		return nil, fmt.Errorf("unsupported compression %q", config.Compression)
	}
	if config.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative")
	}

	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, config.DialOptions...)
	conn, err := grpc.NewClient(config.ServerAddr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server %s: %w", config.ServerAddr, err)
	}

	c := &Client{
		conn:       conn,
		config:     config,
		grpcClient: pb.NewQueryServiceClient(conn),
	}
	if config.Compression != "" && config.Compression != compression.None {
		c.callOpts = append(c.callOpts, grpc.UseCompressor(config.Compression))
	}
	return c, nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.config.Timeout)
}

// Query runs q against the named entity.
func (c *Client) Query(ctx context.Context, entity string, q *query.Query) (*query.Envelope, error) {
	return c.Raw(ctx, entity, q.String())
}

// Raw runs a canonical query string against the named entity.
func (c *Client) Raw(ctx context.Context, entity, raw string) (*query.Envelope, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	slog.Debug("Sending query", "entity", entity, "query", raw)
	resp, err := c.grpcClient.Query(ctx, pb.NewQueryRequest(entity, raw), c.callOpts...)
	if err != nil {
		return nil, fromStatus(entity, err)
	}
	return decodeEnvelope(resp)
}

// Count returns the number of records matching the filter of q.
func (c *Client) Count(ctx context.Context, entity string, q *query.Query) (int, error) {
	counted := q.Clone()
	counted.Count = true
	env, err := c.Query(ctx, entity, counted)
	if err != nil {
		return 0, err
	}
	n, ok := env.Data.(float64)
	if !ok {
		return 0, fmt.Errorf("count result is %T, not a number", env.Data)
	}
	return int(n), nil
}

// Fetch runs a typed query and rebuilds its results as R values.
func Fetch[R any](ctx context.Context, c *Client, entity string, t *query.Typed[R]) ([]R, error) {
	env, err := c.Query(ctx, entity, t.Query)
	if err != nil {
		return nil, err
	}
	rows, err := dataSlice(env)
	if err != nil {
		return nil, err
	}
	return t.Selector.ReconstructAll(rows)
}

func dataSlice(env *query.Envelope) ([]any, error) {
	switch d := env.Data.(type) {
	case []any:
		return d, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("envelope data is %T, not a record list", env.Data)
}

// Request is one query of a batch.
type Request struct {
	Entity string
	Query  string
}

type Result struct {
	Request  Request
	Envelope *query.Envelope
	Err      error
}

// QueryMany runs the requests concurrently. Results are in request order and
// each carries its own error.
func (c *Client) QueryMany(ctx context.Context, reqs []Request) []Result {
	return lop.Map(reqs, func(r Request, _ int) Result {
		env, err := c.Raw(ctx, r.Entity, r.Query)
		return Result{Request: r, Envelope: env, Err: err}
	})
}

// Entities lists the entity names the server serves.
func (c *Client) Entities(ctx context.Context) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.grpcClient.ListEntities(ctx, &emptypb.Empty{}, c.callOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	values := resp.GetFields()[pb.FieldEntities].GetListValue().GetValues()
	return lo.Map(values, func(v *structpb.Value, _ int) string {
		return v.GetStringValue()
	}), nil
}

func decodeEnvelope(s *structpb.Struct) (*query.Envelope, error) {
	data, err := s.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	var env query.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &env, nil
}

// fromStatus turns a gRPC status back into the error kinds the engine
// returns, so callers can use errors.Is with qerr.ErrParse and friends.
func fromStatus(entity string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("query %s failed: %w", entity, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrEntityNotFound, entity)
	case codes.InvalidArgument:
		code, field, q := detail(st)
		switch code {
		case "PARSE_ERROR":
			return &qerr.ParseError{Field: field, Query: q, Message: st.Message()}
		case "POLICY_ERROR":
			return &qerr.PolicyError{Field: field, Query: q, Message: st.Message()}
		}
	}
	return fmt.Errorf("query %s failed: %w", entity, err)
}

func detail(st *status.Status) (code, field, q string) {
	for _, d := range st.Details() {
		s, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := s.GetFields()
		return fields["code"].GetStringValue(), fields["field"].GetStringValue(), fields["query"].GetStringValue()
	}
	return "", "", ""
}

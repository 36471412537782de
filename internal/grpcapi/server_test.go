package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nrjais/emquery/internal/catalog"
	"github.com/nrjais/emquery/internal/sample"
	"github.com/nrjais/emquery/pkg/compression"
	"github.com/nrjais/emquery/pkg/executor"
	pb "github.com/nrjais/emquery/pkg/protos"
	"github.com/nrjais/emquery/pkg/query"
	"github.com/nrjais/emquery/pkg/typeconfig"
)

func newSampleCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	reg := typeconfig.NewRegistry()
	require.NoError(t, sample.Configure(reg))
	parser, err := query.NewParser(reg, 16)
	require.NoError(t, err)

	c := catalog.New(parser, executor.New())
	d := sample.Data()
	require.NoError(t, catalog.RegisterSlice(c, "Customer", d.Customers))
	require.NoError(t, catalog.RegisterSlice(c, "Contact", d.Contacts))
	require.NoError(t, catalog.RegisterSlice(c, "Entity", d.Entities))
	return c
}

func startServer(t *testing.T, c Catalog) pb.QueryServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := NewServer(c)
	go func() {
		_ = s.Serve(lis)
	}()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.UseCompressor(compression.Zstd)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return pb.NewQueryServiceClient(conn)
}

type fakeCatalog struct {
	queryFunc func(ctx context.Context, name, raw string) (*query.Envelope, error)
	names     []string
}

func (f *fakeCatalog) Query(ctx context.Context, name, raw string) (*query.Envelope, error) {
	return f.queryFunc(ctx, name, raw)
}

func (f *fakeCatalog) Names() []string {
	return f.names
}

func TestNewQueryServer(t *testing.T) {
	server := NewQueryServer(&fakeCatalog{})
	assert.NotNil(t, server)
	assert.Implements(t, (*pb.QueryServiceServer)(nil), server)
}

func TestServer_Query(t *testing.T) {
	client := startServer(t, newSampleCatalog(t))
	ctx := context.Background()

	t.Run("default query returns all records", func(t *testing.T) {
		resp, err := client.Query(ctx, pb.NewQueryRequest("customer", ""))
		require.NoError(t, err)

		data := resp.AsMap()["data"].([]any)
		require.Len(t, data, 3)
		first := data[0].(map[string]any)
		assert.Equal(t, float64(1), first["id"])
		assert.Equal(t, "Acme Corporation", first["name"])
		assert.NotContains(t, first, "code")
		assert.NotContains(t, first, "contacts")
	})

	t.Run("filter order and paging are echoed", func(t *testing.T) {
		resp, err := client.Query(ctx, pb.NewQueryRequest("Contact", "select=Id,Name&filter=IsAuthorizedToSign eq true&orderBy=Name desc&take=1"))
		require.NoError(t, err)

		m := resp.AsMap()
		data := m["data"].([]any)
		require.Len(t, data, 1)
		assert.Equal(t, map[string]any{"id": float64(2), "name": "Road Runner"}, data[0])

		echoed := m["query"].(map[string]any)
		assert.Equal(t, "Id,Name", echoed["select"])
		assert.Equal(t, "IsAuthorizedToSign eq true", echoed["filter"])
		assert.Equal(t, "Name desc", echoed["orderBy"])
		assert.Equal(t, float64(1), echoed["take"])
	})

	t.Run("count", func(t *testing.T) {
		resp, err := client.Query(ctx, pb.NewQueryRequest("Entity", "filter=startsWith(Description,'entity')&count=true"))
		require.NoError(t, err)
		assert.Equal(t, float64(3), resp.AsMap()["data"])
	})

	t.Run("extension", func(t *testing.T) {
		resp, err := client.Query(ctx, pb.NewQueryRequest("Contact", "extend=Customer(Id,Name)&filter=Id eq 3"))
		require.NoError(t, err)
		data := resp.AsMap()["data"].([]any)
		require.Len(t, data, 1)
		customer := data[0].(map[string]any)["customer"]
		assert.Equal(t, map[string]any{"id": float64(2), "name": "Globex"}, customer)
	})
}

func TestServer_QueryErrors(t *testing.T) {
	client := startServer(t, newSampleCatalog(t))
	ctx := context.Background()

	testCases := []struct {
		name       string
		req        *structpb.Struct
		wantCode   codes.Code
		wantDetail string
	}{
		{
			name:     "missing entity",
			req:      &structpb.Struct{Fields: map[string]*structpb.Value{}},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "unknown entity",
			req:      pb.NewQueryRequest("Invoice", ""),
			wantCode: codes.NotFound,
		},
		{
			name:       "malformed filter",
			req:        pb.NewQueryRequest("Customer", "filter=Id eq"),
			wantCode:   codes.InvalidArgument,
			wantDetail: CodeParse,
		},
		{
			name:       "unknown parameter",
			req:        pb.NewQueryRequest("Customer", "limit=5"),
			wantCode:   codes.InvalidArgument,
			wantDetail: CodeParse,
		},
		{
			name:       "excluded field on extension",
			req:        pb.NewQueryRequest("Contact", "extend=Customer(Code)"),
			wantCode:   codes.InvalidArgument,
			wantDetail: CodePolicy,
		},
		{
			name:       "filter on excluded field",
			req:        pb.NewQueryRequest("Customer", "filter=Code eq 'ACME'"),
			wantCode:   codes.InvalidArgument,
			wantDetail: CodePolicy,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Query(ctx, tc.req)
			require.Error(t, err)
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tc.wantCode, st.Code())

			if tc.wantDetail == "" {
				return
			}
			require.Len(t, st.Details(), 1)
			detail, ok := st.Details()[0].(*structpb.Struct)
			require.True(t, ok)
			assert.Equal(t, tc.wantDetail, detail.AsMap()["code"])
		})
	}
}

func TestServer_QueryInternalError(t *testing.T) {
	c := &fakeCatalog{
		queryFunc: func(ctx context.Context, name, raw string) (*query.Envelope, error) {
			return nil, errors.New("connection refused")
		},
	}
	client := startServer(t, c)

	_, err := client.Query(context.Background(), pb.NewQueryRequest("Customer", ""))
	require.Error(t, err)
	st, _ := status.FromError(err)
	assert.Equal(t, codes.Internal, st.Code())
	assert.NotContains(t, st.Message(), "connection refused")
}

func TestServer_ListEntities(t *testing.T) {
	client := startServer(t, newSampleCatalog(t))

	resp, err := client.ListEntities(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, []any{"Contact", "Customer", "Entity"}, resp.AsMap()[pb.FieldEntities])
}

func TestEnvelopeStruct(t *testing.T) {
	take := 2
	env := &query.Envelope{
		Query: query.Data{OrderBy: "Id", Take: &take},
		Data:  []any{map[string]any{"id": 1}},
	}
	s, err := EnvelopeStruct(env)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"query": map[string]any{"orderBy": "Id", "take": float64(2)},
		"data":  []any{map[string]any{"id": float64(1)}},
	}, s.AsMap())
}

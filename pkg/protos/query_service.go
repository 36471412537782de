// Package protos declares the emquery.v1.QueryService gRPC service. Messages
// are google.protobuf.Struct values so no generated message types are needed:
//
//	Query(QueryRequest) returns (Envelope)
//	ListEntities(google.protobuf.Empty) returns (EntityList)
//
// A QueryRequest is {"entity": string, "query": string} where query is a
// canonical query string. An Envelope is {"query": {...}, "data": ...}. An
// EntityList is {"entities": [string, ...]}.
package protos

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	QueryService_ServiceName                = "emquery.v1.QueryService"
	QueryService_Query_FullMethodName        = "/emquery.v1.QueryService/Query"
	QueryService_ListEntities_FullMethodName = "/emquery.v1.QueryService/ListEntities"
)

// Field names of a QueryRequest.
const (
	FieldEntity   = "entity"
	FieldQuery    = "query"
	FieldEntities = "entities"
)

func NewQueryRequest(entity, query string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldEntity: structpb.NewStringValue(entity),
		FieldQuery:  structpb.NewStringValue(query),
	}}
}

// ParseQueryRequest reads the entity name and query string of a request. The
// entity is required; an absent query means the default query.
func ParseQueryRequest(req *structpb.Struct) (entity, query string, err error) {
	fields := req.GetFields()
	v, ok := fields[FieldEntity]
	if !ok {
		return "", "", fmt.Errorf("request field %q is required", FieldEntity)
	}
	if _, isString := v.GetKind().(*structpb.Value_StringValue); !isString {
		return "", "", fmt.Errorf("request field %q must be a string", FieldEntity)
	}
	if v.GetStringValue() == "" {
		return "", "", fmt.Errorf("request field %q is required", FieldEntity)
	}
	if q, ok := fields[FieldQuery]; ok {
		if _, isString := q.GetKind().(*structpb.Value_StringValue); !isString {
			return "", "", fmt.Errorf("request field %q must be a string", FieldQuery)
		}
		query = q.GetStringValue()
	}
	return v.GetStringValue(), query, nil
}

type QueryServiceServer interface {
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEntities(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func RegisterQueryServiceServer(s grpc.ServiceRegistrar, srv QueryServiceServer) {
	s.RegisterService(&QueryService_ServiceDesc, srv)
}

func _QueryService_Query_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServiceServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: QueryService_Query_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QueryServiceServer).Query(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _QueryService_ListEntities_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryServiceServer).ListEntities(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: QueryService_ListEntities_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QueryServiceServer).ListEntities(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var QueryService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: QueryService_ServiceName,
	HandlerType: (*QueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Query",
			Handler:    _QueryService_Query_Handler,
		},
		{
			MethodName: "ListEntities",
			Handler:    _QueryService_ListEntities_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "emquery/v1/query_service.proto",
}

type QueryServiceClient interface {
	Query(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListEntities(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type queryServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewQueryServiceClient(cc grpc.ClientConnInterface) QueryServiceClient {
	return &queryServiceClient{cc}
}

func (c *queryServiceClient) Query(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, QueryService_Query_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *queryServiceClient) ListEntities(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, QueryService_ListEntities_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

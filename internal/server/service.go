package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct, so clients need no generated stubs.
const ServiceName = "survey.v1.ExtractionService"

const (
	methodExtract = "/" + ServiceName + "/Extract"
	methodSubmit  = "/" + ServiceName + "/Submit"
	methodGetRun  = "/" + ServiceName + "/GetRun"
)

// ExtractionServer is the server API for ExtractionService.
type ExtractionServer interface {
	// Extract runs a document synchronously and returns the well record and report.
	Extract(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Submit queues a document and returns its run id.
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// GetRun reads a run and its page outcomes from the ledger.
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ExtractionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ExtractionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ExtractionServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ExtractionServiceDesc describes ExtractionService for grpc.Server.RegisterService.
var ExtractionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: unaryHandler(methodExtract, ExtractionServer.Extract)},
		{MethodName: "Submit", Handler: unaryHandler(methodSubmit, ExtractionServer.Submit)},
		{MethodName: "GetRun", Handler: unaryHandler(methodGetRun, ExtractionServer.GetRun)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "survey/v1/extraction.proto",
}

// RegisterExtractionServer registers srv on s.
func RegisterExtractionServer(s grpc.ServiceRegistrar, srv ExtractionServer) {
	s.RegisterService(&ExtractionServiceDesc, srv)
}

// ExtractionClient calls ExtractionService.
type ExtractionClient struct {
	cc grpc.ClientConnInterface
}

func NewExtractionClient(cc grpc.ClientConnInterface) *ExtractionClient {
	return &ExtractionClient{cc: cc}
}

func (c *ExtractionClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ExtractionClient) Extract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodExtract, in, opts...)
}

func (c *ExtractionClient) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodSubmit, in, opts...)
}

func (c *ExtractionClient) GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetRun, in, opts...)
}

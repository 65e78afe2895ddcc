// Package luservepb holds the gRPC service definition for recognizer.proto.
// The messages are protobuf well-known types, so only the service glue is
// needed.
package luservepb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Fully-qualified method names.
const (
	RecognizerServiceName                  = "luserve.v1.Recognizer"
	Recognizer_Recognize_FullMethodName    = "/luserve.v1.Recognizer/Recognize"
	Recognizer_ListModels_FullMethodName   = "/luserve.v1.Recognizer/ListModels"
	Recognizer_ReloadModels_FullMethodName = "/luserve.v1.Recognizer/ReloadModels"
)

// RecognizerClient is the client API for the Recognizer service.
type RecognizerClient interface {
	Recognize(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListModels(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	ReloadModels(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type recognizerClient struct {
	cc grpc.ClientConnInterface
}

// NewRecognizerClient wraps cc.
func NewRecognizerClient(cc grpc.ClientConnInterface) RecognizerClient {
	return &recognizerClient{cc}
}

func (c *recognizerClient) Recognize(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Recognizer_Recognize_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *recognizerClient) ListModels(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Recognizer_ListModels_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *recognizerClient) ReloadModels(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Recognizer_ReloadModels_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RecognizerServer is the server API for the Recognizer service.
type RecognizerServer interface {
	Recognize(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListModels(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ReloadModels(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterRecognizerServer registers srv on s.
func RegisterRecognizerServer(s grpc.ServiceRegistrar, srv RecognizerServer) {
	s.RegisterService(&Recognizer_ServiceDesc, srv)
}

func _Recognizer_Recognize_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecognizerServer).Recognize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Recognizer_Recognize_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RecognizerServer).Recognize(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Recognizer_ListModels_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecognizerServer).ListModels(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Recognizer_ListModels_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RecognizerServer).ListModels(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Recognizer_ReloadModels_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecognizerServer).ReloadModels(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Recognizer_ReloadModels_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RecognizerServer).ReloadModels(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Recognizer_ServiceDesc is the grpc.ServiceDesc for the Recognizer service.
var Recognizer_ServiceDesc = grpc.ServiceDesc{
	ServiceName: RecognizerServiceName,
	HandlerType: (*RecognizerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Recognize",
			Handler:    _Recognizer_Recognize_Handler,
		},
		{
			MethodName: "ListModels",
			Handler:    _Recognizer_ListModels_Handler,
		},
		{
			MethodName: "ReloadModels",
			Handler:    _Recognizer_ReloadModels_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "recognizer.proto",
}

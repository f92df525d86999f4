// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

// Package pluginv1 is the gRPC contract between the host and out-of-process
// plugins. It carries only protobuf well-known types; see plugin.proto.
package pluginv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Fully-qualified method names.
const (
	Plugin_Describe_FullMethodName   = "/paneplug.plugin.v1.Plugin/Describe"
	Plugin_View_FullMethodName       = "/paneplug.plugin.v1.Plugin/View"
	Plugin_Update_FullMethodName     = "/paneplug.plugin.v1.Plugin/Update"
	Plugin_RunCommand_FullMethodName = "/paneplug.plugin.v1.Plugin/RunCommand"
	Plugin_Subscribe_FullMethodName  = "/paneplug.plugin.v1.Plugin/Subscribe"
)

// PluginClient is the host side of the Plugin service.
type PluginClient interface {
	Describe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	View(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	Update(ctx context.Context, in *wrapperspb.UInt64Value, opts ...grpc.CallOption) (*structpb.Struct, error)
	RunCommand(ctx context.Context, in *wrapperspb.UInt64Value, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error)
	Subscribe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.UInt64Value], error)
}

type pluginClient struct {
	cc grpc.ClientConnInterface
}

// NewPluginClient returns a client bound to cc.
func NewPluginClient(cc grpc.ClientConnInterface) PluginClient {
	return &pluginClient{cc: cc}
}

func (c *pluginClient) Describe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Plugin_Describe_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pluginClient) View(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Plugin_View_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pluginClient) Update(ctx context.Context, in *wrapperspb.UInt64Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Plugin_Update_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pluginClient) RunCommand(ctx context.Context, in *wrapperspb.UInt64Value, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error) {
	out := new(wrapperspb.UInt64Value)
	if err := c.cc.Invoke(ctx, Plugin_RunCommand_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pluginClient) Subscribe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[wrapperspb.UInt64Value], error) {
	stream, err := c.cc.NewStream(ctx, &Plugin_ServiceDesc.Streams[0], Plugin_Subscribe_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, wrapperspb.UInt64Value]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// PluginServer is the plugin side of the Plugin service.
// Implementations must embed UnimplementedPluginServer.
type PluginServer interface {
	Describe(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	View(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Update(context.Context, *wrapperspb.UInt64Value) (*structpb.Struct, error)
	RunCommand(context.Context, *wrapperspb.UInt64Value) (*wrapperspb.UInt64Value, error)
	Subscribe(*emptypb.Empty, grpc.ServerStreamingServer[wrapperspb.UInt64Value]) error
	mustEmbedUnimplementedPluginServer()
}

// UnimplementedPluginServer answers every method with codes.Unimplemented.
type UnimplementedPluginServer struct{}

func (UnimplementedPluginServer) Describe(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Describe not implemented")
}

func (UnimplementedPluginServer) View(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method View not implemented")
}

func (UnimplementedPluginServer) Update(context.Context, *wrapperspb.UInt64Value) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Update not implemented")
}

func (UnimplementedPluginServer) RunCommand(context.Context, *wrapperspb.UInt64Value) (*wrapperspb.UInt64Value, error) {
	return nil, status.Error(codes.Unimplemented, "method RunCommand not implemented")
}

func (UnimplementedPluginServer) Subscribe(*emptypb.Empty, grpc.ServerStreamingServer[wrapperspb.UInt64Value]) error {
	return status.Error(codes.Unimplemented, "method Subscribe not implemented")
}

func (UnimplementedPluginServer) mustEmbedUnimplementedPluginServer() {}

// RegisterPluginServer registers srv with s.
func RegisterPluginServer(s grpc.ServiceRegistrar, srv PluginServer) {
	s.RegisterService(&Plugin_ServiceDesc, srv)
}

// unaryHandler adapts one typed PluginServer method to grpc.MethodDesc.
func unaryHandler[Req any, Resp any](
	method string,
	call func(PluginServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PluginServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PluginServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(PluginServer).Subscribe(m, &grpc.GenericServerStream[emptypb.Empty, wrapperspb.UInt64Value]{ServerStream: stream})
}

// Plugin_ServiceDesc describes the Plugin service for grpc.Server.
var Plugin_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "paneplug.plugin.v1.Plugin",
	HandlerType: (*PluginServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Describe",
			Handler:    unaryHandler(Plugin_Describe_FullMethodName, PluginServer.Describe),
		},
		{
			MethodName: "View",
			Handler:    unaryHandler(Plugin_View_FullMethodName, PluginServer.View),
		},
		{
			MethodName: "Update",
			Handler:    unaryHandler(Plugin_Update_FullMethodName, PluginServer.Update),
		},
		{
			MethodName: "RunCommand",
			Handler:    unaryHandler(Plugin_RunCommand_FullMethodName, PluginServer.RunCommand),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "paneplug/plugin/v1/plugin.proto",
}

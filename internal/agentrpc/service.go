// Package agentrpc is the gRPC transport between the master and the shard
// agent. Messages are JSON encoded and every call carries a short-lived
// HS256 bearer token in the "authorization" metadata key.
package agentrpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName       = "yournode.shard.Agent"
	RunMethod         = "/" + ServiceName + "/Run"
	InstallKeysMethod = "/" + ServiceName + "/InstallKeys"
)

// RunRequest asks the agent to execute one lifecycle operation.
type RunRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type RunResponse struct {
	Output string `json:"output"`
}

// InstallKeysRequest carries a user's deploy key pair.
type InstallKeysRequest struct {
	Username   string `json:"username"`
	PrivateKey []byte `json:"privateKey"`
	PublicKey  []byte `json:"publicKey"`
}

type InstallKeysResponse struct{}

// AgentServer is implemented by the shard side of the service.
type AgentServer interface {
	Run(ctx context.Context, req *RunRequest) (*RunResponse, error)
	InstallKeys(ctx context.Context, req *InstallKeysRequest) (*InstallKeysResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
		{MethodName: "InstallKeys", Handler: installKeysHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agentrpc",
}

// RegisterAgentServer registers srv on s.
func RegisterAgentServer(s grpc.ServiceRegistrar, srv AgentServer) {
	s.RegisterService(&serviceDesc, srv)
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RunRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AgentServer).Run(ctx, req.(*RunRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func installKeysHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InstallKeysRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).InstallKeys(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InstallKeysMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AgentServer).InstallKeys(ctx, req.(*InstallKeysRequest))
	}
	return interceptor(ctx, in, info, handler)
}

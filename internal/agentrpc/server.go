package agentrpc

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/logging"
)

// Executor performs agent operations on the shard.
type Executor interface {
	Execute(ctx context.Context, op string, args []string) (string, error)
	InstallKeys(ctx context.Context, username string, pair common.KeyPair) error
}

type ctxKey string

const subjectKey ctxKey = "subject"

// Server exposes an Executor over gRPC.
type Server struct {
	address   string
	exec      Executor
	logger    logging.Logger
	jwtSecret []byte
}

// NewServer creates an agent RPC server.
//
// Parameters:
//
//	address   - TCP listen address, e.g. ":7070"
//	l         - logger
//	exec      - runs lifecycle operations and key installs
//	secretKey - shared HMAC secret bearer tokens are verified with
func NewServer(address string, l logging.Logger, exec Executor, secretKey string) *Server {
	return &Server{
		address:   address,
		exec:      exec,
		logger:    l.With("module", "agent_rpc"),
		jwtSecret: []byte(secretKey),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.authInterceptor))
	RegisterAgentServer(srv, &agentService{exec: s.exec, logger: s.logger})

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping agent RPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting agent RPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AgentTokenHeaderName); len(values) > 0 {
			token = strings.TrimPrefix(values[0], "Bearer ")
		}
	}
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	subject, err := SubjectFromToken(token, s.jwtSecret)
	if err != nil {
		s.logger.Warn(ctx, "rejected agent call", "method", info.FullMethod, "error", err)
		return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
	}

	return handler(context.WithValue(ctx, subjectKey, subject), req)
}

type agentService struct {
	exec   Executor
	logger logging.Logger
}

func (a *agentService) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	a.logger.Info(ctx, "agent operation", "op", req.Op, "args", req.Args, "caller", ctx.Value(subjectKey))

	out, err := a.exec.Execute(ctx, req.Op, req.Args)
	if err != nil {
		a.logger.Error(ctx, "agent operation failed", "op", req.Op, "error", err)
		return nil, toStatus(err)
	}
	return &RunResponse{Output: out}, nil
}

func (a *agentService) InstallKeys(ctx context.Context, req *InstallKeysRequest) (*InstallKeysResponse, error) {
	a.logger.Info(ctx, "installing deploy keys", "user", req.Username)

	err := a.exec.InstallKeys(ctx, req.Username, common.KeyPair{Private: req.PrivateKey, Public: req.PublicKey})
	common.WipeByteArray(req.PrivateKey)
	if err != nil {
		return nil, toStatus(err)
	}
	return &InstallKeysResponse{}, nil
}

func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, common.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, common.ErrAlreadyExists):
		code = codes.AlreadyExists
	case errors.Is(err, common.ErrInvalidArgument):
		code = codes.InvalidArgument
	case errors.Is(err, common.ErrNotConfigured),
		errors.Is(err, common.ErrManifestMissing),
		errors.Is(err, common.ErrManifestInvalid):
		code = codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}

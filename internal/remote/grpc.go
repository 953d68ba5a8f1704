package remote

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/thaispalmer/yn-automation/internal/agentrpc"
	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/logging"
)

// GRPCConfig configures the agent RPC transport.
type GRPCConfig struct {
	Port     int
	Secret   string
	TokenTTL time.Duration
	Timeout  time.Duration
}

// tokenSubject identifies the master in agent tokens.
const tokenSubject = "yn-master"

// GRPCDispatcher calls the shard agent's gRPC service.
type GRPCDispatcher struct {
	cfg         GRPCConfig
	dialOptions []grpc.DialOption
	logger      logging.Logger
}

var _ Dispatcher = (*GRPCDispatcher)(nil)

// NewGRPCDispatcher returns a dispatcher dialing cfg.Port on each shard. A
// zero TokenTTL defaults to one minute; opts are appended to every dial.
func NewGRPCDispatcher(cfg GRPCConfig, l logging.Logger, opts ...grpc.DialOption) *GRPCDispatcher {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Minute
	}
	return &GRPCDispatcher{cfg: cfg, dialOptions: opts, logger: l.With("module", "remote_grpc")}
}

func (d *GRPCDispatcher) client(host string) (*agentrpc.Client, error) {
	target := net.JoinHostPort(host, strconv.Itoa(d.cfg.Port))
	return agentrpc.Dial(target, tokenSubject, d.cfg.Secret, d.cfg.TokenTTL, d.dialOptions...)
}

func (d *GRPCDispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, d.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (d *GRPCDispatcher) Run(ctx context.Context, host string, cmd Command) (string, error) {
	line := cmd.String()
	d.logger.Debug(ctx, "calling agent", "host", host, "command", line)

	c, err := d.client(host)
	if err != nil {
		return "", &common.RemoteCommandFailed{Host: host, Command: line, ExitCode: -1, Err: err}
	}
	defer c.Close()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	out, err := c.Run(ctx, cmd.Op, cmd.Args)
	if err != nil {
		return "", rpcFailure(host, line, err)
	}
	return out, nil
}

func (d *GRPCDispatcher) InstallKeys(ctx context.Context, host, username string, pair common.KeyPair) error {
	line := "install-keys " + username

	c, err := d.client(host)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrKeyTransfer, err)
	}
	defer c.Close()

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := c.InstallKeys(ctx, username, pair); err != nil {
		return fmt.Errorf("%w: %w", common.ErrKeyTransfer, rpcFailure(host, line, err))
	}
	return nil
}

// rpcFailure maps a gRPC error to RemoteCommandFailed. Errors returned by the
// agent's operation get exit code 1 like the CLI would; transport and auth
// failures get -1.
func rpcFailure(host, line string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &common.RemoteCommandFailed{Host: host, Command: line, ExitCode: -1, Err: err}
	}
	switch st.Code() {
	case codes.Unavailable, codes.Unauthenticated, codes.DeadlineExceeded, codes.Canceled, codes.Unimplemented:
		return &common.RemoteCommandFailed{Host: host, Command: line, ExitCode: -1, Err: err}
	}
	return &common.RemoteCommandFailed{Host: host, Command: line, ExitCode: 1, Stderr: st.Message(), Err: err}
}

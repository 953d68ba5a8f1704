package agentrpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/thaispalmer/yn-automation/internal/common"
)

// Client calls one shard agent.
type Client struct {
	conn      *grpc.ClientConn
	subject   string
	jwtSecret []byte
	tokenTTL  time.Duration
}

// Dial prepares a client for target. The connection is established lazily
// on the first call. Extra options are appended to the defaults (insecure
// transport, JSON codec, bearer token interceptor).
func Dial(target, subject, secretKey string, tokenTTL time.Duration, opts ...grpc.DialOption) (*Client, error) {
	c := &Client{subject: subject, jwtSecret: []byte(secretKey), tokenTTL: tokenTTL}

	all := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithUnaryInterceptor(c.tokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(target, all...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func withToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AgentTokenHeaderName, "Bearer "+token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *Client) tokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	token, err := GenerateToken(c.subject, c.jwtSecret, c.tokenTTL)
	if err != nil {
		return err
	}
	return invoker(withToken(ctx, token), method, req, reply, cc, opts...)
}

// Run executes op on the agent and returns its output.
func (c *Client) Run(ctx context.Context, op string, args []string) (string, error) {
	out := new(RunResponse)
	if err := c.conn.Invoke(ctx, RunMethod, &RunRequest{Op: op, Args: args}, out); err != nil {
		return "", err
	}
	return out.Output, nil
}

// InstallKeys sends a user's deploy key pair to the agent.
func (c *Client) InstallKeys(ctx context.Context, username string, pair common.KeyPair) error {
	req := &InstallKeysRequest{Username: username, PrivateKey: pair.Private, PublicKey: pair.Public}
	return c.conn.Invoke(ctx, InstallKeysMethod, req, new(InstallKeysResponse))
}

func (c *Client) Close() error {
	return c.conn.Close()
}

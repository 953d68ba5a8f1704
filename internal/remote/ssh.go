package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/logging"
)

// SSHConfig configures the SSH transport.
type SSHConfig struct {
	User                  string
	Port                  int
	KeyFile               string
	KnownHosts            string
	InsecureIgnoreHostKey bool
	Timeout               time.Duration
	// RemoteKeyDir is where deploy keys are written on the shard.
	RemoteKeyDir string
	// ShardBinary is the agent executable on the shard.
	ShardBinary string
}

// SSHDispatcher runs yn-shard on shards over SSH, one connection per call.
type SSHDispatcher struct {
	cfg    SSHConfig
	client *ssh.ClientConfig
	logger logging.Logger
}

var _ Dispatcher = (*SSHDispatcher)(nil)

// NewSSHDispatcher loads the master's private key and the known_hosts file.
func NewSSHDispatcher(cfg SSHConfig, l logging.Logger) (*SSHDispatcher, error) {
	pem, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", cfg.KeyFile, err)
	}

	var hostKeys ssh.HostKeyCallback
	if cfg.InsecureIgnoreHostKey {
		hostKeys = ssh.InsecureIgnoreHostKey()
	} else {
		hostKeys, err = knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	}

	return newSSHDispatcher(cfg, signer, hostKeys, l), nil
}

func newSSHDispatcher(cfg SSHConfig, signer ssh.Signer, hostKeys ssh.HostKeyCallback, l logging.Logger) *SSHDispatcher {
	if cfg.ShardBinary == "" {
		cfg.ShardBinary = DefaultShardBinary
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	return &SSHDispatcher{
		cfg: cfg,
		client: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeys,
			Timeout:         cfg.Timeout,
		},
		logger: l.With("module", "remote_ssh"),
	}
}

func (d *SSHDispatcher) Run(ctx context.Context, host string, cmd Command) (string, error) {
	line := cmd.Line(d.cfg.ShardBinary)
	d.logger.Debug(ctx, "running remote command", "host", host, "command", line)
	return d.exec(ctx, host, line, nil)
}

// InstallKeys writes <RemoteKeyDir>/<username> and its .pub companion on
// the shard with owner-only permissions.
func (d *SSHDispatcher) InstallKeys(ctx context.Context, host, username string, pair common.KeyPair) error {
	files := []struct {
		name string
		data []byte
	}{
		{username, pair.Private},
		{username + ".pub", pair.Public},
	}

	for _, f := range files {
		line := fmt.Sprintf("umask 077; mkdir -p %s && cat > %s",
			Quote(d.cfg.RemoteKeyDir), Quote(path.Join(d.cfg.RemoteKeyDir, f.name)))
		if _, err := d.exec(ctx, host, line, bytes.NewReader(f.data)); err != nil {
			return fmt.Errorf("%w: %w", common.ErrKeyTransfer, err)
		}
	}
	return nil
}

func (d *SSHDispatcher) exec(ctx context.Context, host, line string, stdin io.Reader) (string, error) {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	fail := func(err error) error {
		return &common.RemoteCommandFailed{Host: host, Command: line, ExitCode: -1, Err: err}
	}

	client, err := d.dial(ctx, host)
	if err != nil {
		return "", fail(err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fail(fmt.Errorf("open session: %w", err))
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	session.Stdin = stdin

	done := make(chan error, 1)
	go func() { done <- session.Run(line) }()

	select {
	case <-ctx.Done():
		client.Close()
		<-done
		return stdout.String(), fail(ctx.Err())
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &common.RemoteCommandFailed{
				Host:     host,
				Command:  line,
				ExitCode: exitErr.ExitStatus(),
				Stderr:   stderr.String(),
				Err:      err,
			}
		}
		return stdout.String(), fail(err)
	}
	return stdout.String(), nil
}

func (d *SSHDispatcher) dial(ctx context.Context, host string) (*ssh.Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(d.cfg.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, d.client)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

package remote

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/logging"
)

type execCall struct {
	command string
	stdin   []byte
}

type sshHandler func(command string, stdin []byte) (stdout, stderr string, code uint32)

type testSSHServer struct {
	addr       string
	port       int
	hostKey    ssh.PublicKey
	clientKey  ed25519.PrivateKey
	mu         sync.Mutex
	calls      []execCall
	handler    sshHandler
	serverConf *ssh.ServerConfig
}

func newTestSSHServer(t *testing.T, handler sshHandler) *testSSHServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	_, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	clientSigner, err := ssh.NewSignerFromKey(clientPriv)
	require.NoError(t, err)

	s := &testSSHServer{hostKey: hostSigner.PublicKey(), clientKey: clientPriv, handler: handler}
	s.serverConf = &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if conn.User() == "yournode" && bytes.Equal(key.Marshal(), clientSigner.PublicKey().Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown key for %s", conn.User())
		},
	}
	s.serverConf.AddHostKey(hostSigner)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })

	s.addr = lis.Addr().String()
	s.port = lis.Addr().(*net.TCPAddr).Port

	go func() {
		for {
			c, err := lis.Accept()
			if err != nil {
				return
			}
			go s.serveConn(c)
		}
	}()
	return s
}

func (s *testSSHServer) serveConn(c net.Conn) {
	_, chans, reqs, err := ssh.NewServerConn(c, s.serverConf)
	if err != nil {
		c.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, chReqs, err := nc.Accept()
		if err != nil {
			continue
		}
		go func() {
			for req := range chReqs {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)

				stdin, _ := io.ReadAll(ch)
				s.mu.Lock()
				s.calls = append(s.calls, execCall{command: payload.Command, stdin: stdin})
				s.mu.Unlock()

				out, errOut, code := s.handler(payload.Command, stdin)
				_, _ = io.WriteString(ch, out)
				_, _ = io.WriteString(ch.Stderr(), errOut)
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{code}))
				_ = ch.Close()
			}
		}()
	}
}

func (s *testSSHServer) recorded() []execCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]execCall(nil), s.calls...)
}

// files writes the master's private key and a known_hosts file trusting
// hostKey for the server address.
func (s *testSSHServer) files(t *testing.T, hostKey ssh.PublicKey) (keyFile, knownHostsFile string) {
	t.Helper()
	dir := t.TempDir()

	block, err := ssh.MarshalPrivateKey(s.clientKey, "")
	require.NoError(t, err)
	keyFile = filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(block), 0o600))

	knownHostsFile = filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(s.addr)}, hostKey)
	require.NoError(t, os.WriteFile(knownHostsFile, []byte(line+"\n"), 0o600))
	return keyFile, knownHostsFile
}

func (s *testSSHServer) dispatcher(t *testing.T, timeout time.Duration) *SSHDispatcher {
	t.Helper()
	keyFile, known := s.files(t, s.hostKey)
	d, err := NewSSHDispatcher(SSHConfig{
		User:         "yournode",
		Port:         s.port,
		KeyFile:      keyFile,
		KnownHosts:   known,
		Timeout:      timeout,
		RemoteKeyDir: "/var/lib/yournode/keys",
	}, logging.Nop())
	require.NoError(t, err)
	return d
}

func TestSSHDispatcher_Run(t *testing.T) {
	srv := newTestSSHServer(t, func(cmd string, _ []byte) (string, string, uint32) {
		return "[OK] Application directory initialized\n", "", 0
	})
	d := srv.dispatcher(t, 5*time.Second)

	out, err := d.Run(context.Background(), "127.0.0.1", Init("alice", "blog"))
	require.NoError(t, err)
	assert.Equal(t, "[OK] Application directory initialized\n", out)

	calls := srv.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "yn-shard init alice blog", calls[0].command)
}

func TestSSHDispatcher_NonZeroExit(t *testing.T) {
	srv := newTestSSHServer(t, func(string, []byte) (string, string, uint32) {
		return "", "[Error] Directory already exists\n", 1
	})
	d := srv.dispatcher(t, 5*time.Second)

	_, err := d.Run(context.Background(), "127.0.0.1", Init("alice", "blog"))

	var failed *common.RemoteCommandFailed
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 1, failed.ExitCode)
	assert.Equal(t, "127.0.0.1", failed.Host)
	assert.Equal(t, "yn-shard init alice blog", failed.Command)
	assert.Contains(t, failed.Stderr, "Directory already exists")
}

func TestSSHDispatcher_InstallKeys(t *testing.T) {
	srv := newTestSSHServer(t, func(string, []byte) (string, string, uint32) { return "", "", 0 })
	d := srv.dispatcher(t, 5*time.Second)

	pair := common.KeyPair{Private: []byte("PRIVATE KEY"), Public: []byte("ssh-ed25519 AAAA alice")}
	require.NoError(t, d.InstallKeys(context.Background(), "127.0.0.1", "alice", pair))

	calls := srv.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "umask 077; mkdir -p /var/lib/yournode/keys && cat > /var/lib/yournode/keys/alice", calls[0].command)
	assert.Equal(t, []byte("PRIVATE KEY"), calls[0].stdin)
	assert.Equal(t, "umask 077; mkdir -p /var/lib/yournode/keys && cat > /var/lib/yournode/keys/alice.pub", calls[1].command)
	assert.Equal(t, []byte("ssh-ed25519 AAAA alice"), calls[1].stdin)
}

func TestSSHDispatcher_InstallKeysFailure(t *testing.T) {
	srv := newTestSSHServer(t, func(string, []byte) (string, string, uint32) {
		return "", "cat: permission denied", 1
	})
	d := srv.dispatcher(t, 5*time.Second)

	err := d.InstallKeys(context.Background(), "127.0.0.1", "alice", common.KeyPair{})
	assert.True(t, errors.Is(err, common.ErrKeyTransfer))

	var failed *common.RemoteCommandFailed
	assert.True(t, errors.As(err, &failed))
}

func TestSSHDispatcher_UnknownHostKey(t *testing.T) {
	srv := newTestSSHServer(t, func(string, []byte) (string, string, uint32) { return "", "", 0 })

	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherSigner, err := ssh.NewSignerFromKey(otherPriv)
	require.NoError(t, err)

	keyFile, known := srv.files(t, otherSigner.PublicKey())
	d, err := NewSSHDispatcher(SSHConfig{User: "yournode", Port: srv.port, KeyFile: keyFile, KnownHosts: known}, logging.Nop())
	require.NoError(t, err)

	_, err = d.Run(context.Background(), "127.0.0.1", Init("alice", "blog"))
	var failed *common.RemoteCommandFailed
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, -1, failed.ExitCode)
	assert.Empty(t, srv.recorded())
}

func TestSSHDispatcher_Timeout(t *testing.T) {
	srv := newTestSSHServer(t, func(string, []byte) (string, string, uint32) {
		time.Sleep(time.Second)
		return "", "", 0
	})
	d := srv.dispatcher(t, 200*time.Millisecond)

	_, err := d.Run(context.Background(), "127.0.0.1", Start("alice", "blog"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSSHDispatcher_ConnectionRefused(t *testing.T) {
	srv := newTestSSHServer(t, func(string, []byte) (string, string, uint32) { return "", "", 0 })
	d := srv.dispatcher(t, time.Second)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	d.cfg.Port = lis.Addr().(*net.TCPAddr).Port
	lis.Close()

	_, err = d.Run(context.Background(), "127.0.0.1", Init("alice", "blog"))
	var failed *common.RemoteCommandFailed
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, -1, failed.ExitCode)
}

func TestNewSSHDispatcher_MissingKey(t *testing.T) {
	_, err := NewSSHDispatcher(SSHConfig{KeyFile: filepath.Join(t.TempDir(), "missing")}, logging.Nop())
	assert.Error(t, err)
}

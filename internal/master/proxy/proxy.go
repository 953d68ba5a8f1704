// Package proxy renders and installs the nginx virtual host that routes an
// application's public hostnames to its port on a shard.
package proxy

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/execx"
	"github.com/thaispalmer/yn-automation/internal/filex"
	"github.com/thaispalmer/yn-automation/internal/logging"
)

// Config locates the nginx site directories and the reload command.
type Config struct {
	Available     string
	Enabled       string
	Subdomain     string
	ReloadCommand []string
}

// Manager owns the proxy files of every application on this master.
type Manager struct {
	cfg    Config
	fs     filex.Filesystem
	runner execx.Runner
	log    logging.Logger
}

// NewManager returns a Manager writing through fs and reloading nginx with
// runner.
//
// Parameters:
//
//	cfg    - site directories, public subdomain suffix and reload command
//	fs     - filesystem the virtual host files are written to
//	runner - executes cfg.ReloadCommand
//	l      - logger; nil discards output
func NewManager(cfg Config, fs filex.Filesystem, runner execx.Runner, l logging.Logger) *Manager {
	if l == nil {
		l = logging.Nop()
	}
	return &Manager{cfg: cfg, fs: fs, runner: runner, log: l}
}

func serverBlock(serverName, ip string, port int) string {
	var b strings.Builder
	b.WriteString("server {\n")
	b.WriteString("    listen 80;\n\n")
	b.WriteString("    server_name " + serverName + ";\n\n")
	b.WriteString("    location / {\n")
	b.WriteString("        proxy_pass http://" + ip + ":" + strconv.Itoa(port) + ";\n")
	b.WriteString("        proxy_http_version 1.1;\n")
	b.WriteString("        proxy_set_header Upgrade $http_upgrade;\n")
	b.WriteString("        proxy_set_header Connection 'upgrade';\n")
	b.WriteString("        proxy_set_header Host $host;\n")
	b.WriteString("        proxy_cache_bypass $http_upgrade;\n")
	b.WriteString("    }\n")
	b.WriteString("}")
	return b.String()
}

// Render returns the virtual host text. The primary block serves
// <username>-<app><subdomain>; a non-empty customDomain appends a second
// block after a blank line.
func Render(username, app, subdomain, ip string, port int, customDomain string) string {
	out := serverBlock(common.AppKey(username, app)+subdomain, ip, port)
	if customDomain != "" {
		out += "\n\n" + serverBlock(customDomain, ip, port)
	}
	return out
}

func (m *Manager) availablePath(username, app string) string {
	return filepath.Join(m.cfg.Available, common.AppKey(username, app)+".conf")
}

func (m *Manager) enabledPath(username, app string) string {
	return filepath.Join(m.cfg.Enabled, common.AppKey(username, app)+".conf")
}

// Generate writes the virtual host to the available directory, replacing
// any previous version. A customDomain that is not a plain hostname is
// rejected before anything is written.
func (m *Manager) Generate(ctx context.Context, username, app, ip string, port int, customDomain string) error {
	if customDomain != "" {
		if err := common.ValidateDomain(customDomain); err != nil {
			return fmt.Errorf("proxy: %w", err)
		}
	}
	path := m.availablePath(username, app)
	body := Render(username, app, m.cfg.Subdomain, ip, port, customDomain)
	if err := m.fs.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("proxy: write %s: %w", path, err)
	}
	m.log.Info(ctx, "proxy configuration written", "app", common.AppKey(username, app), "path", path)
	return nil
}

// Snapshot is the state of an available file before it was rewritten.
type Snapshot struct {
	path    string
	data    []byte
	existed bool
}

// Snapshot captures the current available file so it can be put back by
// Restore.
func (m *Manager) Snapshot(username, app string) (Snapshot, error) {
	path := m.availablePath(username, app)
	ok, err := m.fs.Exists(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("proxy: %w", err)
	}
	if !ok {
		return Snapshot{path: path}, nil
	}
	data, err := m.fs.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("proxy: %w", err)
	}
	return Snapshot{path: path, data: data, existed: true}, nil
}

// Restore puts back a snapshot taken earlier.
func (m *Manager) Restore(ctx context.Context, s Snapshot) error {
	if !s.existed {
		return m.fs.Remove(s.path)
	}
	if err := m.fs.WriteFile(s.path, s.data, 0o644); err != nil {
		return fmt.Errorf("proxy: restore %s: %w", s.path, err)
	}
	m.log.Info(ctx, "proxy configuration restored", "path", s.path)
	return nil
}

// Enable links the available file into the enabled directory and reloads
// the proxy. Calling it again replaces the link.
func (m *Manager) Enable(ctx context.Context, username, app string) error {
	target := m.availablePath(username, app)
	ok, err := m.fs.Exists(target)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	if !ok {
		return fmt.Errorf("proxy: %s: %w", target, common.ErrorNotFound)
	}

	link := m.enabledPath(username, app)
	if err := m.fs.Remove(link); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	if err := m.fs.Symlink(target, link); err != nil {
		return fmt.Errorf("proxy: link %s: %w", link, err)
	}
	m.log.Info(ctx, "proxy site enabled", "app", common.AppKey(username, app))
	return m.Reload(ctx)
}

// Disable removes the enabled link and reloads the proxy. A missing link is
// not an error.
func (m *Manager) Disable(ctx context.Context, username, app string) error {
	if err := m.fs.Remove(m.enabledPath(username, app)); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	m.log.Info(ctx, "proxy site disabled", "app", common.AppKey(username, app))
	return m.Reload(ctx)
}

// Remove deletes the available file.
func (m *Manager) Remove(ctx context.Context, username, app string) error {
	if err := m.fs.Remove(m.availablePath(username, app)); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	m.log.Info(ctx, "proxy configuration removed", "app", common.AppKey(username, app))
	return nil
}

// Reload runs the configured reload command, if any.
func (m *Manager) Reload(ctx context.Context) error {
	if len(m.cfg.ReloadCommand) == 0 {
		return nil
	}
	cmd := execx.Cmd{Name: m.cfg.ReloadCommand[0], Args: m.cfg.ReloadCommand[1:]}
	if _, err := m.runner.Run(ctx, cmd); err != nil {
		m.log.Error(ctx, "proxy reload failed", "cmd", cmd.String(), "err", err)
		return fmt.Errorf("%w: %w", common.ErrProxyReload, err)
	}
	return nil
}

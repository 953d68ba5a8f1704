// Package agent implements the shard side of an application's lifecycle:
// its directory, its code checkout, its systemd unit and its deploy keys.
//
// Every operation checks its precondition on disk and fails closed when it
// does not hold, so a half-provisioned application is reported instead of
// being silently repaired.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/thaispalmer/yn-automation/internal/agentrpc"
	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/execx"
	"github.com/thaispalmer/yn-automation/internal/filex"
	"github.com/thaispalmer/yn-automation/internal/gitx"
	"github.com/thaispalmer/yn-automation/internal/logging"
	"github.com/thaispalmer/yn-automation/internal/remote"
	"github.com/thaispalmer/yn-automation/internal/systemd"
)

// Lifecycle states reported by Status.
const (
	StateAbsent      = "absent"
	StateInitialized = "initialized"
	StateCloned      = "cloned"
	StateConfigured  = "configured"
	StateEnabled     = "enabled"
	StateRunning     = "running"
)

const manifestFile = "package.json"

// Config is the part of the shard configuration the agent works with.
type Config struct {
	ApplicationPath string
	UserKeys        string
	ServicePath     string
	NodeExec        string
	NpmExec         string
	GitBranch       string
	ServiceUser     string
	ServiceGroup    string
}

// Agent performs application lifecycle operations on the local shard.
type Agent struct {
	cfg      Config
	fs       filex.Filesystem
	runner   execx.Runner
	services systemd.ServiceManager
	logger   logging.Logger
	locks    *keyedMutex
}

var _ agentrpc.Executor = (*Agent)(nil)

// New constructs an Agent.
//
// Parameters:
//
//	cfg      - application, key and unit directories plus node/npm/git settings
//	fsys     - filesystem the application tree and units live on
//	runner   - runs git and npm
//	services - systemd unit control
//	l        - logger
func New(cfg Config, fsys filex.Filesystem, runner execx.Runner, services systemd.ServiceManager, l logging.Logger) *Agent {
	return &Agent{
		cfg:      cfg,
		fs:       fsys,
		runner:   runner,
		services: services,
		logger:   l.With("module", "agent"),
		locks:    newKeyedMutex(),
	}
}

func (a *Agent) appDir(user, app string) string {
	return filepath.Join(a.cfg.ApplicationPath, user, app)
}

func (a *Agent) unitPath(user, app string) string {
	return filepath.Join(a.cfg.ServicePath, common.ServiceName(user, app))
}

func (a *Agent) keyFile(user string) string {
	return filepath.Join(a.cfg.UserKeys, user)
}

// Execute runs op with its positional arguments and returns the lines to
// report to the caller.
func (a *Agent) Execute(ctx context.Context, op string, args []string) (string, error) {
	switch op {
	case remote.OpInit, remote.OpPull, remote.OpStart, remote.OpStop, remote.OpDestroy, remote.OpStatus:
		if len(args) != 2 {
			return "", fmt.Errorf("%w: usage: %s <username> <app_name>", common.ErrInvalidArgument, op)
		}
	case remote.OpClone:
		if len(args) != 3 {
			return "", fmt.Errorf("%w: usage: clone <username> <app_name> <repository>", common.ErrInvalidArgument)
		}
	case remote.OpUpdate:
		if len(args) != 3 {
			return "", fmt.Errorf("%w: usage: update <username> <app_name> <port>", common.ErrInvalidArgument)
		}
	default:
		return "", fmt.Errorf("%w: unknown operation %q", common.ErrInvalidArgument, op)
	}

	user, app := common.Normalize(args[0]), common.Normalize(args[1])
	if err := common.ValidateUsername(user); err != nil {
		return "", err
	}
	if err := common.ValidateName("application name", app); err != nil {
		return "", err
	}

	if op == remote.OpStatus {
		return a.Status(ctx, user, app)
	}

	unlock := a.locks.Lock(common.AppKey(user, app))
	defer unlock()

	switch op {
	case remote.OpInit:
		return a.Init(ctx, user, app)
	case remote.OpClone:
		return a.Clone(ctx, user, app, args[2])
	case remote.OpPull:
		return a.Pull(ctx, user, app)
	case remote.OpUpdate:
		port, err := strconv.Atoi(args[2])
		if err != nil || port <= 0 || port > 65535 {
			return "", fmt.Errorf("%w: invalid port %q", common.ErrInvalidArgument, args[2])
		}
		return a.Update(ctx, user, app, port)
	case remote.OpStart:
		return a.Start(ctx, user, app)
	case remote.OpStop:
		return a.Stop(ctx, user, app)
	default:
		return a.Destroy(ctx, user, app)
	}
}

// report logs each step and collects it for the caller.
type report struct {
	ctx    context.Context
	logger logging.Logger
	lines  []string
}

func (a *Agent) report(ctx context.Context, user, app string) *report {
	return &report{ctx: ctx, logger: a.logger.With("user", user, "app", app)}
}

func (r *report) ok(msg string) {
	r.logger.Info(r.ctx, "[OK] "+msg)
	r.lines = append(r.lines, msg)
}

func (r *report) String() string {
	return strings.Join(r.lines, "\n")
}

func (a *Agent) requireDir(user, app string) (string, error) {
	dir := a.appDir(user, app)
	ok, err := a.fs.IsDir(dir)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", common.ErrNotFound, dir)
	}
	return dir, nil
}

// Init creates the application directory.
func (a *Agent) Init(ctx context.Context, user, app string) (string, error) {
	dir := a.appDir(user, app)
	exists, err := a.fs.Exists(dir)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: %s", common.ErrAlreadyExists, dir)
	}

	if err := a.fs.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", err
	}
	if err := a.fs.Mkdir(dir, 0o755); err != nil {
		return "", err
	}

	r := a.report(ctx, user, app)
	r.ok("Application directory initialized")
	return r.String(), nil
}

func (a *Agent) repository(ctx context.Context, user, dir string) (*gitx.Repository, error) {
	key := a.keyFile(user)
	ok, err := a.fs.Exists(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		a.logger.Warn(ctx, "no deploy key installed, using ambient ssh configuration", "user", user, "key", key)
		key = ""
	}
	return gitx.NewRepository(a.runner, dir, key), nil
}

// Clone replaces the application files with a fresh clone of repository.
func (a *Agent) Clone(ctx context.Context, user, app, repository string) (string, error) {
	if strings.TrimSpace(repository) == "" {
		return "", fmt.Errorf("%w: empty repository", common.ErrInvalidArgument)
	}
	dir, err := a.requireDir(user, app)
	if err != nil {
		return "", err
	}

	r := a.report(ctx, user, app)
	if err := a.fs.RemoveContents(dir); err != nil {
		return "", fmt.Errorf("could not remove application files: %w", err)
	}
	r.ok("Removed application files")

	repo, err := a.repository(ctx, user, dir)
	if err != nil {
		return "", err
	}
	if err := repo.Clone(ctx, repository); err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrCloneFailed, err)
	}
	r.ok("Repository cloned successfully")
	a.reportHead(ctx, r, repo)
	return r.String(), nil
}

// Pull discards local changes and moves the checkout to the configured
// branch of origin.
func (a *Agent) Pull(ctx context.Context, user, app string) (string, error) {
	dir, err := a.requireDir(user, app)
	if err != nil {
		return "", err
	}
	repo, err := a.repository(ctx, user, dir)
	if err != nil {
		return "", err
	}
	if err := repo.Pull(ctx, a.cfg.GitBranch); err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrPullFailed, err)
	}

	r := a.report(ctx, user, app)
	r.ok("Application files updated successfully")
	a.reportHead(ctx, r, repo)
	return r.String(), nil
}

// reportHead adds the checked out commit to r. A checkout without commits
// is not an error.
func (a *Agent) reportHead(ctx context.Context, r *report, repo *gitx.Repository) {
	head, err := repo.Head(ctx)
	if err != nil {
		r.logger.Warn(ctx, "could not read HEAD", "error", err)
		return
	}
	if len(head) > 12 {
		head = head[:12]
	}
	if head != "" {
		r.ok("Checked out " + head)
	}
}

type manifest struct {
	Main         string            `json:"main"`
	Dependencies map[string]string `json:"dependencies"`
}

func (a *Agent) readManifest(dir string) (*manifest, error) {
	path := filepath.Join(dir, manifestFile)
	data, err := a.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrManifestMissing
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	m := &manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrManifestInvalid, err)
	}
	m.Main = strings.TrimSpace(m.Main)
	if m.Main == "" {
		return nil, fmt.Errorf("%w: no main script", common.ErrManifestInvalid)
	}
	if !filepath.IsLocal(m.Main) {
		return nil, fmt.Errorf("%w: main script %q is outside the application", common.ErrManifestInvalid, m.Main)
	}
	return m, nil
}

// Update writes the service unit for the application's main script and
// installs its dependencies.
func (a *Agent) Update(ctx context.Context, user, app string, port int) (string, error) {
	dir, err := a.requireDir(user, app)
	if err != nil {
		return "", err
	}

	m, err := a.readManifest(dir)
	if err != nil {
		return "", err
	}
	r := a.report(ctx, user, app)
	r.ok("Read main script from package.json")

	unit := renderUnit(unitParams{
		App:        app,
		NodeExec:   a.cfg.NodeExec,
		MainScript: filepath.Join(dir, m.Main),
		User:       a.cfg.ServiceUser,
		Group:      a.cfg.ServiceGroup,
		Port:       port,
		WorkingDir: dir,
	})
	if err := a.fs.MkdirAll(a.cfg.ServicePath, 0o755); err != nil {
		return "", err
	}
	if err := a.fs.WriteFile(a.unitPath(user, app), []byte(unit), 0o644); err != nil {
		return "", err
	}
	r.ok("Created service configuration")

	if err := a.services.DaemonReload(ctx); err != nil {
		return "", err
	}
	r.ok("Reloaded systemd services list")

	if len(m.Dependencies) > 0 {
		if _, err := a.runner.Run(ctx, execx.Cmd{Name: a.cfg.NpmExec, Args: []string{"install"}, Dir: dir}); err != nil {
			return "", fmt.Errorf("npm install: %w", err)
		}
		r.ok("NPM packages installed successfully")
	}
	return r.String(), nil
}

func (a *Agent) hasUnit(user, app string) (bool, error) {
	return a.fs.Exists(a.unitPath(user, app))
}

// Start enables the application's unit at boot and starts it.
func (a *Agent) Start(ctx context.Context, user, app string) (string, error) {
	if _, err := a.requireDir(user, app); err != nil {
		return "", err
	}
	ok, err := a.hasUnit(user, app)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", common.ErrNotConfigured
	}

	unit := common.ServiceName(user, app)
	r := a.report(ctx, user, app)
	if err := a.services.Enable(ctx, unit); err != nil {
		return "", err
	}
	r.ok("Enabled application start on boot")
	if err := a.services.Start(ctx, unit); err != nil {
		return "", err
	}
	r.ok("Application started")
	return r.String(), nil
}

// Stop stops the application's unit and disables it at boot.
func (a *Agent) Stop(ctx context.Context, user, app string) (string, error) {
	if _, err := a.requireDir(user, app); err != nil {
		return "", err
	}

	unit := common.ServiceName(user, app)
	r := a.report(ctx, user, app)
	if err := a.services.Stop(ctx, unit); err != nil {
		return "", err
	}
	r.ok("Application stopped")
	if err := a.services.Disable(ctx, unit); err != nil {
		return "", err
	}
	r.ok("Disabled application start on boot")
	return r.String(), nil
}

// Destroy removes every trace of the application. It succeeds when the
// application is already gone.
func (a *Agent) Destroy(ctx context.Context, user, app string) (string, error) {
	r := a.report(ctx, user, app)

	ok, err := a.hasUnit(user, app)
	if err != nil {
		return "", err
	}
	if ok {
		unit := common.ServiceName(user, app)
		if err := a.services.Stop(ctx, unit); err != nil {
			r.logger.Warn(ctx, "stop failed during destroy", "error", err)
		}
		if err := a.services.Disable(ctx, unit); err != nil {
			r.logger.Warn(ctx, "disable failed during destroy", "error", err)
		}
		if err := a.fs.Remove(a.unitPath(user, app)); err != nil {
			return "", err
		}
		if err := a.services.DaemonReload(ctx); err != nil {
			return "", err
		}
		r.ok("Removed service configuration")
	}

	if err := a.fs.RemoveAll(a.appDir(user, app)); err != nil {
		return "", err
	}
	r.ok("Application removed")
	return r.String(), nil
}

// Status derives the lifecycle state from disk and systemd. A stopped
// application reports as configured.
func (a *Agent) Status(ctx context.Context, user, app string) (string, error) {
	dir := a.appDir(user, app)
	ok, err := a.fs.IsDir(dir)
	if err != nil {
		return "", err
	}
	if !ok {
		return StateAbsent, nil
	}

	hasUnit, err := a.hasUnit(user, app)
	if err != nil {
		return "", err
	}
	if !hasUnit {
		return a.checkoutState(dir)
	}

	unit := common.ServiceName(user, app)
	active, err := a.services.IsActive(ctx, unit)
	if err != nil {
		return "", err
	}
	if active == "active" {
		return StateRunning, nil
	}
	enabled, err := a.services.IsEnabled(ctx, unit)
	if err != nil {
		return "", err
	}
	if enabled == "enabled" {
		return StateEnabled, nil
	}
	return StateConfigured, nil
}

func (a *Agent) checkoutState(dir string) (string, error) {
	for _, marker := range []string{".git", manifestFile} {
		ok, err := a.fs.Exists(filepath.Join(dir, marker))
		if err != nil {
			return "", err
		}
		if ok {
			return StateCloned, nil
		}
	}
	return StateInitialized, nil
}

// InstallKeys writes a user's deploy key pair readable by the owner only.
func (a *Agent) InstallKeys(ctx context.Context, username string, pair common.KeyPair) error {
	user := common.Normalize(username)
	if err := common.ValidateUsername(user); err != nil {
		return err
	}

	unlock := a.locks.Lock("keys/" + user)
	defer unlock()

	if err := a.fs.MkdirAll(a.cfg.UserKeys, 0o700); err != nil {
		return fmt.Errorf("%w: %w", common.ErrKeyTransfer, err)
	}
	key := a.keyFile(user)
	if err := a.fs.WriteFile(key, pair.Private, 0o600); err != nil {
		return fmt.Errorf("%w: %w", common.ErrKeyTransfer, err)
	}
	if err := a.fs.WriteFile(key+".pub", pair.Public, 0o600); err != nil {
		return fmt.Errorf("%w: %w", common.ErrKeyTransfer, err)
	}

	a.logger.Info(ctx, "[OK] Deploy keys installed", "user", user)
	return nil
}

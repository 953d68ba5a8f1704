// Package master wires the yn-master command: configuration, logging, the
// store, the shard transport and the services behind the command router.
package master

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/thaispalmer/yn-automation/internal/execx"
	"github.com/thaispalmer/yn-automation/internal/filex"
	"github.com/thaispalmer/yn-automation/internal/logging"
	"github.com/thaispalmer/yn-automation/internal/master/cli"
	"github.com/thaispalmer/yn-automation/internal/master/config"
	"github.com/thaispalmer/yn-automation/internal/master/keys"
	"github.com/thaispalmer/yn-automation/internal/master/ports"
	"github.com/thaispalmer/yn-automation/internal/master/proxy"
	"github.com/thaispalmer/yn-automation/internal/master/repositories/repomanager"
	"github.com/thaispalmer/yn-automation/internal/master/services"
	"github.com/thaispalmer/yn-automation/internal/remote"
)

// Seams for tests.
var (
	openDB         = repomanager.Open
	newRepoManager = repomanager.NewPostgresRepositoryManager
	loadEnv        = config.OSEnv
)

// App is one yn-master invocation: configuration, store and command router.
type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	router *cli.Router
}

// NewApp connects to the store, applies migrations and builds the services.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger, rep *cli.Reporter) (*App, error) {
	db, err := openDB(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := newRepoManager()
	if cfg.RunMigrations {
		if err := rm.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	ks, err := newKeyStore(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	pm := proxy.NewManager(proxy.Config{
		Available:     cfg.ProxyAvailable,
		Enabled:       cfg.ProxyEnabled,
		Subdomain:     cfg.Subdomain,
		ReloadCommand: cfg.ProxyReloadCommand,
	}, filex.OS{}, execx.OSRunner{}, logger.With("module", "proxy"))

	svc := cli.Services{
		Users:  services.NewUserService(db, rm, ks, logger.With("module", "users")),
		Shards: services.NewShardService(db, rm, logger.With("module", "shards")),
		Plans:  services.NewPlanService(db, rm, logger.With("module", "plans")),
		Applications: services.NewApplicationService(db, rm, dispatcher, pm, ks,
			ports.NewAllocator(cfg.PortMin, cfg.PortMax), logger.With("module", "applications")),
	}

	return &App{config: cfg, logger: logger, db: db, router: cli.NewRouter(svc, rep)}, nil
}

func newKeyStore(ctx context.Context, cfg *config.Config) (keys.Store, error) {
	var ks keys.Store = keys.NewFileStore(cfg.UserKeys, filex.OS{})
	if cfg.Keys.Backend == config.KeysBackendS3 {
		s3, err := keys.NewS3Store(ctx, cfg.Keys.S3)
		if err != nil {
			return nil, err
		}
		ks = s3
	}
	if cfg.Keys.Passphrase != "" {
		ks = keys.NewSealedStore(ks, cfg.Keys.Passphrase)
	}
	return ks, nil
}

func newDispatcher(cfg *config.Config, logger logging.Logger) (remote.Dispatcher, error) {
	if cfg.Transport == config.TransportGRPC {
		return remote.NewGRPCDispatcher(remote.GRPCConfig{
			Port:     cfg.Agent.Port,
			Secret:   cfg.Agent.Secret,
			TokenTTL: cfg.Agent.TokenTTL,
			Timeout:  cfg.Agent.Timeout,
		}, logger), nil
	}
	return remote.NewSSHDispatcher(remote.SSHConfig{
		User:                  cfg.SSH.User,
		Port:                  cfg.SSH.Port,
		KeyFile:               cfg.SSH.KeyFile,
		KnownHosts:            cfg.SSH.KnownHosts,
		InsecureIgnoreHostKey: cfg.SSH.InsecureIgnoreHostKey,
		Timeout:               cfg.SSH.Timeout,
		RemoteKeyDir:          cfg.UserKeys,
		ShardBinary:           cfg.SSH.ShardBinary,
	}, logger)
}

// Run executes a parsed command.
func (app *App) Run(ctx context.Context, inv *cli.Invocation) error {
	return app.router.Execute(ctx, inv)
}

// Close releases the database pool.
func (app *App) Close() error {
	return app.db.Close()
}

// Main runs one yn-master invocation and returns the process exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	env, err := loadEnv(".env")
	if err != nil {
		fmt.Fprintln(stderr, "[Error]", err)
		return 1
	}

	cfg, positional, err := config.Load(args, env)
	if err != nil {
		fmt.Fprintln(stderr, "[Error]", err)
		return 1
	}

	if len(positional) == 1 && positional[0] == "help" {
		fmt.Fprint(stdout, cli.Usage())
		return 0
	}

	inv, err := cli.Parse(positional)
	if err != nil {
		if len(positional) > 0 {
			fmt.Fprintln(stderr, "[Error]", cli.Message(err))
		}
		fmt.Fprint(stderr, cli.Usage())
		return 1
	}

	logger, closer, err := logging.New(logging.Options{LogFile: cfg.LogFile, Verbose: cfg.Verbose, Stderr: stderr})
	if err != nil {
		fmt.Fprintln(stderr, "[Error]", err)
		return 1
	}
	defer closer.Close()

	rep := cli.NewReporter(stdout, cfg.Output, logger)

	app, err := NewApp(ctx, cfg, logger, rep)
	if err != nil {
		rep.Fail(ctx, err)
		return 1
	}
	defer app.Close()

	if err := app.Run(ctx, inv); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn(ctx, "interrupted")
		}
		return 1
	}
	return 0
}

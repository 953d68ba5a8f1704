// Package shard wires the yn-shard command: one-shot lifecycle operations
// invoked by the master over SSH, and "serve", the long-running agent RPC
// server used by the gRPC transport.
package shard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"unicode"
	"unicode/utf8"

	"github.com/thaispalmer/yn-automation/internal/agentrpc"
	"github.com/thaispalmer/yn-automation/internal/execx"
	"github.com/thaispalmer/yn-automation/internal/filex"
	"github.com/thaispalmer/yn-automation/internal/logging"
	"github.com/thaispalmer/yn-automation/internal/remote"
	"github.com/thaispalmer/yn-automation/internal/shard/agent"
	"github.com/thaispalmer/yn-automation/internal/shard/config"
	"github.com/thaispalmer/yn-automation/internal/systemd"
)

const opServe = "serve"

// Seams for tests.
var (
	loadEnv       = config.OSEnv
	newRunner     = func() execx.Runner { return execx.OSRunner{} }
	notifySignals = signal.Notify
	stopSignals   = signal.Stop
)

// App is one yn-shard invocation.
type App struct {
	config *config.Config
	logger logging.Logger
	agent  *agent.Agent
}

// NewApp wires the agent against the real filesystem, git, npm and systemctl.
func NewApp(cfg *config.Config, logger logging.Logger) *App {
	runner := newRunner()
	a := agent.New(agent.Config{
		ApplicationPath: cfg.ApplicationPath,
		UserKeys:        cfg.UserKeys,
		ServicePath:     cfg.ServicePath,
		NodeExec:        cfg.NodeExec,
		NpmExec:         cfg.NpmExec,
		GitBranch:       cfg.GitBranch,
		ServiceUser:     cfg.ServiceUser,
		ServiceGroup:    cfg.ServiceGroup,
	}, filex.OS{}, runner, systemd.New(runner, ""), logger)

	return &App{config: cfg, logger: logger, agent: a}
}

// initSignalHandler cancels the serve context on SIGINT, SIGTERM or
// SIGQUIT.
func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	notifySignals(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer stopSignals(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	s := agentrpc.NewServer(app.config.Listen, app.logger, app.agent, app.config.AgentSecret)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return err
	}
	return nil
}

// Serve runs the agent RPC server until ctx is done or a signal arrives.
func (app *App) Serve(ctx context.Context) error {
	if err := app.config.ValidateServe(); err != nil {
		return err
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting shard agent...")
	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup
	var serveErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		serveErr = app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()
	return serveErr
}

// Run executes one lifecycle operation.
func (app *App) Run(ctx context.Context, op string, args []string) (string, error) {
	return app.agent.Execute(ctx, op, args)
}

// Usage is the shard command reference.
func Usage() string {
	var b strings.Builder
	b.WriteString("YourNode - Shard Automation\n\n")
	b.WriteString("   init <username> <app_name> - Initialize application folder\n")
	b.WriteString("   clone <username> <app_name> <repository> - Clones application remote repository\n")
	b.WriteString("   pull <username> <app_name> - Pulls application files from repository\n")
	b.WriteString("   update <username> <app_name> <port> - Update application entry on system\n")
	b.WriteString("   start <username> <app_name> - Starts an application\n")
	b.WriteString("   stop <username> <app_name> - Stops an application\n")
	b.WriteString("   destroy <username> <app_name> - Removes an application from the shard\n")
	b.WriteString("   status <username> <app_name> - Shows the lifecycle state of an application\n")
	b.WriteString("   serve - Runs the agent RPC server\n\n")
	b.WriteString("Flags: -c <config file>, -l <listen address>, -v\n")
	return b.String()
}

func known(op string) bool {
	switch op {
	case remote.OpInit, remote.OpClone, remote.OpPull, remote.OpUpdate,
		remote.OpStart, remote.OpStop, remote.OpDestroy, remote.OpStatus, opServe:
		return true
	}
	return false
}

// message is err's text with the first letter capitalized.
func message(err error) string {
	s := err.Error()
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Main runs one yn-shard invocation and returns the process exit code.
// Status lines go to stdout, errors to stderr so the master can capture
// them over SSH.
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
		fmt.Fprint(stdout, Usage())
		return 0
	}
	if len(positional) == 0 || !known(positional[0]) {
		if len(positional) > 0 {
			fmt.Fprintln(stderr, "[Error] Unknown command:", strings.Join(positional, " "))
		}
		fmt.Fprint(stderr, Usage())
		return 1
	}

	logger, closer, err := logging.New(logging.Options{LogFile: cfg.LogFile, Verbose: cfg.Verbose, Stderr: stderr})
	if err != nil {
		fmt.Fprintln(stderr, "[Error]", err)
		return 1
	}
	defer closer.Close()

	app := NewApp(cfg, logger)
	op, opArgs := positional[0], positional[1:]

	if op == opServe {
		if err := app.Serve(ctx); err != nil {
			logger.Error(ctx, "[Error] "+message(err))
			fmt.Fprintln(stderr, "[Error]", message(err))
			return 1
		}
		return 0
	}

	out, err := app.Run(ctx, op, opArgs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn(ctx, "interrupted", "op", op)
		}
		logger.Error(ctx, "[Error] "+message(err), "op", op, "args", opArgs)
		fmt.Fprintln(stderr, "[Error]", message(err))
		return 1
	}

	if op == remote.OpStatus {
		fmt.Fprintln(stdout, out)
		return 0
	}
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			fmt.Fprintln(stdout, "[OK]", line)
		}
	}
	return 0
}

// Package systemd manages application units through systemctl.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thaispalmer/yn-automation/internal/execx"
)

// ServiceManager is the process-supervision capability used by the shard
// agent.
type ServiceManager interface {
	DaemonReload(ctx context.Context) error
	Enable(ctx context.Context, unit string) error
	Disable(ctx context.Context, unit string) error
	Start(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	// IsActive returns the unit's active state ("active", "inactive",
	// "failed", ...). A non-active unit is not an error.
	IsActive(ctx context.Context, unit string) (string, error)
	// IsEnabled returns the unit's enablement state ("enabled",
	// "disabled", ...).
	IsEnabled(ctx context.Context, unit string) (string, error)
}

// Systemctl drives systemd by running the systemctl binary.
type Systemctl struct {
	runner execx.Runner
	bin    string
}

var _ ServiceManager = (*Systemctl)(nil)

// New returns a Systemctl using runner. bin defaults to "systemctl".
func New(runner execx.Runner, bin string) *Systemctl {
	if bin == "" {
		bin = "systemctl"
	}
	return &Systemctl{runner: runner, bin: bin}
}

func (s *Systemctl) run(ctx context.Context, args ...string) (string, error) {
	res, err := s.runner.Run(ctx, execx.Cmd{Name: s.bin, Args: args})
	if err != nil {
		return res.Stdout, fmt.Errorf("systemd: %w", err)
	}
	return res.Stdout, nil
}

func (s *Systemctl) DaemonReload(ctx context.Context) error {
	_, err := s.run(ctx, "daemon-reload")
	return err
}

func (s *Systemctl) Enable(ctx context.Context, unit string) error {
	_, err := s.run(ctx, "enable", unit)
	return err
}

func (s *Systemctl) Disable(ctx context.Context, unit string) error {
	_, err := s.run(ctx, "disable", unit)
	return err
}

func (s *Systemctl) Start(ctx context.Context, unit string) error {
	_, err := s.run(ctx, "start", unit)
	return err
}

func (s *Systemctl) Stop(ctx context.Context, unit string) error {
	_, err := s.run(ctx, "stop", unit)
	return err
}

// IsActive returns the state printed by "systemctl is-active", which is
// reported even when systemctl exits non-zero.
func (s *Systemctl) IsActive(ctx context.Context, unit string) (string, error) {
	return s.query(ctx, "is-active", unit)
}

// IsEnabled is IsActive for "systemctl is-enabled".
func (s *Systemctl) IsEnabled(ctx context.Context, unit string) (string, error) {
	return s.query(ctx, "is-enabled", unit)
}

// query runs an is-* verb. These exit non-zero for every negative answer
// and still print the state.
func (s *Systemctl) query(ctx context.Context, verb, unit string) (string, error) {
	out, err := s.run(ctx, verb, unit)
	state := strings.TrimSpace(out)

	var exitErr *execx.ExitError
	if err != nil && errors.As(err, &exitErr) && state != "" {
		return state, nil
	}
	if err != nil {
		return "", err
	}
	return state, nil
}

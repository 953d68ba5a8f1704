// Package execx runs host commands (systemctl, git, npm, nginx) with captured
// output so failures can be reported with the command's stderr.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Cmd describes one command invocation.
type Cmd struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string // appended to the current environment
	Stdin io.Reader
}

func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the captured output of a finished command.
type Result struct {
	Stdout string
	Stderr string
}

// ExitError is returned when a command ran and exited non-zero.
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Cmd, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// OSRunner runs commands as child processes.
type OSRunner struct{}

var _ Runner = OSRunner{}

func (OSRunner) Run(ctx context.Context, c Cmd) (Result, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, c.Name, c.Args...)
	command.Dir = c.Dir
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.Stdin = c.Stdin
	if len(c.Env) > 0 {
		command.Env = append(os.Environ(), c.Env...)
	}

	err := command.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, &ExitError{Cmd: c.String(), Code: exitErr.ExitCode(), Stderr: res.Stderr}
		}
		return res, fmt.Errorf("%s: %w", c.String(), err)
	}
	return res, nil
}

// Package gitx provides the git operations the shard agent needs to fetch
// application code with a per-user deploy key. Commands run through an
// execx.Runner and target the repository directory via "git -C".
package gitx

import (
	"context"
	"fmt"
	"strings"

	"github.com/thaispalmer/yn-automation/internal/execx"
)

// Repository is a working tree at dir, accessed with the private key at
// keyFile. An empty keyFile uses the ambient ssh configuration.
type Repository struct {
	runner  execx.Runner
	dir     string
	keyFile string
}

// NewRepository returns a Repository for the working tree at dir.
func NewRepository(runner execx.Runner, dir, keyFile string) *Repository {
	return &Repository{runner: runner, dir: dir, keyFile: keyFile}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// SSHCommand is the GIT_SSH_COMMAND value that forces git to use keyFile.
func SSHCommand(keyFile string) string {
	return fmt.Sprintf("ssh -i %s -o IdentitiesOnly=yes -o StrictHostKeyChecking=accept-new", keyFile)
}

func (r *Repository) env() []string {
	if r.keyFile == "" {
		return nil
	}
	return []string{"GIT_SSH_COMMAND=" + SSHCommand(r.keyFile)}
}

// Run executes a git command in the repository and returns stdout.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-C", r.dir}, args...)
	res, err := r.runner.Run(ctx, execx.Cmd{Name: "git", Args: full, Env: r.env()})
	if err != nil {
		return "", fmt.Errorf("git %s in %s: %w", strings.Join(args, " "), r.dir, err)
	}
	return res.Stdout, nil
}

// Clone clones remote into the repository directory, which must be empty.
func (r *Repository) Clone(ctx context.Context, remote string) error {
	_, err := r.runner.Run(ctx, execx.Cmd{
		Name: "git",
		Args: []string{"clone", remote, r.dir},
		Env:  r.env(),
	})
	if err != nil {
		return fmt.Errorf("git clone %s: %w", remote, err)
	}
	return nil
}

// Pull discards local changes and moves the working tree to origin/branch.
func (r *Repository) Pull(ctx context.Context, branch string) error {
	steps := [][]string{
		{"clean", "-fd"},
		{"fetch", "origin"},
		{"reset", "--hard", "origin/" + branch},
	}
	for _, args := range steps {
		if _, err := r.Run(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

// Head returns the commit the working tree is at.
func (r *Repository) Head(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Package remote delivers shard agent commands from the master to a shard,
// either over SSH (running the yn-shard binary) or over the agent's gRPC
// service.
package remote

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultShardBinary is the agent executable invoked over SSH.
const DefaultShardBinary = "yn-shard"

// Shard agent operations.
const (
	OpInit    = "init"
	OpClone   = "clone"
	OpPull    = "pull"
	OpUpdate  = "update"
	OpStart   = "start"
	OpStop    = "stop"
	OpDestroy = "destroy"
	OpStatus  = "status"
)

// Command is one shard agent operation with its positional arguments.
type Command struct {
	Op   string
	Args []string
}

func Init(user, app string) Command    { return Command{Op: OpInit, Args: []string{user, app}} }
func Pull(user, app string) Command    { return Command{Op: OpPull, Args: []string{user, app}} }
func Start(user, app string) Command   { return Command{Op: OpStart, Args: []string{user, app}} }
func Stop(user, app string) Command    { return Command{Op: OpStop, Args: []string{user, app}} }
func Destroy(user, app string) Command { return Command{Op: OpDestroy, Args: []string{user, app}} }
func Status(user, app string) Command  { return Command{Op: OpStatus, Args: []string{user, app}} }

func Clone(user, app, repository string) Command {
	return Command{Op: OpClone, Args: []string{user, app, repository}}
}

func Update(user, app string, port int) Command {
	return Command{Op: OpUpdate, Args: []string{user, app, strconv.Itoa(port)}}
}

// Line renders the command as a shell command line for bin.
func (c Command) Line(bin string) string {
	parts := make([]string, 0, len(c.Args)+2)
	parts = append(parts, Quote(bin), Quote(c.Op))
	for _, a := range c.Args {
		parts = append(parts, Quote(a))
	}
	return strings.Join(parts, " ")
}

func (c Command) String() string {
	return c.Line(DefaultShardBinary)
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// Quote returns s quoted for a POSIX shell. Words that need no quoting are
// returned as is.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

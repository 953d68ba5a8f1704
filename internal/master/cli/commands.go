package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUsage means the arguments match no command.
var ErrUsage = errors.New("unknown command")

type handler func(ctx context.Context, r *Router, args []string) error

// command is one row of the command table. Path segments written as
// <name> capture an argument; optional trailing arguments follow them.
type command struct {
	path     []string
	optional []string
	summary  string
	run      handler
}

var commands = []command{
	{path: []string{"create", "user", "<first>", "<last>", "<auth_token>", "<email>", "<username>"}, summary: "Creates a user", run: createUser},
	{path: []string{"create", "app", "<user_id>", "<app_name>", "<plan>"}, summary: "Creates an application", run: createApp},
	{path: []string{"create", "shard", "<name>", "<hostname>", "<ip>", "<limit>"}, summary: "Creates a shard", run: createShard},
	{path: []string{"create", "plan", "<name>", "<price>", "<cycle>"}, summary: "Creates a plan", run: createPlan},
	{path: []string{"app", "<app_id>", "setDomain"}, optional: []string{"<custom_domain>"}, summary: "Sets or clears the custom domain", run: setDomain},
	{path: []string{"app", "<app_id>", "enable"}, summary: "Enables the application on the proxy", run: enableApp},
	{path: []string{"app", "<app_id>", "disable"}, summary: "Disables the application on the proxy", run: disableApp},
	{path: []string{"app", "<app_id>", "update"}, summary: "Updates settings and dependencies", run: updateApp},
	{path: []string{"app", "<app_id>", "deploy", "<repository>"}, summary: "Clones a repository into the application", run: deployApp},
	{path: []string{"app", "<app_id>", "pull"}, summary: "Pulls the latest code", run: pullApp},
	{path: []string{"app", "<app_id>", "start"}, summary: "Starts the application", run: startApp},
	{path: []string{"app", "<app_id>", "stop"}, summary: "Stops the application", run: stopApp},
	{path: []string{"app", "<app_id>", "status"}, summary: "Shows the application state on its shard", run: statusApp},
	{path: []string{"list", "shards"}, summary: "Lists shards", run: listShards},
	{path: []string{"list", "shards", "usage"}, summary: "Lists shards by usage", run: listShardUsage},
	{path: []string{"list", "users"}, summary: "Lists users", run: listUsers},
	{path: []string{"list", "apps"}, optional: []string{"<user_id>"}, summary: "Lists applications", run: listApps},
	{path: []string{"list", "plans"}, summary: "Lists plans", run: listPlans},
}

func isPlaceholder(seg string) bool {
	return strings.HasPrefix(seg, "<") && strings.HasSuffix(seg, ">")
}

func (c *command) match(args []string) ([]string, bool) {
	if len(args) < len(c.path) || len(args) > len(c.path)+len(c.optional) {
		return nil, false
	}
	var captured []string
	for i, seg := range c.path {
		if isPlaceholder(seg) {
			captured = append(captured, args[i])
			continue
		}
		if args[i] != seg {
			return nil, false
		}
	}
	return append(captured, args[len(c.path):]...), true
}

func (c *command) usage() string {
	parts := append([]string{}, c.path...)
	for _, o := range c.optional {
		parts = append(parts, "["+o+"]")
	}
	return strings.Join(parts, " ")
}

// Invocation is a parsed command line ready to run.
type Invocation struct {
	cmd  *command
	args []string
}

// Parse matches args against the command table.
func Parse(args []string) (*Invocation, error) {
	for i := range commands {
		if captured, ok := commands[i].match(args); ok {
			return &Invocation{cmd: &commands[i], args: captured}, nil
		}
	}
	if len(args) == 0 {
		return nil, ErrUsage
	}
	return nil, fmt.Errorf("%w: %s", ErrUsage, strings.Join(args, " "))
}

// Usage returns the help text.
func Usage() string {
	var b strings.Builder
	b.WriteString("Usage: yn-master [-c config.json] [-d dsn] [-o text|json] [-v] <command>\n\nCommands:\n")
	width := 0
	for i := range commands {
		width = max(width, len(commands[i].usage()))
	}
	for i := range commands {
		fmt.Fprintf(&b, "   %-*s  %s\n", width, commands[i].usage(), commands[i].summary)
	}
	return b.String()
}

// Package config holds the yn-shard settings: where applications, deploy
// keys and unit files live, which binaries to run, and the agent listener
// used by "yn-shard serve".
package config

import (
	"fmt"
	"net"
	"strings"
)

// DefaultConfigPath is read when no -c/-config flag is given. The master
// invokes yn-shard over SSH without flags, so the file has a fixed home.
const DefaultConfigPath = "/etc/yournode/shard.conf"

// Config holds yn-shard settings.
type Config struct {
	ApplicationPath string
	UserKeys        string
	ServicePath     string
	NodeExec        string
	NpmExec         string
	GitBranch       string
	ServiceUser     string
	ServiceGroup    string
	LogFile         string

	Listen      string
	AgentSecret string

	Verbose bool
}

// LoadDefaults sets the values used when neither file, environment nor
// flags override them.
func (c *Config) LoadDefaults() {
	c.ApplicationPath = "/srv/yournode/apps/"
	c.UserKeys = "/var/lib/yournode/keys/"
	c.ServicePath = "/etc/systemd/system/"
	c.NodeExec = "/usr/bin/node"
	c.NpmExec = "npm"
	c.GitBranch = "master"
	c.ServiceUser = "nobody"
	c.ServiceGroup = "nobody"
	c.LogFile = "/var/log/yournode/shard.log"
	c.Listen = ":7070"
	c.AgentSecret = ""
	c.Verbose = false
}

// Validate checks the settings every operation needs.
func (c *Config) Validate() error {
	required := []struct{ name, value string }{
		{"applicationPath", c.ApplicationPath},
		{"userKeys", c.UserKeys},
		{"servicePath", c.ServicePath},
		{"nodeExec", c.NodeExec},
		{"npmExec", c.NpmExec},
		{"gitBranch", c.GitBranch},
		{"serviceUser", c.ServiceUser},
		{"serviceGroup", c.ServiceGroup},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s must not be empty", r.name)
		}
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	return nil
}

// ValidateServe checks the settings only "serve" needs.
func (c *Config) ValidateServe() error {
	if c.AgentSecret == "" {
		return fmt.Errorf("agentSecret is required to serve (set it in the config file or %s)", EnvAgentSecret)
	}
	return nil
}

// Load applies defaults, the JSON file, the environment and flags in that
// order and returns the positional arguments.
func Load(args []string, env Env) (*Config, []string, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, nil, err
	}
	parseEnv(cfg, env)

	positional, err := parseFlags(cfg, args)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, positional, nil
}

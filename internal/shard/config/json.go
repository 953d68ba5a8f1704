package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/thaispalmer/yn-automation/internal/flagx"
)

// JsonConfig mirrors the on-disk shard configuration. Empty fields keep the
// current value.
type JsonConfig struct {
	ApplicationPath string `json:"applicationPath"`
	UserKeys        string `json:"userKeys"`
	ServicePath     string `json:"servicePath"`
	NodeExec        string `json:"nodeExec"`
	NpmExec         string `json:"npmExec"`
	GitBranch       string `json:"gitBranch"`
	ServiceUser     string `json:"serviceUser"`
	ServiceGroup    string `json:"serviceGroup"`
	LogFile         string `json:"logFile"`
	Listen          string `json:"listen"`
	AgentSecret     string `json:"agentSecret"`
}

var defaultConfigPath = DefaultConfigPath

// parseJson overlays the file named by -c/-config, or the default file when
// it exists.
func parseJson(config *Config, args []string) error {
	path := flagx.JsonConfigPath(args)
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	file, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(jsonc.ToJSON(file), c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.ApplicationPath, c.ApplicationPath)
	setString(&config.UserKeys, c.UserKeys)
	setString(&config.ServicePath, c.ServicePath)
	setString(&config.NodeExec, c.NodeExec)
	setString(&config.NpmExec, c.NpmExec)
	setString(&config.GitBranch, c.GitBranch)
	setString(&config.ServiceUser, c.ServiceUser)
	setString(&config.ServiceGroup, c.ServiceGroup)
	setString(&config.LogFile, c.LogFile)
	setString(&config.Listen, c.Listen)
	setString(&config.AgentSecret, c.AgentSecret)
}

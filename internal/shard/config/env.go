package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

const (
	EnvAgentSecret = "YN_AGENT_SECRET"
	EnvListen      = "YN_AGENT_LISTEN"
)

// Env looks up one environment variable.
type Env func(key string) (string, bool)

func MapEnv(m map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// OSEnv returns the process environment overlaid on the dotenv file at
// path. A missing file is ignored.
func OSEnv(path string) (Env, error) {
	file := map[string]string{}
	if path != "" {
		m, err := godotenv.Read(path)
		switch {
		case err == nil:
			file = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}, nil
}

func parseEnv(config *Config, env Env) {
	if env == nil {
		return
	}
	if v, ok := env(EnvAgentSecret); ok && v != "" {
		config.AgentSecret = v
	}
	if v, ok := env(EnvListen); ok && v != "" {
		config.Listen = v
	}
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables read by the master.
const (
	EnvDatabaseDSN    = "YN_DATABASE_DSN"
	EnvAgentSecret    = "YN_AGENT_SECRET"
	EnvS3AccessKey    = "YN_S3_ACCESS_KEY"
	EnvS3SecretKey    = "YN_S3_SECRET_KEY"
	EnvKeysPassphrase = "YN_KEYS_PASSPHRASE"
)

// Env looks up one environment variable.
type Env func(key string) (string, bool)

// MapEnv serves lookups from m.
func MapEnv(m map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// OSEnv returns the process environment overlaid on the variables of the
// dotenv file at path. Process variables win. A missing file is not an
// error.
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

// parseEnv overlays secrets that should not live in the JSON file.
func parseEnv(config *Config, env Env) {
	if env == nil {
		return
	}
	if v, ok := env(EnvDatabaseDSN); ok && v != "" {
		config.DatabaseDSN = v
	}
	if v, ok := env(EnvAgentSecret); ok && v != "" {
		config.Agent.Secret = v
	}
	if v, ok := env(EnvS3AccessKey); ok && v != "" {
		config.Keys.S3.AccessKey = v
	}
	if v, ok := env(EnvS3SecretKey); ok && v != "" {
		config.Keys.S3.SecretKey = v
	}
	if v, ok := env(EnvKeysPassphrase); ok && v != "" {
		config.Keys.Passphrase = v
	}
}

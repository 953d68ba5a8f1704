package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/thaispalmer/yn-automation/internal/flagx"
	"github.com/thaispalmer/yn-automation/internal/timex"
)

// JsonConfig mirrors the on-disk master configuration. Pointer and
// zero-value fields that are absent from the file leave the current value
// untouched. Comments and trailing commas are accepted.
type JsonConfig struct {
	PortRange *struct {
		Min int `json:"min"`
		Max int `json:"max"`
	} `json:"portRange"`
	Proxy *struct {
		Available     string   `json:"available"`
		Enabled       string   `json:"enabled"`
		ReloadCommand []string `json:"reloadCommand"`
	} `json:"proxy"`
	UserKeys  string `json:"userKeys"`
	Subdomain string `json:"subdomain"`
	LogFile   string `json:"logFile"`
	Database  *struct {
		DSN           string `json:"dsn"`
		Master        string `json:"master"`
		User          string `json:"user"`
		Pass          string `json:"pass"`
		RunMigrations *bool  `json:"runMigrations"`
	} `json:"database"`
	Transport string `json:"transport"`
	SSH       *struct {
		User                  string         `json:"user"`
		Port                  int            `json:"port"`
		KeyFile               string         `json:"keyFile"`
		KnownHosts            string         `json:"knownHosts"`
		InsecureIgnoreHostKey bool           `json:"insecureIgnoreHostKey"`
		Timeout               timex.Duration `json:"timeout"`
		ShardBinary           string         `json:"shardBinary"`
	} `json:"ssh"`
	Agent *struct {
		Port     int            `json:"port"`
		Secret   string         `json:"secret"`
		TokenTTL timex.Duration `json:"tokenTTL"`
		Timeout  timex.Duration `json:"timeout"`
	} `json:"agent"`
	Keys *struct {
		Backend    string `json:"backend"`
		Passphrase string `json:"passphrase"`
		S3         *struct {
			Bucket    string `json:"bucket"`
			Region    string `json:"region"`
			Endpoint  string `json:"endpoint"`
			AccessKey string `json:"accessKey"`
			SecretKey string `json:"secretKey"`
			Prefix    string `json:"prefix"`
		} `json:"s3"`
	} `json:"keys"`
}

// parseJson overlays the file named by -c/-config onto config. No flag
// means no file.
func parseJson(config *Config, args []string) error {
	path := flagx.JsonConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
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

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

func (c *JsonConfig) apply(config *Config) {
	if c.PortRange != nil {
		config.PortMin = c.PortRange.Min
		config.PortMax = c.PortRange.Max
	}
	if c.Proxy != nil {
		setString(&config.ProxyAvailable, c.Proxy.Available)
		setString(&config.ProxyEnabled, c.Proxy.Enabled)
		if len(c.Proxy.ReloadCommand) > 0 {
			config.ProxyReloadCommand = c.Proxy.ReloadCommand
		}
	}
	setString(&config.UserKeys, c.UserKeys)
	setString(&config.Subdomain, c.Subdomain)
	setString(&config.LogFile, c.LogFile)

	if c.Database != nil {
		setString(&config.DatabaseDSN, c.Database.DSN)
		setString(&config.DatabaseMaster, c.Database.Master)
		setString(&config.DatabaseUser, c.Database.User)
		setString(&config.DatabasePass, c.Database.Pass)
		if c.Database.RunMigrations != nil {
			config.RunMigrations = *c.Database.RunMigrations
		}
	}

	setString(&config.Transport, c.Transport)

	if c.SSH != nil {
		setString(&config.SSH.User, c.SSH.User)
		setInt(&config.SSH.Port, c.SSH.Port)
		setString(&config.SSH.KeyFile, c.SSH.KeyFile)
		setString(&config.SSH.KnownHosts, c.SSH.KnownHosts)
		config.SSH.InsecureIgnoreHostKey = c.SSH.InsecureIgnoreHostKey
		setDuration(&config.SSH.Timeout, c.SSH.Timeout)
		setString(&config.SSH.ShardBinary, c.SSH.ShardBinary)
	}
	if c.Agent != nil {
		setInt(&config.Agent.Port, c.Agent.Port)
		setString(&config.Agent.Secret, c.Agent.Secret)
		setDuration(&config.Agent.TokenTTL, c.Agent.TokenTTL)
		setDuration(&config.Agent.Timeout, c.Agent.Timeout)
	}
	if c.Keys != nil {
		setString(&config.Keys.Backend, c.Keys.Backend)
		setString(&config.Keys.Passphrase, c.Keys.Passphrase)
		if s3 := c.Keys.S3; s3 != nil {
			setString(&config.Keys.S3.Bucket, s3.Bucket)
			setString(&config.Keys.S3.Region, s3.Region)
			setString(&config.Keys.S3.Endpoint, s3.Endpoint)
			setString(&config.Keys.S3.AccessKey, s3.AccessKey)
			setString(&config.Keys.S3.SecretKey, s3.SecretKey)
			setString(&config.Keys.S3.Prefix, s3.Prefix)
		}
	}
}

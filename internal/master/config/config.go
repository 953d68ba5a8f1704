// Package config handles configuration for the master CLI, including
// defaults, a JSON overlay, environment variables and command-line flags.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	TransportSSH  = "ssh"
	TransportGRPC = "grpc"

	KeysBackendFile = "file"
	KeysBackendS3   = "s3"

	OutputText = "text"
	OutputJSON = "json"
)

// Config holds runtime settings for yn-master.
type Config struct {
	PortMin int
	PortMax int

	ProxyAvailable     string
	ProxyEnabled       string
	ProxyReloadCommand []string

	UserKeys  string
	Subdomain string
	LogFile   string

	DatabaseDSN    string
	DatabaseMaster string // "host[:port]/dbname", used when DatabaseDSN is empty
	DatabaseUser   string
	DatabasePass   string
	RunMigrations  bool

	Transport string
	SSH       SSHConfig
	Agent     AgentConfig
	Keys      KeysConfig

	Output  string
	Verbose bool
}

// SSHConfig configures the SSH transport to shards.
type SSHConfig struct {
	User                  string
	Port                  int
	KeyFile               string
	KnownHosts            string
	InsecureIgnoreHostKey bool
	Timeout               time.Duration
	ShardBinary           string
}

// AgentConfig configures the gRPC transport to shard agents.
type AgentConfig struct {
	Port     int
	Secret   string
	TokenTTL time.Duration
	Timeout  time.Duration
}

// KeysConfig selects where deploy keys are kept.
type KeysConfig struct {
	Backend string
	// Passphrase seals private keys at rest when set.
	Passphrase string
	S3         S3Config
}

// S3Config locates the bucket of the s3 key backend.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// LoadDefaults populates Config with the stock single-host layout.
func (c *Config) LoadDefaults() {
	c.PortMin = 8000
	c.PortMax = 9000
	c.ProxyAvailable = "/etc/nginx/sites-available/"
	c.ProxyEnabled = "/etc/nginx/sites-enabled/"
	c.ProxyReloadCommand = []string{"nginx", "-s", "reload"}
	c.UserKeys = "/var/lib/yournode/keys/"
	c.Subdomain = ".yournode.app"
	c.LogFile = "/var/log/yournode/master.log"
	c.DatabaseDSN = ""
	c.DatabaseMaster = "localhost:5432/yournode"
	c.DatabaseUser = "yournode"
	c.DatabasePass = ""
	c.RunMigrations = true
	c.Transport = TransportSSH
	c.SSH = SSHConfig{
		User:        "yournode",
		Port:        22,
		KeyFile:     "/var/lib/yournode/.ssh/id_ed25519",
		KnownHosts:  "/var/lib/yournode/.ssh/known_hosts",
		Timeout:     2 * time.Minute,
		ShardBinary: "yn-shard",
	}
	c.Agent = AgentConfig{
		Port:     7070,
		TokenTTL: time.Minute,
		Timeout:  2 * time.Minute,
	}
	c.Keys = KeysConfig{Backend: KeysBackendFile, S3: S3Config{Region: "us-east-1"}}
	c.Output = OutputText
	c.Verbose = false
}

// DSN returns the PostgreSQL connection string, building it from the
// master/user/pass triple when no explicit DSN is configured.
func (c *Config) DSN() string {
	if c.DatabaseDSN != "" {
		return c.DatabaseDSN
	}
	host, db, _ := strings.Cut(c.DatabaseMaster, "/")
	u := url.URL{
		Scheme:   "postgres",
		Host:     host,
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	if c.DatabaseUser != "" {
		u.User = url.UserPassword(c.DatabaseUser, c.DatabasePass)
		if c.DatabasePass == "" {
			u.User = url.User(c.DatabaseUser)
		}
	}
	return u.String()
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if c.PortMin <= 0 || c.PortMax > 65536 || c.PortMin >= c.PortMax {
		return fmt.Errorf("invalid port range [%d, %d)", c.PortMin, c.PortMax)
	}
	switch c.Transport {
	case TransportSSH, TransportGRPC:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	switch c.Keys.Backend {
	case KeysBackendFile:
	case KeysBackendS3:
		if c.Keys.S3.Bucket == "" {
			return fmt.Errorf("keys.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown keys backend %q", c.Keys.Backend)
	}
	switch c.Output {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("unknown output mode %q", c.Output)
	}
	if len(c.ProxyReloadCommand) == 0 {
		return fmt.Errorf("proxy.reloadCommand must not be empty")
	}
	return nil
}

// Load builds a Config by applying defaults, then overlaying values from an
// optional JSON file (-c/-config), the environment and finally flags. It
// returns the positional arguments left after flag parsing.
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

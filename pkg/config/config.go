// Package config resolves settings from defaults, a YAML file, a .env file
// and BATCH_DELETE_* environment variables. Command-line flags are applied
// on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"batch-delete/pkg/db"
)

const EnvPrefix = "BATCH_DELETE_"

// Config holds the global batch-delete configuration.
type Config struct {
	Fleet     FleetConfig     `yaml:"fleet"`
	Actor     string          `yaml:"actor"`
	StateDir  string          `yaml:"state_dir"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	History   HistoryConfig   `yaml:"history"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Log       LogConfig       `yaml:"log"`
}

// FleetConfig describes the fleet API endpoint and client behaviour.
type FleetConfig struct {
	URL       string  `yaml:"url"`
	ClientID  string  `yaml:"client_id"`
	Password  string  `yaml:"password"`
	Timeout   string  `yaml:"timeout"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
	PageSize  int     `yaml:"page_size"`
	CAFile    string  `yaml:"ca_file"`
	Insecure  bool    `yaml:"insecure"`
}

// DefaultTimeout is used when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// TimeoutDuration parses the configured timeout or returns the default.
func (f *FleetConfig) TimeoutDuration() time.Duration {
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// SecretsConfig selects where the signing key and saved password live.
type SecretsConfig struct {
	Backend     string `yaml:"backend"` // memory, sqlite, consul
	Path        string `yaml:"path"`
	Passphrase  string `yaml:"passphrase"`
	ConsulAddr  string `yaml:"consul_addr"`
	ConsulToken string `yaml:"consul_token"`
}

// HistoryConfig selects the run history store. An empty DSN keeps history
// in memory.
type HistoryConfig struct {
	DSN string `yaml:"dsn"`
}

// DashboardConfig controls the optional progress dashboard.
type DashboardConfig struct {
	Listen   string `yaml:"listen"`
	Token    string `yaml:"token"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	ClientCA string `yaml:"client_ca"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	state := filepath.Join(home, ".local", "share", "batch-delete")
	return &Config{
		Fleet: FleetConfig{
			Timeout:   DefaultTimeout.String(),
			RateLimit: 5,
			PageSize:  100,
		},
		Actor:    os.Getenv("USER"),
		StateDir: state,
		Secrets: SecretsConfig{
			Backend: "sqlite",
			Path:    filepath.Join(state, "secrets.db"),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath is ~/.config/batch-delete/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "batch-delete", "config.yaml")
}

// Load resolves the configuration: defaults, then the YAML file at path (a
// missing file is not an error), then .env, then the process environment.
func Load(path, dotenv string) (*Config, error) {
	cfg, err := LoadFrom(path)
	if err != nil {
		return nil, err
	}
	env, err := readDotEnv(dotenv)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return env[key]
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads the config from the given path.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.StateDir = expandHome(cfg.StateDir)
	cfg.Secrets.Path = expandHome(cfg.Secrets.Path)
	return cfg, nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return env, nil
}

// ApplyEnv overrides fields from BATCH_DELETE_* variables. The MYSQL_*
// variables build a history DSN when none is configured.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	str("URL", &c.Fleet.URL)
	str("CLIENT_ID", &c.Fleet.ClientID)
	str("PASSWORD", &c.Fleet.Password)
	str("TIMEOUT", &c.Fleet.Timeout)
	str("CA_FILE", &c.Fleet.CAFile)
	str("ACTOR", &c.Actor)
	str("STATE_DIR", &c.StateDir)
	str("SECRET_BACKEND", &c.Secrets.Backend)
	str("SECRET_PATH", &c.Secrets.Path)
	str("SECRET_PASSPHRASE", &c.Secrets.Passphrase)
	str("CONSUL_ADDR", &c.Secrets.ConsulAddr)
	str("CONSUL_TOKEN", &c.Secrets.ConsulToken)
	str("HISTORY_DSN", &c.History.DSN)
	str("DASHBOARD_LISTEN", &c.Dashboard.Listen)
	str("DASHBOARD_TOKEN", &c.Dashboard.Token)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v := getenv(EnvPrefix + "RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT: %w", EnvPrefix, err)
		}
		c.Fleet.RateLimit = f
	}
	if v := getenv(EnvPrefix + "PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPAGE_SIZE: %w", EnvPrefix, err)
		}
		c.Fleet.PageSize = n
	}
	if v := getenv(EnvPrefix + "INSECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sINSECURE: %w", EnvPrefix, err)
		}
		c.Fleet.Insecure = b
	}

	if c.History.DSN == "" && getenv("MYSQL_HOST") != "" {
		c.History.DSN = db.BuildDSN(
			getenvDefault(getenv, "MYSQL_USER", "root"),
			getenv("MYSQL_PASS"),
			getenv("MYSQL_HOST"),
			getenvDefault(getenv, "MYSQL_PORT", "3306"),
			getenvDefault(getenv, "MYSQL_DB", "batch_delete"),
		)
	}
	return nil
}

// Validate checks the settings every remote command needs.
func (c *Config) Validate() error {
	if c.Fleet.URL == "" {
		return fmt.Errorf("fleet url is required (--url or %sURL)", EnvPrefix)
	}
	if c.Fleet.ClientID == "" {
		return fmt.Errorf("client id is required (--client-id or %sCLIENT_ID)", EnvPrefix)
	}
	switch c.Secrets.Backend {
	case "memory", "sqlite", "consul":
	default:
		return fmt.Errorf("unknown secret backend %q", c.Secrets.Backend)
	}
	return nil
}

// WorksetPath is where the working set is persisted.
func (c *Config) WorksetPath() string {
	return filepath.Join(c.StateDir, "workset.json")
}

func getenvDefault(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, p[1:])
}

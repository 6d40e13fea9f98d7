// Package config provides YAML-based configuration loading for Switchboard,
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Transport names.
const (
	TransportTmux = "tmux"
	TransportNATS = "nats"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Defaults applied when neither the file nor the environment set a value.
const (
	DefaultStaleAfter      = 5 * time.Minute
	DefaultTmuxBinary      = "tmux"
	DefaultDeliveryTimeout = 10 * time.Second
	DefaultNATSURL         = "nats://127.0.0.1:4222"
	DefaultCheckTimeout    = 5 * time.Second
	DefaultDashboardPort   = 8080
	DefaultSweepSchedule   = "*/10 * * * *"
	DefaultRetention       = 24 * time.Hour
)

// DefaultPath is where Load looks when no path is given.
var DefaultPath = filepath.Join(homeDir(), ".switchboard", "config.yaml")

// Config is the top-level Switchboard configuration.
type Config struct {
	Transport  string          `yaml:"transport" env:"SWITCHBOARD_TRANSPORT"`
	StaleAfter time.Duration   `yaml:"stale_after" env:"SWITCHBOARD_STALE_AFTER"`
	Storage    StorageConfig   `yaml:"storage"`
	Tmux       TmuxConfig      `yaml:"tmux"`
	NATS       NATSConfig      `yaml:"nats"`
	Ledger     LedgerConfig    `yaml:"ledger"`
	Mirror     MirrorConfig    `yaml:"mirror"`
	Dashboard  DashboardConfig `yaml:"dashboard"`
	Sweeper    SweeperConfig   `yaml:"sweeper"`
}

// StorageConfig selects where presence and history live.
type StorageConfig struct {
	Driver   string `yaml:"driver" env:"SWITCHBOARD_STORAGE_DRIVER"`
	Path     string `yaml:"path" env:"SWITCHBOARD_STORAGE_PATH"`
	Host     string `yaml:"host" env:"SWITCHBOARD_STORAGE_HOST"`
	Port     int    `yaml:"port" env:"SWITCHBOARD_STORAGE_PORT"`
	Database string `yaml:"database" env:"SWITCHBOARD_STORAGE_DATABASE"`
}

// TmuxConfig controls the pane-injection transport.
type TmuxConfig struct {
	Binary  string        `yaml:"binary" env:"SWITCHBOARD_TMUX_BINARY"`
	Helper  string        `yaml:"helper" env:"SWITCHBOARD_DELIVERY_HELPER"`
	Timeout time.Duration `yaml:"timeout" env:"SWITCHBOARD_DELIVERY_TIMEOUT"`
}

// NATSConfig controls the message bus transport.
type NATSConfig struct {
	URL          string        `yaml:"url" env:"SWITCHBOARD_NATS_URL"`
	Name         string        `yaml:"name" env:"SWITCHBOARD_NATS_NAME"`
	CheckTimeout time.Duration `yaml:"check_timeout" env:"SWITCHBOARD_CHECK_TIMEOUT"`
}

// LedgerConfig toggles the history ledger. A nil Enabled means "on for tmux,
// off for nats".
type LedgerConfig struct {
	Enabled *bool `yaml:"enabled" env:"SWITCHBOARD_LEDGER_ENABLED"`
}

// MirrorConfig holds optional chat destinations for channel traffic.
type MirrorConfig struct {
	SlackToken     string `yaml:"slack_token" env:"SWITCHBOARD_SLACK_TOKEN"`
	SlackChannel   string `yaml:"slack_channel" env:"SWITCHBOARD_SLACK_CHANNEL"`
	DiscordToken   string `yaml:"discord_token" env:"SWITCHBOARD_DISCORD_TOKEN"`
	DiscordChannel string `yaml:"discord_channel" env:"SWITCHBOARD_DISCORD_CHANNEL"`
}

// DashboardConfig holds HTTP dashboard settings.
type DashboardConfig struct {
	Port int `yaml:"port" env:"SWITCHBOARD_DASHBOARD_PORT"`
}

// SweeperConfig controls periodic removal of long-gone agents.
type SweeperConfig struct {
	Schedule  string        `yaml:"schedule" env:"SWITCHBOARD_SWEEP_SCHEDULE"`
	Retention time.Duration `yaml:"retention" env:"SWITCHBOARD_SWEEP_RETENTION"`
}

// Load reads a YAML config file from path, applies environment overrides
// and returns a validated Config. A missing file is not an error: the
// defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes, applies environment overrides and defaults,
// and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LedgerEnabled reports whether history should be recorded.
func (c *Config) LedgerEnabled() bool {
	if c.Ledger.Enabled != nil {
		return *c.Ledger.Enabled
	}
	return c.Transport == TransportTmux
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if c.Transport == "" {
		c.Transport = TransportTmux
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(homeDir(), ".switchboard", "switchboard.db")
	}
	c.Storage.Path = expandHome(c.Storage.Path)
	if c.Storage.Host == "" {
		c.Storage.Host = "127.0.0.1"
	}
	if c.Storage.Port == 0 {
		c.Storage.Port = 3306
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "switchboard"
	}
	if c.Tmux.Binary == "" {
		c.Tmux.Binary = DefaultTmuxBinary
	}
	if c.Tmux.Timeout == 0 {
		c.Tmux.Timeout = DefaultDeliveryTimeout
	}
	if c.NATS.URL == "" {
		c.NATS.URL = DefaultNATSURL
	}
	if c.NATS.Name == "" {
		c.NATS.Name = "switchboard"
	}
	if c.NATS.CheckTimeout == 0 {
		c.NATS.CheckTimeout = DefaultCheckTimeout
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = DefaultDashboardPort
	}
	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = DefaultSweepSchedule
	}
	if c.Sweeper.Retention == 0 {
		c.Sweeper.Retention = DefaultRetention
	}
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Transport {
	case TransportTmux, TransportNATS:
	default:
		errs = append(errs, fmt.Sprintf("transport %q is not one of tmux, nats", c.Transport))
	}
	switch c.Storage.Driver {
	case DriverSQLite, DriverMySQL, DriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not one of sqlite, mysql, memory", c.Storage.Driver))
	}
	if c.StaleAfter < 0 {
		errs = append(errs, "stale_after must be positive")
	}
	if c.Tmux.Timeout < 0 {
		errs = append(errs, "tmux.timeout must be positive")
	}
	if c.NATS.CheckTimeout < 0 {
		errs = append(errs, "nats.check_timeout must be positive")
	}
	if c.Sweeper.Retention < 0 {
		errs = append(errs, "sweeper.retention must be positive")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Sprintf("dashboard.port %d out of range", c.Dashboard.Port))
	}
	if (c.Mirror.SlackToken == "") != (c.Mirror.SlackChannel == "") {
		errs = append(errs, "mirror.slack_token and mirror.slack_channel must be set together")
	}
	if (c.Mirror.DiscordToken == "") != (c.Mirror.DiscordChannel == "") {
		errs = append(errs, "mirror.discord_token and mirror.discord_channel must be set together")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

func expandHome(p string) string {
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}

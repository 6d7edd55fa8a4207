// Package config provides configuration structures for the cache monitor.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultServerAddress is the cache server's default REST address.
const DefaultServerAddress = "http://localhost:53703"

// Config represents the monitor configuration.
type Config struct {
	// Dashboard settings
	Address         string        `mapstructure:"address" yaml:"address" json:"address"`
	ServerAddress   string        `mapstructure:"server" yaml:"server" json:"server"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins" json:"cors_origins"`

	// Default server-side paths for trace and stats dumps
	TracePath string `mapstructure:"trace_path" yaml:"trace_path" json:"trace_path"`
	StatsPath string `mapstructure:"stats_path" yaml:"stats_path" json:"stats_path"`

	// Authentication configuration
	Auth AuthConfig `mapstructure:"auth" yaml:"auth" json:"auth"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// Per-server session cache
	Sessions SessionConfig `mapstructure:"sessions" yaml:"sessions" json:"sessions"`

	// Notification expiry
	Notifications NotificationConfig `mapstructure:"notifications" yaml:"notifications" json:"notifications"`

	// Plan archive
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive" json:"archive"`

	// Arrow Flight reachability probe
	Flight FlightConfig `mapstructure:"flight" yaml:"flight" json:"flight"`
}

// AuthConfig represents authentication configuration.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Type    string `mapstructure:"type" yaml:"type" json:"type"` // basic, bearer, jwt

	// Basic auth
	BasicAuth BasicAuthConfig `mapstructure:"basic_auth" yaml:"basic_auth" json:"basic_auth"`

	// Bearer token auth
	BearerAuth BearerAuthConfig `mapstructure:"bearer_auth" yaml:"bearer_auth" json:"bearer_auth"`

	// JWT auth
	JWTAuth JWTAuthConfig `mapstructure:"jwt_auth" yaml:"jwt_auth" json:"jwt_auth"`
}

// BasicAuthConfig represents basic authentication configuration.
type BasicAuthConfig struct {
	Users map[string]UserInfo `mapstructure:"users" yaml:"users" json:"users"`
}

// UserInfo represents user information.
type UserInfo struct {
	Password string   `mapstructure:"password" yaml:"password" json:"password"`
	Roles    []string `mapstructure:"roles" yaml:"roles" json:"roles"`
}

// BearerAuthConfig represents bearer token authentication configuration.
type BearerAuthConfig struct {
	Tokens map[string]string `mapstructure:"tokens" yaml:"tokens" json:"tokens"` // token -> username
}

// JWTAuthConfig represents JWT authentication configuration.
type JWTAuthConfig struct {
	Secret   string `mapstructure:"secret" yaml:"secret" json:"secret"`
	Issuer   string `mapstructure:"issuer" yaml:"issuer" json:"issuer"`
	Audience string `mapstructure:"audience" yaml:"audience" json:"audience"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address string `mapstructure:"address" yaml:"address" json:"address"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"`
}

// SessionConfig bounds the per-server dashboard sessions.
type SessionConfig struct {
	MaxEntries int           `mapstructure:"max_entries" yaml:"max_entries" json:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
}

// NotificationConfig sets how long each kind of notification stays visible.
type NotificationConfig struct {
	Success time.Duration `mapstructure:"success" yaml:"success" json:"success"`
	Error   time.Duration `mapstructure:"error" yaml:"error" json:"error"`
	Info    time.Duration `mapstructure:"info" yaml:"info" json:"info"`
	Limit   int           `mapstructure:"limit" yaml:"limit" json:"limit"`
}

// ArchiveConfig represents plan archive configuration.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Driver  string `mapstructure:"driver" yaml:"driver" json:"driver"` // duckdb, sqlite
	DSN     string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	MaxRows int    `mapstructure:"max_rows" yaml:"max_rows" json:"max_rows"`
}

// FlightConfig represents the Flight probe configuration.
type FlightConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address string        `mapstructure:"address" yaml:"address" json:"address"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// Validate validates the configuration and fills unset values with defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}

	if c.ServerAddress == "" {
		c.ServerAddress = DefaultServerAddress
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}

	if c.TracePath == "" {
		c.TracePath = "/tmp"
	}
	if c.StatsPath == "" {
		c.StatsPath = "/tmp"
	}

	// Validate auth
	if c.Auth.Enabled {
		switch c.Auth.Type {
		case "basic":
			if len(c.Auth.BasicAuth.Users) == 0 {
				return fmt.Errorf("basic auth requires users")
			}
		case "bearer":
			if len(c.Auth.BearerAuth.Tokens) == 0 {
				return fmt.Errorf("bearer auth requires tokens")
			}
		case "jwt":
			if c.Auth.JWTAuth.Secret == "" {
				return fmt.Errorf("JWT auth requires secret")
			}
		default:
			return fmt.Errorf("unsupported auth type: %s", c.Auth.Type)
		}
	}

	// Set defaults for metrics
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Address == c.Address {
		return fmt.Errorf("metrics address must differ from the dashboard address")
	}

	if c.Sessions.MaxEntries <= 0 {
		c.Sessions.MaxEntries = 64
	}
	if c.Sessions.TTL < 0 {
		return fmt.Errorf("session ttl must not be negative")
	}

	if c.Notifications.Success <= 0 {
		c.Notifications.Success = 4 * time.Second
	}
	if c.Notifications.Error <= 0 {
		c.Notifications.Error = 6 * time.Second
	}
	if c.Notifications.Info <= 0 {
		c.Notifications.Info = 4 * time.Second
	}
	if c.Notifications.Limit <= 0 {
		c.Notifications.Limit = 20
	}

	// Validate archive
	if c.Archive.Enabled {
		switch c.Archive.Driver {
		case "":
			c.Archive.Driver = "duckdb"
		case "duckdb", "sqlite":
		default:
			return fmt.Errorf("unsupported archive driver: %s", c.Archive.Driver)
		}
		if c.Archive.MaxRows < 0 {
			return fmt.Errorf("archive max rows must not be negative")
		}
	}

	if c.Flight.Enabled && c.Flight.Address == "" {
		c.Flight.Address = "localhost:15214"
	}
	if c.Flight.Timeout <= 0 {
		c.Flight.Timeout = 3 * time.Second
	}

	return nil
}

// Load builds the configuration from v, layering flags, environment and the
// optional config file over DefaultConfig.
func Load(v *viper.Viper) (*Config, error) {
	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Flags use dashes where the file format uses underscores.
	overrides := map[string]func(){
		"log-level":        func() { cfg.LogLevel = v.GetString("log-level") },
		"request-timeout":  func() { cfg.RequestTimeout = v.GetDuration("request-timeout") },
		"shutdown-timeout": func() { cfg.ShutdownTimeout = v.GetDuration("shutdown-timeout") },
		"metrics-address":  func() { cfg.Metrics.Address = v.GetString("metrics-address") },
		"trace-path":       func() { cfg.TracePath = v.GetString("trace-path") },
		"stats-path":       func() { cfg.StatsPath = v.GetString("stats-path") },
		"flight-address":   func() { cfg.Flight.Address = v.GetString("flight-address") },
		"archive-dsn":      func() { cfg.Archive.DSN = v.GetString("archive-dsn") },
		"archive-driver":   func() { cfg.Archive.Driver = v.GetString("archive-driver") },
		"cors-origins":     func() { cfg.CORSOrigins = v.GetStringSlice("cors-origins") },
	}
	for key, apply := range overrides {
		if v.IsSet(key) {
			apply()
		}
	}
	if v.IsSet("no-metrics") && v.GetBool("no-metrics") {
		cfg.Metrics.Enabled = false
	}
	if v.IsSet("archive-enabled") && v.GetBool("archive-enabled") {
		cfg.Archive.Enabled = true
	}
	if v.IsSet("flight-enabled") && v.GetBool("flight-enabled") {
		cfg.Flight.Enabled = true
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:         "0.0.0.0:8080",
		ServerAddress:   DefaultServerAddress,
		LogLevel:        "info",
		RequestTimeout:  10 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		TracePath:       "/tmp",
		StatsPath:       "/tmp",
		Auth: AuthConfig{
			Enabled: false,
			Type:    "basic",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
			Path:    "/metrics",
		},
		Sessions: SessionConfig{
			MaxEntries: 64,
			TTL:        30 * time.Minute,
		},
		Notifications: NotificationConfig{
			Success: 4 * time.Second,
			Error:   6 * time.Second,
			Info:    4 * time.Second,
			Limit:   20,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Driver:  "duckdb",
			DSN:     "cachewatch.duckdb",
			MaxRows: 10000,
		},
		Flight: FlightConfig{
			Enabled: false,
			Address: "localhost:15214",
			Timeout: 3 * time.Second,
		},
	}
}

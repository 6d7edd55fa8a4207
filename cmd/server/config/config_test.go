package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	cfg := &Config{Address: ":8080"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultServerAddress, cfg.ServerAddress)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/tmp", cfg.TracePath)
	assert.Equal(t, "/tmp", cfg.StatsPath)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 64, cfg.Sessions.MaxEntries)
	assert.Equal(t, 4*time.Second, cfg.Notifications.Success)
	assert.Equal(t, 6*time.Second, cfg.Notifications.Error)
	assert.Equal(t, 4*time.Second, cfg.Notifications.Info)
	assert.Equal(t, 20, cfg.Notifications.Limit)
	assert.Equal(t, 3*time.Second, cfg.Flight.Timeout)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "missing address",
			modify: func(c *Config) { c.Address = "" },
			errMsg: "address is required",
		},
		{
			name: "basic auth without users",
			modify: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.Type = "basic"
			},
			errMsg: "basic auth requires users",
		},
		{
			name: "bearer auth without tokens",
			modify: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.Type = "bearer"
			},
			errMsg: "bearer auth requires tokens",
		},
		{
			name: "jwt without secret",
			modify: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.Type = "jwt"
			},
			errMsg: "JWT auth requires secret",
		},
		{
			name: "unknown auth type",
			modify: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.Type = "oauth2"
			},
			errMsg: "unsupported auth type: oauth2",
		},
		{
			name:   "metrics on dashboard address",
			modify: func(c *Config) { c.Metrics.Address = c.Address },
			errMsg: "metrics address must differ from the dashboard address",
		},
		{
			name: "unknown archive driver",
			modify: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Driver = "postgres"
			},
			errMsg: "unsupported archive driver: postgres",
		},
		{
			name: "negative archive rows",
			modify: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.MaxRows = -1
			},
			errMsg: "archive max rows must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_DisabledAuthIgnoresType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.Type = "oauth2"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("log-level", "DEBUG")
	v.Set("request-timeout", "2s")
	v.Set("server", "http://cache:53703")
	v.Set("archive-enabled", true)
	v.Set("archive-driver", "sqlite")
	v.Set("no-metrics", true)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "http://cache:53703", cfg.ServerAddress)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "sqlite", cfg.Archive.Driver)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cachewatch.yaml")
	content := `
address: "127.0.0.1:9000"
server: "http://10.0.0.5:53703"
auth:
  enabled: true
  type: bearer
  bearer_auth:
    tokens:
      secret-token: ops
flight:
  enabled: true
  timeout: 1s
notifications:
  error: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.Set("config", path)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Address)
	assert.Equal(t, "http://10.0.0.5:53703", cfg.ServerAddress)
	assert.Equal(t, "ops", cfg.Auth.BearerAuth.Tokens["secret-token"])
	assert.True(t, cfg.Flight.Enabled)
	assert.Equal(t, "localhost:15214", cfg.Flight.Address)
	assert.Equal(t, time.Second, cfg.Flight.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Notifications.Error)
	assert.Equal(t, 4*time.Second, cfg.Notifications.Success)
}

func TestLoad_MissingFile(t *testing.T) {
	v := viper.New()
	v.Set("config", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

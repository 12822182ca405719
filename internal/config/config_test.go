package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, "sim", cfg.Broker.Driver)
	assert.True(t, cfg.Risk.Enabled)
	assert.Equal(t, "09:30", cfg.Trading.Morning.Start)
	assert.Equal(t, "15:00", cfg.Trading.Afternoon.End)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
risk:
  enabled: false
  max_holdings: 5
trading:
  execute_time: "09:40"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden values.
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.False(t, cfg.Risk.Enabled)
	assert.Equal(t, 5, cfg.Risk.MaxHoldings)
	assert.Equal(t, "09:40", cfg.Trading.ExecuteTime)

	// Untouched defaults survive.
	assert.Equal(t, "sim", cfg.Broker.Driver)
	assert.Equal(t, "09:00", cfg.Trading.FetchTime)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "env.db"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Contains(t, cfg.Database.Path, "env.db")
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database path", func(c *Config) { c.Database.Path = "" }},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"unknown broker driver", func(c *Config) { c.Broker.Driver = "paper" }},
		{"bridge without base url", func(c *Config) { c.Broker.Driver = "bridge" }},
		{"success rate above one", func(c *Config) { c.Broker.Sim.SuccessRate = 1.5 }},
		{"unknown feed driver", func(c *Config) { c.Feed.Driver = "carrier-pigeon" }},
		{"http feed without url", func(c *Config) { c.Feed.Driver = "http"; c.Feed.HTTP.URL = "" }},
		{"kafka feed without brokers", func(c *Config) { c.Feed.Driver = "kafka" }},
		{"negative order amount", func(c *Config) { c.Risk.MaxOrderAmount = -1 }},
		{"position ratio above one", func(c *Config) { c.Risk.MaxPositionRatio = 1.2 }},
		{"malformed session time", func(c *Config) { c.Trading.Morning.Start = "9h30" }},
		{"inverted session window", func(c *Config) { c.Trading.Morning.Start = "12:00"; c.Trading.Morning.End = "09:30" }},
		{"malformed fetch time", func(c *Config) { c.Trading.FetchTime = "morning" }},
		{"zero tick interval", func(c *Config) { c.Engine.TickIntervalSeconds = 0 }},
		{"zero sync interval", func(c *Config) { c.Engine.SyncIntervalSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

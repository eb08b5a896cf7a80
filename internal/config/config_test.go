package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/resolve"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/syncer"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, syncer.Bidirectional, cfg.Direction)
	assert.Equal(t, resolve.StrategySuperposition, cfg.Strategy)
	assert.Equal(t, syncer.DefaultInterval, cfg.SyncInterval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eosync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
direction: remote-to-local
strategy: newest-wins
sync_interval: 45s
remote:
  base_url: https://api.example.com
  table: contacts
activity:
  path: /tmp/activity.db
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, syncer.RemoteToLocal, cfg.Direction)
	assert.Equal(t, resolve.StrategyNewestWins, cfg.Strategy)
	assert.Equal(t, 45*time.Second, cfg.SyncInterval)
	assert.Equal(t, "https://api.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, "contacts", cfg.Remote.Table)
	assert.Equal(t, "/tmp/activity.db", cfg.Activity.Path)

	// A file only overrides what it mentions.
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eosync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy: local-wins\n"), 0o600))

	t.Setenv("EOSYNC_STRATEGY", "remote-wins")
	t.Setenv("EOSYNC_REMOTE_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, resolve.StrategyRemoteWins, cfg.Strategy)
	assert.Equal(t, "secret", cfg.Remote.Token)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"interval below floor", func(c *Config) { c.SyncInterval = 5 * time.Second }},
		{"unknown strategy", func(c *Config) { c.Strategy = "coin-flip" }},
		{"unknown direction", func(c *Config) { c.Direction = "sideways" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad remote url", func(c *Config) { c.Remote.BaseURL = "not a url" }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "growth.db", cfg.Store.Path)
	assert.Equal(t, "anthropic", cfg.Completion.Provider)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Completion.AnthropicModel)
	assert.Equal(t, "grok-3-mini", cfg.Completion.GrokModel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrentAccounts)
	assert.Equal(t, 5, cfg.Analysis.PeerCount)
	assert.Equal(t, 6, cfg.Analysis.ProfileTTLHours)
	assert.Equal(t, 24, cfg.Analysis.PeerTTLHours)
	assert.Equal(t, 0.8, cfg.Analysis.MinFollowerRatio)
	assert.Equal(t, 3.0, cfg.Analysis.MaxFollowerRatio)
	assert.Equal(t, 5, cfg.Analysis.MinRecentPosts)
	assert.Equal(t, 500, cfg.Analysis.ExclusionLookback)
	assert.Equal(t, 0.005, cfg.Pricing.XAPI.PerRequest)
	assert.Contains(t, cfg.Pricing.Completion, "claude-haiku-4-5-20251001")
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEVELX_STORE_DRIVER", "postgres")
	t.Setenv("LEVELX_STORE_DATABASE_URL", "postgres://localhost/growth")
	t.Setenv("LEVELX_COMPLETION_PROVIDER", "grok")
	t.Setenv("LEVELX_ANALYSIS_PEER_COUNT", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/growth", cfg.Store.DatabaseURL)
	assert.Equal(t, "grok", cfg.Completion.Provider)
	assert.Equal(t, 3, cfg.Analysis.PeerCount)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/config.yaml", []byte(`
store:
  driver: sqlite
  path: /tmp/custom.db
analysis:
  peer_count: 7
log:
  level: debug
  format: console
`), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(cwd) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.Store.Path)
	assert.Equal(t, 7, cfg.Analysis.PeerCount)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset keys keep their defaults.
	assert.Equal(t, 24, cfg.Analysis.PeerTTLHours)
}

func TestInitLogger_RejectsBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_ValidConfigs(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
}

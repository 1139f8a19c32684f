package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFromFile(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CONFIG_FILE", path)
	return NewConfig()
}

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.NotEmpty(t, cfg.Gemini.TextModels)
	assert.NotEmpty(t, cfg.Gemini.TTSModels)
	assert.Equal(t, 1_000_000, cfg.Quota.DailyTokenCeiling)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestNewConfig_FileOverridesDefaults(t *testing.T) {
	cfg, err := loadFromFile(t, `
server:
  port: "9090"
  log_level: debug
gemini:
  text_models:
    - model-a
    - model-b
quota:
  daily_token_ceiling: 5000
`)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, []string{"model-a", "model-b"}, cfg.Gemini.TextModels)
	assert.Equal(t, 5000, cfg.Quota.DailyTokenCeiling)
}

func TestNewConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DAILY_TOKEN_CEILING", "123456")

	cfg, err := loadFromFile(t, `
server:
  port: "9090"
`)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 123456, cfg.Quota.DailyTokenCeiling)
}

func TestNewConfig_TestDatabaseURLMarksTest(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DATABASE_URL", "postgres://real")
	t.Setenv("TEST_DATABASE_URL", "postgres://test")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres://test", cfg.Database.URL)
	assert.True(t, cfg.IsTest)
}

func TestNewConfig_InvalidQuotaRejected(t *testing.T) {
	_, err := loadFromFile(t, `
quota:
  daily_token_ceiling: -5
`)
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "table", cfg.Format)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	// Clear relevant env vars
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, "table", cfg.Format)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	// Set environment variables
	os.Setenv("CORVUS_DATA_DIR", "/tmp/test-corvus")
	os.Setenv("CORVUS_CACHE_MAX_ITEMS", "500")
	os.Setenv("CORVUS_CACHE_TTL", "12h")
	os.Setenv("CORVUS_FORMAT", "json")
	os.Setenv("CORVUS_LOG_LEVEL", "debug")
	os.Setenv("CORVUS_SCORING_API_KEY", "test-key")

	defer clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-corvus", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "test-key", cfg.ScoringAPIKey)
}

func TestLiteConfig_HistoryDBPath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.clinical-corvus"}

	path := cfg.HistoryDBPath()

	assert.Equal(t, "/home/user/.clinical-corvus/history.db", path)
}

func TestLiteConfig_ExportDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.clinical-corvus"}

	path := cfg.ExportDir()

	assert.Equal(t, "/home/user/.clinical-corvus/exports", path)
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "corvus")}

	err = cfg.EnsureDataDir()
	require.NoError(t, err)

	// Verify directories exist
	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"CORVUS_DATA_DIR",
		"CORVUS_CACHE_MAX_ITEMS",
		"CORVUS_CACHE_TTL",
		"CORVUS_FORMAT",
		"CORVUS_LOG_LEVEL",
		"CORVUS_LOG_FORMAT",
		"CORVUS_SCORING_API_KEY",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

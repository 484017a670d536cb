package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay())
	assert.Equal(t, 30*time.Second, cfg.RetryMaxDelay())
	assert.Equal(t, "job", cfg.RateLimitScope)
	assert.Equal(t, "accept", cfg.EmptyResultPolicy)
	assert.Equal(t, 10, cfg.DefaultMaxPages)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WORKERS", "7")
	t.Setenv("EMPTY_RESULT_POLICY", "warn")
	t.Setenv("JOB_TIMEOUT_API_CONNECTOR_MINUTES", "5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)
	assert.Equal(t, "warn", cfg.EmptyResultPolicy)

	overrides, def := cfg.JobTimeouts()
	assert.Equal(t, 5*time.Minute, overrides["api_connector"])
	assert.Equal(t, 60*time.Minute, def)
	_, ok := overrides["web_scraper"]
	assert.False(t, ok)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_PORT=9090\nSTORE_DRIVER=sqlite\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("RATE_LIMIT_SCOPE", "global")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_URL")
	assert.Contains(t, err.Error(), "RATE_LIMIT_SCOPE")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b,"))
	assert.Nil(t, SplitList(""))
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/orchepy")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 3296, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.WhitelistEnabled)
	assert.True(t, cfg.WebhookOnCaseCreate)
	assert.True(t, cfg.WebhookOnCaseMove)
	assert.Equal(t, 30*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, 16, cfg.MaxChainDepth)
}

func TestLoad_ParsesWhitelistIPsCSV(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/orchepy")
	t.Setenv("WHITELIST_ENABLED", "true")
	t.Setenv("WHITELIST_IPS", "127.0.0.1, 10.0.0.0/8 ,192.168.1.1")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.WhitelistEnabled)
	assert.Equal(t, []string{"127.0.0.1", "10.0.0.0/8", "192.168.1.1"}, cfg.WhitelistIPs)
}

func TestLoad_LogLevelFallsBackToRustLog(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/orchepy")
	t.Setenv("RUST_LOG", "debug")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

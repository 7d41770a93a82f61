package config

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/caresync/internal/flagx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, 30*time.Minute, c.SyncInterval)
	assert.Equal(t, 30, c.RetentionDays)
	assert.Equal(t, 500, c.PageSize)
	assert.Equal(t, 50, c.MaxPages)
	assert.Equal(t, 500, c.PushBatchSize)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadConfig_UsesDefaultsWithoutArgs(t *testing.T) {
	t.Setenv(flagx.ConfigEnv, "")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	var want Config
	want.LoadDefaults()
	assert.Equal(t, &want, cfg)
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	t.Setenv(flagx.ConfigEnv, "")
	path := writeTempJSON(t, "", "", map[string]any{
		"sync_interval":  "5m",
		"retention_days": 7,
		"log_level":      "warn",
	})

	cfg, err := LoadConfig([]string{"-c", path, "-d", "14", "-once"})
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 14, cfg.RetentionDays)
	assert.Equal(t, "warn", cfg.LogLevel)
}

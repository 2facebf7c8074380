package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadWithKey(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	t.Setenv("TRAILGUARD_AUTH_API_KEY", "test-key")
	config, err := LoadConfig()
	require.NoError(t, err)
	return config
}

func TestLoadConfig_Defaults(t *testing.T) {
	config := loadWithKey(t)

	assert.Equal(t, 8080, config.API.Port)
	assert.Equal(t, "test-key", config.Auth.APIKey)
	assert.Equal(t, 300*time.Second, config.Auth.TimestampSkew)
	assert.Equal(t, 300*time.Second, config.Intake.DedupWindow)
	assert.Equal(t, 1000, config.Intake.HistorySize)
	assert.Contains(t, config.Intake.AllowedSpecies, "tiger")
	assert.Equal(t, 180*time.Second, config.Devices.StaleAfter)
	assert.Equal(t, 200*time.Millisecond, config.Alerts.MessageDelay)
	assert.Equal(t, uint32(3), config.Alerts.Breaker.MaxFailures)
	assert.Equal(t, 30*time.Second, config.Stream.HeartbeatInterval)
	assert.Equal(t, "memory", config.Storage.DedupBackend)
	assert.Equal(t, "memory", config.Storage.LedgerBackend)
	assert.Equal(t, 10*time.Second, config.Client.RequestTimeout)
	assert.Equal(t, 3*time.Second, config.Client.StreamRetryDelay)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	viper.Reset()
	t.Setenv("TRAILGUARD_AUTH_API_KEY", "test-key")
	t.Setenv("TRAILGUARD_API_PORT", "9090")
	t.Setenv("TRAILGUARD_STORAGE_DEDUP_BACKEND", "redis")

	config, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9090, config.API.Port)
	assert.Equal(t, "redis", config.Storage.DedupBackend)
}

func TestLoadConfig_RequiresAPIKey(t *testing.T) {
	viper.Reset()
	t.Setenv("TRAILGUARD_AUTH_API_KEY", "")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.api_key")
}

func TestLoadConfig_RejectsUnknownBackend(t *testing.T) {
	viper.Reset()
	t.Setenv("TRAILGUARD_AUTH_API_KEY", "test-key")
	t.Setenv("TRAILGUARD_STORAGE_LEDGER_BACKEND", "mongodb")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger_backend")
}

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchy-xyz/watchy/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults when no
// environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "APP_PORT", "DEFAULT_CHAIN_ID", "REDIS_URL",
		"ARCHIVE_DSN", "ARCHIVE_DRIVER", "API_KEY", "SIGNER_ADDRESS", "CHAINS_FILE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, uint64(8453), cfg.DefaultChainID)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, "sqlite", cfg.ArchiveDriver)
	assert.Empty(t, cfg.APIKey)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values, and that APP_PORT wins over PORT.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_PORT", "9443")
	t.Setenv("DEFAULT_CHAIN_ID", "84532")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("ARCHIVE_DSN", "postgres://audit:5432/watchy")
	t.Setenv("ARCHIVE_DRIVER", "postgres")
	t.Setenv("API_KEY", "sekrit")
	t.Setenv("SIGNER_ADDRESS", "0x4444444444444444444444444444444444444444")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9443, cfg.Port)
	assert.Equal(t, uint64(84532), cfg.DefaultChainID)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.Equal(t, "postgres", cfg.ArchiveDriver)
	assert.Equal(t, "sekrit", cfg.APIKey)
	assert.Equal(t, "0x4444444444444444444444444444444444444444", cfg.SignerAddress)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("bad port", func(t *testing.T) {
		t.Setenv("APP_PORT", "not-a-port")
		_, err := config.Load()
		assert.ErrorContains(t, err, "invalid port")
	})

	t.Run("bad chain id", func(t *testing.T) {
		t.Setenv("APP_PORT", "")
		t.Setenv("PORT", "")
		t.Setenv("DEFAULT_CHAIN_ID", "base")
		_, err := config.Load()
		assert.ErrorContains(t, err, "DEFAULT_CHAIN_ID")
	})

	t.Run("unknown archive driver", func(t *testing.T) {
		t.Setenv("DEFAULT_CHAIN_ID", "")
		t.Setenv("ARCHIVE_DRIVER", "oracle")
		_, err := config.Load()
		assert.ErrorContains(t, err, "ARCHIVE_DRIVER")
	})
}

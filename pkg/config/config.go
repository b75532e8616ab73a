// Package config loads service configuration from the environment.
// Chain-specific settings (RPC endpoints, registry addresses) live in the
// chains table and are looked up by chain id at runtime; this holds global
// settings only.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the process-wide configuration.
type Config struct {
	// Port the HTTP API listens on. APP_PORT takes precedence over PORT.
	Port int

	// DefaultChainID is used when an audit request names no chain.
	DefaultChainID uint64

	// RedisURL for job persistence; empty falls back to in-memory.
	RedisURL string

	// ArchiveDSN is the SQL archive connection string; empty disables
	// archiving. ArchiveDriver selects "sqlite" or "postgres".
	ArchiveDSN    string
	ArchiveDriver string

	// APIKey gates all requests via the X-API-Key header when set.
	APIKey string

	// SignerAddress is stamped into reports as the feedback client
	// address; empty when no signer is configured.
	SignerAddress string

	// ChainsFile optionally overlays the built-in chain table.
	ChainsFile string
}

// Load reads the configuration from the environment, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:           8080,
		DefaultChainID: 8453,
		RedisURL:       os.Getenv("REDIS_URL"),
		ArchiveDSN:     os.Getenv("ARCHIVE_DSN"),
		ArchiveDriver:  envOr("ARCHIVE_DRIVER", "sqlite"),
		APIKey:         os.Getenv("API_KEY"),
		SignerAddress:  os.Getenv("SIGNER_ADDRESS"),
		ChainsFile:     os.Getenv("CHAINS_FILE"),
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return Config{}, fmt.Errorf("config: invalid port %q", port)
		}
		cfg.Port = p
	}

	if raw := os.Getenv("DEFAULT_CHAIN_ID"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid DEFAULT_CHAIN_ID %q", raw)
		}
		cfg.DefaultChainID = id
	}

	if cfg.ArchiveDriver != "sqlite" && cfg.ArchiveDriver != "postgres" {
		return Config{}, fmt.Errorf("config: unknown ARCHIVE_DRIVER %q", cfg.ArchiveDriver)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

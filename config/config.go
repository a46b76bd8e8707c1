package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/wuchunfu/nessie/errors"
	"github.com/wuchunfu/nessie/storage"
	"github.com/wuchunfu/nessie/storage/natskv"
	"github.com/wuchunfu/nessie/storage/objcache"
)

// Storage mode constants.
const (
	// StorageModeMemory keeps everything in process memory.
	StorageModeMemory = "memory"
	// StorageModeKV persists to NATS KV without a local cache.
	StorageModeKV = "kv"
	// StorageModeHybrid persists to NATS KV behind the caching facade.
	StorageModeHybrid = "hybrid"
)

// NATSConfig carries the connection settings for the KV-backed modes.
type NATSConfig struct {
	URL            string        `json:"url"`
	Name           string        `json:"name,omitempty"`
	Username       string        `json:"username,omitempty"`
	Password       string        `json:"password,omitempty"`
	Token          string        `json:"token,omitempty"`
	ConnectTimeout time.Duration `json:"connectTimeout,omitempty"`
}

// MetricsConfig carries the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Config is the complete store configuration.
type Config struct {
	// Mode selects the storage topology: memory, kv or hybrid.
	Mode    string          `json:"mode"`
	Store   natskv.Config   `json:"store"`
	Cache   objcache.Config `json:"cache"`
	NATS    NATSConfig      `json:"nats"`
	Metrics MetricsConfig   `json:"metrics"`
}

// Default returns the configuration used when no file is given: the
// hybrid mode against a local NATS server.
func Default() Config {
	return Config{
		Mode:  StorageModeHybrid,
		Store: natskv.DefaultConfig(),
		Cache: objcache.DefaultConfig(),
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			ConnectTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// Load reads the configuration file, falls back to defaults when path
// is empty, and applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.WrapInvalid(err, "config", "Load", "read config file")
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.WrapInvalid(
				fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
				"config", "Load", "parse config file")
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the assembled configuration.
func (c Config) Validate() error {
	switch c.Mode {
	case StorageModeMemory, StorageModeKV, StorageModeHybrid:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown storage mode %q", errors.ErrInvalidConfig, c.Mode),
			"config", "Validate", "check storage mode")
	}

	if c.Mode != StorageModeMemory {
		if c.NATS.URL == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: NATS URL required for mode %q", errors.ErrMissingConfig, c.Mode),
				"config", "Validate", "check NATS settings")
		}
		if err := c.Store.Validate(); err != nil {
			return errors.WrapInvalid(err, "config", "Validate", "check store settings")
		}
	} else if err := c.Store.Store.Validate(); err != nil {
		return errors.WrapInvalid(err, "config", "Validate", "check store settings")
	}

	if err := c.Cache.Validate(); err != nil {
		return errors.WrapInvalid(err, "config", "Validate", "check cache settings")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: metrics port %d out of range", errors.ErrInvalidConfig, c.Metrics.Port),
			"config", "Validate", "check metrics settings")
	}
	return nil
}

// StoreConfig returns the backend-independent store configuration of
// the selected mode.
func (c Config) StoreConfig() storage.StoreConfig {
	return c.Store.Store
}

// envPrefix namespaces all override variables.
const envPrefix = "NESSIE"

// applyEnvOverrides layers environment variables over the loaded
// configuration. Deployment environments override single values this
// way instead of templating the config file.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(envPrefix + "_MODE"); val != "" {
		cfg.Mode = val
	}
	if val := os.Getenv(envPrefix + "_REPOSITORY_ID"); val != "" {
		cfg.Store.Store.RepositoryID = val
	}
	if val := os.Getenv(envPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := os.Getenv(envPrefix + "_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := os.Getenv(envPrefix + "_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := os.Getenv(envPrefix + "_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}
	if val := os.Getenv(envPrefix + "_CACHE_MAX_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Cache.MaxSize = n
		}
	}
	if val := os.Getenv(envPrefix + "_CACHE_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if val := os.Getenv(envPrefix + "_METRICS_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Metrics.Port = n
		}
	}
	if val := os.Getenv(envPrefix + "_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
}

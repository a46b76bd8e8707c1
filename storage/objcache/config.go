package objcache

import (
	"fmt"
	"time"

	"github.com/wuchunfu/nessie/errors"
	"github.com/wuchunfu/nessie/storage"
)

// Config contains configuration for cache creation.
type Config struct {
	// Enabled determines if caching is enabled.
	Enabled bool `json:"enabled"`

	// MaxSize is the maximum number of entries, negative markers
	// included.
	MaxSize int `json:"max_size"`

	// NegativeTTL is how long a known-absent marker stays valid. Zero
	// disables negative caching.
	NegativeTTL time.Duration `json:"negative_ttl"`
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		MaxSize:     10000,
		NegativeTTL: 30 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.MaxSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "objcache", "Validate",
			fmt.Sprintf("max_size must be positive, got %d", c.MaxSize))
	}
	if c.NegativeTTL < 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "objcache", "Validate",
			fmt.Sprintf("negative_ttl cannot be negative, got %v", c.NegativeTTL))
	}
	return nil
}

// NewFromConfig creates a cache based on the provided configuration.
// Returns a no-op cache (every lookup misses) when caching is disabled.
func NewFromConfig(config Config, options ...Option) (Cache, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "objcache", "NewFromConfig", "config validation failed")
	}

	if !config.Enabled {
		return NewNoop(), nil
	}

	return New(config.MaxSize, config.NegativeTTL, options...)
}

// NewNoop creates a cache that holds nothing and reports every lookup
// as a miss. Used when caching is disabled via configuration.
func NewNoop() Cache {
	return &noopCache{}
}

type noopCache struct{}

func (c *noopCache) Get(_ storage.ObjId) (storage.Obj, State) { return nil, StateMiss }
func (c *noopCache) Put(_ storage.Obj)                        {}
func (c *noopCache) PutNegative(_ storage.ObjId)              {}
func (c *noopCache) Remove(_ storage.ObjId)                   {}
func (c *noopCache) Clear()                                   {}
func (c *noopCache) Size() int                                { return 0 }
func (c *noopCache) Stats() *Statistics                       { return nil }
func (c *noopCache) Close() error                             { return nil }

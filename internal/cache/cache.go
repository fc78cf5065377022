package cache

import (
	"context"
	"errors"
	"time"

	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheDisabled indicates that caching is disabled.
	ErrCacheDisabled = errors.New("cache disabled")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")
)

// Cache is the main interface for caching.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns ErrCacheMiss if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the given TTL.
	// A TTL of 0 uses the configured default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// Close closes the cache connection.
	Close() error
}

// TaggedCache extends Cache with a secondary index so that all entries
// sharing a tag can be evicted at once.
type TaggedCache interface {
	Cache

	// SetWithTags stores a value and registers the key under every tag.
	SetWithTags(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error

	// InvalidateTag removes every entry registered under tag and returns
	// how many entries were removed.
	InvalidateTag(ctx context.Context, tag string) (int, error)

	// Stats returns cache statistics.
	Stats() CacheStats
}

// CacheStats contains cache statistics.
type CacheStats struct {
	// Hits is the number of cache hits.
	Hits int64

	// Misses is the number of cache misses.
	Misses int64

	// Size is the current number of entries in the cache (memory only).
	Size int64
}

// HitRate returns the cache hit rate as a percentage.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// SecretReader reads a single field of a secret, used to resolve the redis
// password from Vault.
type SecretReader interface {
	ReadField(ctx context.Context, path, field string) (string, error)
}

// Option is a functional option for cache construction.
type Option func(*cacheOptions)

type cacheOptions struct {
	secrets SecretReader
}

// WithSecretReader sets the reader used for redis.passwordVaultPath.
func WithSecretReader(r SecretReader) Option {
	return func(o *cacheOptions) {
		o.secrets = r
	}
}

// New creates a new cache based on the configuration.
func New(cfg *config.CacheConfig, logger observability.Logger, opts ...Option) (TaggedCache, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}

	if !cfg.Enabled {
		return newDisabledCache(), nil
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	o := &cacheOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch cfg.Type {
	case config.CacheTypeMemory, "":
		return newMemoryCache(cfg, logger), nil
	case config.CacheTypeRedis:
		return newRedisCache(cfg, logger, o)
	default:
		return nil, errors.New("unknown cache type: " + cfg.Type)
	}
}

// disabledCache misses on every read; writes are no-ops.
type disabledCache struct{}

func newDisabledCache() TaggedCache {
	return &disabledCache{}
}

func (c *disabledCache) Get(_ context.Context, _ string) ([]byte, error) {
	return nil, ErrCacheDisabled
}

func (c *disabledCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (c *disabledCache) SetWithTags(_ context.Context, _ string, _ []byte, _ time.Duration, _ ...string) error {
	return nil
}

func (c *disabledCache) Delete(_ context.Context, _ string) error {
	return nil
}

func (c *disabledCache) InvalidateTag(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (c *disabledCache) Stats() CacheStats {
	return CacheStats{}
}

func (c *disabledCache) Close() error {
	return nil
}

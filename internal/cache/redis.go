package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/retry"
)

const backendRedis = "redis"

// tagKeyInfix separates tag sets from entries under the same prefix.
const tagKeyInfix = "tag:"

// setWithTagsScript writes the entry and adds it to every tag set. A tag
// set's expiry only ever grows so it outlives its longest member.
var setWithTagsScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
local ttl = tonumber(ARGV[2])
for i = 2, #KEYS do
  redis.call('SADD', KEYS[i], KEYS[1])
  if redis.call('PTTL', KEYS[i]) < ttl then
    redis.call('PEXPIRE', KEYS[i], ttl)
  end
end
return 1
`)

// invalidateTagScript deletes every member of a tag set and the set itself.
var invalidateTagScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
local removed = 0
for _, key in ipairs(members) do
  removed = removed + redis.call('DEL', key)
end
redis.call('DEL', KEYS[1])
return removed
`)

// redisRetryConfig returns the retry configuration for Redis operations.
// Callers bound each operation with a short timeout, so retries stay tight.
func redisRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:     2,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		JitterFactor:   retry.DefaultJitterFactor,
	}
}

// isRetryableRedisError checks if the error is retryable (network/connection errors).
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, redis.ErrClosed) {
		return false
	}
	return true
}

// redisCache implements a Redis-based cache with tag sets.
type redisCache struct {
	logger     observability.Logger
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
	ttlJitter  float64

	hits   int64
	misses int64
}

// applyTTLJitter shortens a TTL by a random fraction to spread expiry. A
// jitterFactor of 0.1 yields a TTL between 90% and 100% of ttl; entries never
// outlive the configured TTL.
func applyTTLJitter(ttl time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || ttl <= 0 {
		return ttl
	}
	if jitterFactor > 1.0 {
		jitterFactor = 1.0
	}
	//nolint:gosec // G404: TTL jitter does not require cryptographic randomness
	jitter := time.Duration(float64(ttl) * jitterFactor * rand.Float64())
	result := ttl - jitter
	if result <= 0 {
		return ttl
	}
	return result
}

// resolveKeyPrefix returns the key prefix, defaulting to "avakeys:" if empty.
func resolveKeyPrefix(prefix string) string {
	if prefix == "" {
		return config.DefaultRedisKeyPrefix
	}
	return prefix
}

func (c *redisCache) resolveKey(key string) string {
	return c.keyPrefix + key
}

func (c *redisCache) resolveTag(tag string) string {
	return c.keyPrefix + tagKeyInfix + tag
}

// resolveRedisPassword returns the configured password, reading it from
// Vault when a path is set.
func resolveRedisPassword(
	cfg *config.RedisConfig, secrets SecretReader, logger observability.Logger,
) (string, error) {
	if cfg.PasswordVaultPath == "" {
		return cfg.Password, nil
	}
	if secrets == nil {
		return "", errors.New("redis password vault path configured but vault client is not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pw, err := secrets.ReadField(ctx, cfg.PasswordVaultPath, "password")
	if err != nil {
		return "", fmt.Errorf("failed to read redis password from vault path %s: %w",
			cfg.PasswordVaultPath, err)
	}

	logger.Info("redis password resolved from vault",
		observability.String("vaultPath", cfg.PasswordVaultPath))
	return pw, nil
}

// newRedisCache creates a new Redis cache.
func newRedisCache(cfg *config.CacheConfig, logger observability.Logger, o *cacheOptions) (*redisCache, error) {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		return nil, errors.New("redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, errors.New("invalid redis URL: " + err.Error())
	}

	password, err := resolveRedisPassword(cfg.Redis, o.secrets, logger)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	if cfg.Redis.PoolSize > 0 {
		opts.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.DialTimeout > 0 {
		opts.DialTimeout = cfg.Redis.DialTimeout.Duration()
	}

	client := redis.NewClient(opts)

	if err := pingRedis(client); err != nil {
		_ = client.Close()
		return nil, errors.New("redis connection failed: " + err.Error())
	}

	defaultTTL := cfg.TTL.Duration()
	if defaultTTL <= 0 {
		defaultTTL = config.DefaultCacheTTL
	}

	c := &redisCache{
		logger:     logger,
		client:     client,
		keyPrefix:  resolveKeyPrefix(cfg.Redis.KeyPrefix),
		defaultTTL: defaultTTL,
		ttlJitter:  cfg.Redis.TTLJitter,
	}

	logger.Info("redis cache initialized",
		observability.String("keyPrefix", c.keyPrefix),
		observability.Duration("defaultTTL", c.defaultTTL),
		observability.Float64("ttlJitter", c.ttlJitter))

	return c, nil
}

// pingRedis tests the Redis connection with a timeout.
func pingRedis(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

func (c *redisCache) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("cache.backend", backendRedis))
	return otel.Tracer(cacheTracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (c *redisCache) fail(span trace.Span, op string, err error) {
	GetCacheMetrics().errorsTotal.WithLabelValues(backendRedis, op).Inc()
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	c.logger.Warn("redis operation failed",
		observability.String("operation", op),
		observability.Error(err))
}

func (c *redisCache) retryOptions(op string) *retry.Options {
	return &retry.Options{
		Operation:   "redis_" + op,
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			c.logger.Debug("retrying redis operation",
				observability.String("operation", op),
				observability.Int("attempt", attempt),
				observability.Error(err))
		},
	}
}

// Get retrieves a value from the cache with exponential backoff retry.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := c.startSpan(ctx, "cache.Get", attribute.String("cache.key", key))
	defer span.End()
	defer observeDuration(backendRedis, "get", time.Now())

	fullKey := c.resolveKey(key)

	var result []byte
	err := retry.Do(ctx, redisRetryConfig(), func() error {
		val, getErr := c.client.Get(ctx, fullKey).Bytes()
		if getErr != nil {
			return getErr
		}
		result = val
		return nil
	}, c.retryOptions("get"))

	switch {
	case err == nil:
		atomic.AddInt64(&c.hits, 1)
		GetCacheMetrics().hitsTotal.WithLabelValues(backendRedis).Inc()
		span.SetAttributes(
			attribute.Bool("cache.hit", true),
			attribute.Int("cache.value_size", len(result)),
		)
		return result, nil
	case errors.Is(err, redis.Nil):
		atomic.AddInt64(&c.misses, 1)
		GetCacheMetrics().missesTotal.WithLabelValues(backendRedis).Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	default:
		c.fail(span, "get", err)
		return nil, err
	}
}

// Set stores a value in the cache with exponential backoff retry.
func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.SetWithTags(ctx, key, value, ttl)
}

// SetWithTags stores a value and adds its key to every tag set in one
// atomic script call.
func (c *redisCache) SetWithTags(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
	tags ...string,
) error {
	ctx, span := c.startSpan(ctx, "cache.Set",
		attribute.String("cache.key", key),
		attribute.Int("cache.value_size", len(value)),
		attribute.Int("cache.tags", len(tags)),
	)
	defer span.End()
	defer observeDuration(backendRedis, "set", time.Now())

	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	ttl = applyTTLJitter(ttl, c.ttlJitter)

	keys := make([]string, 0, len(tags)+1)
	keys = append(keys, c.resolveKey(key))
	for _, tag := range tags {
		keys = append(keys, c.resolveTag(tag))
	}

	err := retry.Do(ctx, redisRetryConfig(), func() error {
		return setWithTagsScript.Run(ctx, c.client, keys, value, ttl.Milliseconds()).Err()
	}, c.retryOptions("set"))
	if err != nil {
		c.fail(span, "set", err)
		return err
	}
	return nil
}

// Delete removes a value from the cache with exponential backoff retry.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	ctx, span := c.startSpan(ctx, "cache.Delete", attribute.String("cache.key", key))
	defer span.End()
	defer observeDuration(backendRedis, "delete", time.Now())

	fullKey := c.resolveKey(key)
	err := retry.Do(ctx, redisRetryConfig(), func() error {
		return c.client.Del(ctx, fullKey).Err()
	}, c.retryOptions("delete"))
	if err != nil {
		c.fail(span, "delete", err)
		return err
	}
	return nil
}

// InvalidateTag removes every entry in the tag set and the set itself.
func (c *redisCache) InvalidateTag(ctx context.Context, tag string) (int, error) {
	ctx, span := c.startSpan(ctx, "cache.InvalidateTag", attribute.String("cache.tag", tag))
	defer span.End()
	defer observeDuration(backendRedis, "invalidate_tag", time.Now())

	tagKey := c.resolveTag(tag)

	var removed int64
	err := retry.Do(ctx, redisRetryConfig(), func() error {
		n, runErr := invalidateTagScript.Run(ctx, c.client, []string{tagKey}).Int64()
		if runErr != nil {
			return runErr
		}
		removed = n
		return nil
	}, c.retryOptions("invalidate_tag"))
	if err != nil {
		c.fail(span, "invalidate_tag", err)
		return 0, err
	}

	GetCacheMetrics().invalidatedTotal.WithLabelValues(backendRedis).Add(float64(removed))
	span.SetAttributes(attribute.Int64("cache.invalidated", removed))
	return int(removed), nil
}

// Stats returns cache statistics. Size is not tracked for redis.
func (c *redisCache) Stats() CacheStats {
	return CacheStats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
	}
}

// Close closes the Redis connection.
func (c *redisCache) Close() error {
	c.logger.Info("closing redis cache")
	return c.client.Close()
}

package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
)

const backendMemory = "memory"

// cacheTracerName is the OpenTelemetry tracer name for cache operations.
const cacheTracerName = "avakeys/cache"

// memoryCache implements an in-memory LRU cache with a tag index.
type memoryCache struct {
	logger     observability.Logger
	maxEntries int
	defaultTTL time.Duration

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List
	tags     map[string]map[string]struct{}

	hits   int64
	misses int64

	stopCh    chan struct{}
	closeOnce sync.Once
}

// memoryCacheEntry represents an entry in the memory cache.
type memoryCacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	tags      []string
}

func (e *memoryCacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// newMemoryCache creates a new in-memory cache.
func newMemoryCache(cfg *config.CacheConfig, logger observability.Logger) *memoryCache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = config.DefaultCacheMaxEntries
	}

	c := &memoryCache{
		logger:     logger,
		maxEntries: maxEntries,
		defaultTTL: cfg.TTL.Duration(),
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
		tags:       make(map[string]map[string]struct{}),
		stopCh:     make(chan struct{}),
	}

	go c.cleanupLoop()

	logger.Info("memory cache initialized",
		observability.Int("maxEntries", maxEntries),
		observability.Duration("defaultTTL", c.defaultTTL))

	return c
}

func startSpan(ctx context.Context, name, backend, key string) (context.Context, trace.Span) {
	return otel.Tracer(cacheTracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", backend),
			attribute.String("cache.key", key),
		),
	)
}

func observeDuration(backend, op string, start time.Time) {
	GetCacheMetrics().operationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// Get retrieves a value from the cache.
func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := startSpan(ctx, "cache.Get", backendMemory, key)
	defer span.End()
	defer observeDuration(backendMemory, "get", time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		c.recordMiss(span)
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryCacheEntry)
	if entry.expired(time.Now()) {
		c.removeElement(elem)
		c.recordMiss(span)
		return nil, ErrCacheMiss
	}

	c.eviction.MoveToFront(elem)

	atomic.AddInt64(&c.hits, 1)
	GetCacheMetrics().hitsTotal.WithLabelValues(backendMemory).Inc()
	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.Int("cache.value_size", len(entry.value)),
	)

	// Callers must not mutate the returned slice.
	return entry.value, nil
}

func (c *memoryCache) recordMiss(span trace.Span) {
	atomic.AddInt64(&c.misses, 1)
	GetCacheMetrics().missesTotal.WithLabelValues(backendMemory).Inc()
	span.SetAttributes(attribute.Bool("cache.hit", false))
}

// Set stores a value in the cache.
func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.SetWithTags(ctx, key, value, ttl)
}

// SetWithTags stores a value and registers the key under every tag.
func (c *memoryCache) SetWithTags(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
	tags ...string,
) error {
	_, span := startSpan(ctx, "cache.Set", backendMemory, key)
	defer span.End()
	defer observeDuration(backendMemory, "set", time.Now())

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	entry := &memoryCacheEntry{
		key:       key,
		value:     stored,
		expiresAt: expiresAt,
		tags:      append([]string(nil), tags...),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.untag(elem.Value.(*memoryCacheEntry))
		c.eviction.MoveToFront(elem)
		elem.Value = entry
		c.tag(entry)
		return nil
	}

	c.items[key] = c.eviction.PushFront(entry)
	c.tag(entry)

	for c.eviction.Len() > c.maxEntries {
		c.evictOldest()
	}

	GetCacheMetrics().sizeGauge.WithLabelValues(backendMemory).Set(float64(c.eviction.Len()))

	c.logger.Debug("cache set",
		observability.Duration("ttl", ttl),
		observability.Int("tags", len(tags)),
		observability.Int("size", c.eviction.Len()))

	return nil
}

// Delete removes a value from the cache.
func (c *memoryCache) Delete(ctx context.Context, key string) error {
	_, span := startSpan(ctx, "cache.Delete", backendMemory, key)
	defer span.End()
	defer observeDuration(backendMemory, "delete", time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}

	return nil
}

// InvalidateTag removes every entry registered under tag.
func (c *memoryCache) InvalidateTag(ctx context.Context, tag string) (int, error) {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.InvalidateTag",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", backendMemory),
			attribute.String("cache.tag", tag),
		),
	)
	defer span.End()
	defer observeDuration(backendMemory, "invalidate_tag", time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.tags[tag]
	removed := 0
	for key := range keys {
		if elem, ok := c.items[key]; ok {
			c.removeElement(elem)
			removed++
		}
	}
	delete(c.tags, tag)

	GetCacheMetrics().invalidatedTotal.WithLabelValues(backendMemory).Add(float64(removed))
	span.SetAttributes(attribute.Int("cache.invalidated", removed))

	return removed, nil
}

// Close closes the cache and stops the cleanup goroutine.
func (c *memoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)

		c.mu.Lock()
		c.items = make(map[string]*list.Element)
		c.tags = make(map[string]map[string]struct{})
		c.eviction.Init()
		c.mu.Unlock()

		c.logger.Info("memory cache closed")
	})
	return nil
}

// Stats returns cache statistics.
func (c *memoryCache) Stats() CacheStats {
	c.mu.Lock()
	size := int64(c.eviction.Len())
	c.mu.Unlock()

	return CacheStats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Size:   size,
	}
}

// tag registers entry under its tags. Must be called with lock held.
func (c *memoryCache) tag(entry *memoryCacheEntry) {
	for _, t := range entry.tags {
		set, ok := c.tags[t]
		if !ok {
			set = make(map[string]struct{})
			c.tags[t] = set
		}
		set[entry.key] = struct{}{}
	}
}

// untag drops entry from the tag index. Must be called with lock held.
func (c *memoryCache) untag(entry *memoryCacheEntry) {
	for _, t := range entry.tags {
		set := c.tags[t]
		delete(set, entry.key)
		if len(set) == 0 {
			delete(c.tags, t)
		}
	}
}

// evictOldest removes the least recently used entry. Must be called with lock held.
func (c *memoryCache) evictOldest() {
	if elem := c.eviction.Back(); elem != nil {
		c.removeElement(elem)
		GetCacheMetrics().evictionsTotal.WithLabelValues(backendMemory).Inc()
	}
}

// removeElement removes an element from the cache. Must be called with lock held.
func (c *memoryCache) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	entry := elem.Value.(*memoryCacheEntry)
	delete(c.items, entry.key)
	c.untag(entry)
}

// cleanupLoop periodically removes expired entries.
func (c *memoryCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// cleanup removes expired entries under a single write lock.
func (c *memoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element

	for elem := c.eviction.Back(); elem != nil; elem = elem.Prev() {
		if elem.Value.(*memoryCacheEntry).expired(now) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		c.removeElement(elem)
	}

	if len(toRemove) > 0 {
		c.logger.Debug("cache cleanup completed",
			observability.Int("removed", len(toRemove)))
	}
}

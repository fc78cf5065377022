// Package cache provides the cache-aside layer in front of the credential
// and vendor secret stores.
//
// The cache package implements in-memory caching and Redis-based distributed
// caching. It supports:
//
//   - In-memory LRU cache with configurable size
//   - Redis-based distributed cache with TTL jitter
//   - Tags: a secondary index grouping every entry owned by a tenant so
//     they can be evicted together
//   - Centralized retry logic with exponential backoff
//   - OpenTelemetry tracing for cache operations
//   - Prometheus metrics
//
// The cache is never authoritative. Callers treat every error as a miss.
//
// # Example Usage
//
//	c, err := cache.New(&cfg.Cache, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	err = c.SetWithTags(ctx, cache.CredentialKey(hash), snapshot, ttl,
//	    cache.TenantTag(tenantID))
//
//	evicted, err := c.InvalidateTag(ctx, cache.TenantTag(tenantID))
//
// # Thread Safety
//
// All cache implementations are safe for concurrent use.
package cache

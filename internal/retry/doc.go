// Package retry provides exponential backoff retry functionality for store
// and cache operations.
//
// # Usage
//
// Execute an operation with retry:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return client.Ping(ctx).Err()
//	}, &retry.Options{
//	    Operation:   "redis_ping",
//	    ShouldRetry: retry.IsTransient,
//	})
//
// Credential issuance uses the same loop with OnlyIntegrity so that a
// duplicate hash triggers regeneration while every other error is final.
package retry

// Package retry provides simple exponential backoff retry logic for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff,
// used by the connection pool for repeated sweeps over the broker address
// list and available for application-level operations.
//
// # Core Functions
//
//   - Do: Execute function with retry and exponential backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//
// # Configuration Presets
//
//   - Single(): exactly one attempt, no delays (the pool default; a single
//     acquisition already sweeps every configured address)
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//
// # Usage Examples
//
// Basic retry with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return client.Connect()
//	})
//
// Retry with result:
//
//	conn, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*broker.Connection, error) {
//	    return pool.GetConnection(ctx)
//	})
//
// Non-retryable failures:
//
//	err := retry.Do(ctx, cfg, func() error {
//	    if fatal {
//	        return retry.NonRetryable(errPermanent)
//	    }
//	    return errTransient
//	})
//
// # Design Philosophy
//
// This package is intentionally minimal:
//
//   - No circuit breakers (use a separate package)
//   - No metrics collection (use instrumentation at call site)
//   - No complex error classification (caller decides what to retry)
//   - Just exponential backoff with jitter
//
// # Context Cancellation
//
// All retry operations respect context cancellation and will immediately stop retrying
// when the context is cancelled, either during operation execution or during backoff delay.
//
// # Thread Safety
//
// All functions are safe for concurrent use. The jitter mechanism uses a thread-safe
// random source to avoid contention.
package retry

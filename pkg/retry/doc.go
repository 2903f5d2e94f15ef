// Package retry provides exponential backoff and retry logic for handling
// transient failures in network operations, particularly feed and post fetches.
//
// Features:
//   - Exponential backoff with optional jitter
//   - Context support for cancellation
//   - Halt predicate for cooperative cancellation that never aborts an
//     in-flight request
//   - Configurable retry predicates
//   - Integration with the typed error taxonomy
//
// Basic usage:
//
//	// Simple retry with defaults
//	err := retry.Do(func() error {
//		return client.FetchPage(ctx, offset)
//	}, nil)
//
//	// The standard API retry policy: 3 attempts, 5s base delay, doubling
//	cfg := retry.APIConfig(ctx, 0, 0, logger.GetLogger())
//	err := retry.Do(operation, cfg)
//
// Auth, not-found and parsing errors are never retried; network, rate limit
// and server errors are.
package retry

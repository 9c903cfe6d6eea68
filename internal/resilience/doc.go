// Package resilience provides reliability and fault tolerance patterns for the pipeline.
// It includes implementations of circuit breakers and retry backoff policies used
// around external inference API calls and the persistent store.
//
// The package supports:
//   - A four-state circuit breaker (closed, open, half-open, isolated) with a
//     sliding outcome window and configurable break-duration strategies
//   - Retry backoff policies with exponential delay growth and multiplicative jitter
//   - A gobreaker-based wrapper protecting database operations
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.InferenceConfig("claude-api"))
//	if err := cb.Allow(); err != nil {
//	    return err // circuit open, fail fast
//	}
//	err := callExternalService()
//	cb.Record(err == nil)
//
//	policy := retry.InferencePolicy()
//	delay := policy.Delay(attempt)
package resilience

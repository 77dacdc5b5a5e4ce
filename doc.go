// Package resfetch turns an unreliable upstream call into a race-free,
// self-healing stream of states for one storefront resource ("products",
// "brands", ...).
//
// Components:
//   - classify: maps a fetch error to Superseded, Connection, Timeout or Domain.
//   - backoff: delay before the next retry of the same logical fetch.
//   - cachestore: last good payload per resource, with TTL, on a pluggable
//     provider (memory, Ristretto, BigCache, Redis).
//   - sequencer: one generation counter per resource; only the newest
//     generation may publish.
//   - Controller: the state machine composing the four.
//   - Registry: one Controller per resource key on a shared Sequencer.
//
// Lifecycle of one Trigger:
//
//	Trigger -> Begin(key) = gen -> Fetching -> fetch(ctx)
//	   ok, gen current        -> cache.Put, publish Succeeded
//	   err, retryable, budget -> publish IsRetrying, RetryWait, fetch again (same gen)
//	   err, otherwise         -> cached entry ? publish stale data : publish Failed
//	   gen superseded         -> drop silently
//
// A watchdog bounds every attempt; when it fires the attempt is treated as a
// Timeout without waiting for the call to return.
package resfetch

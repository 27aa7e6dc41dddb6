// Package router implements the distributed request router: rule
// matching, session affinity, eligible-backend filtering (health plus
// per-backend circuit breaker state), strategy-based selection across
// eight load-balancing algorithms, and a bounded request queue with a
// selectable back-pressure policy for when no backend is eligible.
//
// Per-backend circuit breakers reuse internal/circuit.Manager verbatim —
// that package is already domain-agnostic — and are re-probed on
// RouterConfig.CircuitBreakerInterval.
package router

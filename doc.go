// Package tokengate issues, stores, validates, and revokes bearer session
// tokens, and guarantees that revocation is observed consistently by both the
// synchronous HTTP request path and the long-lived websocket connection path.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// tokengate is the public surface. It exposes [Engine], [Builder], [Config],
// the [PrincipalProvider] integration interface, and value types
// (AuthResult, TokenPair, MetricsSnapshot). The signed-token codec lives in
// the jwt subpackage, the expiring Redis store in the token subpackage, and
// the transport gates in middleware (HTTP) and ws (websocket). The gates
// consume the Engine verdict; neither owns lifecycle logic of its own.
//
// # What this package must NOT do
//
//   - Expose Redis clients, key layouts, or raw claim material in its API.
//   - Leak the specific rejection reason to external callers. Every failed
//     validation collapses to [ErrUnauthorized] (or
//     [ErrBackendUnavailable] for infrastructure faults); the per-reason
//     breakdown is available only through audit events and metrics.
//   - Retract a blacklist entry before its natural expiry.
//
// # Consistency contract
//
// Both request paths re-read the store on every check, so a revocation write
// is visible to the very next validation on either path with no push or
// broadcast mechanism. The worst race outcome is a token treated as valid for
// the remainder of one in-flight check, never a permanent bypass.
package tokengate

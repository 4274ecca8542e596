// Package middleware is the synchronous request-path gate: a plain
// net/http middleware with no framework dependency, applied in front of
// every gated route. It extracts the Authorization bearer credential,
// consults the engine, and either injects the verdict into the request
// context or answers 401 with a JSON error body.
package middleware

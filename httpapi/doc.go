// Package httpapi serves the token lifecycle over HTTP: registration,
// login, refresh, logout, profile, and health. It is the issuance-side
// counterpart to the middleware gate; the two share one Engine and agree on
// the exempt-path allowlist through [ExemptPaths].
package httpapi

// Package token provides the Redis-backed expiring store for live token
// records and blacklist markers.
//
// # Design
//
// One live record per (subject, kind); issuing a new token of the same kind
// silently supersedes the previous record. Blacklist markers are keyed by
// per-issuance token id and live exactly as long as the token they revoke.
// Every operation is a single-key atomic Redis command; entries vanish on
// their own at TTL expiry, which makes the TTL itself the only timeout
// mechanism the lifecycle needs.
//
// Eviction before natural expiry (backend memory pressure) is an accepted
// failure mode: an absent live record rejects the token, never accepts it.
//
// # What this package must NOT do
//
//   - Decode or verify token strings; that is the jwt package's job.
//   - Make authorization decisions; it only answers presence questions.
package token

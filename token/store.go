package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned by GetLive when no live record exists for the
	// subject/kind pair. Callers must treat it as "cannot prove validity",
	// not as proof the token never existed: the backend may evict early.
	ErrNotFound = errors.New("live token record not found")
	// ErrExpiredTTL rejects writes whose time-to-live is not positive. A
	// token that has already expired must never be stored.
	ErrExpiredTTL = errors.New("ttl must be positive")
	// ErrRedisUnavailable wraps backend faults so callers can fail closed
	// without inspecting driver error types.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Store is the expiring record of live tokens and blacklist markers, shared
// by both request paths and the issuance service. All operations are
// single-key and atomic; the validation pipeline is designed so that no
// cross-key transaction is ever needed.
//
// Key layout (under the configured prefix):
//
//	<prefix>:live:<subject>:<kind>  -> raw token string, TTL = remaining lifetime
//	<prefix>:bl:<token id>          -> "1", TTL = remaining lifetime of that token
type Store struct {
	client redis.UniversalClient
	prefix string
}

// NewStore wraps a Redis client with the tokengate key layout.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// SaveLive inserts or overwrites the live record for (subject, kind). An
// overwrite silently supersedes the previous token of that kind: the old
// string stops being retrievable as the live record even though its
// signature stays valid until expiry.
func (s *Store) SaveLive(ctx context.Context, subjectID, kind, raw string, ttl time.Duration) error {
	if subjectID == "" || kind == "" || raw == "" {
		return errors.New("subject, kind, and token required")
	}
	if ttl <= 0 {
		return ErrExpiredTTL
	}
	if err := s.client.Set(ctx, s.liveKey(subjectID, kind), raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// GetLive returns the current live token string for (subject, kind), or
// [ErrNotFound].
func (s *Store) GetLive(ctx context.Context, subjectID, kind string) (string, error) {
	raw, err := s.client.Get(ctx, s.liveKey(subjectID, kind)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return raw, nil
}

// DeleteLive removes the live record for (subject, kind). Deleting an
// absent record is not an error; administrative logout must be idempotent.
func (s *Store) DeleteLive(ctx context.Context, subjectID, kind string) error {
	if err := s.client.Del(ctx, s.liveKey(subjectID, kind)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Blacklist writes a revocation marker for the token id. The ttl must equal
// the token's remaining lifetime; a marker never needs to outlive the token
// it targets, because expiry alone invalidates it afterwards.
func (s *Store) Blacklist(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("token id required")
	}
	if ttl <= 0 {
		return ErrExpiredTTL
	}
	if err := s.client.Set(ctx, s.blacklistKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether a revocation marker exists for the token id.
func (s *Store) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.blacklistKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Ping measures backend round-trip latency for health reporting.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) liveKey(subjectID, kind string) string {
	return s.prefix + ":live:" + subjectID + ":" + kind
}

func (s *Store) blacklistKey(tokenID string) string {
	return s.prefix + ":bl:" + tokenID
}

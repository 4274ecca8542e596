package tokengate

import (
	"errors"
	"time"
)

// Config defines a public type used by the tokengate engine.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	JWT       JWTConfig
	Store     StoreConfig
	Handshake HandshakeConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the signed-token codec.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig configures the Redis key layout for live records and
// blacklist markers.
type StoreConfig struct {
	RedisPrefix string
}

/*
====================================
HANDSHAKE CONFIG
====================================
*/

// HandshakeConfig bounds blocking lookups made during the websocket
// handshake. The HTTP path inherits its deadline from the request context
// and needs no separate bound.
type HandshakeConfig struct {
	// ValidateTimeout caps one handshake validation (store reads plus the
	// principal lookup). On timeout the credential is rejected, fail closed.
	ValidateTimeout time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the caller when the
	// buffer is saturated. Dropped counts are observable via
	// [Engine.AuditDropped].
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig enables the in-process counter table.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration used when the Builder is given
// none: HS256 signing, 15 minute access tokens, 7 day refresh tokens,
// audit and metrics enabled.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Leeway:        30 * time.Second,
		},
		Store: StoreConfig{
			RedisPrefix: "tg",
		},
		Handshake: HandshakeConfig{
			ValidateTimeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks configuration invariants before the engine is built.
func (c Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("access TTL must be positive")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("refresh TTL must be positive")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("refresh TTL must not be shorter than access TTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("invalid leeway configuration")
	}
	if c.Store.RedisPrefix == "" {
		return errors.New("redis prefix required")
	}
	if c.Handshake.ValidateTimeout <= 0 {
		return errors.New("handshake validate timeout must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive")
	}
	return nil
}

func cloneConfig(c Config) Config {
	out := c
	out.JWT.PrivateKey = append([]byte(nil), c.JWT.PrivateKey...)
	out.JWT.PublicKey = append([]byte(nil), c.JWT.PublicKey...)
	return out
}

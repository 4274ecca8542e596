package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the signature algorithm for issued tokens.
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with the
	// matching public key.
	MethodEd25519 SigningMethod = "ed25519"
)

const (
	// KindAccess marks the short-lived request token.
	KindAccess = "access"
	// KindRefresh marks the long-lived renewal token.
	KindRefresh = "refresh"
)

var (
	// ErrDecode is the terminal error for any token that cannot be decoded:
	// malformed structure, bad signature, unknown algorithm, or missing
	// required claims. It deliberately carries no detail about the key.
	ErrDecode = errors.New("token decode failed")
)

// Config configures a Manager. Instances are treated as immutable after
// NewManager.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// Claims is the decoded view of a tokengate token. Subject is the owning
// principal id, ID the per-issuance identifier (uuid v4), Kind one of
// [KindAccess] or [KindRefresh].
type Claims struct {
	Kind string `json:"knd"`
	jwt.RegisteredClaims
}

// RemainingLifetime returns the duration until the expiry claim, negative
// when already past.
func (c *Claims) RemainingLifetime(now time.Time) time.Duration {
	return c.ExpiresAt.Time.Sub(now)
}

// Manager is the token codec: it mints signed access and refresh tokens and
// decodes presented ones. A Manager holds only the verification/signing key
// material and is safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the configuration and returns a codec.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Manager{config: cfg}, nil
}

// CreateAccess mints a new access token for the subject and returns the
// signed string together with its claims.
func (m *Manager) CreateAccess(subjectID string, now time.Time) (string, *Claims, error) {
	return m.create(subjectID, KindAccess, now, m.config.AccessTTL)
}

// CreateRefresh mints a new refresh token for the subject.
func (m *Manager) CreateRefresh(subjectID string, now time.Time) (string, *Claims, error) {
	return m.create(subjectID, KindRefresh, now, m.config.RefreshTTL)
}

func (m *Manager) create(subjectID, kind string, now time.Time, ttl time.Duration) (string, *Claims, error) {
	if subjectID == "" {
		return "", nil, errors.New("empty subject")
	}

	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(m.getMethod(), claims)
	signKey, err := m.getSignKey()
	if err != nil {
		return "", nil, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, claims, nil
}

// Parse verifies structure and signature and returns the claims. Expiry is
// deliberately NOT enforced here: the validation pipeline checks it as its
// own step after the blacklist and live-record lookups, so that a revoked
// token that has also expired is still attributed to the earlier check.
// Required claims (subject, expiry, known kind) are enforced; any failure is
// reported as [ErrDecode] without raw key material.
func (m *Manager) Parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrDecode
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.getMethod().Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.getVerifyKey()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, sanitizeParseError(err))
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrDecode
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing required claims", ErrDecode)
	}
	if claims.Kind != KindAccess && claims.Kind != KindRefresh {
		return nil, fmt.Errorf("%w: unknown token kind", ErrDecode)
	}
	if m.config.Issuer != "" && claims.Issuer != m.config.Issuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrDecode)
	}
	return claims, nil
}

// Expired reports whether the expiry claim is past, with configured leeway.
func (m *Manager) Expired(claims *Claims, now time.Time) bool {
	return claims.ExpiresAt.Time.Add(m.config.Leeway).Before(now)
}

func (m *Manager) getMethod() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (m *Manager) getSignKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(m.config.PrivateKey)
	default:
		return m.config.PrivateKey, nil
	}
}

func (m *Manager) getVerifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(m.config.PublicKey)
	default:
		return m.config.PrivateKey, nil
	}
}

// sanitizeParseError keeps the library error category but never echoes token
// or key bytes back to the caller.
func sanitizeParseError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	default:
		return "invalid"
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

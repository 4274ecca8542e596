package tokengate

import (
	"context"
	"time"
)

// TokenKind distinguishes the two members of an issued token pair.
type TokenKind string

const (
	// KindAccess is the short-lived token presented on every request.
	KindAccess TokenKind = "access"
	// KindRefresh is the long-lived token exchanged for new access tokens.
	KindRefresh TokenKind = "refresh"
)

// Principal is the minimal account view this engine needs. It is looked up
// through [PrincipalProvider] and never mutated here; ownership of the full
// user record stays with the integrating application.
type Principal struct {
	ID           string
	Identifier   string
	PasswordHash string
	Active       bool
}

// CreatePrincipalInput carries a registration request to the provider.
// PasswordHash is already an argon2id PHC string; the plaintext never
// crosses the provider boundary.
type CreatePrincipalInput struct {
	Identifier   string
	PasswordHash string
}

// PrincipalProvider is the interface callers implement to integrate
// tokengate with their user database. Lookup methods return
// [ErrPrincipalNotFound] (possibly wrapped) when no principal matches.
//
// PrincipalProvider implementations must be safe for concurrent use; both
// request paths call GetByID from independent goroutines.
type PrincipalProvider interface {
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Principal, error)
	Create(ctx context.Context, input CreatePrincipalInput) (*Principal, error)
}

// TokenPair is the result of a successful login or registration.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// AuthResult is returned by [Engine.Validate] for an accepted token. It is
// the only thing the gates attach to an authenticated request or connection.
type AuthResult struct {
	SubjectID string
	Kind      TokenKind
	TokenID   string
	ExpiresAt time.Time
}

// Reason identifies which validation step rejected a token. Reasons are
// internal observability detail: they feed audit events and metrics and are
// never part of an external response.
type Reason uint8

const (
	// ReasonNone means the token passed every step.
	ReasonNone Reason = iota
	// ReasonDecodeFailed covers malformed structure, bad signatures, and
	// missing required claims.
	ReasonDecodeFailed
	// ReasonBlacklisted means an explicit revocation marker was found.
	ReasonBlacklisted
	// ReasonNotRegistered means no live record matched: the token was never
	// stored, was cleared, or has been superseded by a newer issuance.
	ReasonNotRegistered
	// ReasonExpired means the expiry claim is in the past.
	ReasonExpired
	// ReasonKindMismatch means the token decoded and validated but is the
	// wrong kind for the operation, such as an access token presented for
	// refresh.
	ReasonKindMismatch
	// ReasonPrincipalInactive means the owning principal is absent or
	// disabled.
	ReasonPrincipalInactive
	// ReasonBackendFault means the store or provider could not answer and
	// the check failed closed.
	ReasonBackendFault
)

// String describes the reason for audit payloads.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonDecodeFailed:
		return "decode_failed"
	case ReasonBlacklisted:
		return "blacklisted"
	case ReasonNotRegistered:
		return "not_registered"
	case ReasonExpired:
		return "expired"
	case ReasonKindMismatch:
		return "kind_mismatch"
	case ReasonPrincipalInactive:
		return "principal_inactive"
	case ReasonBackendFault:
		return "backend_fault"
	default:
		return "unknown"
	}
}

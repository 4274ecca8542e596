package tokengate

import "errors"

var (
	// ErrUnauthorized collapses every validation rejection at the external
	// boundary: decode failure, blacklisted, not registered, expired, or
	// principal inactive. Callers must not be able to tell which.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBackendUnavailable reports a store or provider fault during
	// validation. The credential is still rejected (fail closed), but the
	// connection gate maps this to its internal-fault close code.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrInvalidCredentials is returned by Login for a wrong identifier or
	// password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPrincipalNotFound must be returned by PrincipalProvider lookups
	// when no principal matches.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPrincipalInactive is returned when a known principal is disabled.
	ErrPrincipalInactive = errors.New("principal inactive")
	// ErrPrincipalExists is returned by Register when the identifier is
	// already taken.
	ErrPrincipalExists = errors.New("principal already exists")
	// ErrRefreshRequired is returned by Refresh when the presented token is
	// not a refresh token.
	ErrRefreshRequired = errors.New("refresh token required")
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or partially constructed engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

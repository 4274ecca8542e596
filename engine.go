package tokengate

import (
	"context"
	"errors"
	"time"

	"github.com/macropulse/tokengate/jwt"
	"github.com/macropulse/tokengate/password"
	"github.com/macropulse/tokengate/token"
)

// Engine is the credential-lifecycle core: it issues token pairs, validates
// presented tokens against the expiring store, and revokes them. Both
// transport gates and the HTTP issuance handlers drive the same Engine, so
// a revocation written through one path is observed by the next check on
// either.
//
// Engine instances are built through [Builder.Build] and safe for
// concurrent use afterwards.
type Engine struct {
	config       Config
	tokens       *token.Store
	jwtManager   *jwt.Manager
	passwordHash *password.Argon2
	provider     PrincipalProvider
	audit        *auditDispatcher
	metrics      *Metrics

	// now is replaced in tests to step through token lifetimes
	// deterministically.
	now func() time.Time
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}

// Close flushes the audit dispatcher. The engine must not be used after
// Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counter table.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// Health pings the token store.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.tokens == nil {
		return HealthStatus{}
	}
	latency, err := e.tokens.Ping(ctx)
	return HealthStatus{StoreAvailable: err == nil, StoreLatency: latency}
}

/*
====================================
ISSUANCE
====================================
*/

// Login verifies the identifier/password pair against the provider's stored
// hash and, on success, issues and registers a fresh token pair. Wrong
// identifier and wrong password are indistinguishable to the caller.
func (e *Engine) Login(ctx context.Context, identifier, plaintext string) (*TokenPair, error) {
	if e == nil || e.provider == nil {
		return nil, ErrEngineNotReady
	}

	p, err := e.provider.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.loginRejected(ctx, identifier, "unknown identifier")
			return nil, ErrInvalidCredentials
		}
		e.loginRejected(ctx, identifier, "provider fault")
		return nil, ErrBackendUnavailable
	}

	ok, err := e.passwordHash.Verify(plaintext, p.PasswordHash)
	if err != nil || !ok {
		e.loginRejected(ctx, identifier, "password mismatch")
		return nil, ErrInvalidCredentials
	}
	if !p.Active {
		e.loginRejected(ctx, identifier, "principal inactive")
		return nil, ErrPrincipalInactive
	}

	pair, err := e.Issue(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emit(ctx, AuditEvent{
		Timestamp: e.now(),
		EventType: "login",
		SubjectID: p.ID,
		Success:   true,
	})
	return pair, nil
}

// Register creates the principal through the provider (password already
// hashed, the plaintext never leaves this method) and issues its first
// token pair.
func (e *Engine) Register(ctx context.Context, identifier, plaintext string) (*Principal, *TokenPair, error) {
	if e == nil || e.provider == nil {
		return nil, nil, ErrEngineNotReady
	}

	hash, err := e.passwordHash.Hash(plaintext)
	if err != nil {
		return nil, nil, err
	}

	p, err := e.provider.Create(ctx, CreatePrincipalInput{
		Identifier:   identifier,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrPrincipalExists) {
			return nil, nil, ErrPrincipalExists
		}
		return nil, nil, ErrBackendUnavailable
	}

	pair, err := e.Issue(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emit(ctx, AuditEvent{
		Timestamp: e.now(),
		EventType: "register",
		SubjectID: p.ID,
		Success:   true,
	})
	return p, pair, nil
}

// Issue mints an access/refresh pair for the subject and registers both
// live records with TTLs equal to each token's own remaining lifetime. The
// store writes complete before the pair is returned, so issuance
// happens-before any successful validation of these tokens. Re-issuing
// supersedes any previous pair of the same subject.
func (e *Engine) Issue(ctx context.Context, subjectID string) (*TokenPair, error) {
	if e == nil || e.tokens == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	now := e.now()

	access, accessClaims, err := e.jwtManager.CreateAccess(subjectID, now)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := e.jwtManager.CreateRefresh(subjectID, now)
	if err != nil {
		return nil, err
	}

	if err := e.tokens.SaveLive(ctx, subjectID, string(KindAccess), access, accessClaims.RemainingLifetime(now)); err != nil {
		return nil, ErrBackendUnavailable
	}
	if err := e.tokens.SaveLive(ctx, subjectID, string(KindRefresh), refresh, refreshClaims.RemainingLifetime(now)); err != nil {
		return nil, ErrBackendUnavailable
	}

	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token. Only the
// access record is rewritten; the refresh record keeps its original expiry.
func (e *Engine) Refresh(ctx context.Context, rawRefresh string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	res, reason, cause := e.validate(ctx, rawRefresh)
	if cause != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitRejection(ctx, "refresh", reason, cause)
		if reason == ReasonBackendFault {
			return "", ErrBackendUnavailable
		}
		return "", ErrUnauthorized
	}
	if res.Kind != KindRefresh {
		e.metricInc(MetricRefreshFailure)
		e.emitRejection(ctx, "refresh", ReasonKindMismatch, ErrRefreshRequired)
		return "", ErrRefreshRequired
	}

	now := e.now()
	access, claims, err := e.jwtManager.CreateAccess(res.SubjectID, now)
	if err != nil {
		return "", err
	}
	if err := e.tokens.SaveLive(ctx, res.SubjectID, string(KindAccess), access, claims.RemainingLifetime(now)); err != nil {
		return "", ErrBackendUnavailable
	}

	e.metricInc(MetricRefreshSuccess)
	e.emit(ctx, AuditEvent{
		Timestamp: now,
		EventType: "refresh",
		SubjectID: res.SubjectID,
		TokenID:   claims.ID,
		Success:   true,
	})
	return access, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate runs the full authorization pipeline over a presented bearer
// token. On rejection it returns [ErrUnauthorized], or
// [ErrBackendUnavailable] when the store or provider could not answer; the
// step that rejected is recorded in audit events and metrics only.
func (e *Engine) Validate(ctx context.Context, raw string) (*AuthResult, error) {
	if e == nil || e.tokens == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	res, reason, cause := e.validate(ctx, raw)
	if cause != nil {
		e.metricInc(MetricValidateRejected)
		e.metricInc(rejectionMetric(reason))
		e.emitRejection(ctx, "validate", reason, cause)
		if reason == ReasonBackendFault {
			return nil, ErrBackendUnavailable
		}
		return nil, ErrUnauthorized
	}

	e.metricInc(MetricValidateAccepted)
	return res, nil
}

// validate is the ordered short-circuit pipeline. The cheap, decisive
// checks (decode, blacklist, presence) run before the provider lookup so
// already-doomed tokens never load the principal backend.
func (e *Engine) validate(ctx context.Context, raw string) (*AuthResult, Reason, error) {
	claims, err := e.jwtManager.Parse(raw)
	if err != nil {
		return nil, ReasonDecodeFailed, err
	}

	blacklisted, err := e.tokens.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, ReasonBackendFault, err
	}
	if blacklisted {
		return nil, ReasonBlacklisted, errors.New("token blacklisted")
	}

	stored, err := e.tokens.GetLive(ctx, claims.Subject, claims.Kind)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return nil, ReasonNotRegistered, err
		}
		return nil, ReasonBackendFault, err
	}
	if stored != raw {
		// Signature-valid but superseded by a newer issuance.
		return nil, ReasonNotRegistered, errors.New("token superseded")
	}

	now := e.now()
	if e.jwtManager.Expired(claims, now) {
		return nil, ReasonExpired, errors.New("token expired")
	}

	p, err := e.provider.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ReasonPrincipalInactive, err
		}
		return nil, ReasonBackendFault, err
	}
	if !p.Active {
		return nil, ReasonPrincipalInactive, ErrPrincipalInactive
	}

	return &AuthResult{
		SubjectID: claims.Subject,
		Kind:      TokenKind(claims.Kind),
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, ReasonNone, nil
}

/*
====================================
REVOCATION
====================================
*/

// Revoke writes a blacklist marker for the token with TTL equal to its
// remaining lifetime. It reports false when there is nothing to revoke: an
// undecodable token cannot be identified, and an expired one is already
// inherently invalid. Revoking twice is harmless; the second write renews
// the same marker.
func (e *Engine) Revoke(ctx context.Context, raw string) bool {
	if e == nil || e.tokens == nil || e.jwtManager == nil {
		return false
	}

	claims, err := e.jwtManager.Parse(raw)
	if err != nil {
		e.metricInc(MetricRevokeNoop)
		e.emitRejection(ctx, "revoke", ReasonDecodeFailed, err)
		return false
	}

	now := e.now()
	ttl := claims.RemainingLifetime(now)
	if ttl <= 0 {
		e.metricInc(MetricRevokeNoop)
		e.emit(ctx, AuditEvent{
			Timestamp: now,
			EventType: "revoke",
			SubjectID: claims.Subject,
			TokenID:   claims.ID,
			Kind:      claims.Kind,
			Reason:    ReasonExpired.String(),
			Success:   false,
		})
		return false
	}

	if err := e.tokens.Blacklist(ctx, claims.ID, ttl); err != nil {
		e.metricInc(MetricRevokeNoop)
		e.emitRejection(ctx, "revoke", ReasonBackendFault, err)
		return false
	}

	e.metricInc(MetricRevokeSuccess)
	e.emit(ctx, AuditEvent{
		Timestamp: now,
		EventType: "revoke",
		SubjectID: claims.Subject,
		TokenID:   claims.ID,
		Kind:      claims.Kind,
		Success:   true,
	})
	return true
}

// Logout revokes the access token and, when supplied, the refresh token.
// Both revocations are independent and best-effort; logout is idempotent.
func (e *Engine) Logout(ctx context.Context, rawAccess, rawRefresh string) (accessRevoked, refreshRevoked bool) {
	if rawAccess != "" {
		accessRevoked = e.Revoke(ctx, rawAccess)
	}
	if rawRefresh != "" {
		refreshRevoked = e.Revoke(ctx, rawRefresh)
	}
	return accessRevoked, refreshRevoked
}

// ClearSubject deletes both live records for a subject without needing the
// token strings, for administrators forcibly logging a principal out. The
// tokens themselves stay signature-valid until expiry but fail the
// live-record check on the next validation.
func (e *Engine) ClearSubject(ctx context.Context, subjectID string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	errAccess := e.tokens.DeleteLive(ctx, subjectID, string(KindAccess))
	errRefresh := e.tokens.DeleteLive(ctx, subjectID, string(KindRefresh))
	if err := errors.Join(errAccess, errRefresh); err != nil {
		return ErrBackendUnavailable
	}

	e.metricInc(MetricSubjectCleared)
	e.emit(ctx, AuditEvent{
		Timestamp: e.now(),
		EventType: "clear_subject",
		SubjectID: subjectID,
		Success:   true,
	})
	return nil
}

/*
====================================
INTERNALS
====================================
*/

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRejection(ctx context.Context, op string, reason Reason, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	e.emit(ctx, AuditEvent{
		Timestamp: e.now(),
		EventType: op,
		Reason:    reason.String(),
		Success:   false,
		Error:     msg,
	})
}

func (e *Engine) loginRejected(ctx context.Context, identifier, why string) {
	e.metricInc(MetricLoginFailure)
	e.emit(ctx, AuditEvent{
		Timestamp: e.now(),
		EventType: "login",
		SubjectID: identifier,
		Success:   false,
		Error:     why,
	})
}

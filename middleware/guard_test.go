package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	tokengate "github.com/macropulse/tokengate"
)

type staticProvider struct {
	principal tokengate.Principal
}

func (p staticProvider) GetByID(_ context.Context, id string) (*tokengate.Principal, error) {
	if id != p.principal.ID {
		return nil, tokengate.ErrPrincipalNotFound
	}
	out := p.principal
	return &out, nil
}

func (p staticProvider) GetByIdentifier(_ context.Context, identifier string) (*tokengate.Principal, error) {
	if identifier != p.principal.Identifier {
		return nil, tokengate.ErrPrincipalNotFound
	}
	out := p.principal
	return &out, nil
}

func (p staticProvider) Create(context.Context, tokengate.CreatePrincipalInput) (*tokengate.Principal, error) {
	return nil, tokengate.ErrPrincipalExists
}

func newGuardedServer(t *testing.T) (*tokengate.Engine, http.Handler) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := tokengate.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.Enabled = false

	engine, err := tokengate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalProvider(staticProvider{principal: tokengate.Principal{
			ID: "user-1", Identifier: "alice", Active: true,
		}}).
		Build()
	if err != nil {
		t.Fatalf("engine build: %v", err)
	}
	t.Cleanup(engine.Close)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if res, ok := AuthResultFromContext(r.Context()); ok {
			w.Header().Set("X-Subject", res.SubjectID)
		}
		w.WriteHeader(http.StatusOK)
	})

	guarded := Guard(engine, Options{
		APIPrefix:   "/api/",
		ExemptPaths: []string{"/api/auth/token/", "/api/health/"},
	})(inner)

	return engine, guarded
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unparseable error body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestGuardIgnoresPathsOutsidePrefix(t *testing.T) {
	_, handler := newGuardedServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/logo.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGuardAllowsExemptPaths(t *testing.T) {
	_, handler := newGuardedServer(t)

	for _, path := range []string{"/api/auth/token/", "/api/health/"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, rec.Code)
		}
	}

	// Exemption is exact-match, not prefix-match.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/token/extra", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("sub-path of exempt path: status = %d, want 401", rec.Code)
	}
}

func TestGuardRejectsMissingCredential(t *testing.T) {
	_, handler := newGuardedServer(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/things/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if msg := errorBody(t, rec); msg != "authentication required" {
		t.Fatalf("error = %q", msg)
	}

	// A non-bearer scheme counts as absent.
	req := httptest.NewRequest(http.MethodGet, "/api/things/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if msg := errorBody(t, rec); msg != "authentication required" {
		t.Fatalf("error = %q", msg)
	}
}

func TestGuardRejectsInvalidCredential(t *testing.T) {
	_, handler := newGuardedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/things/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if msg := errorBody(t, rec); msg != "invalid token" {
		t.Fatalf("error = %q", msg)
	}
}

func TestGuardAdmitsValidCredentialAndInjectsResult(t *testing.T) {
	engine, handler := newGuardedServer(t)

	pair, err := engine.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/things/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Subject"); got != "user-1" {
		t.Fatalf("subject in context = %q", got)
	}
}

func TestGuardRejectsRevokedCredential(t *testing.T) {
	engine, handler := newGuardedServer(t)
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	engine.Revoke(ctx, pair.Access)

	req := httptest.NewRequest(http.MethodGet, "/api/things/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if msg := errorBody(t, rec); msg != "invalid token" {
		t.Fatalf("error = %q", msg)
	}
}

package tokengate

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type stubProvider struct {
	mu      sync.Mutex
	byID    map[string]Principal
	byIdent map[string]string
	nextID  int
	err     error
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		byID:    make(map[string]Principal),
		byIdent: make(map[string]string),
	}
}

func (s *stubProvider) put(p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = p
	s.byIdent[p.Identifier] = p.ID
}

func (s *stubProvider) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubProvider) GetByID(_ context.Context, id string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	out := p
	return &out, nil
}

func (s *stubProvider) GetByIdentifier(_ context.Context, identifier string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	id, ok := s.byIdent[identifier]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	p := s.byID[id]
	return &p, nil
}

func (s *stubProvider) Create(_ context.Context, input CreatePrincipalInput) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if _, ok := s.byIdent[input.Identifier]; ok {
		return nil, ErrPrincipalExists
	}
	s.nextID++
	p := Principal{
		ID:           "user-" + strconv.Itoa(s.nextID),
		Identifier:   input.Identifier,
		PasswordHash: input.PasswordHash,
		Active:       true,
	}
	s.byID[p.ID] = p
	s.byIdent[p.Identifier] = p.ID
	return &p, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Leeway = 0
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *stubProvider, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	provider := newStubProvider()
	provider.put(Principal{ID: "user-alice", Identifier: "alice", Active: true})

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithPrincipalProvider(provider).
		Build()
	if err != nil {
		t.Fatalf("engine build: %v", err)
	}

	return engine, provider, mr, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func TestIssueThenValidateFreshPair(t *testing.T) {
	engine, _, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "user-alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	res, err := engine.Validate(ctx, pair.Access)
	if err != nil {
		t.Fatalf("validate fresh access token: %v", err)
	}
	if res.SubjectID != "user-alice" || res.Kind != KindAccess {
		t.Fatalf("unexpected access result: %+v", res)
	}

	res, err = engine.Validate(ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("validate fresh refresh token: %v", err)
	}
	if res.Kind != KindRefresh {
		t.Fatalf("expected refresh kind, got %q", res.Kind)
	}
}

func TestValidateGarbageToken(t *testing.T) {
	engine, _, _, done := newTestEngine(t)
	defer done()

	if _, err := engine.Validate(context.Background(), "not-a-token"); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestValidateInactivePrincipal(t *testing.T) {
	engine, provider, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "user-alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	provider.put(Principal{ID: "user-alice", Identifier: "alice", Active: false})

	if _, err := engine.Validate(ctx, pair.Access); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for inactive principal, got %v", err)
	}
}

func TestValidateFailsClosedOnProviderFault(t *testing.T) {
	engine, provider, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "user-alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	provider.setErr(context.DeadlineExceeded)

	if _, err := engine.Validate(ctx, pair.Access); err != ErrBackendUnavailable {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestValidateFailsClosedOnStoreFault(t *testing.T) {
	engine, _, mr, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "user-alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	mr.SetError("simulated outage")

	if _, err := engine.Validate(ctx, pair.Access); err != ErrBackendUnavailable {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestLoginAndRegisterFlow(t *testing.T) {
	engine, _, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	p, pair, err := engine.Register(ctx, "bob", "correct-horse-battery")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatal("register returned incomplete pair")
	}
	if p.Identifier != "bob" || !p.Active {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if _, err := engine.Validate(ctx, pair.Access); err != nil {
		t.Fatalf("validate registered token: %v", err)
	}

	if _, _, err := engine.Register(ctx, "bob", "correct-horse-battery"); err != ErrPrincipalExists {
		t.Fatalf("expected ErrPrincipalExists, got %v", err)
	}

	pair2, err := engine.Login(ctx, "bob", "correct-horse-battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := engine.Validate(ctx, pair2.Access); err != nil {
		t.Fatalf("validate login token: %v", err)
	}

	if _, err := engine.Login(ctx, "bob", "wrong-password"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := engine.Login(ctx, "nobody", "whatever"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRefreshMintsOnlyAccess(t *testing.T) {
	engine, _, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "user-alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	access, err := engine.Refresh(ctx, pair.Refresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if access == pair.Access {
		t.Fatal("refresh returned the old access token")
	}

	// The new access token is live, the old one superseded, the refresh
	// token untouched.
	if _, err := engine.Validate(ctx, access); err != nil {
		t.Fatalf("validate refreshed access token: %v", err)
	}
	if _, err := engine.Validate(ctx, pair.Access); err != ErrUnauthorized {
		t.Fatalf("expected old access token superseded, got %v", err)
	}
	if _, err := engine.Validate(ctx, pair.Refresh); err != nil {
		t.Fatalf("refresh token should remain valid: %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	engine, _, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "user-alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := engine.Refresh(ctx, pair.Access); err != ErrRefreshRequired {
		t.Fatalf("expected ErrRefreshRequired, got %v", err)
	}
}

func TestConcurrentIssueAndRevokeDistinctSubjects(t *testing.T) {
	engine, provider, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	const n = 32
	pairs := make([]*TokenPair, n)
	for i := 0; i < n; i++ {
		id := "user-" + strconv.Itoa(i)
		provider.put(Principal{ID: id, Identifier: id, Active: true})
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pair, err := engine.Issue(ctx, "user-"+strconv.Itoa(i))
			if err != nil {
				t.Errorf("issue %d: %v", i, err)
				return
			}
			pairs[i] = pair
		}(i)
	}
	wg.Wait()

	// Revoke the even subjects concurrently while validating the odd ones.
	wg = sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				if !engine.Revoke(ctx, pairs[i].Access) {
					t.Errorf("revoke %d failed", i)
				}
			} else {
				if _, err := engine.Validate(ctx, pairs[i].Access); err != nil {
					t.Errorf("validate %d: %v", i, err)
				}
			}
		}(i)
	}
	wg.Wait()

	// No cross-subject interference: odd subjects still valid, even ones
	// rejected.
	for i := 0; i < n; i++ {
		_, err := engine.Validate(ctx, pairs[i].Access)
		if i%2 == 0 && err == nil {
			t.Fatalf("revoked subject %d still validates", i)
		}
		if i%2 == 1 && err != nil {
			t.Fatalf("untouched subject %d rejected: %v", i, err)
		}
	}
}

func TestMetricsCountOutcomes(t *testing.T) {
	engine, _, _, done := newTestEngine(t)
	defer done()
	ctx := context.Background()

	pair, err := engine.Issue(ctx, "user-alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := engine.Validate(ctx, pair.Access); err != nil {
		t.Fatalf("validate: %v", err)
	}
	_, _ = engine.Validate(ctx, "garbage")
	engine.Revoke(ctx, pair.Access)

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricValidateAccepted] != 1 {
		t.Fatalf("accepted counter = %d", snap.Counters[MetricValidateAccepted])
	}
	if snap.Counters[MetricValidateRejected] != 1 {
		t.Fatalf("rejected counter = %d", snap.Counters[MetricValidateRejected])
	}
	if snap.Counters[MetricRejectDecode] != 1 {
		t.Fatalf("decode rejection counter = %d", snap.Counters[MetricRejectDecode])
	}
	if snap.Counters[MetricRevokeSuccess] != 1 {
		t.Fatalf("revoke counter = %d", snap.Counters[MetricRevokeSuccess])
	}
}

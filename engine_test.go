package volcanion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rickymta/volcanion-auth/clock"
	"github.com/rickymta/volcanion-auth/password"
	"github.com/rickymta/volcanion-auth/store/memory"
)

const (
	testAccessKey  = "access-secret-access-secret-0123456789"
	testRefreshKey = "refresh-secret-refresh-secret-0123456789"
)

type captureNotifier struct {
	mu     sync.Mutex
	resets map[string]string
	verify map[string]string
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{resets: map[string]string{}, verify: map[string]string{}}
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, acct Account, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets[acct.ID] = token
	return nil
}

func (n *captureNotifier) SendEmailVerification(_ context.Context, acct Account, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verify[acct.ID] = token
	return nil
}

type harness struct {
	engine   *Engine
	store    *memory.Store
	redis    *miniredis.Miniredis
	clock    *clock.Fake
	notifier *captureNotifier
	hasher   *password.Hasher
	ctx      context.Context
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Access.Key = testAccessKey
	cfg.Token.Refresh.Key = testRefreshKey
	cfg.Password.BcryptCost = 4
	return cfg
}

func newHarness(t testing.TB, mutate ...func(*Config)) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	st := memory.New()
	clk := clock.NewFake(time.Now().UTC().Truncate(time.Second))
	notifier := newCaptureNotifier()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountProvider(st).
		WithPermissionStore(st).
		WithTokenRepository(st).
		WithClock(clk).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	hasher, err := password.New(password.Config{Algorithm: password.AlgorithmBcrypt, BcryptCost: 4})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	})
	return &harness{
		engine:   engine,
		store:    st,
		redis:    mr,
		clock:    clk,
		notifier: notifier,
		hasher:   hasher,
		ctx:      context.Background(),
	}
}

func (h *harness) addAccount(t testing.TB, id, email, pw string) {
	t.Helper()
	digest, err := h.hasher.Hash(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h.store.PutAccount(Account{ID: id, Email: email, PasswordHash: digest, Active: true, EmailVerified: true})
}

func (h *harness) login(t testing.TB, email, pw string) *TokenPair {
	t.Helper()
	pair, err := h.engine.Login(h.ctx, LoginRequest{Email: email, Password: pw, Origin: "10.0.0.1", Device: "test"})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return pair
}

func TestBuilderRequiresCollaborators(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatalf("expected error without redis")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatalf("expected error without stores")
	}

	if _, err := New().WithRedis(rdb).Build(); err == nil {
		t.Fatalf("expected error without token keys")
	}

	st := memory.New()
	b := New().WithConfig(testConfig()).WithRedis(rdb).
		WithAccountProvider(st).WithPermissionStore(st).WithTokenRepository(st)
	if _, err := b.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatalf("expected builder reuse to fail")
	}
}

func TestNilEngineIsNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), LoginRequest{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.HasPermission(context.Background(), "a", "r", "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if e.AuditDropped() != 0 {
		t.Fatalf("nil engine must report zero drops")
	}
}

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")

	pair := h.login(t, "X@Example.com", "correct horse")
	if pair.TokenType != "Bearer" || pair.ExpiresIn != 900 {
		t.Fatalf("unexpected pair: %+v", pair)
	}
	if pair.SessionID == "" {
		t.Fatalf("expected a session id")
	}

	id, err := h.engine.VerifyAccess(h.ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if id.AccountID != "acct-1" || id.Email != "x@example.com" || id.SessionID != pair.SessionID {
		t.Fatalf("unexpected identity: %+v", id)
	}

	if _, err := h.engine.VerifyAccess(h.ctx, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token must not verify as access, got %v", err)
	}

	sessions, err := h.engine.Sessions(h.ctx, "acct-1")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != pair.SessionID || sessions[0].Device != "test" || sessions[0].Origin != "10.0.0.1" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}

	if got := h.engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("expected one login success, got %d", got)
	}
}

func TestLoginWrongPasswordAndUnknownAccount(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")

	_, errWrong := h.engine.Login(h.ctx, LoginRequest{Email: "x@example.com", Password: "nope", Origin: "o"})
	_, errUnknown := h.engine.Login(h.ctx, LoginRequest{Email: "ghost@example.com", Password: "nope", Origin: "o"})
	if !errors.Is(errWrong, ErrInvalidCredentials) || !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v / %v", errWrong, errUnknown)
	}
	if KindOf(errWrong) != KindInvalidCredentials {
		t.Fatalf("unexpected kind %v", KindOf(errWrong))
	}

	n, err := h.engine.LoginAttempts(h.ctx, "x@example.com", "o")
	if err != nil || n != 1 {
		t.Fatalf("expected one recorded attempt, got %d err=%v", n, err)
	}
}

// y@example.com fails five times from one origin, is locked out even with
// the right password, and recovers once the window elapses.
func TestLockoutScenario(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-y", "y@example.com", "right password")

	req := LoginRequest{Email: "y@example.com", Password: "wrong", Origin: "203.0.113.7"}
	for i := 0; i < 5; i++ {
		if _, err := h.engine.Login(h.ctx, req); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	req.Password = "right password"
	_, err := h.engine.Login(h.ctx, req)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lockout, got %v", err)
	}
	if n, _ := h.engine.LoginAttempts(h.ctx, "y@example.com", "203.0.113.7"); n != 6 {
		t.Fatalf("locked attempt must still count, got %d", n)
	}

	other := req
	other.Origin = "198.51.100.1"
	if _, err := h.engine.Login(h.ctx, other); err != nil {
		t.Fatalf("other origin must not be locked: %v", err)
	}

	h.redis.FastForward(16 * time.Minute)
	if _, err := h.engine.Login(h.ctx, req); err != nil {
		t.Fatalf("expected login after window, got %v", err)
	}
	if n, _ := h.engine.LoginAttempts(h.ctx, "y@example.com", "203.0.113.7"); n != 0 {
		t.Fatalf("success must reset the counter, got %d", n)
	}
}

func TestLoginOriginFallsBackToContext(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")

	ctx := WithClientIP(h.ctx, "192.0.2.10")
	if _, err := h.engine.Login(ctx, LoginRequest{Email: "x@example.com", Password: "bad"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if n, _ := h.engine.LoginAttempts(h.ctx, "x@example.com", "192.0.2.10"); n != 1 {
		t.Fatalf("expected attempt keyed by context ip, got %d", n)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	h := newHarness(t)
	digest, _ := h.hasher.Hash("pw-inactive")
	h.store.PutAccount(Account{ID: "acct-2", Email: "off@example.com", PasswordHash: digest})

	if _, err := h.engine.Login(h.ctx, LoginRequest{Email: "off@example.com", Password: "pw-inactive"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginMalformedDigest(t *testing.T) {
	h := newHarness(t)
	h.store.PutAccount(Account{ID: "acct-3", Email: "bad@example.com", PasswordHash: "not-a-digest", Active: true})

	_, err := h.engine.Login(h.ctx, LoginRequest{Email: "bad@example.com", Password: "whatever"})
	if KindOf(err) != KindCredentialFormat {
		t.Fatalf("expected credential format error, got %v", err)
	}
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.EmailVerification.RequireForLogin = true })
	digest, _ := h.hasher.Hash("pw-unverified")
	h.store.PutAccount(Account{ID: "acct-4", Email: "new@example.com", PasswordHash: digest, Active: true})

	_, err := h.engine.Login(h.ctx, LoginRequest{Email: "new@example.com", Password: "pw-unverified"})
	if !errors.Is(err, ErrEmailNotVerified) || !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected unverified error, got %v", err)
	}
}

func TestLoginUpgradesWeakDigest(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Password.BcryptCost = 5 })
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	before, _ := h.store.AccountByID(h.ctx, "acct-1")

	h.login(t, "x@example.com", "correct horse")

	after, _ := h.store.AccountByID(h.ctx, "acct-1")
	if after.PasswordHash == before.PasswordHash {
		t.Fatalf("expected digest to be upgraded")
	}
	h.login(t, "x@example.com", "correct horse")
	if got := h.engine.MetricsSnapshot().Counters[MetricPasswordUpgraded]; got != 1 {
		t.Fatalf("expected exactly one upgrade, got %d", got)
	}
}

// The same refresh token presented twice: the first call rotates, the
// second is refused.
func TestDoubleRefreshScenario(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	pair := h.login(t, "x@example.com", "correct horse")

	next, err := h.engine.Refresh(h.ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatalf("rotation must produce a new refresh token")
	}
	if next.SessionID != pair.SessionID {
		t.Fatalf("rotation must keep the session, got %q want %q", next.SessionID, pair.SessionID)
	}

	_, err = h.engine.Refresh(h.ctx, pair.RefreshToken)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("second refresh: expected revoked, got %v", err)
	}
	if KindOf(err) != KindTokenRevoked {
		t.Fatalf("unexpected kind %v", KindOf(err))
	}
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	first := h.login(t, "x@example.com", "correct horse")
	other := h.login(t, "x@example.com", "correct horse")

	rotated, err := h.engine.Refresh(h.ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := h.engine.Refresh(h.ctx, first.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected reuse detection, got %v", err)
	}

	for _, tok := range []string{rotated.RefreshToken, other.RefreshToken} {
		if _, err := h.engine.Refresh(h.ctx, tok); !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("family token must be revoked, got %v", err)
		}
	}
	sessions, err := h.engine.Sessions(h.ctx, "acct-1")
	if err != nil || len(sessions) != 0 {
		t.Fatalf("expected sessions cleared, got %d err=%v", len(sessions), err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got == 0 {
		t.Fatalf("expected reuse metric")
	}
}

func TestRefreshReuseWithoutFamilyRevocation(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Security.RevokeFamilyOnReuse = false })
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	pair := h.login(t, "x@example.com", "correct horse")

	rotated, err := h.engine.Refresh(h.ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := h.engine.Refresh(h.ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected reuse error, got %v", err)
	}
	if _, err := h.engine.Refresh(h.ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("rotated token must survive: %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	pair := h.login(t, "x@example.com", "correct horse")

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		others  []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.engine.Refresh(h.ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
				return
			}
			others = append(others, err)
		}()
	}
	close(start)
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	for _, err := range others {
		if !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("loser must see a revoked token, got %v", err)
		}
	}
}

func TestRefreshPicksUpCurrentPermissions(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	pair := h.login(t, "x@example.com", "correct horse")

	id, _ := h.engine.VerifyAccess(h.ctx, pair.AccessToken)
	if len(id.Permissions) != 0 {
		t.Fatalf("expected no permissions yet, got %v", id.Permissions)
	}

	g := h.engine.Graph()
	role, err := g.CreateRole(h.ctx, "editor", "")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	perm, err := g.CreatePermission(h.ctx, "", "article", "write", "")
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if _, _, err := g.AssignEdge(h.ctx, role.ID, perm.ID); err != nil {
		t.Fatalf("assign edge: %v", err)
	}
	if _, err := g.GrantRole(h.ctx, "acct-1", role.ID, "admin", nil); err != nil {
		t.Fatalf("grant role: %v", err)
	}

	next, err := h.engine.Refresh(h.ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	id, err = h.engine.VerifyAccess(h.ctx, next.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !id.HasPermission("article.write") {
		t.Fatalf("expected refreshed token to carry article.write, got %v", id.Permissions)
	}
}

func TestRefreshInactiveAccountIsRevoked(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	pair := h.login(t, "x@example.com", "correct horse")

	acct, _ := h.store.AccountByID(h.ctx, "acct-1")
	acct.Active = false
	h.store.PutAccount(acct)

	if _, err := h.engine.Refresh(h.ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked, got %v", err)
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Refresh(h.ctx, "not.a.token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestAccessTokenExpiry(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	pair := h.login(t, "x@example.com", "correct horse")

	h.clock.Advance(16 * time.Minute)
	if _, err := h.engine.VerifyAccess(h.ctx, pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := h.engine.Refresh(h.ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh must outlive access token: %v", err)
	}

	h.clock.Advance(8 * 24 * time.Hour)
	if _, err := h.engine.Refresh(h.ctx, pair.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired refresh, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	pair := h.login(t, "x@example.com", "correct horse")

	ok, err := h.engine.Logout(h.ctx, pair.RefreshToken)
	if err != nil || !ok {
		t.Fatalf("logout: ok=%v err=%v", ok, err)
	}
	if _, err := h.engine.Refresh(h.ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked after logout, got %v", err)
	}
	sessions, _ := h.engine.Sessions(h.ctx, "acct-1")
	if len(sessions) != 0 {
		t.Fatalf("expected session dropped, got %d", len(sessions))
	}

	ok, err = h.engine.Logout(h.ctx, "unknown-token")
	if err != nil || ok {
		t.Fatalf("unknown token logout: ok=%v err=%v", ok, err)
	}
}

func TestLogoutAll(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Session.ValidateOnAccess = true })
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	a := h.login(t, "x@example.com", "correct horse")
	b := h.login(t, "x@example.com", "correct horse")

	n, err := h.engine.LogoutAll(h.ctx, "acct-1")
	if err != nil || n != 2 {
		t.Fatalf("logout all: n=%d err=%v", n, err)
	}
	for _, p := range []*TokenPair{a, b} {
		if _, err := h.engine.Refresh(h.ctx, p.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("expected revoked, got %v", err)
		}
		if _, err := h.engine.VerifyAccess(h.ctx, p.AccessToken); !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("access token must fail once its session is gone, got %v", err)
		}
	}
}

func TestSessionExpiresInCache(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Session.TTL = Duration(time.Hour) })
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	h.login(t, "x@example.com", "correct horse")

	h.redis.FastForward(61 * time.Minute)
	sessions, err := h.engine.Sessions(h.ctx, "acct-1")
	if err != nil || len(sessions) != 0 {
		t.Fatalf("expected session to expire, got %d err=%v", len(sessions), err)
	}
}

func TestRevokeSession(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	pair := h.login(t, "x@example.com", "correct horse")

	ok, err := h.engine.RevokeSession(h.ctx, "acct-1", pair.SessionID)
	if err != nil || !ok {
		t.Fatalf("revoke session: ok=%v err=%v", ok, err)
	}
	ok, err = h.engine.RevokeSession(h.ctx, "acct-1", pair.SessionID)
	if err != nil || ok {
		t.Fatalf("second revoke: ok=%v err=%v", ok, err)
	}
}

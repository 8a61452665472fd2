package authstate

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spec-kit/folio/internal/client/api"
	"github.com/spec-kit/folio/internal/client/health"
	"github.com/spec-kit/folio/internal/client/session"
	"github.com/spec-kit/folio/internal/domain"
)

type fakeProber struct {
	reachable atomic.Bool
	hook      func(ctx context.Context)
}

func (p *fakeProber) Probe(ctx context.Context) health.Result {
	if p.hook != nil {
		p.hook(ctx)
	}
	if p.reachable.Load() {
		return health.Result{Reachable: true, StatusCode: http.StatusOK, Detail: "200 OK"}
	}
	return health.Result{Detail: "dial tcp: connection refused"}
}

type fakeAPI struct {
	login       func(ctx context.Context, email, password string) (*api.LoginResponse, error)
	verify      func(ctx context.Context, token string) (*domain.PublicUser, error)
	logoutErr   error
	logoutCalls atomic.Int64
	loginCalls  atomic.Int64
}

func (a *fakeAPI) Login(ctx context.Context, email, password string) (*api.LoginResponse, error) {
	a.loginCalls.Add(1)
	return a.login(ctx, email, password)
}

func (a *fakeAPI) Verify(ctx context.Context, token string) (*domain.PublicUser, error) {
	if a.verify == nil {
		return nil, errors.New("verify not configured")
	}
	return a.verify(ctx, token)
}

func (a *fakeAPI) Logout(context.Context, string) error {
	a.logoutCalls.Add(1)
	return a.logoutErr
}

var realAdmin = domain.PublicUser{ID: "u-1", Name: "Admin", Email: "admin@site", Role: domain.RoleAdmin, IsActive: true}

func acceptAdmin(_ context.Context, email, password string) (*api.LoginResponse, error) {
	if email == "admin@site" && password == "correct-pw" {
		user := realAdmin
		return &api.LoginResponse{Success: true, Token: "real.jwt.token", User: &user}, nil
	}
	return nil, &api.ResponseError{Status: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS", Message: "invalid email or password"}
}

type harness struct {
	orch       *Orchestrator
	prober     *fakeProber
	api        *fakeAPI
	persistent session.Storage
	ephemeral  session.Storage
	states     []State
	mu         sync.Mutex
}

func newHarness(t *testing.T, reachable bool, opts Options) *harness {
	t.Helper()
	h := &harness{
		prober:     &fakeProber{},
		api:        &fakeAPI{login: acceptAdmin},
		persistent: session.NewMemoryStorage(),
		ephemeral:  session.NewMemoryStorage(),
	}
	h.prober.reachable.Store(reachable)
	h.orch = h.build(opts)
	return h
}

func (h *harness) build(opts Options) *Orchestrator {
	opts.Prober = h.prober
	opts.API = h.api
	opts.Sessions = session.NewStore(h.persistent, h.ephemeral)
	orch := New(opts)
	orch.Subscribe(func(s State) {
		h.mu.Lock()
		h.states = append(h.states, s)
		h.mu.Unlock()
	})
	return orch
}

type wantState struct {
	authenticated bool
	demo          bool
	status        health.Status
}

// assertSettled checks the last state delivered to subscribers.
func (h *harness) assertSettled(t *testing.T, want wantState) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.states) == 0 {
		t.Fatal("no state published")
	}
	last := h.states[len(h.states)-1]
	if last.IsAuthenticated() != want.authenticated || last.IsDemoMode() != want.demo || last.BackendStatus != want.status {
		t.Fatalf("published state %+v (authenticated=%v demo=%v), want %+v",
			last, last.IsAuthenticated(), last.IsDemoMode(), want)
	}
	if last.AuthLoading {
		t.Fatalf("published state still logging in: %+v", last)
	}
}

func tierHolds(t *testing.T, st session.Storage) bool {
	t.Helper()
	_, okToken, _ := st.Get(context.Background(), session.TokenKey)
	_, okUser, _ := st.Get(context.Background(), session.UserKey)
	return okToken && okUser
}

func TestLogin_RealBackendPersistsInChosenTier(t *testing.T) {
	h := newHarness(t, true, Options{})

	res, err := h.orch.Login(context.Background(), "admin@site", "correct-pw", true)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.Success || res.DemoMode {
		t.Fatalf("unexpected result %+v", res)
	}
	if !tierHolds(t, h.persistent) || tierHolds(t, h.ephemeral) {
		t.Fatal("expected token in persistent tier only")
	}
	st := h.orch.State()
	if st.BackendStatus != health.StatusConnected || !st.IsAuthenticated() || st.IsDemoMode() || st.AuthLoading {
		t.Fatalf("unexpected state %+v", st)
	}
	h.assertSettled(t, wantState{authenticated: true, status: health.StatusConnected})
}

func TestLogin_DemoFallbackWhenUnreachable(t *testing.T) {
	h := newHarness(t, false, Options{})

	res, err := h.orch.Login(context.Background(), "admin@demo", "password", false)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.Success || !res.DemoMode || res.User.Role != domain.RoleAdmin {
		t.Fatalf("unexpected result %+v", res)
	}
	if tierHolds(t, h.persistent) || !tierHolds(t, h.ephemeral) {
		t.Fatal("expected token in ephemeral tier only")
	}
	token, _, _ := h.ephemeral.Get(context.Background(), session.TokenKey)
	if domain.KindOf(token) != domain.TokenKindDemo {
		t.Fatalf("expected demo token, got %q", token)
	}
	if h.api.loginCalls.Load() != 0 {
		t.Fatal("real login attempted against unreachable backend")
	}
	st := h.orch.State()
	if st.BackendStatus != health.StatusDisconnected || !st.IsDemoMode() {
		t.Fatalf("unexpected state %+v", st)
	}
	h.assertSettled(t, wantState{authenticated: true, demo: true, status: health.StatusDisconnected})
}

func TestLogin_UnknownCredentialsOffline(t *testing.T) {
	h := newHarness(t, false, Options{})

	_, err := h.orch.Login(context.Background(), "nobody@x", "wrong", false)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if Message(err) != kindMessages[KindInvalidCredentials] {
		t.Fatalf("unexpected message %q", Message(err))
	}
	st := h.orch.State()
	if st.User != nil || st.AuthLoading {
		t.Fatalf("unexpected state %+v", st)
	}
	if tierHolds(t, h.persistent) || tierHolds(t, h.ephemeral) {
		t.Fatal("session created on failed login")
	}
	h.assertSettled(t, wantState{status: health.StatusChecking})
}

func TestLogin_FallbackPolicies(t *testing.T) {
	tests := []struct {
		name     string
		policy   FallbackPolicy
		email    string
		password string
		wantDemo bool
		wantKind ErrorKind
	}{
		{"any policy masks rejected password with demo match", FallbackAnyError, "admin@demo", "password", true, 0},
		{"any policy rejected password no demo match", FallbackAnyError, "admin@site", "wrong-pw", false, KindInvalidCredentials},
		{"transport policy never falls back on rejection", FallbackTransportOnly, "admin@demo", "password", false, KindInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true, Options{Fallback: tt.policy})
			h.api.login = func(context.Context, string, string) (*api.LoginResponse, error) {
				return nil, &api.ResponseError{Status: 401, Code: "INVALID_CREDENTIALS", Message: "invalid email or password"}
			}

			res, err := h.orch.Login(context.Background(), tt.email, tt.password, false)
			if tt.wantDemo {
				if err != nil || !res.DemoMode {
					t.Fatalf("expected demo login, got %+v %v", res, err)
				}
				return
			}
			if Classify(err) != tt.wantKind {
				t.Fatalf("expected %s, got %v", tt.wantKind, err)
			}
			if h.orch.State().User != nil {
				t.Fatal("user set after failed login")
			}
		})
	}
}

func TestLogin_TransportPolicyFallsBackOnTransportError(t *testing.T) {
	h := newHarness(t, true, Options{Fallback: FallbackTransportOnly})
	h.api.login = func(context.Context, string, string) (*api.LoginResponse, error) {
		return nil, &api.TransportError{Op: "login", Err: errors.New("connection reset")}
	}

	res, err := h.orch.Login(context.Background(), "editor@demo", "password", false)
	if err != nil || !res.DemoMode || res.User.Role != domain.RoleContentManager {
		t.Fatalf("expected demo login, got %+v %v", res, err)
	}
}

func TestLogin_MalformedResponseIsFailure(t *testing.T) {
	h := newHarness(t, true, Options{Fallback: FallbackTransportOnly})
	h.api.login = func(context.Context, string, string) (*api.LoginResponse, error) {
		return nil, api.ErrMalformedLoginResponse
	}

	_, err := h.orch.Login(context.Background(), "admin@site", "correct-pw", true)
	if Classify(err) != KindMalformedLoginResponse {
		t.Fatalf("expected malformed response error, got %v", err)
	}
	if h.orch.State().User != nil {
		t.Fatal("user set from malformed response")
	}
}

func TestLogin_TimeoutFallsBack(t *testing.T) {
	h := newHarness(t, true, Options{LoginTimeout: 20 * time.Millisecond})
	h.api.login = func(ctx context.Context, _, _ string) (*api.LoginResponse, error) {
		<-ctx.Done()
		return nil, &api.TransportError{Op: "login", Err: ctx.Err()}
	}

	start := time.Now()
	res, err := h.orch.Login(context.Background(), "admin@demo", "password", false)
	if err != nil || !res.DemoMode {
		t.Fatalf("expected demo fallback after timeout, got %+v %v", res, err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("login not bounded by timeout")
	}
}

func TestLogin_ConcurrentCallsRejected(t *testing.T) {
	h := newHarness(t, true, Options{})
	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.login = func(ctx context.Context, email, password string) (*api.LoginResponse, error) {
		close(entered)
		<-release
		return acceptAdmin(ctx, email, password)
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Login(context.Background(), "admin@site", "correct-pw", false)
		done <- err
	}()
	<-entered

	if !h.orch.State().AuthLoading {
		t.Fatal("authLoading not set during login")
	}
	if _, err := h.orch.Login(context.Background(), "admin@site", "correct-pw", false); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := h.orch.Logout(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy from logout, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first login: %v", err)
	}
	if h.orch.State().AuthLoading {
		t.Fatal("authLoading left set")
	}
}

func TestLogin_CancelledContextLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, true, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	h.api.login = func(ctx context.Context, email, password string) (*api.LoginResponse, error) {
		cancel()
		return acceptAdmin(ctx, email, password)
	}

	_, err := h.orch.Login(ctx, "admin@site", "correct-pw", true)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if h.orch.State().User != nil || tierHolds(t, h.persistent) {
		t.Fatal("cancelled login applied its response")
	}
}

func TestLogout_ClearsBothTiers(t *testing.T) {
	for _, remember := range []bool{true, false} {
		h := newHarness(t, true, Options{})
		if _, err := h.orch.Login(context.Background(), "admin@site", "correct-pw", remember); err != nil {
			t.Fatalf("login: %v", err)
		}
		// A ghost session left in the other tier by an older client.
		_ = h.persistent.Set(context.Background(), session.TokenKey, "ghost")
		_ = h.ephemeral.Set(context.Background(), session.UserKey, "{}")

		if err := h.orch.Logout(context.Background()); err != nil {
			t.Fatalf("logout: %v", err)
		}
		for _, st := range []session.Storage{h.persistent, h.ephemeral} {
			for _, key := range []string{session.TokenKey, session.UserKey} {
				if _, ok, _ := st.Get(context.Background(), key); ok {
					t.Fatalf("remember=%v: %s left behind", remember, key)
				}
			}
		}
		st := h.orch.State()
		if st.User != nil || st.BackendStatus != health.StatusChecking {
			t.Fatalf("unexpected state after logout %+v", st)
		}
		if h.api.logoutCalls.Load() != 1 {
			t.Fatalf("expected one server logout, got %d", h.api.logoutCalls.Load())
		}
		h.assertSettled(t, wantState{status: health.StatusChecking})
	}
}

func TestLogout_ServerFailureSwallowed(t *testing.T) {
	h := newHarness(t, true, Options{})
	h.api.logoutErr = &api.TransportError{Op: "logout", Err: errors.New("connection refused")}
	if _, err := h.orch.Login(context.Background(), "admin@site", "correct-pw", true); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := h.orch.Logout(context.Background()); err != nil {
		t.Fatalf("logout surfaced server failure: %v", err)
	}
	if h.orch.State().User != nil {
		t.Fatal("user kept after logout")
	}
}

func TestLogout_DemoSessionNeverCallsServer(t *testing.T) {
	h := newHarness(t, false, Options{})
	if _, err := h.orch.Login(context.Background(), "admin@demo", "password", true); err != nil {
		t.Fatalf("login: %v", err)
	}
	h.prober.reachable.Store(true)
	h.orch.CheckConnection(context.Background())

	if err := h.orch.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if h.api.logoutCalls.Load() != 0 {
		t.Fatal("demo token sent to server logout")
	}
}

func TestInitialize_RestoresBeforeVerificationAndKeepsOnFailure(t *testing.T) {
	h := newHarness(t, true, Options{})
	if err := session.NewStore(h.persistent, h.ephemeral).Save(context.Background(), session.TierPersistent, "real.jwt.token", realAdmin); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	verifyStarted := make(chan struct{})
	release := make(chan struct{})
	h.api.verify = func(ctx context.Context, token string) (*domain.PublicUser, error) {
		if token != "real.jwt.token" {
			t.Errorf("unexpected token %q", token)
		}
		close(verifyStarted)
		<-release
		return nil, &api.ResponseError{Status: 401, Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	}

	// Fresh process: a new orchestrator over the same storage.
	orch := h.build(Options{})
	if st := orch.State(); !st.Loading || st.BackendStatus != health.StatusChecking || st.User != nil {
		t.Fatalf("unexpected start-up state %+v", st)
	}
	if err := orch.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	<-verifyStarted

	st := orch.State()
	if st.Loading || st.User == nil || st.User.Email != "admin@site" || st.BackendStatus != health.StatusConnected {
		t.Fatalf("user not restored before verification resolved: %+v", st)
	}

	close(release)
	orch.Wait()
	if orch.State().User == nil {
		t.Fatal("failed verification revoked the restored session")
	}
	h.assertSettled(t, wantState{authenticated: true, status: health.StatusConnected})
}

func TestInitialize_OfflineRestoreSkipsVerification(t *testing.T) {
	h := newHarness(t, false, Options{})
	_ = session.NewStore(h.persistent, h.ephemeral).Save(context.Background(), session.TierPersistent, "real.jwt.token", realAdmin)
	h.api.verify = func(context.Context, string) (*domain.PublicUser, error) {
		t.Error("verification attempted while disconnected")
		return nil, nil
	}

	if err := h.orch.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	h.orch.Wait()
	if !h.orch.IsDemoMode() {
		t.Fatalf("expected demo mode for offline restore, got %+v", h.orch.State())
	}
}

func TestInitialize_StaleRestoreDiscardedAfterLogin(t *testing.T) {
	h := newHarness(t, true, Options{})
	_ = session.NewStore(h.persistent, h.ephemeral).Save(context.Background(), session.TierPersistent, "old.jwt.token", domain.PublicUser{ID: "old", Email: "old@site"})

	var calls atomic.Int64
	initProbing := make(chan struct{})
	releaseInit := make(chan struct{})
	h.prober.hook = func(context.Context) {
		if calls.Add(1) == 1 {
			close(initProbing)
			<-releaseInit
		}
	}
	h.api.verify = func(context.Context, string) (*domain.PublicUser, error) { return &realAdmin, nil }

	initErr := make(chan error, 1)
	go func() { initErr <- h.orch.Initialize(context.Background()) }()
	<-initProbing

	if _, err := h.orch.Login(context.Background(), "admin@site", "correct-pw", false); err != nil {
		t.Fatalf("login: %v", err)
	}
	close(releaseInit)

	if err := <-initErr; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	st := h.orch.State()
	if st.User == nil || st.User.Email != "admin@site" || st.Loading {
		t.Fatalf("stale restore overwrote login: %+v", st)
	}
}

func TestCheckConnection_UpdatesStatus(t *testing.T) {
	h := newHarness(t, true, Options{})
	if _, err := h.orch.Login(context.Background(), "admin@site", "correct-pw", false); err != nil {
		t.Fatalf("login: %v", err)
	}

	h.prober.reachable.Store(false)
	res := h.orch.CheckConnection(context.Background())
	if res.Reachable || !h.orch.IsDemoMode() {
		t.Fatalf("expected disconnected, got %+v %+v", res, h.orch.State())
	}

	h.prober.reachable.Store(true)
	if res := h.orch.CheckConnection(context.Background()); !res.Reachable || h.orch.IsDemoMode() {
		t.Fatalf("expected connected, got %+v", h.orch.State())
	}
	h.assertSettled(t, wantState{authenticated: true, status: health.StatusConnected})
}

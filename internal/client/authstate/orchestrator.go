package authstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/folio/internal/client/api"
	"github.com/spec-kit/folio/internal/client/health"
	"github.com/spec-kit/folio/internal/client/session"
	"github.com/spec-kit/folio/internal/domain"
)

// Prober reports backend reachability.
type Prober interface {
	Probe(ctx context.Context) health.Result
}

// AuthAPI is the slice of the API client the orchestrator calls.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	Verify(ctx context.Context, token string) (*domain.PublicUser, error)
	Logout(ctx context.Context, token string) error
}

// SessionStore persists the session across the two storage tiers.
type SessionStore interface {
	Save(ctx context.Context, tier session.Tier, token string, user domain.PublicUser) error
	Restore(ctx context.Context) (*session.Session, error)
	Clear(ctx context.Context) error
}

// FallbackPolicy decides which real-login failures may fall back to demo accounts.
type FallbackPolicy string

const (
	// FallbackAnyError tries the demo table after any real-login failure,
	// including a rejected password against a reachable backend.
	FallbackAnyError FallbackPolicy = "any"
	// FallbackTransportOnly tries the demo table only when the backend could not be reached.
	FallbackTransportOnly FallbackPolicy = "transport"
)

// ParseFallbackPolicy validates a configured policy name.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(s) {
	case "", FallbackAnyError:
		return FallbackAnyError, nil
	case FallbackTransportOnly:
		return FallbackTransportOnly, nil
	default:
		return "", fmt.Errorf("unknown fallback policy %q", s)
	}
}

// Options wires an Orchestrator.
type Options struct {
	Prober       Prober
	API          AuthAPI
	Sessions     SessionStore
	DemoAccounts []DemoAccount
	Fallback     FallbackPolicy
	LoginTimeout time.Duration
	Logger       *zap.Logger
	Tracer       trace.Tracer
	Now          func() time.Time
}

// LoginResult reports how a login succeeded.
type LoginResult struct {
	Success  bool              `json:"success"`
	DemoMode bool              `json:"demoMode"`
	User     domain.PublicUser `json:"user"`
}

// Orchestrator coordinates login, logout, restore and connection checks.
// Every network response is applied only if no newer operation started
// while it was in flight.
type Orchestrator struct {
	prober   Prober
	api      AuthAPI
	sessions SessionStore
	demo     []DemoAccount
	fallback FallbackPolicy
	timeout  time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu     sync.Mutex
	state  State
	token  string
	gen    uint64
	busy   bool
	subs   map[int]func(State)
	nextID int

	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// New builds an orchestrator in its start-up state: no user, loading, status checking.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/spec-kit/folio/internal/client/authstate")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = 10 * time.Second
	}
	if opts.Fallback == "" {
		opts.Fallback = FallbackAnyError
	}
	if opts.DemoAccounts == nil {
		opts.DemoAccounts = DefaultDemoAccounts()
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Orchestrator{
		prober:   opts.Prober,
		api:      opts.API,
		sessions: opts.Sessions,
		demo:     opts.DemoAccounts,
		fallback: opts.Fallback,
		timeout:  opts.LoginTimeout,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		now:      opts.Now,
		state:    State{Loading: true, BackendStatus: health.StatusChecking},
		subs:     make(map[int]func(State)),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
}

// State returns a snapshot of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// IsAuthenticated reports whether a user is present.
func (o *Orchestrator) IsAuthenticated() bool { return o.State().IsAuthenticated() }

// IsDemoMode reports whether the session is a demo session.
func (o *Orchestrator) IsDemoMode() bool { return o.State().IsDemoMode() }

// Subscribe registers fn to receive every new state. The returned func unsubscribes.
func (o *Orchestrator) Subscribe(fn func(State)) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Wait blocks until background work started by Initialize has finished.
func (o *Orchestrator) Wait() {
	o.bg.Wait()
}

// Close cancels background work and waits for it.
func (o *Orchestrator) Close() {
	o.bgCancel()
	o.bg.Wait()
}

// apply runs fn under the lock and notifies subscribers.
func (o *Orchestrator) apply(fn func(*State)) {
	o.update(func() bool { return true }, fn)
}

// applyIf is apply, dropped when an operation newer than gen has started.
func (o *Orchestrator) applyIf(gen uint64, fn func(*State)) bool {
	return o.update(func() bool { return gen == o.gen }, fn)
}

func (o *Orchestrator) update(current func() bool, fn func(*State)) bool {
	o.mu.Lock()
	if !current() {
		o.mu.Unlock()
		return false
	}
	fn(&o.state)
	snapshot := o.state.clone()
	subs := make([]func(State), 0, len(o.subs))
	for _, sub := range o.subs {
		subs = append(subs, sub)
	}
	o.mu.Unlock()

	for _, sub := range subs {
		sub(snapshot)
	}
	return true
}

func (o *Orchestrator) begin() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	return o.gen
}

// Initialize probes the backend and restores a stored session. A restored
// user is admitted before the server verifies the token, and a failed
// verification leaves the session in place.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "authstate.Initialize")
	defer span.End()

	gen := o.begin()
	o.apply(func(s *State) { s.Loading = true })

	res := o.prober.Probe(ctx)
	sess, err := o.sessions.Restore(ctx)
	if err != nil {
		o.logger.Warn("restore session", zap.Error(err))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		o.apply(func(s *State) { s.Loading = false })
		return ctxErr
	}

	applied := o.applyIf(gen, func(s *State) {
		s.BackendStatus = res.Status()
		if sess != nil {
			user := sess.User
			s.User = &user
			o.token = sess.Token
		}
		s.Loading = false
	})
	if !applied {
		o.apply(func(s *State) { s.Loading = false })
		return ErrSuperseded
	}
	if sess == nil {
		span.SetAttributes(attribute.Bool("restored", false))
		return nil
	}

	span.SetAttributes(attribute.Bool("restored", true), attribute.String("tier", sess.Tier.String()))

	if res.Reachable && domain.KindOf(sess.Token) == domain.TokenKindReal {
		o.bg.Add(1)
		go o.verify(sess.Token)
	}
	return nil
}

func (o *Orchestrator) verify(token string) {
	defer o.bg.Done()
	ctx, cancel := context.WithTimeout(o.bgCtx, o.timeout)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "authstate.Verify")
	defer span.End()

	if _, err := o.api.Verify(ctx, token); err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("background token verification failed; keeping session", zap.Error(err))
		return
	}
	o.logger.Debug("restored session verified")
}

// Login tries the backend first and falls back to the demo table according
// to the fallback policy. A failed login leaves the current user untouched.
func (o *Orchestrator) Login(ctx context.Context, email, password string, rememberMe bool) (LoginResult, error) {
	ctx, span := o.tracer.Start(ctx, "authstate.Login")
	defer span.End()

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return LoginResult{}, ErrBusy
	}
	o.busy = true
	o.gen++
	gen := o.gen
	o.mu.Unlock()

	o.apply(func(s *State) { s.AuthLoading = true })
	defer func() {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
		o.apply(func(s *State) { s.AuthLoading = false })
	}()

	result, err := o.login(ctx, gen, email, password, session.TierFor(rememberMe))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return LoginResult{}, err
	}
	span.SetAttributes(attribute.Bool("demo", result.DemoMode))
	return result, nil
}

func (o *Orchestrator) login(ctx context.Context, gen uint64, email, password string, tier session.Tier) (LoginResult, error) {
	res := o.prober.Probe(ctx)

	var realErr error
	if res.Reachable {
		lctx, cancel := context.WithTimeout(ctx, o.timeout)
		resp, err := o.api.Login(lctx, email, password)
		cancel()
		if err == nil {
			return o.establish(ctx, gen, tier, resp.Token, *resp.User, health.StatusConnected, false)
		}
		realErr = err
	} else {
		realErr = &Error{Kind: KindNetworkUnavailable, Err: errors.New(res.Detail)}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return LoginResult{}, ctxErr
	}
	if o.fallback == FallbackTransportOnly && !fallbackEligible(realErr) {
		return LoginResult{}, &Error{Kind: Classify(realErr), Err: realErr}
	}

	acct, ok := matchDemo(o.demo, email, password)
	if !ok {
		o.logger.Info("login failed", zap.String("email", domain.NormalizeEmail(email)), zap.NamedError("real_login_error", realErr))
		return LoginResult{}, &Error{Kind: KindInvalidCredentials, Err: realErr}
	}
	o.logger.Warn("real login failed; using demo account", zap.String("email", acct.Email), zap.Error(realErr))
	return o.establish(ctx, gen, tier, newDemoToken(o.now()), acct.User(), health.StatusDisconnected, true)
}

func (o *Orchestrator) establish(ctx context.Context, gen uint64, tier session.Tier, token string, user domain.PublicUser, status health.Status, demo bool) (LoginResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return LoginResult{}, ctxErr
	}
	o.mu.Lock()
	stale := gen != o.gen
	o.mu.Unlock()
	if stale {
		return LoginResult{}, ErrSuperseded
	}

	if err := o.sessions.Save(ctx, tier, token, user); err != nil {
		return LoginResult{}, fmt.Errorf("persist session: %w", err)
	}
	applied := o.applyIf(gen, func(s *State) {
		u := user
		s.User = &u
		s.BackendStatus = status
		o.token = token
	})
	if !applied {
		return LoginResult{}, ErrSuperseded
	}
	return LoginResult{Success: true, DemoMode: demo, User: user}, nil
}

func fallbackEligible(err error) bool {
	return api.IsTransport(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrNetworkUnavailable)
}

// Logout tells a connected backend the session ended, then clears both
// storage tiers and resets the state whatever the server said.
func (o *Orchestrator) Logout(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "authstate.Logout")
	defer span.End()

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrBusy
	}
	o.busy = true
	o.gen++
	token := o.token
	status := o.state.BackendStatus
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
	}()

	if status == health.StatusConnected && token != "" && domain.KindOf(token) == domain.TokenKindReal {
		lctx, cancel := context.WithTimeout(ctx, o.timeout)
		if err := o.api.Logout(lctx, token); err != nil {
			o.logger.Warn("server logout failed; clearing local session anyway", zap.Error(err))
		}
		cancel()
	}

	clearErr := o.sessions.Clear(context.WithoutCancel(ctx))
	o.apply(func(s *State) {
		s.User = nil
		s.BackendStatus = health.StatusChecking
		o.token = ""
	})
	if clearErr != nil {
		span.SetStatus(codes.Error, clearErr.Error())
		return fmt.Errorf("clear session storage: %w", clearErr)
	}
	return nil
}

// CheckConnection re-probes the backend and updates the backend status.
func (o *Orchestrator) CheckConnection(ctx context.Context) health.Result {
	ctx, span := o.tracer.Start(ctx, "authstate.CheckConnection")
	defer span.End()

	o.mu.Lock()
	gen := o.gen
	o.mu.Unlock()

	res := o.prober.Probe(ctx)
	if !o.applyIf(gen, func(s *State) { s.BackendStatus = res.Status() }) {
		o.logger.Debug("connection check superseded")
	}
	span.SetAttributes(attribute.Bool("reachable", res.Reachable))
	return res
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/arkcms/authengine/internal/audit"
	"github.com/arkcms/authengine/internal/authapi"
	"github.com/arkcms/authengine/internal/credstore"
	"github.com/arkcms/authengine/internal/identity"
	"github.com/arkcms/authengine/internal/ids"
	"github.com/arkcms/authengine/internal/obs"
	"github.com/arkcms/authengine/internal/token"
)

const (
	defaultWatchInterval    = time.Minute
	defaultRefreshThreshold = 5 * time.Minute
	defaultRequestTimeout   = 10 * time.Second
)

var (
	ErrAlreadyStarted       = errors.New("session: engine already started")
	ErrNotStarted           = errors.New("session: engine not started")
	ErrNotAuthenticated     = errors.New("session: not authenticated")
	ErrAlreadyAuthenticated = errors.New("session: already authenticated")
	ErrThrottled            = errors.New("session: too many login attempts")
)

// API is the identity-provider collaborator as seen by the engine.
// authapi.Client satisfies it; tests substitute fakes.
type API interface {
	Login(ctx context.Context, email, password string) (authapi.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (authapi.RefreshResult, error)
	Logout(ctx context.Context, accessToken string) error
	CurrentUser(ctx context.Context, accessToken string) (identity.Identity, error)
}

// Engine drives the session state machine: it executes the effects the
// pure Transition function requests, runs the background expiry watcher
// and fans state changes out to subscribers. One Engine instance manages
// one logical session; construct it at startup and pass it to consumers
// explicitly.
type Engine struct {
	api   API
	store *credstore.Store

	now              func() time.Time
	watchInterval    time.Duration
	refreshThreshold time.Duration
	requestTimeout   time.Duration

	// opMu serializes whole operations (restore, login, refresh, logout)
	// so only one transition sequence is in flight at a time. A login
	// arriving during a refresh waits for the refresh to settle.
	opMu sync.Mutex

	stateMu     sync.Mutex
	state       State
	initialized bool
	watchCancel context.CancelFunc
	watchDone   chan struct{}

	refreshGroup singleflight.Group
	loginLimiter *rate.Limiter

	subMu  sync.Mutex
	subs   map[int]chan State
	nextID int

	engineID string
}

// Option configures the engine.
type Option func(*Engine) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) error {
		if fn != nil {
			e.now = fn
		}
		return nil
	}
}

// WithWatchInterval sets how often the expiry watcher re-evaluates the
// current token.
func WithWatchInterval(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return errors.New("session: watch interval must be positive")
		}
		e.watchInterval = d
		return nil
	}
}

// WithRefreshThreshold sets how close to expiry a token must be before the
// watcher refreshes it.
func WithRefreshThreshold(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return errors.New("session: refresh threshold must be positive")
		}
		e.refreshThreshold = d
		return nil
	}
}

// WithRequestTimeout bounds every call to the identity provider.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return errors.New("session: request timeout must be positive")
		}
		e.requestTimeout = d
		return nil
	}
}

// WithLoginRate throttles login attempts.
func WithLoginRate(limit rate.Limit, burst int) Option {
	return func(e *Engine) error {
		if burst <= 0 {
			return errors.New("session: login burst must be positive")
		}
		e.loginLimiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// New constructs an engine in the uninitialized state. Call Start to
// restore any stored session and begin the expiry watch.
func New(api API, store *credstore.Store, opts ...Option) (*Engine, error) {
	if api == nil {
		return nil, errors.New("session: api client is required")
	}
	if store == nil {
		return nil, errors.New("session: credential store is required")
	}
	e := &Engine{
		api:              api,
		store:            store,
		now:              time.Now,
		watchInterval:    defaultWatchInterval,
		refreshThreshold: defaultRefreshThreshold,
		requestTimeout:   defaultRequestTimeout,
		state:            State{Kind: KindUninitialized},
		loginLimiter:     rate.NewLimiter(rate.Every(time.Second), 5),
		subs:             make(map[int]chan State),
		engineID:         uuid.NewString(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Start restores the session from the credential store. It resolves
// synchronously: when it returns, the engine is initialized and in one of
// Unauthenticated, Authenticated or (after a failed restore) the cleared
// Unauthenticated state.
func (e *Engine) Start(ctx context.Context) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	st, _ := e.apply(ctx, Event{Kind: EventStart})
	if st.Kind != KindInitializing {
		return ErrAlreadyStarted
	}

	ctx = audit.WithRequestID(ctx, ids.NewRequestID())
	e.restore(ctx)

	e.stateMu.Lock()
	e.initialized = true
	e.stateMu.Unlock()

	final := e.snapshot()
	if final.Kind == KindAuthenticated {
		e.startWatcher()
	}
	_ = audit.LogEvent(ctx, "session.restore", map[string]any{
		"engine_id": e.engineID,
		"state":     final.Kind.String(),
	})
	return nil
}

// Close stops the expiry watcher and waits for it to exit. It does not
// touch session state or stored credentials.
func (e *Engine) Close() {
	if done := e.stopWatcher(); done != nil {
		<-done
	}
}

// Login exchanges credentials for a session. Failures never touch stored
// credentials; only a successful exchange is persisted.
func (e *Engine) Login(ctx context.Context, email, password string, remember bool) error {
	if !e.loginLimiter.Allow() {
		obs.RecordLogin("throttled")
		return ErrThrottled
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	switch e.snapshot().Kind {
	case KindUnauthenticated, KindFailed:
	case KindUninitialized, KindInitializing:
		return ErrNotStarted
	default:
		return ErrAlreadyAuthenticated
	}

	ctx = audit.WithRequestID(ctx, ids.NewRequestID())
	callCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	res, err := e.api.Login(callCtx, email, password)
	cancel()
	if err != nil {
		e.apply(ctx, Event{Kind: EventLoginFailed, Err: err})
		obs.RecordLogin(loginOutcome(err))
		return err
	}

	claims, err := token.Decode(res.AccessToken)
	if err != nil {
		err = fmt.Errorf("%w: access token from login", err)
		e.apply(ctx, Event{Kind: EventLoginFailed, Err: err})
		obs.RecordLogin("malformed_token")
		return err
	}

	sess := &Session{
		Identity:     res.Identity,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    claims.ExpiresAt,
		RememberMe:   remember,
	}
	e.apply(ctx, Event{Kind: EventLoginSucceeded, Session: sess})
	obs.RecordLogin("ok")
	_ = audit.LogEvent(ctx, "session.login", map[string]any{
		"engine_id": e.engineID,
		"user_id":   sess.Identity.ID,
		"remember":  remember,
	})
	e.startWatcher()
	return nil
}

// Logout ends the session. The server-side logout call is best effort;
// stored credentials are always cleared. Calling Logout on an already
// unauthenticated engine is a no-op on state and store alike.
func (e *Engine) Logout(ctx context.Context) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	st := e.snapshot()
	if st.Kind == KindUninitialized || st.Kind == KindInitializing {
		return ErrNotStarted
	}

	ctx = audit.WithRequestID(ctx, ids.NewRequestID())
	if sess := st.Session; sess != nil && sess.AccessToken != "" && st.Kind != KindUnauthenticated {
		callCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
		if err := e.api.Logout(callCtx, sess.AccessToken); err != nil {
			obs.Warn("server logout failed", map[string]any{"engine_id": e.engineID, "error": err.Error()})
		}
		cancel()
	}
	e.apply(ctx, Event{Kind: EventLogout})
	e.stopWatcher()
	_ = audit.LogEvent(ctx, "session.logout", map[string]any{"engine_id": e.engineID})
	return nil
}

// Refresh forces a token refresh. Concurrent calls (including the
// background watcher) share a single in-flight exchange.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.refresh(ctx, "explicit")
}

// State returns a snapshot of the current state.
func (e *Engine) State() State {
	return e.snapshot()
}

// CurrentIdentity returns the externally visible identity, or nil when no
// session is active. During a refresh the previous identity stays visible.
func (e *Engine) CurrentIdentity() *identity.Identity {
	return e.snapshot().Identity()
}

// IsAuthenticated reports whether a usable session exists.
func (e *Engine) IsAuthenticated() bool {
	return e.snapshot().Authenticated()
}

// IsInitialized reports whether the initial restore has resolved.
func (e *Engine) IsInitialized() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.initialized
}

// Subscribe registers a state-change listener. Every committed transition
// is delivered; a slow consumer loses intermediate states but always
// observes the latest one. The returned cancel func unregisters the
// subscriber and closes the channel.
func (e *Engine) Subscribe() (<-chan State, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextID
	e.nextID++
	ch := make(chan State, 8)
	e.subs[id] = ch
	cancel := func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// apply commits one transition and executes its store and notify effects.
// Credential writes happen only here, from committed transitions, so a
// crash mid-operation leaves the store consistent with the last committed
// state.
func (e *Engine) apply(ctx context.Context, ev Event) (State, []Effect) {
	e.stateMu.Lock()
	next, effects := Transition(e.state, ev)
	e.state = next
	e.stateMu.Unlock()

	for _, ef := range effects {
		switch ef.Kind {
		case EffectPersist:
			if ef.Session == nil {
				continue
			}
			creds := credstore.Credentials{
				AccessToken:  ef.Session.AccessToken,
				RefreshToken: ef.Session.RefreshToken,
				RememberMe:   ef.Session.RememberMe,
			}
			if err := e.store.Write(ctx, creds); err != nil {
				obs.Error("credential write failed", map[string]any{"engine_id": e.engineID, "error": err.Error()})
			}
		case EffectClearStore:
			if err := e.store.Clear(ctx); err != nil {
				obs.Error("credential clear failed", map[string]any{"engine_id": e.engineID, "error": err.Error()})
			}
		case EffectNotify:
			e.notify(next)
		}
	}
	return next, effects
}

func (e *Engine) restore(ctx context.Context) {
	creds, err := e.store.Read(ctx)
	if err != nil {
		obs.Warn("credential read failed", map[string]any{"engine_id": e.engineID, "error": err.Error()})
		e.apply(ctx, Event{Kind: EventRestoreFailed, Err: err})
		return
	}
	if creds.AccessToken == "" && creds.RefreshToken == "" {
		e.apply(ctx, Event{Kind: EventRestoreEmpty})
		return
	}

	if creds.AccessToken != "" {
		claims, decodeErr := token.Decode(creds.AccessToken)
		switch {
		case decodeErr != nil:
			// A stored token that no longer decodes is non-fatal: clear
			// it and come up unauthenticated.
			e.apply(ctx, Event{Kind: EventRestoreFailed, Err: decodeErr})
			return
		case !claims.Expired(e.now()):
			ident, fetchErr := e.fetchIdentity(ctx, creds.AccessToken)
			if fetchErr != nil {
				e.apply(ctx, Event{Kind: EventRestoreFailed, Err: fetchErr})
				return
			}
			e.apply(ctx, Event{Kind: EventRestoreValid, Session: &Session{
				Identity:     ident,
				AccessToken:  creds.AccessToken,
				RefreshToken: creds.RefreshToken,
				ExpiresAt:    claims.ExpiresAt,
				RememberMe:   creds.RememberMe,
			}})
			return
		}
	}

	if creds.RefreshToken == "" {
		e.apply(ctx, Event{Kind: EventRestoreFailed, Err: authapi.ErrTokenExpired})
		return
	}

	e.apply(ctx, Event{Kind: EventRestoreExpired, Session: &Session{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		RememberMe:   creds.RememberMe,
	}})
	if err := e.doRefresh(ctx, "restore"); err != nil {
		obs.Warn("restore refresh failed", map[string]any{"engine_id": e.engineID, "error": err.Error()})
	}
}

func (e *Engine) refresh(ctx context.Context, trigger string) error {
	_, err, _ := e.refreshGroup.Do("refresh", func() (any, error) {
		e.opMu.Lock()
		defer e.opMu.Unlock()
		return nil, e.doRefresh(ctx, trigger)
	})
	return err
}

// doRefresh runs one refresh exchange. The caller must hold opMu.
func (e *Engine) doRefresh(ctx context.Context, trigger string) error {
	st := e.snapshot()
	switch st.Kind {
	case KindAuthenticated:
		st, _ = e.apply(ctx, Event{Kind: EventRefreshDue})
	case KindRefreshing:
		// Restore path already moved the machine here.
	default:
		return ErrNotAuthenticated
	}

	sess := st.Session
	if sess == nil || sess.RefreshToken == "" {
		return e.failRefresh(ctx, trigger, authapi.ErrTokenExpired)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	res, err := e.api.Refresh(callCtx, sess.RefreshToken)
	cancel()
	if err != nil {
		return e.failRefresh(ctx, trigger, err)
	}

	claims, err := token.Decode(res.AccessToken)
	if err != nil {
		return e.failRefresh(ctx, trigger, err)
	}

	next := &Session{
		Identity:     sess.Identity,
		AccessToken:  res.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    claims.ExpiresAt,
		RememberMe:   sess.RememberMe,
	}
	if res.RefreshToken != "" {
		next.RefreshToken = res.RefreshToken
	}
	if next.Identity.ID == "" {
		ident, fetchErr := e.fetchIdentity(ctx, next.AccessToken)
		if fetchErr != nil {
			return e.failRefresh(ctx, trigger, fetchErr)
		}
		next.Identity = ident
	}

	e.apply(ctx, Event{Kind: EventRefreshSucceeded, Session: next})
	obs.RecordRefresh("ok", trigger)
	_ = audit.LogEvent(ctx, "session.refresh", map[string]any{
		"engine_id": e.engineID,
		"user_id":   next.Identity.ID,
		"trigger":   trigger,
	})
	return nil
}

// failRefresh applies the fail-closed policy: any refresh failure, network
// or explicit rejection alike, ends the session.
func (e *Engine) failRefresh(ctx context.Context, trigger string, err error) error {
	e.apply(ctx, Event{Kind: EventRefreshFailed, Err: err})
	obs.RecordRefresh("failed", trigger)
	_ = audit.LogEvent(ctx, "session.refresh_failed", map[string]any{
		"engine_id": e.engineID,
		"trigger":   trigger,
		"error":     err.Error(),
	})
	return err
}

func (e *Engine) fetchIdentity(ctx context.Context, accessToken string) (identity.Identity, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()
	return e.api.CurrentUser(callCtx, accessToken)
}

func (e *Engine) snapshot() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) notify(st State) {
	obs.SetSessionState(st.Kind.String())
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- st:
		default:
			// Slow consumer: drop the oldest pending state so the latest
			// is always delivered.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

func (e *Engine) startWatcher() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.watchCancel != nil {
		return // single active watcher per engine
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.watchCancel = cancel
	e.watchDone = done
	go e.watch(ctx, done)
}

func (e *Engine) stopWatcher() chan struct{} {
	e.stateMu.Lock()
	cancel, done := e.watchCancel, e.watchDone
	e.watchCancel, e.watchDone = nil, nil
	e.stateMu.Unlock()
	if cancel != nil {
		cancel()
	}
	return done
}

// watch periodically re-derives the remaining lifetime from the current
// token's own claims and triggers a refresh when it drops under the
// threshold. Re-evaluating each tick, instead of arming a one-shot timer
// at the expiry instant, tolerates clock drift and missed ticks.
func (e *Engine) watch(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st := e.snapshot()
		switch st.Kind {
		case KindAuthenticated:
		case KindRefreshing:
			continue
		default:
			// Session is gone; stop ticking until the next login.
			e.stateMu.Lock()
			if e.watchDone == done {
				if e.watchCancel != nil {
					e.watchCancel()
				}
				e.watchCancel, e.watchDone = nil, nil
			}
			e.stateMu.Unlock()
			return
		}

		claims, err := token.Decode(st.Session.AccessToken)
		if err != nil || claims.ExpiringWithin(e.now(), e.refreshThreshold) {
			// The exchange must not be aborted by watcher teardown:
			// cancelling it mid-flight would count as a refresh failure
			// and wipe credentials that Close promises to leave alone.
			// The per-call timeout still bounds it.
			if refreshErr := e.refresh(context.WithoutCancel(ctx), "watcher"); refreshErr != nil {
				obs.Warn("background refresh failed", map[string]any{
					"engine_id": e.engineID,
					"error":     refreshErr.Error(),
				})
			}
		}
	}
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, authapi.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, authapi.ErrNetwork):
		return "network"
	default:
		return "server"
	}
}

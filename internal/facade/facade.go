// Package facade is the single entry point applications wire against. It
// binds the session engine to the permission evaluator so callers ask one
// object both "who is signed in" and "may they do this".
package facade

import (
	"context"
	"errors"

	"github.com/arkcms/authengine/internal/authz"
	"github.com/arkcms/authengine/internal/identity"
	"github.com/arkcms/authengine/internal/obs"
	"github.com/arkcms/authengine/internal/session"
)

// Auth couples one session engine with one permission evaluator. Construct
// it at startup and pass it to consumers explicitly.
type Auth struct {
	engine    *session.Engine
	evaluator *authz.Evaluator
}

// New builds the facade. Both collaborators are required.
func New(engine *session.Engine, evaluator *authz.Evaluator) (*Auth, error) {
	if engine == nil {
		return nil, errors.New("facade: session engine is required")
	}
	if evaluator == nil {
		ev, err := authz.New(authz.DefaultTable())
		if err != nil {
			return nil, err
		}
		evaluator = ev
	}
	return &Auth{engine: engine, evaluator: evaluator}, nil
}

// Start restores any stored session and begins expiry watching.
func (a *Auth) Start(ctx context.Context) error {
	return a.engine.Start(ctx)
}

// Close stops the background watcher.
func (a *Auth) Close() {
	a.engine.Close()
}

// IsInitialized reports whether the initial restore has resolved.
func (a *Auth) IsInitialized() bool {
	return a.engine.IsInitialized()
}

// IsAuthenticated reports whether a usable session exists.
func (a *Auth) IsAuthenticated() bool {
	return a.engine.IsAuthenticated()
}

// CurrentIdentity returns the signed-in identity, nil for guests.
func (a *Auth) CurrentIdentity() *identity.Identity {
	return a.engine.CurrentIdentity()
}

// Login exchanges credentials for a session.
func (a *Auth) Login(ctx context.Context, email, password string, remember bool) error {
	return a.engine.Login(ctx, email, password, remember)
}

// Logout ends the session. It never fails from the caller's point of
// view: server-side errors are logged and local state is cleared anyway.
func (a *Auth) Logout(ctx context.Context) {
	if err := a.engine.Logout(ctx); err != nil {
		obs.Warn("logout skipped", map[string]any{"error": err.Error()})
	}
}

// Refresh forces a token refresh.
func (a *Auth) Refresh(ctx context.Context) error {
	return a.engine.Refresh(ctx)
}

// Subscribe registers a session state listener.
func (a *Auth) Subscribe() (<-chan session.State, func()) {
	return a.engine.Subscribe()
}

// Can reports whether the current identity holds the permission, applying
// ownership scoping when a resource is given.
func (a *Auth) Can(perm authz.Permission, res *authz.Resource) bool {
	return a.evaluator.HasPermission(a.engine.CurrentIdentity(), perm, res)
}

// CanAny reports whether the current identity holds at least one of the
// permissions.
func (a *Auth) CanAny(perms []authz.Permission, res *authz.Resource) bool {
	return a.evaluator.HasAnyPermission(a.engine.CurrentIdentity(), perms, res)
}

// CanAll reports whether the current identity holds every permission.
func (a *Auth) CanAll(perms []authz.Permission, res *authz.Resource) bool {
	return a.evaluator.HasAllPermissions(a.engine.CurrentIdentity(), perms, res)
}

// HasAnyRole reports whether the current identity's role is one of the
// given roles.
func (a *Auth) HasAnyRole(roles ...identity.Role) bool {
	return authz.HasAnyRole(a.engine.CurrentIdentity(), roles...)
}

// Check explains a permission decision for the current identity. The
// result is diagnostic only and must never gate anything itself.
func (a *Auth) Check(perm authz.Permission, res *authz.Resource) authz.Decision {
	return a.evaluator.Check(a.engine.CurrentIdentity(), perm, res)
}

// Package session owns the token lifecycle: restore, login, silent
// refresh, expiry watching and logout. The state machine itself is a pure
// transition function; the Engine drives it and executes its effects.
package session

import (
	"time"

	"github.com/arkcms/authengine/internal/identity"
)

// Kind enumerates the session states.
type Kind int

const (
	KindUninitialized Kind = iota
	KindInitializing
	KindUnauthenticated
	KindAuthenticated
	KindRefreshing
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindUninitialized:
		return "uninitialized"
	case KindInitializing:
		return "initializing"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindAuthenticated:
		return "authenticated"
	case KindRefreshing:
		return "refreshing"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is the authenticated payload. It is treated as immutable once
// built; a refresh produces a new value rather than mutating the old one.
// ExpiresAt is always derived from the current access token's claims.
type Session struct {
	Identity     identity.Identity
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	RememberMe   bool
}

// State is the tagged union the machine moves through. Session is set for
// KindAuthenticated and KindRefreshing (the payload that was valid before
// the refresh started); Err is set for KindFailed.
type State struct {
	Kind    Kind
	Session *Session
	Err     error
}

// Identity returns the externally visible identity for the state. While a
// refresh is in flight the previous identity remains visible; consumers
// are never logged out mid-refresh.
func (s State) Identity() *identity.Identity {
	switch s.Kind {
	case KindAuthenticated, KindRefreshing:
		if s.Session != nil && s.Session.Identity.ID != "" {
			ident := s.Session.Identity
			return &ident
		}
	}
	return nil
}

// Authenticated reports whether the state carries a usable identity.
func (s State) Authenticated() bool {
	return s.Identity() != nil
}

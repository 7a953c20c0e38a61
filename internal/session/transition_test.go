package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkcms/authengine/internal/identity"
)

func sessionFixture() *Session {
	return &Session{
		Identity: identity.Identity{
			ID:    "u-1",
			Email: "author@example.com",
			Role:  identity.RoleAuthor,
		},
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		RememberMe:   true,
	}
}

func effectKinds(effects []Effect) []EffectKind {
	kinds := make([]EffectKind, 0, len(effects))
	for _, ef := range effects {
		kinds = append(kinds, ef.Kind)
	}
	return kinds
}

func TestTransitionTable(t *testing.T) {
	sess := sessionFixture()
	loginErr := errors.New("invalid credentials")

	tests := []struct {
		name        string
		from        State
		event       Event
		wantKind    Kind
		wantEffects []EffectKind
	}{
		{
			name:        "start from uninitialized",
			from:        State{Kind: KindUninitialized},
			event:       Event{Kind: EventStart},
			wantKind:    KindInitializing,
			wantEffects: []EffectKind{EffectReadStore},
		},
		{
			name:        "restore empty store",
			from:        State{Kind: KindInitializing},
			event:       Event{Kind: EventRestoreEmpty},
			wantKind:    KindUnauthenticated,
			wantEffects: []EffectKind{EffectNotify},
		},
		{
			name:        "restore failure clears store",
			from:        State{Kind: KindInitializing},
			event:       Event{Kind: EventRestoreFailed, Err: errors.New("bad token")},
			wantKind:    KindUnauthenticated,
			wantEffects: []EffectKind{EffectClearStore, EffectNotify},
		},
		{
			name:        "restore valid session",
			from:        State{Kind: KindInitializing},
			event:       Event{Kind: EventRestoreValid, Session: sess},
			wantKind:    KindAuthenticated,
			wantEffects: []EffectKind{EffectNotify},
		},
		{
			name:        "restore expired session starts refresh",
			from:        State{Kind: KindInitializing},
			event:       Event{Kind: EventRestoreExpired, Session: sess},
			wantKind:    KindRefreshing,
			wantEffects: []EffectKind{EffectCallRefresh, EffectNotify},
		},
		{
			name:        "login success persists",
			from:        State{Kind: KindUnauthenticated},
			event:       Event{Kind: EventLoginSucceeded, Session: sess},
			wantKind:    KindAuthenticated,
			wantEffects: []EffectKind{EffectPersist, EffectNotify},
		},
		{
			name:        "login success after previous failure",
			from:        State{Kind: KindFailed, Err: loginErr},
			event:       Event{Kind: EventLoginSucceeded, Session: sess},
			wantKind:    KindAuthenticated,
			wantEffects: []EffectKind{EffectPersist, EffectNotify},
		},
		{
			name:        "login failure does not touch store",
			from:        State{Kind: KindUnauthenticated},
			event:       Event{Kind: EventLoginFailed, Err: loginErr},
			wantKind:    KindFailed,
			wantEffects: []EffectKind{EffectNotify},
		},
		{
			name:        "refresh due from authenticated",
			from:        State{Kind: KindAuthenticated, Session: sess},
			event:       Event{Kind: EventRefreshDue},
			wantKind:    KindRefreshing,
			wantEffects: []EffectKind{EffectCallRefresh, EffectNotify},
		},
		{
			name:        "refresh success persists new session",
			from:        State{Kind: KindRefreshing, Session: sess},
			event:       Event{Kind: EventRefreshSucceeded, Session: sess},
			wantKind:    KindAuthenticated,
			wantEffects: []EffectKind{EffectPersist, EffectNotify},
		},
		{
			name:        "refresh failure logs out",
			from:        State{Kind: KindRefreshing, Session: sess},
			event:       Event{Kind: EventRefreshFailed, Err: errors.New("network down")},
			wantKind:    KindUnauthenticated,
			wantEffects: []EffectKind{EffectClearStore, EffectNotify},
		},
		{
			name:        "logout from authenticated",
			from:        State{Kind: KindAuthenticated, Session: sess},
			event:       Event{Kind: EventLogout},
			wantKind:    KindUnauthenticated,
			wantEffects: []EffectKind{EffectClearStore, EffectNotify},
		},
		{
			name:        "logout mid refresh",
			from:        State{Kind: KindRefreshing, Session: sess},
			event:       Event{Kind: EventLogout},
			wantKind:    KindUnauthenticated,
			wantEffects: []EffectKind{EffectClearStore, EffectNotify},
		},
		{
			name:        "logout when already unauthenticated",
			from:        State{Kind: KindUnauthenticated},
			event:       Event{Kind: EventLogout},
			wantKind:    KindUnauthenticated,
			wantEffects: []EffectKind{EffectClearStore, EffectNotify},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, effects := Transition(tt.from, tt.event)
			assert.Equal(t, tt.wantKind, next.Kind)
			assert.Equal(t, tt.wantEffects, effectKinds(effects))
		})
	}
}

func TestTransitionIgnoresIllegalEvents(t *testing.T) {
	sess := sessionFixture()

	tests := []struct {
		name  string
		from  State
		event Event
	}{
		{"start twice", State{Kind: KindInitializing}, Event{Kind: EventStart}},
		{"start when authenticated", State{Kind: KindAuthenticated, Session: sess}, Event{Kind: EventStart}},
		{"restore result outside initializing", State{Kind: KindAuthenticated, Session: sess}, Event{Kind: EventRestoreEmpty}},
		{"login success while authenticated", State{Kind: KindAuthenticated, Session: sess}, Event{Kind: EventLoginSucceeded, Session: sess}},
		{"login failure while authenticated", State{Kind: KindAuthenticated, Session: sess}, Event{Kind: EventLoginFailed, Err: errors.New("nope")}},
		{"refresh due before start", State{Kind: KindUninitialized}, Event{Kind: EventRefreshDue}},
		{"refresh due while unauthenticated", State{Kind: KindUnauthenticated}, Event{Kind: EventRefreshDue}},
		{"stale refresh success after logout", State{Kind: KindUnauthenticated}, Event{Kind: EventRefreshSucceeded, Session: sess}},
		{"stale refresh failure after logout", State{Kind: KindUnauthenticated}, Event{Kind: EventRefreshFailed, Err: errors.New("late")}},
		{"logout before start", State{Kind: KindUninitialized}, Event{Kind: EventLogout}},
		{"login success without payload", State{Kind: KindUnauthenticated}, Event{Kind: EventLoginSucceeded}},
		{"restore valid without payload", State{Kind: KindInitializing}, Event{Kind: EventRestoreValid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, effects := Transition(tt.from, tt.event)
			assert.Equal(t, tt.from.Kind, next.Kind)
			assert.Equal(t, tt.from.Session, next.Session)
			assert.Empty(t, effects)
		})
	}
}

func TestStateIdentityVisibility(t *testing.T) {
	sess := sessionFixture()

	refreshing := State{Kind: KindRefreshing, Session: sess}
	require.NotNil(t, refreshing.Identity(), "identity must stay visible during refresh")
	assert.Equal(t, "u-1", refreshing.Identity().ID)
	assert.True(t, refreshing.Authenticated())

	restoreRefresh := State{Kind: KindRefreshing, Session: &Session{RefreshToken: "refresh-1"}}
	assert.Nil(t, restoreRefresh.Identity(), "restore-time refresh has no identity yet")
	assert.False(t, restoreRefresh.Authenticated())

	assert.Nil(t, State{Kind: KindUnauthenticated}.Identity())
	assert.Nil(t, State{Kind: KindFailed, Err: errors.New("x")}.Identity())

	// The returned identity is a copy; mutating it must not leak back.
	ident := refreshing.Identity()
	ident.Role = identity.RoleAdmin
	assert.Equal(t, identity.RoleAuthor, refreshing.Session.Identity.Role)
}

package session

// EventKind enumerates the inputs to the state machine.
type EventKind int

const (
	// EventStart begins restoring a session from storage.
	EventStart EventKind = iota
	// EventRestoreEmpty reports that storage held no credentials.
	EventRestoreEmpty
	// EventRestoreValid carries a restored, unexpired session.
	EventRestoreValid
	// EventRestoreExpired carries stored tokens whose access token has
	// expired; a refresh attempt follows.
	EventRestoreExpired
	// EventRestoreFailed reports an unrecoverable stored-token problem
	// (malformed token, identity fetch rejection, storage error).
	EventRestoreFailed
	// EventLoginSucceeded carries a freshly exchanged session.
	EventLoginSucceeded
	// EventLoginFailed carries the normalized login error.
	EventLoginFailed
	// EventRefreshDue marks the start of a refresh for the current session.
	EventRefreshDue
	// EventRefreshSucceeded carries the session built from the new token.
	EventRefreshSucceeded
	// EventRefreshFailed ends the session; refresh failures always log out.
	EventRefreshFailed
	// EventLogout ends the session on user request.
	EventLogout
)

// Event is one state-machine input with its payload.
type Event struct {
	Kind    EventKind
	Session *Session
	Err     error
}

// EffectKind enumerates the side effects a transition requests. The
// transition function never performs them; the engine does.
type EffectKind int

const (
	// EffectReadStore loads stored credentials (entering Initializing).
	EffectReadStore EffectKind = iota
	// EffectPersist writes the event's session to the credential store.
	// Persistence happens only on committed successful transitions.
	EffectPersist
	// EffectClearStore removes every stored credential.
	EffectClearStore
	// EffectCallRefresh asks the driver to call the refresh endpoint.
	EffectCallRefresh
	// EffectNotify fans the new state out to subscribers.
	EffectNotify
)

// Effect is one requested side effect.
type Effect struct {
	Kind    EffectKind
	Session *Session
}

// Transition is the pure state-transition function. Events that are not
// legal in the current state are ignored: the state is returned unchanged
// with no effects, so a stale trigger can never corrupt a newer state.
func Transition(s State, ev Event) (State, []Effect) {
	switch ev.Kind {
	case EventStart:
		if s.Kind != KindUninitialized {
			return s, nil
		}
		return State{Kind: KindInitializing}, []Effect{{Kind: EffectReadStore}}

	case EventRestoreEmpty:
		if s.Kind != KindInitializing {
			return s, nil
		}
		return State{Kind: KindUnauthenticated}, []Effect{{Kind: EffectNotify}}

	case EventRestoreFailed:
		if s.Kind != KindInitializing {
			return s, nil
		}
		return State{Kind: KindUnauthenticated}, []Effect{{Kind: EffectClearStore}, {Kind: EffectNotify}}

	case EventRestoreValid:
		if s.Kind != KindInitializing || ev.Session == nil {
			return s, nil
		}
		return State{Kind: KindAuthenticated, Session: ev.Session}, []Effect{{Kind: EffectNotify}}

	case EventRestoreExpired:
		if s.Kind != KindInitializing || ev.Session == nil {
			return s, nil
		}
		return State{Kind: KindRefreshing, Session: ev.Session}, []Effect{{Kind: EffectCallRefresh}, {Kind: EffectNotify}}

	case EventLoginSucceeded:
		if (s.Kind != KindUnauthenticated && s.Kind != KindFailed) || ev.Session == nil {
			return s, nil
		}
		return State{Kind: KindAuthenticated, Session: ev.Session},
			[]Effect{{Kind: EffectPersist, Session: ev.Session}, {Kind: EffectNotify}}

	case EventLoginFailed:
		if s.Kind != KindUnauthenticated && s.Kind != KindFailed {
			return s, nil
		}
		return State{Kind: KindFailed, Err: ev.Err}, []Effect{{Kind: EffectNotify}}

	case EventRefreshDue:
		if s.Kind != KindAuthenticated {
			return s, nil
		}
		return State{Kind: KindRefreshing, Session: s.Session}, []Effect{{Kind: EffectCallRefresh}, {Kind: EffectNotify}}

	case EventRefreshSucceeded:
		if s.Kind != KindRefreshing || ev.Session == nil {
			return s, nil
		}
		return State{Kind: KindAuthenticated, Session: ev.Session},
			[]Effect{{Kind: EffectPersist, Session: ev.Session}, {Kind: EffectNotify}}

	case EventRefreshFailed:
		if s.Kind != KindRefreshing {
			return s, nil
		}
		return State{Kind: KindUnauthenticated}, []Effect{{Kind: EffectClearStore}, {Kind: EffectNotify}}

	case EventLogout:
		switch s.Kind {
		case KindAuthenticated, KindRefreshing, KindUnauthenticated, KindFailed:
			return State{Kind: KindUnauthenticated}, []Effect{{Kind: EffectClearStore}, {Kind: EffectNotify}}
		}
		return s, nil
	}
	return s, nil
}

package obs

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetSessionState(t *testing.T) {
	SetSessionState("authenticated")
	if got := testutil.ToFloat64(sessionState.WithLabelValues("authenticated")); got != 1 {
		t.Fatalf("authenticated gauge=%v, want 1", got)
	}

	SetSessionState("unauthenticated")
	if got := testutil.ToFloat64(sessionState.WithLabelValues("unauthenticated")); got != 1 {
		t.Fatalf("unauthenticated gauge=%v, want 1", got)
	}
	if got := testutil.ToFloat64(sessionState.WithLabelValues("authenticated")); got != 0 {
		t.Fatalf("previous state gauge=%v, want 0", got)
	}
}

func TestRecordCounters(t *testing.T) {
	before := testutil.ToFloat64(loginAttempts.WithLabelValues("ok"))
	RecordLogin("ok")
	if got := testutil.ToFloat64(loginAttempts.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("login counter=%v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(refreshTotal.WithLabelValues("failed", "watcher"))
	RecordRefresh("failed", "watcher")
	if got := testutil.ToFloat64(refreshTotal.WithLabelValues("failed", "watcher")); got != before+1 {
		t.Fatalf("refresh counter=%v, want %v", got, before+1)
	}
}

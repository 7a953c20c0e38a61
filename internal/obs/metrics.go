package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Token refresh attempts by outcome and trigger.",
		},
		[]string{"outcome", "trigger"},
	)

	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "auth_session_state",
			Help: "Current session state (1 for the active state, 0 otherwise).",
		},
		[]string{"state"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_api_request_duration_seconds",
			Help:    "Auth API round-trip latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)
)

var initOnce sync.Once

// Init registers the engine metrics in the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(loginAttempts, refreshTotal, sessionState, apiRequestDuration)
	})
}

// RecordLogin counts a login attempt outcome ("ok", "invalid_credentials",
// "network", "server", "throttled").
func RecordLogin(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}

// RecordRefresh counts a token refresh outcome for the given trigger
// ("watcher", "explicit", "restore").
func RecordRefresh(outcome, trigger string) {
	refreshTotal.WithLabelValues(outcome, trigger).Inc()
}

// SetSessionState marks the given state as active and clears the rest.
func SetSessionState(state string) {
	sessionState.Reset()
	sessionState.WithLabelValues(state).Set(1)
}

// ObserveAPIRequest records one auth API round trip.
func ObserveAPIRequest(op, status string, elapsed time.Duration) {
	apiRequestDuration.WithLabelValues(op, status).Observe(elapsed.Seconds())
}

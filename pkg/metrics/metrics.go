// Package metrics holds the process-wide Prometheus series registered on the
// default registry. Feature modules with their own registry live in
// internal/monitoring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crmhub"

var (
	// AuthAttempts by result: success, failure or locked.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Password logins by outcome.",
	}, []string{"result"})

	// TenantResolutions by result: resolved, absent, not_found, denied.
	TenantResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenant_resolutions_total",
		Help:      "Organization lookups performed while routing a request.",
	}, []string{"result"})

	InvitationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invitation_transitions_total",
		Help:      "Invitation status changes by target status.",
	}, []string{"to"})

	// ActiveSessions is adjusted on create, revoke and cleanup; it resets with the process.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Refresh sessions neither expired nor revoked.",
	})

	RequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "HTTP requests currently being served.",
	})

	// APILatency is labelled by route template, never the raw path.
	APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_latency_seconds",
		Help:      "HTTP handler latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

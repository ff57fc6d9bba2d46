// Package metrics exposes Prometheus counters and histograms for the
// connection lifecycle. This is ambient observability, not a named
// spec.md module: the spec's Non-goals exclude behavioral features like
// caching and rate limiting, not instrumentation, so the ambient stack
// still carries a metrics surface the way the teacher's process-wide
// stats packages do (see SPEC_FULL.md §3).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ConnectionsAccepted counts every socket AcceptLoop hands to the
	// worker pool, regardless of what happens to it afterward.
	ConnectionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emme_connections_accepted_total",
		Help: "Total TCP connections accepted.",
	})

	// HandshakeFailures counts TLS handshakes that did not complete.
	HandshakeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emme_handshake_failures_total",
		Help: "Total TLS handshakes that failed or timed out.",
	})

	// RequestsByProtocol counts connections that completed the TLS
	// handshake, labeled h2/http1.1; an HTTP/2 connection counts once
	// however many streams it carries.
	RequestsByProtocol = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emme_requests_total",
		Help: "Total connections past the TLS handshake, by negotiated protocol.",
	}, []string{"protocol"})

	// RoutesOutcome counts router decisions, labeled welcome/static/
	// proxy/not_found.
	RoutesOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emme_route_outcomes_total",
		Help: "Total router outcomes, by decision taken.",
	}, []string{"outcome"})

	// WorkerPoolSize reports the worker pool's current goroutine count.
	WorkerPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emme_worker_pool_size",
		Help: "Current number of worker goroutines.",
	})
)

// MustRegister registers every collector against reg. internal/supervisor
// calls it once per Server.Run, against a registry created for that run;
// registering the same collectors twice on one registry panics, which is
// what MustRegister is for.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		ConnectionsAccepted,
		HandshakeFailures,
		RequestsByProtocol,
		RoutesOutcome,
		WorkerPoolSize,
	)
}

// Package metrics holds the prometheus collectors shared by the HTTP layer
// and the intake components.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bloodbank",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// LocationFetches counts selector list fetches by level and outcome
	// ("ok", "error", "superseded").
	LocationFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "location_fetches_total",
		Help:      "Location list fetches issued by selectors.",
	}, []string{"level", "outcome"})

	WizardTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "declaration_step_transitions_total",
		Help:      "Declaration wizard navigation attempts by step and result.",
	}, []string{"step", "result"})

	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "declaration_submissions_total",
		Help:      "Declaration submissions by outcome.",
	}, []string{"outcome"})

	RecoveredPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "http_panics_recovered_total",
		Help:      "Handler panics turned into 500 responses, by route.",
	}, []string{"route"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bloodbank",
		Name:      "intake_sessions_active",
		Help:      "Intake sessions created and not yet closed by this process.",
	})
)

// Registry collects every bloodbank metric plus the Go runtime collectors.
var Registry = newRegistry()

func newRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequests, HTTPDuration, RecoveredPanics,
		LocationFetches, WizardTransitions, Submissions, ActiveSessions,
	)
	return r
}

// Handler serves the registry in the prometheus exposition format.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}

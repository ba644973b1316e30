// ABOUTME: Prometheus metrics for gateway requests, events and workflow runs
// ABOUTME: Provides a Noop implementation for tests and optional deployments

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics captures gateway-level counters.
type Metrics interface {
	IncRequests(channel, status string)
	IncEventsPublished(eventType, mode string)
	IncEventsDropped(eventType string)
	IncRunsCompleted(workflow, status string)
	IncRateLimited(channel string)
	IncAuthDenied(reason string)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncRequests(string, string)        {}
func (Noop) IncEventsPublished(string, string) {}
func (Noop) IncEventsDropped(string)           {}
func (Noop) IncRunsCompleted(string, string)   {}
func (Noop) IncRateLimited(string)             {}
func (Noop) IncAuthDenied(string)              {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	requests        *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	runsCompleted   *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	authDenied      *prometheus.CounterVec
	registry        *prometheus.Registry
}

// NewProm creates a Prometheus-backed Metrics with its own registry.
func NewProm(namespace string) *Prom {
	p := &Prom{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled by channel and status",
		}, []string{"channel", "status"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published by type and delivery mode",
		}, []string{"type", "mode"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped for slow subscribers by type",
		}, []string{"type"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Workflow runs reaching a terminal status",
		}, []string{"workflow", "status"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests denied by the rate limiter per channel",
		}, []string{"channel"}),
		authDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_denied_total",
			Help:      "Authorization denials by reason",
		}, []string{"reason"}),
		registry: prometheus.NewRegistry(),
	}
	p.registry.MustRegister(p.requests, p.eventsPublished, p.eventsDropped,
		p.runsCompleted, p.rateLimited, p.authDenied)
	return p
}

func (p *Prom) IncRequests(channel, status string) {
	p.requests.WithLabelValues(channel, status).Inc()
}

func (p *Prom) IncEventsPublished(eventType, mode string) {
	p.eventsPublished.WithLabelValues(eventType, mode).Inc()
}

func (p *Prom) IncEventsDropped(eventType string) {
	p.eventsDropped.WithLabelValues(eventType).Inc()
}

func (p *Prom) IncRunsCompleted(workflow, status string) {
	p.runsCompleted.WithLabelValues(workflow, status).Inc()
}

func (p *Prom) IncRateLimited(channel string) {
	p.rateLimited.WithLabelValues(channel).Inc()
}

func (p *Prom) IncAuthDenied(reason string) {
	p.authDenied.WithLabelValues(reason).Inc()
}

// Handler returns an http.Handler serving this registry.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

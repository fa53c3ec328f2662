// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay stream outcomes.
const (
	OutcomeCompleted     = "completed"
	OutcomeProviderError = "provider_error"
	OutcomePersistError  = "persist_error"
	OutcomeAborted       = "aborted"
)

// Metrics groups all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	RelayStreamsTotal    *prometheus.CounterVec
	RelayFragmentsTotal  prometheus.Counter
	RelayStreamsInFlight prometheus.Gauge

	ImageGenerationsTotal *prometheus.CounterVec
	LoginsTotal           *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "typegpt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "typegpt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		RelayStreamsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "typegpt_relay_streams_total",
			Help: "Relayed completions by outcome",
		}, []string{"outcome"}),
		RelayFragmentsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "typegpt_relay_fragments_total",
			Help: "Text fragments forwarded to callers",
		}),
		RelayStreamsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "typegpt_relay_streams_in_flight",
			Help: "Completions currently being relayed",
		}),
		ImageGenerationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "typegpt_image_generations_total",
			Help: "Image generation calls by outcome",
		}, []string{"outcome"}),
		LoginsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "typegpt_logins_total",
			Help: "Login attempts by method and outcome",
		}, []string{"method", "outcome"}),
	}
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// StreamStarted marks a relay as in flight and returns the function that ends it.
func (m *Metrics) StreamStarted() (finish func(outcome string)) {
	if m == nil {
		return func(string) {}
	}
	m.RelayStreamsInFlight.Inc()
	return func(outcome string) {
		m.RelayStreamsInFlight.Dec()
		m.RelayStreamsTotal.WithLabelValues(outcome).Inc()
	}
}

// Fragment counts one relayed fragment.
func (m *Metrics) Fragment() {
	if m == nil {
		return
	}
	m.RelayFragmentsTotal.Inc()
}

// Image records an image generation outcome.
func (m *Metrics) Image(outcome string) {
	if m == nil {
		return
	}
	m.ImageGenerationsTotal.WithLabelValues(outcome).Inc()
}

// Login records a login attempt.
func (m *Metrics) Login(method, outcome string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(method, outcome).Inc()
}

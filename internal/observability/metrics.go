package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Histogram bucket definitions.
var callDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric instruments of a dispatcher and its
// transport. A nil *Metrics records nothing.
type Metrics struct {
	// Dispatch metrics
	CallsCreatedTotal       *prometheus.CounterVec
	ResolutionFailuresTotal *prometheus.CounterVec

	// Transport metrics
	ExchangesTotal      *prometheus.CounterVec
	ExchangeDuration    *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec

	// Descriptor metrics
	DescriptorsLoaded *prometheus.GaugeVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callwire_calls_total",
			Help: "Total number of calls created by dispatchers.",
		}, []string{"interface", "method", "kind"}),
		ResolutionFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callwire_resolution_failures_total",
			Help: "Total number of method resolution failures.",
		}, []string{"interface", "code"}),

		ExchangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callwire_exchanges_total",
			Help: "Total number of HTTP exchanges performed.",
		}, []string{"host", "verb", "status"}),
		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callwire_call_duration_seconds",
			Help:    "HTTP exchange duration in seconds.",
			Buckets: callDurationBuckets,
		}, []string{"host", "verb"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "callwire_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"host"}),

		DescriptorsLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "callwire_descriptors_loaded",
			Help: "Number of registered interface descriptors.",
		}, []string{"source"}),
	}

	reg.MustRegister(
		m.CallsCreatedTotal,
		m.ResolutionFailuresTotal,
		m.ExchangesTotal,
		m.ExchangeDuration,
		m.CircuitBreakerState,
		m.DescriptorsLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordCall records a call created by a dispatcher.
func (m *Metrics) RecordCall(iface, method, kind string) {
	if m == nil {
		return
	}
	m.CallsCreatedTotal.WithLabelValues(iface, method, kind).Inc()
}

// RecordResolutionFailure records a failed method resolution.
func (m *Metrics) RecordResolutionFailure(iface, code string) {
	if m == nil {
		return
	}
	m.ResolutionFailuresTotal.WithLabelValues(iface, code).Inc()
}

// RecordExchange records one HTTP exchange. A status of 0 means the
// exchange failed before a response arrived.
func (m *Metrics) RecordExchange(host, verb string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.ExchangesTotal.WithLabelValues(host, verb, label).Inc()
	m.ExchangeDuration.WithLabelValues(host, verb).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the circuit breaker state for a host.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetCircuitBreakerState(host string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(host).Set(state)
}

// SetDescriptorsLoaded sets the number of descriptors loaded from a source.
func (m *Metrics) SetDescriptorsLoaded(source string, count int) {
	if m == nil {
		return
	}
	m.DescriptorsLoaded.WithLabelValues(source).Set(float64(count))
}

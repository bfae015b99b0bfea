package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records provider round-trips and their outcomes.
type PaymentMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	results  *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_provider_calls_total",
		Help: "Payment provider calls by operation and outcome.",
	}, []string{"provider", "operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_call_duration_seconds",
		Help:    "Payment provider call latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_results_total",
		Help: "Payment results returned to clients.",
	}, []string{"method", "result"})
	reg.MustRegister(calls, duration, results)
	return &PaymentMetrics{calls: calls, duration: duration, results: results}
}

// ObserveCall records one provider call. outcome is "ok", "error" or "timeout".
func (m *PaymentMetrics) ObserveCall(provider, operation, outcome string, elapsed time.Duration) {
	if m == nil || m.calls == nil {
		return
	}
	provider = normalizeLabel(provider)
	m.calls.WithLabelValues(provider, operation, outcome).Inc()
	m.duration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// IncResult counts a payment result handed back to a caller.
func (m *PaymentMetrics) IncResult(method, result string) {
	if m == nil || m.results == nil {
		return
	}
	m.results.WithLabelValues(normalizeLabel(method), normalizeLabel(result)).Inc()
}

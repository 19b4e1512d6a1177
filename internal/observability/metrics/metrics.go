package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking and sync flows.
type SchedulingMetrics struct {
	bookingsTotal   *prometheus.CounterVec
	statusTotal     *prometheus.CounterVec
	adapterFailures *prometheus.CounterVec
	adapterLatency  *prometheus.HistogramVec
	webhooksTotal   *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentiflow",
			Subsystem: "appointments",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		statusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentiflow",
			Subsystem: "appointments",
			Name:      "status_changes_total",
			Help:      "Appointment status changes by target status",
		}, []string{"status"}),
		adapterFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentiflow",
			Subsystem: "sync",
			Name:      "adapter_failures_total",
			Help:      "Best-effort adapter calls that failed or timed out",
		}, []string{"adapter", "operation"}),
		adapterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dentiflow",
			Subsystem: "sync",
			Name:      "adapter_call_seconds",
			Help:      "Latency of best-effort adapter calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"adapter", "operation"}),
		webhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentiflow",
			Subsystem: "webhooks",
			Name:      "received_total",
			Help:      "Inbound webhooks by source and result",
		}, []string{"source", "result"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dentiflow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.statusTotal, m.adapterFailures, m.adapterLatency, m.webhooksTotal, m.httpLatency)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusTotal.WithLabelValues(status).Inc()
}

// ObserveAdapterCall records latency and, when failed is set, a failure for the adapter operation.
func (m *SchedulingMetrics) ObserveAdapterCall(adapter, operation string, seconds float64, failed bool) {
	if m == nil {
		return
	}
	m.adapterLatency.WithLabelValues(adapter, operation).Observe(seconds)
	if failed {
		m.adapterFailures.WithLabelValues(adapter, operation).Inc()
	}
}

func (m *SchedulingMetrics) ObserveWebhook(source, result string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(source, result).Inc()
}

func (m *SchedulingMetrics) ObserveHTTP(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, status).Observe(seconds)
}

// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "orion"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Client metrics
	SubmissionsTotal *prometheus.CounterVec // by outcome
	PollsTotal       *prometheus.CounterVec // by outcome
	AwaitDuration    *prometheus.HistogramVec
	LoginPrompts     prometheus.Counter

	// Service metrics
	RequestsCreated     *prometheus.CounterVec // by simulation type
	StatusTransitions   *prometheus.CounterVec // by from, to
	CallbacksReceived   *prometheus.CounterVec // by accepted
	DispatchAttempts    *prometheus.CounterVec // by outcome
	StaleRequestsFailed prometheus.Counter
	RequestsByStatus    *prometheus.GaugeVec
	StatusSubscribers   prometheus.Gauge
	ChatMessages        prometheus.Counter

	// Latency metrics
	RPCCallLatency  *prometheus.HistogramVec
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a Metrics instance registered on its own registry,
// so several instances can coexist in one process.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SubmissionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "submissions_total",
			Help:      "Total number of submit attempts by outcome",
		}, []string{"outcome"}),
		PollsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "polls_total",
			Help:      "Total number of status polls by outcome",
		}, []string{"outcome"}),
		AwaitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "await_duration_seconds",
			Help:      "Time from first poll to a terminal status or give-up",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		LoginPrompts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "login_prompts_total",
			Help:      "Total number of interactive login prompts",
		}),

		RequestsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "requests_created_total",
			Help:      "Total number of simulation requests accepted by type",
		}, []string{"simulation_type"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "status_transitions_total",
			Help:      "Total number of request status transitions",
		}, []string{"from", "to"}),
		CallbacksReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "callbacks_received_total",
			Help:      "Total number of agent result callbacks by acceptance",
		}, []string{"accepted"}),
		DispatchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "dispatch_attempts_total",
			Help:      "Total number of agent dispatch attempts by outcome",
		}, []string{"outcome"}),
		StaleRequestsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "stale_requests_failed_total",
			Help:      "Total number of requests failed by the stale sweeper",
		}),
		RequestsByStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "requests",
			Help:      "Number of stored requests by status",
		}, []string{"status"}),
		StatusSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "status_subscribers",
			Help:      "Number of open status feed connections",
		}),
		ChatMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "chat_messages_total",
			Help:      "Total number of chat messages answered",
		}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The Record* helpers below are nil-safe so components can run without metrics.

// RecordSubmission records a client submit outcome (ok, invalid, unauthenticated, error).
func (m *Metrics) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordPoll records a client poll outcome (found, not_found, error).
func (m *Metrics) RecordPoll(outcome string) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(outcome).Inc()
}

// RecordAwait records how an await ended (completed, failed, timeout, cancelled, unknown).
func (m *Metrics) RecordAwait(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.AwaitDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordLoginPrompt increments the interactive login counter.
func (m *Metrics) RecordLoginPrompt() {
	if m == nil {
		return
	}
	m.LoginPrompts.Inc()
}

// RecordRequestCreated increments the accepted requests counter.
func (m *Metrics) RecordRequestCreated(simulationType string) {
	if m == nil {
		return
	}
	m.RequestsCreated.WithLabelValues(simulationType).Inc()
}

// RecordTransition records a status change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

// RecordCallback records an agent callback and whether it changed state.
func (m *Metrics) RecordCallback(accepted bool) {
	if m == nil {
		return
	}
	label := "false"
	if accepted {
		label = "true"
	}
	m.CallbacksReceived.WithLabelValues(label).Inc()
}

// RecordDispatch records an agent dispatch attempt outcome (ok, retry, failed).
func (m *Metrics) RecordDispatch(outcome string) {
	if m == nil {
		return
	}
	m.DispatchAttempts.WithLabelValues(outcome).Inc()
}

// RecordStaleFailed increments the stale sweeper counter.
func (m *Metrics) RecordStaleFailed(n int) {
	if m == nil {
		return
	}
	m.StaleRequestsFailed.Add(float64(n))
}

// UpdateRequestCounts replaces the per-status gauges.
func (m *Metrics) UpdateRequestCounts(counts map[string]int) {
	if m == nil {
		return
	}
	m.RequestsByStatus.Reset()
	for status, n := range counts {
		m.RequestsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// AddStatusSubscribers moves the open status feed gauge by delta.
func (m *Metrics) AddStatusSubscribers(delta int) {
	if m == nil {
		return
	}
	m.StatusSubscribers.Add(float64(delta))
}

// RecordChat increments the chat counter.
func (m *Metrics) RecordChat() {
	if m == nil {
		return
	}
	m.ChatMessages.Inc()
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, seconds float64) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

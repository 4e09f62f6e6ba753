// Package observability exposes Prometheus metrics for the HTTP API, the
// realtime hub, the streaming relay, the agents and the alert event bus.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/velociti/velociti/internal/agents"
	"github.com/velociti/velociti/internal/alerting"
)

const namespace = "velociti"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	wsClients    prometheus.Gauge
	wsBroadcasts *prometheus.CounterVec
	wsDropped    prometheus.Counter

	streamSessions *prometheus.CounterVec
	streamDuration *prometheus.HistogramVec

	alertsCreated *prometheus.CounterVec
	busDropped    prometheus.Counter
	sinkFailures  *prometheus.CounterVec

	agentRuns        *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentAlerts      *prometheus.CounterVec
}

// NewMetrics registers every collector plus the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "clients",
			Help:      "Connected WebSocket clients",
		}),
		wsBroadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "broadcasts_total",
			Help:      "Messages broadcast to all clients by type",
		}, []string{"type"}),
		wsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "dropped_clients_total",
			Help:      "Clients disconnected because their send buffer was full",
		}),

		streamSessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "sessions_total",
			Help:      "LLM stream sessions by provider, strategy and outcome",
		}, []string{"provider", "strategy", "outcome"}),
		streamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "session_duration_seconds",
			Help:      "LLM stream session duration by provider",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"provider"}),

		alertsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Alerts created by category and priority",
		}, []string{"category", "priority"}),
		busDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "events_dropped_total",
			Help:      "Alert events dropped because the event bus was full",
		}),
		sinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sink_failures_total",
			Help:      "Failed deliveries to notification sinks",
		}, []string{"sink"}),

		agentRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "runs_total",
			Help:      "Agent runs by agent and status",
		}, []string{"agent", "status"}),
		agentRunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "run_duration_seconds",
			Help:      "Agent run duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"agent"}),
		agentAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by agent runs",
		}, []string{"agent"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one finished request. route is the matched route
// pattern, not the raw path, to bound label cardinality.
func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ClientsChanged implements realtime.Metrics.
func (m *Metrics) ClientsChanged(n int) { m.wsClients.Set(float64(n)) }

// Broadcast implements realtime.Metrics.
func (m *Metrics) Broadcast(msgType string) { m.wsBroadcasts.WithLabelValues(msgType).Inc() }

// ClientDropped implements realtime.Metrics.
func (m *Metrics) ClientDropped() { m.wsDropped.Inc() }

// StreamFinished matches streaming.Observer.
func (m *Metrics) StreamFinished(provider, strategy, outcome string, elapsed time.Duration) {
	m.streamSessions.WithLabelValues(provider, strategy, outcome).Inc()
	m.streamDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// EventDropped is the event bus drop hook.
func (m *Metrics) EventDropped() { m.busDropped.Inc() }

// SinkFailed is the dispatcher error hook.
func (m *Metrics) SinkFailed(sink string) { m.sinkFailures.WithLabelValues(sink).Inc() }

// AlertEvent counts created alerts. Subscribe it to the event bus.
func (m *Metrics) AlertEvent(event *alerting.AlertEvent) {
	if event.Name != alerting.EventAlertCreated || event.Alert == nil {
		return
	}
	m.alertsCreated.WithLabelValues(event.Alert.Category, event.Alert.Priority).Inc()
}

// AgentRun matches agents.RunObserver.
func (m *Metrics) AgentRun(result *agents.RunResult) {
	m.agentRuns.WithLabelValues(result.AgentID, result.Status).Inc()
	m.agentRunDuration.WithLabelValues(result.AgentID).Observe(result.Duration.Seconds())
	if result.AlertsCreated > 0 {
		m.agentAlerts.WithLabelValues(result.AgentID).Add(float64(result.AlertsCreated))
	}
}

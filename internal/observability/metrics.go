package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the agent core.
type Metrics struct {
	// LLMRequests counts provider chats. Labels: provider, status (ok|error).
	LLMRequests *prometheus.CounterVec
	// LLMDuration measures provider chat latency in seconds. Labels: provider.
	LLMDuration *prometheus.HistogramVec

	// ToolExecutions counts tool calls. Labels: tool_name, status (succeeded|failed).
	ToolExecutions *prometheus.CounterVec
	// ToolDuration measures tool latency in seconds. Labels: tool_name.
	ToolDuration *prometheus.HistogramVec

	// Tasks counts gateway tasks. Labels: status (started|succeeded|failed).
	Tasks *prometheus.CounterVec

	// PaymentDecisions counts ledger outcomes. Labels: status.
	PaymentDecisions *prometheus.CounterVec

	// WSConnections is the number of open websocket sessions.
	WSConnections prometheus.Gauge

	// BusFrames counts frames delivered from the message bus. Labels: type.
	BusFrames *prometheus.CounterVec

	// CronRuns counts fired cron jobs.
	CronRuns prometheus.Counter

	// HTTPRequests counts gateway HTTP requests. Labels: method, route, code.
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg (prometheus.DefaultRegisterer
// when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		LLMRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cognis_llm_requests_total",
			Help: "LLM provider chats by provider and outcome",
		}, []string{"provider", "status"}),
		LLMDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cognis_llm_request_duration_seconds",
			Help:    "LLM provider chat latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		ToolExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cognis_tool_executions_total",
			Help: "Tool executions by tool and outcome",
		}, []string{"tool_name", "status"}),
		ToolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cognis_tool_execution_duration_seconds",
			Help:    "Tool execution latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool_name"}),
		Tasks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cognis_tasks_total",
			Help: "Gateway tasks by lifecycle stage",
		}, []string{"status"}),
		PaymentDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cognis_payment_decisions_total",
			Help: "Ledger decisions by resulting status",
		}, []string{"status"}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "cognis_ws_connections",
			Help: "Open websocket sessions",
		}),
		BusFrames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cognis_bus_frames_total",
			Help: "Frames delivered from the message bus by type",
		}, []string{"type"}),
		CronRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "cognis_cron_runs_total",
			Help: "Cron jobs fired by the dispatcher",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cognis_http_requests_total",
			Help: "Gateway HTTP requests",
		}, []string{"method", "route", "code"}),
	}
}

func (m *Metrics) RecordLLMRequest(provider, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(provider, status).Inc()
	m.LLMDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) RecordToolExecution(tool, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) RecordTask(status string) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordPaymentDecision(status string) {
	if m == nil {
		return
	}
	m.PaymentDecisions.WithLabelValues(status).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

func (m *Metrics) RecordBusFrame(frameType string) {
	if m == nil {
		return
	}
	m.BusFrames.WithLabelValues(frameType).Inc()
}

func (m *Metrics) RecordCronRuns(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CronRuns.Add(float64(n))
}

func (m *Metrics) RecordHTTPRequest(method, route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, code).Inc()
}

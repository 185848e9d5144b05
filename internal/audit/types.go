// Package audit keeps the append-only event log that backs the dashboard.
// Tool calls, task boundaries and payment decisions are recorded here and
// summarized into health metrics.
package audit

import "time"

// Event types recorded by the runtime, gateway and ledger.
const (
	EventUserActivity      = "user_activity"
	EventTaskStarted       = "task_started"
	EventTaskSucceeded     = "task_succeeded"
	EventTaskFailed        = "task_failed"
	EventToolSucceeded     = "tool_succeeded"
	EventToolFailed        = "tool_failed"
	EventPaymentRequest    = "payment_request"
	EventPaymentDenied     = "payment_denied"
	EventPaymentAuthorized = "payment_authorized"
	EventPaymentCaptured   = "payment_captured"
	EventPaymentCancelled  = "payment_cancelled"
	EventApprovalRequested = "approval_requested"
)

// MaxEvents is how many events the log retains.
const MaxEvents = 20_000

// Event is a single audit log entry.
type Event struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

// DashboardSummary is derived from the full event log.
type DashboardSummary struct {
	TasksStarted          int     `json:"tasks_started"`
	TasksSucceeded        int     `json:"tasks_succeeded"`
	TasksFailed           int     `json:"tasks_failed"`
	TaskSuccessRate       float64 `json:"task_success_rate"`
	P50LatencyMs          float64 `json:"p50_latency_ms"`
	P95LatencyMs          float64 `json:"p95_latency_ms"`
	AverageCostPerTaskUSD float64 `json:"average_cost_per_task_usd"`
	FailureRecoveryRate   float64 `json:"failure_recovery_rate"`
	SafetyIncidentRate    float64 `json:"safety_incident_rate"`
	WeeklyCompletedTasks  int     `json:"weekly_completed_tasks"`
	ActiveUsers7d         int     `json:"active_users_7d"`
	Retention7d           float64 `json:"retention_7d"`
	AuditEvents           int     `json:"audit_events"`
}

// Package cron persists one-shot and interval jobs and dispatches the ones
// that are due.
package cron

// Job is a persisted schedule entry. Interval jobs have EverySeconds > 0 and
// DeleteAfterRun false; one-shot jobs have EverySeconds 0 and DeleteAfterRun
// true.
type Job struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Message          string `json:"message"`
	EverySeconds     int    `json:"everySeconds"`
	DeleteAfterRun   bool   `json:"deleteAfterRun"`
	Enabled          bool   `json:"enabled"`
	NextRunAtEpochMs int64  `json:"nextRunAtEpochMs"`
	LastRunAtEpochMs int64  `json:"lastRunAtEpochMs"`
}

// IsInterval reports whether the job repeats.
func (j Job) IsInterval() bool {
	return j.EverySeconds > 0 && !j.DeleteAfterRun
}

// DailyDigestName is the job seeded on startup to trigger the daily brief.
const (
	DailyDigestName    = "daily-digest"
	DailyDigestMessage = "workflow:daily_brief"
	DailyDigestSeconds = 86400
)

// Package cron exposes the job scheduler to the model.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/cognis/internal/agent"
	croncore "github.com/haasonsaas/cognis/internal/cron"
	"github.com/haasonsaas/cognis/internal/tools"
)

// Tool manages scheduled jobs.
type Tool struct {
	service *croncore.Service
	now     func() time.Time
	loc     *time.Location
}

// Option configures the tool.
type Option func(*Tool)

// WithClock sets the clock and zone used to resolve natural-language times.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(t *Tool) {
		if now != nil {
			t.now = now
		}
		if loc != nil {
			t.loc = loc
		}
	}
}

func NewTool(service *croncore.Service, opts ...Option) *Tool {
	t := &Tool{service: service, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Name() string { return "cron" }

func (t *Tool) Description() string {
	return "Manage scheduled jobs (add_every, add_in, add_at, add_natural, add_schedule, list, remove, run_due)"
}

func (t *Tool) Schema() json.RawMessage {
	return tools.Schema(map[string]any{
		"action":       tools.Enum("", "add_every", "add_in", "add_at", "add_natural", "add_schedule", "list", "remove", "run_due"),
		"name":         tools.Prop("string", "Job name."),
		"message":      tools.Prop("string", "Message delivered when the job fires."),
		"everySeconds": tools.Prop("integer", "Interval for add_every."),
		"inSeconds":    tools.Prop("integer", "Delay for add_in."),
		"at":           tools.Prop("string", "Time for add_at, e.g. 2026-04-01 09:00 or an RFC3339 instant."),
		"when":         tools.Prop("string", "Natural time for add_natural, e.g. 'tomorrow at 7pm' or 'in 10 minutes'."),
		"schedule":     tools.Prop("string", "Cron expression or descriptor for add_schedule, e.g. '@daily' or '0 9 * * *'."),
		"id":           tools.Prop("string", "Job id for remove."),
	}, "action")
}

func (t *Tool) Execute(_ context.Context, args map[string]any, _ *agent.ToolContext) (string, error) {
	if t.service == nil {
		return tools.NotConfigured("cron service"), nil
	}
	name := agent.StringArg(args, "name")
	message := agent.StringArg(args, "message")

	switch action := agent.StringArg(args, "action"); action {
	case "add_every":
		every := agent.IntArg(args, "everySeconds", 0)
		if name == "" || message == "" || every <= 0 {
			return tools.Errorf("name, message, and everySeconds (>0) are required"), nil
		}
		job, err := t.service.AddEvery(name, every, message)
		if err != nil {
			return "", err
		}
		return "Created cron job: " + job.ID, nil
	case "add_in":
		in := agent.IntArg(args, "inSeconds", 0)
		if name == "" || message == "" || in <= 0 {
			return tools.Errorf("name, message, and inSeconds (>0) are required"), nil
		}
		job, err := t.service.AddIn(name, in, message)
		if err != nil {
			return "", err
		}
		return "Created one-shot job: " + job.ID, nil
	case "add_at":
		return t.addAt(name, message, "at", agent.StringArg(args, "at"), "Created one-shot job: ")
	case "add_natural":
		return t.addAt(name, message, "when", agent.StringArg(args, "when"), "Created natural-language job: ")
	case "add_schedule":
		expr := agent.StringArg(args, "schedule")
		if name == "" || message == "" || expr == "" {
			return tools.Errorf("name, message, and schedule are required"), nil
		}
		job, err := t.service.AddSchedule(name, expr, message)
		if err != nil {
			return tools.Errorf("%s", err), nil
		}
		return fmt.Sprintf("Created cron job: %s (every %ds)", job.ID, job.EverySeconds), nil
	case "list":
		return t.list()
	case "remove":
		id := agent.StringArg(args, "id")
		if id == "" {
			return tools.Errorf("id is required"), nil
		}
		removed, err := t.service.Remove(id)
		if err != nil {
			return "", err
		}
		if !removed {
			return "Not found: " + id, nil
		}
		return "Removed: " + id, nil
	case "run_due":
		var executed []string
		count, err := t.service.RunDue(func(job croncore.Job) {
			executed = append(executed, job.ID+": "+job.Message)
		})
		if err != nil {
			return "", err
		}
		if count == 0 {
			return "No due jobs", nil
		}
		return fmt.Sprintf("Executed %d jobs\n%s", count, strings.Join(executed, "\n")), nil
	default:
		return tools.Unsupported(action), nil
	}
}

func (t *Tool) addAt(name, message, field, expr, prefix string) (string, error) {
	if name == "" || message == "" || expr == "" {
		return tools.Errorf("name, message, and %s are required", field), nil
	}
	at, err := croncore.ParseNaturalTime(expr, t.now(), t.loc)
	if err != nil {
		return tools.Errorf("%s", err), nil
	}
	job, err := t.service.AddAt(name, at.UnixMilli(), message)
	if err != nil {
		return "", err
	}
	return prefix + job.ID, nil
}

func (t *Tool) list() (string, error) {
	jobs, err := t.service.List()
	if err != nil {
		return "", err
	}
	if len(jobs) == 0 {
		return "No jobs", nil
	}
	lines := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if job.DeleteAfterRun {
			at := time.UnixMilli(job.NextRunAtEpochMs).UTC().Format(time.RFC3339)
			lines = append(lines, fmt.Sprintf("%s | %s | once at %s", job.ID, job.Name, at))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s | %s | every %ds", job.ID, job.Name, job.EverySeconds))
	}
	return strings.Join(lines, "\n"), nil
}

package workflow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/haasonsaas/cognis/internal/bus"
	"github.com/haasonsaas/cognis/internal/cron"
	"github.com/haasonsaas/cognis/pkg/models"
)

// Cron job messages that trigger a workflow.
const (
	JobDailyBrief        = "workflow:daily_brief"
	JobRelationshipNudge = "workflow:relationship_nudge"
	JobGoalCheckinPrefix = "workflow:goal_checkin:"
)

// NoContactsNudge is published when the profile lists nobody to nudge about.
const NoContactsNudge = "Relationship nudge: add contacts in profile to enable this workflow."

// Expander turns fired cron jobs into bus messages. Workflow jobs are
// expanded into their tagged content; any other job publishes its message
// as a plain notification.
type Expander struct {
	service *Service
	bus     bus.Publisher
	logger  *slog.Logger
}

func NewExpander(service *Service, publisher bus.Publisher, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default().With("component", "workflow")
	}
	return &Expander{service: service, bus: publisher, logger: logger}
}

// Expand returns the bus content for a cron message, or "" when there is
// nothing to send.
func (e *Expander) Expand(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	lowered := strings.ToLower(message)
	switch {
	case lowered == JobDailyBrief:
		out, err := e.service.DailyBrief(ctx)
		return tagged(bus.MarkerDailyBrief, out), err
	case strings.HasPrefix(lowered, JobGoalCheckinPrefix):
		out, err := e.service.GoalCheckIn(ctx, strings.TrimSpace(message[len(JobGoalCheckinPrefix):]))
		return tagged(bus.MarkerGoalCheckin, out), err
	case lowered == JobRelationshipNudge:
		out, err := e.service.RelationshipNudge(ctx, "")
		if err == nil && out == "" {
			out = NoContactsNudge
		}
		return tagged(bus.MarkerWorkflowResult, out), err
	default:
		return message, nil
	}
}

// HandleJob is a cron.Dispatcher handler. Failures skip the job for this
// tick.
func (e *Expander) HandleJob(ctx context.Context, job cron.Job) {
	content, err := e.Expand(ctx, job.Message)
	if err != nil {
		e.logger.Warn("workflow expansion failed", "job", job.Name, "error", err)
		return
	}
	if strings.TrimSpace(content) == "" {
		return
	}
	e.bus.Publish(models.AssistantMessage(content))
}

func tagged(marker, content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	return bus.Tag(marker, content)
}

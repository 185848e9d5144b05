// Package workflow exposes the executive workflows to the model.
package workflow

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/haasonsaas/cognis/internal/agent"
	croncore "github.com/haasonsaas/cognis/internal/cron"
	"github.com/haasonsaas/cognis/internal/tools"
	workflowcore "github.com/haasonsaas/cognis/internal/workflow"
)

const checkInSeconds = 24 * 60 * 60

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Tool runs daily_brief, goal_plan and relationship_nudge. A goal plan also
// schedules a daily check-in unless schedule_daily is false.
type Tool struct {
	service *workflowcore.Service
	cron    *croncore.Service
}

func NewTool(service *workflowcore.Service, cron *croncore.Service) *Tool {
	return &Tool{service: service, cron: cron}
}

func (t *Tool) Name() string { return "workflow" }

func (t *Tool) Description() string {
	return "Execute executive workflows: daily_brief, goal_plan, relationship_nudge"
}

func (t *Tool) Schema() json.RawMessage {
	return tools.Schema(map[string]any{
		"action":         tools.Enum("", "daily_brief", "goal_plan", "relationship_nudge"),
		"goal":           tools.Prop("string", ""),
		"person":         tools.Prop("string", ""),
		"horizon_days":   tools.Prop("integer", "Plan horizon, default 7."),
		"schedule_daily": tools.Prop("boolean", "Schedule a daily check-in, default true."),
	}, "action")
}

func (t *Tool) Execute(ctx context.Context, args map[string]any, _ *agent.ToolContext) (string, error) {
	if t.service == nil {
		return tools.NotConfigured("workflow service"), nil
	}
	switch action := agent.StringArg(args, "action"); action {
	case "daily_brief":
		return t.service.DailyBrief(ctx)
	case "goal_plan":
		return t.goalPlan(args)
	case "relationship_nudge":
		nudge, err := t.service.RelationshipNudge(ctx, agent.StringArg(args, "person"))
		if err != nil {
			return "", err
		}
		if nudge == "" {
			return workflowcore.NoContactsNudge, nil
		}
		return nudge, nil
	default:
		return tools.Unsupported(action), nil
	}
}

func (t *Tool) goalPlan(args map[string]any) (string, error) {
	goal := agent.StringArg(args, "goal")
	plan, err := t.service.GoalPlan(goal, agent.IntArg(args, "horizon_days", 7))
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(plan, "Error:") || !agent.BoolArg(args, "schedule_daily", true) {
		return plan, nil
	}
	if t.cron == nil {
		return plan + "\n\nDaily check-in not scheduled (cron service unavailable).", nil
	}
	label := "goal-checkin"
	if goal != "" {
		label += "-" + slug(goal)
	}
	if _, err := t.cron.AddEvery(label, checkInSeconds, workflowcore.JobGoalCheckinPrefix+goal); err != nil {
		return "", err
	}
	return plan + "\n\nDaily check-in scheduled.", nil
}

func slug(raw string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(raw), "-"), "-")
	if s == "" {
		return "goal"
	}
	return s
}

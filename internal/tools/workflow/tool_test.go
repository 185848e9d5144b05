package workflow

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	croncore "github.com/haasonsaas/cognis/internal/cron"
	"github.com/haasonsaas/cognis/internal/profile"
	workflowcore "github.com/haasonsaas/cognis/internal/workflow"
)

func setup(t *testing.T) (*workflowcore.Service, *profile.Store, *croncore.Service) {
	t.Helper()
	dir := t.TempDir()
	profiles := profile.NewStore(filepath.Join(dir, "profile.json"))
	svc := &workflowcore.Service{
		Profile: profiles,
		Now:     func() time.Time { return time.Date(2026, 2, 21, 8, 0, 0, 0, time.UTC) },
	}
	return svc, profiles, croncore.NewService(croncore.NewFileStore(filepath.Join(dir, "jobs.json")))
}

func TestGoalPlanSchedulesCheckIn(t *testing.T) {
	svc, profiles, cronSvc := setup(t)
	tool := NewTool(svc, cronSvc)

	out, err := tool.Execute(context.Background(), map[string]any{"action": "goal_plan", "goal": "Launch Beta!", "horizon_days": float64(14)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Goal Execution Loop: Launch Beta!\nHorizon: 14 day(s)") || !strings.HasSuffix(out, "\n\nDaily check-in scheduled.") {
		t.Fatalf("plan = %q", out)
	}
	jobs, _ := cronSvc.List()
	if len(jobs) != 1 || jobs[0].Name != "goal-checkin-launch-beta" || jobs[0].Message != "workflow:goal_checkin:Launch Beta!" || jobs[0].EverySeconds != 86400 {
		t.Fatalf("jobs = %+v", jobs)
	}
	p, _ := profiles.Get()
	if len(p.Goals) != 1 || p.Goals[0] != "Launch Beta!" {
		t.Fatalf("goals = %v", p.Goals)
	}
}

func TestGoalPlanVariants(t *testing.T) {
	svc, _, cronSvc := setup(t)
	ctx := context.Background()

	out, _ := NewTool(svc, cronSvc).Execute(ctx, map[string]any{"action": "goal_plan", "goal": "read", "schedule_daily": false}, nil)
	if strings.Contains(out, "check-in") && strings.HasSuffix(out, "scheduled.") {
		t.Fatalf("schedule_daily=false still scheduled: %q", out)
	}
	out, _ = NewTool(svc, nil).Execute(ctx, map[string]any{"action": "goal_plan", "goal": "read"}, nil)
	if !strings.HasSuffix(out, "Daily check-in not scheduled (cron service unavailable).") {
		t.Fatalf("no cron = %q", out)
	}
	out, _ = NewTool(svc, cronSvc).Execute(ctx, map[string]any{"action": "goal_plan"}, nil)
	if out != "Error: goal is required" {
		t.Fatalf("blank goal = %q", out)
	}
	if jobs, _ := cronSvc.List(); len(jobs) != 0 {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestWorkflowToolActions(t *testing.T) {
	svc, profiles, cronSvc := setup(t)
	tool := NewTool(svc, cronSvc)
	ctx := context.Background()

	out, _ := tool.Execute(ctx, map[string]any{"action": "relationship_nudge"}, nil)
	if out != workflowcore.NoContactsNudge {
		t.Fatalf("empty nudge = %q", out)
	}
	if err := profiles.AddRelationship("Sam", "college friend"); err != nil {
		t.Fatal(err)
	}
	out, _ = tool.Execute(ctx, map[string]any{"action": "relationship_nudge", "person": "sam"}, nil)
	if !strings.Contains(out, "Sam") {
		t.Fatalf("nudge = %q", out)
	}
	out, _ = tool.Execute(ctx, map[string]any{"action": "daily_brief"}, nil)
	if !strings.HasPrefix(out, "Cognis Daily Brief - Saturday, Feb 21 (UTC)") {
		t.Fatalf("brief = %q", out)
	}
	if out, _ := tool.Execute(ctx, map[string]any{"action": "dance"}, nil); out != "Error: unsupported action: dance" {
		t.Fatalf("unsupported = %q", out)
	}
	if out, _ := NewTool(nil, nil).Execute(ctx, map[string]any{"action": "daily_brief"}, nil); out != "Error: workflow service is not configured" {
		t.Fatalf("unconfigured = %q", out)
	}
}

func TestSlug(t *testing.T) {
	for in, want := range map[string]string{"Launch Beta!": "launch-beta", "  --  ": "goal", "Q3 OKRs": "q3-okrs"} {
		if got := slug(in); got != want {
			t.Errorf("slug(%q) = %q, want %q", in, got, want)
		}
	}
}

package reminders

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/cognis/internal/bus"
	croncore "github.com/haasonsaas/cognis/internal/cron"
)

func TestNotifyImmediate(t *testing.T) {
	b := bus.New()
	tool := NewNotifyTool(b, nil)

	out, err := tool.Execute(context.Background(), map[string]any{"message": "water the plants"}, nil)
	if err != nil || out != "Notification delivered immediately" {
		t.Fatalf("out = %q, err = %v", out, err)
	}
	msg, ok := b.Poll()
	if !ok || msg.Content != "[notify] water the plants" {
		t.Fatalf("bus = %+v, %v", msg, ok)
	}
}

func TestNotifyScheduled(t *testing.T) {
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	svc := croncore.NewService(croncore.NewFileStore(filepath.Join(t.TempDir(), "jobs.json")),
		croncore.WithNow(func() time.Time { return now }))
	tool := NewNotifyTool(bus.New(), svc)
	tool.now = func() time.Time { return now }
	tool.loc = time.UTC

	long := strings.Repeat("a", 50)
	out, err := tool.Execute(context.Background(), map[string]any{"message": long, "inSeconds": float64(30)}, nil)
	if err != nil || !strings.HasPrefix(out, "Notification scheduled in 30s (id: ") {
		t.Fatalf("in = %q, %v", out, err)
	}
	out, _ = tool.Execute(context.Background(), map[string]any{"message": "standup", "label": "daily", "at": "today at 10am"}, nil)
	if !strings.HasPrefix(out, "Notification scheduled at today at 10am (id: ") {
		t.Fatalf("at = %q", out)
	}

	jobs, _ := svc.List()
	if len(jobs) != 2 {
		t.Fatalf("jobs = %+v", jobs)
	}
	if jobs[0].Name != strings.Repeat("a", 39)+"..." || jobs[0].NextRunAtEpochMs != now.Add(30*time.Second).UnixMilli() {
		t.Fatalf("first job = %+v", jobs[0])
	}
	if jobs[1].Name != "daily" || jobs[1].NextRunAtEpochMs != now.Add(2*time.Hour).UnixMilli() {
		t.Fatalf("second job = %+v", jobs[1])
	}
}

func TestNotifyErrors(t *testing.T) {
	tests := []struct {
		name string
		tool *NotifyTool
		args map[string]any
		want string
	}{
		{"blank", NewNotifyTool(bus.New(), nil), map[string]any{}, "Error: message is required"},
		{"no bus", NewNotifyTool(nil, nil), map[string]any{"message": "x"}, "Error: message bus is not configured"},
		{"no cron for delay", NewNotifyTool(bus.New(), nil), map[string]any{"message": "x", "inSeconds": float64(5)}, "Error: cron service is not configured"},
		{"no cron for at", NewNotifyTool(bus.New(), nil), map[string]any{"message": "x", "at": "tomorrow"}, "Error: cron service is not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.tool.Execute(context.Background(), tt.args, nil)
			if err != nil || out != tt.want {
				t.Fatalf("out = %q, err = %v", out, err)
			}
		})
	}
}

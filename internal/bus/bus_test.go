package bus

import (
	"fmt"
	"sync"
	"testing"

	"github.com/haasonsaas/cognis/pkg/models"
)

func TestMessageBusFIFO(t *testing.T) {
	b := New()
	if _, ok := b.Poll(); ok {
		t.Fatal("empty bus returned a message")
	}
	for i := range 3 {
		b.Publish(models.AssistantMessage(fmt.Sprintf("m%d", i)))
	}
	if b.Len() != 3 {
		t.Fatalf("Len = %d", b.Len())
	}
	msg, ok := b.Poll()
	if !ok || msg.Content != "m0" {
		t.Fatalf("Poll = %+v, %v", msg, ok)
	}
	rest := b.Drain()
	if len(rest) != 2 || rest[0].Content != "m1" || rest[1].Content != "m2" {
		t.Fatalf("Drain = %+v", rest)
	}
	if b.Len() != 0 || len(b.Drain()) != 0 {
		t.Fatal("bus not empty after drain")
	}
}

func TestMessageBusConcurrentPublish(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				b.Publish(models.AssistantMessage(fmt.Sprintf("%d-%d", p, i)))
			}
		}()
	}
	wg.Wait()

	last := map[string]int{}
	for _, msg := range b.Drain() {
		var p, i int
		fmt.Sscanf(msg.Content, "%d-%d", &p, &i)
		key := fmt.Sprint(p)
		if prev, ok := last[key]; ok && i != prev+1 {
			t.Fatalf("producer %d out of order: %d after %d", p, i, prev)
		}
		last[key] = i
	}
	if len(last) != 4 {
		t.Fatalf("producers seen = %d", len(last))
	}
}

func TestMapMessage(t *testing.T) {
	tests := []struct {
		content  string
		wantType string
		want     string
	}{
		{"[workflow:daily_brief]  Morning plan", FrameDailyBrief, "Morning plan"},
		{"[workflow:goal_checkin]\nHow is it going?", FrameGoalCheckin, "How is it going?"},
		{"[workflow:workflow_result]done ", FrameWorkflowResult, "done "},
		{"[workflow:unknown] x", FrameNotification, "[workflow:unknown] x"},
		{"plain reminder", FrameNotification, "plain reminder"},
		{" [workflow:daily_brief] indented", FrameNotification, " [workflow:daily_brief] indented"},
		{"", FrameNotification, ""},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			f := MapMessage(models.AssistantMessage(tt.content))
			if f.Type != tt.wantType || f.Content != tt.want || f.ChatID != "" {
				t.Fatalf("MapMessage = %+v, want {%s %q}", f, tt.wantType, tt.want)
			}
		})
	}
	if f := MapMessage(models.AssistantMessage(Tag(MarkerDailyBrief, "x"))).Addressed("c1"); f.ChatID != "c1" || f.Content != "x" {
		t.Fatalf("addressed frame = %+v", f)
	}
}

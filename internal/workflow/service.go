// Package workflow builds the proactive messages the assistant sends on a
// schedule: the daily brief, goal plans and check-ins, and relationship
// nudges.
package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/haasonsaas/cognis/internal/memory"
	"github.com/haasonsaas/cognis/internal/profile"
	"github.com/haasonsaas/cognis/internal/sessions"
)

// ProfileStore is the part of the profile store workflows use.
type ProfileStore interface {
	Get() (profile.UserProfile, error)
	AddGoal(goal string) error
}

// MemoryRecaller finds memories relevant to a query.
type MemoryRecaller interface {
	Recall(query string, max int) ([]memory.Entry, error)
}

// SummarySource returns the rolling session summary.
type SummarySource interface {
	Current() (string, error)
}

// TurnLister lists past conversation turns.
type TurnLister interface {
	List(ctx context.Context) ([]sessions.Turn, error)
}

// Service composes workflow messages from the profile, memory, summary and
// conversation history. Every collaborator is optional.
type Service struct {
	Profile       ProfileStore
	Memory        MemoryRecaller
	Summary       SummarySource
	Conversations TurnLister
	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// DailyBrief builds the executive brief: priorities from goals and task
// memories, deadline risks, the session summary and a relationship nudge.
func (s *Service) DailyBrief(ctx context.Context) (string, error) {
	p, err := s.profile()
	if err != nil {
		return "", err
	}
	tasks, err := s.taggedMemories("task", 6)
	if err != nil {
		return "", err
	}
	summary := ""
	if s.Summary != nil {
		if summary, err = s.Summary.Current(); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cognis Daily Brief - %s\n\n", today(p, s.now()))
	b.WriteString("Top Priorities:\n")
	writeBullets(&b, priorities(p, tasks))
	b.WriteString("\nRisks & Watchouts:\n")
	writeBullets(&b, risks(tasks))

	if strings.TrimSpace(summary) != "" {
		fmt.Fprintf(&b, "\nContext Snapshot:\n- %s\n", truncate(strings.ReplaceAll(summary, "\n", " "), 220))
	}
	nudge, err := s.RelationshipNudge(ctx, "")
	if err != nil {
		return "", err
	}
	if nudge != "" {
		fmt.Fprintf(&b, "\nRelationship Nudge:\n- %s\n", nudge)
	}
	return strings.TrimSpace(b.String()), nil
}

// GoalPlan records goal on the profile and returns a five step execution
// plan over horizonDays (at least one).
func (s *Service) GoalPlan(goal string, horizonDays int) (string, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return "Error: goal is required", nil
	}
	days := max(1, horizonDays)
	if s.Profile != nil {
		if err := s.Profile.AddGoal(goal); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Goal Execution Loop: %s\n", goal)
	fmt.Fprintf(&b, "Horizon: %d day(s)\n\n", days)
	b.WriteString("Plan:\n")
	b.WriteString("1. Define success criteria and deadline.\n")
	b.WriteString("2. Break into 3 concrete tasks with owners and due dates.\n")
	b.WriteString("3. Execute highest-impact task today.\n")
	b.WriteString("4. Run daily check-in: progress, blocker, next action.\n")
	b.WriteString("5. End-of-horizon review: outcome, lessons, follow-up goal.\n")
	return strings.TrimSpace(b.String()), nil
}

// RelationshipNudge suggests checking in with a person from the profile,
// preferring personHint when it names one. It returns "" when the profile
// lists nobody.
func (s *Service) RelationshipNudge(_ context.Context, personHint string) (string, error) {
	p, err := s.profile()
	if err != nil {
		return "", err
	}
	person := pickPerson(p, personHint)
	if person == "" {
		return "", nil
	}
	notes := strings.TrimSpace(p.Relationships[person])

	lastMention := ""
	if s.Memory != nil {
		mentions, err := s.Memory.Recall(person, 3)
		if err != nil {
			return "", err
		}
		if len(mentions) > 0 {
			lastMention = mentions[0].Content
		}
	}

	var b strings.Builder
	b.WriteString("Check in with " + person)
	if notes != "" {
		fmt.Fprintf(&b, " (%s)", truncate(notes, 100))
	}
	if strings.TrimSpace(lastMention) != "" {
		fmt.Fprintf(&b, ". Relevant memory: %s", truncate(lastMention, 120))
	}
	return b.String(), nil
}

// GoalCheckIn asks the three daily check-in questions about goal, adding
// the most recent prompt as context.
func (s *Service) GoalCheckIn(ctx context.Context, goal string) (string, error) {
	title := strings.TrimSpace(goal)
	if title == "" {
		title = "your current goal"
	}
	latest := ""
	if s.Conversations != nil {
		turns, err := s.Conversations.List(ctx)
		if err != nil {
			return "", err
		}
		var newest *sessions.Turn
		for i := range turns {
			if newest == nil || turns[i].CreatedAt.After(newest.CreatedAt) {
				newest = &turns[i]
			}
		}
		if newest != nil {
			latest = newest.Prompt
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Goal Check-in: %s\n", title)
	b.WriteString("Answer in 30 seconds:\n")
	b.WriteString("1. What moved forward since yesterday?\n")
	b.WriteString("2. What is blocked?\n")
	b.WriteString("3. What single action will you complete next?\n")
	if strings.TrimSpace(latest) != "" {
		b.WriteString("Recent context: " + truncate(latest, 120))
	}
	return strings.TrimSpace(b.String()), nil
}

func (s *Service) profile() (profile.UserProfile, error) {
	if s.Profile == nil {
		return profile.UserProfile{}, nil
	}
	return s.Profile.Get()
}

func (s *Service) taggedMemories(tag string, n int) ([]memory.Entry, error) {
	if s.Memory == nil {
		return nil, nil
	}
	entries, err := s.Memory.Recall(tag, n)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(entries, func(e memory.Entry) bool {
		return !slices.ContainsFunc(e.Tags, func(t string) bool { return strings.EqualFold(t, tag) })
	}), nil
}

func today(p profile.UserProfile, now time.Time) string {
	loc := time.UTC
	if tz := strings.TrimSpace(p.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	return fmt.Sprintf("%s (%s)", now.In(loc).Format("Monday, Jan 2"), loc)
}

func priorities(p profile.UserProfile, tasks []memory.Entry) []string {
	var out []string
	add := func(s string) {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	for _, g := range p.Goals[:min(3, len(p.Goals))] {
		add("Advance goal: " + g)
	}
	for _, t := range tasks[:min(3, len(tasks))] {
		add(taskLine(t.Content))
	}
	if len(out) == 0 {
		out = append(out, "Capture top 3 outcomes for today.")
	}
	return out
}

func risks(tasks []memory.Entry) []string {
	var out []string
	for _, t := range tasks {
		lowered := strings.ToLower(t.Content)
		if strings.Contains(lowered, "deadline") || strings.Contains(lowered, "urgent") || strings.Contains(lowered, "tomorrow") {
			out = append(out, "Potential deadline risk: "+truncate(t.Content, 120))
		}
	}
	if len(out) == 0 {
		out = append(out, "No explicit blockers captured. Run a midday check-in.")
	}
	return out
}

func taskLine(content string) string {
	text := strings.TrimSpace(content)
	if len(text) >= len("user task:") && strings.EqualFold(text[:len("user task:")], "user task:") {
		text = strings.TrimSpace(text[len("user task:"):])
	}
	return text
}

func pickPerson(p profile.UserProfile, hint string) string {
	people := p.People()
	if hint = strings.TrimSpace(hint); hint != "" {
		for _, name := range people {
			if strings.EqualFold(name, hint) {
				return name
			}
		}
	}
	if len(people) == 0 {
		return ""
	}
	return people[0]
}

func writeBullets(b *strings.Builder, lines []string) {
	for _, line := range lines {
		b.WriteString("- " + line + "\n")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

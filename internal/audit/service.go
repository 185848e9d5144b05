package audit

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const recoveryWindow = time.Hour

// Service records events and derives the dashboard summary. All methods are
// safe for concurrent use.
type Service struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
}

// NewService returns a service over store. A nil now uses time.Now.
func NewService(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// Record appends an event stamped with the service clock. Only the newest
// MaxEvents are kept.
func (s *Service) Record(eventType string, attrs map[string]any) error {
	_, err := s.RecordEvent(eventType, attrs)
	return err
}

// RecordEvent is Record returning the stored event.
func (s *Service) RecordEvent(eventType string, attrs map[string]any) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.store.Load()
	if err != nil {
		return Event{}, err
	}
	copied := make(map[string]any, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	event := Event{
		ID:         uuid.NewString(),
		Timestamp:  s.now().UTC(),
		Type:       strings.TrimSpace(eventType),
		Attributes: copied,
	}
	events = append(events, event)
	if len(events) > MaxEvents {
		events = events[len(events)-MaxEvents:]
	}
	if err := s.store.Save(events); err != nil {
		return Event{}, fmt.Errorf("save audit log: %w", err)
	}
	return event, nil
}

// Recent returns up to limit events, newest first. limit is at least 1.
func (s *Service) Recent(limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	limit = max(1, limit)
	if len(events) > limit {
		events = events[:limit]
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// Summary computes dashboard metrics over the whole log.
func (s *Service) Summary() (DashboardSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.Load()
	if err != nil {
		return DashboardSummary{}, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	now := s.now()
	since7d := now.Add(-7 * 24 * time.Hour)
	since14d := now.Add(-14 * 24 * time.Hour)

	started := byType(all, EventTaskStarted)
	succeeded := byType(all, EventTaskSucceeded)
	failed := byType(all, EventTaskFailed)
	requests := byType(all, EventPaymentRequest)
	denied := byType(all, EventPaymentDenied)

	var latencies, costs []float64
	weekly := 0
	for _, e := range succeeded {
		if v, ok := number(e.Attributes["duration_ms"]); ok && v >= 0 {
			latencies = append(latencies, v)
		}
		if v, ok := number(e.Attributes["cost_usd"]); ok && v >= 0 {
			costs = append(costs, v)
		}
		if !e.Timestamp.Before(since7d) {
			weekly++
		}
	}
	slices.Sort(latencies)

	avgCost := 0.0
	if len(costs) > 0 {
		total := 0.0
		for _, c := range costs {
			total += c
		}
		avgCost = total / float64(len(costs))
	}

	current := uniqueClients(all, since7d, now)
	previous := uniqueClients(all, since14d, since7d)
	retained := 0
	for client := range previous {
		if _, ok := current[client]; ok {
			retained++
		}
	}

	return DashboardSummary{
		TasksStarted:          len(started),
		TasksSucceeded:        len(succeeded),
		TasksFailed:           len(failed),
		TaskSuccessRate:       round(percentage(len(succeeded), len(started)), 2),
		P50LatencyMs:          round(percentile(latencies, 50), 2),
		P95LatencyMs:          round(percentile(latencies, 95), 2),
		AverageCostPerTaskUSD: round(avgCost, 4),
		FailureRecoveryRate:   round(recoveryRate(failed, succeeded), 2),
		SafetyIncidentRate:    round(percentage(len(denied), len(requests)), 2),
		WeeklyCompletedTasks:  weekly,
		ActiveUsers7d:         len(current),
		Retention7d:           round(percentage(retained, len(previous)), 2),
		AuditEvents:           len(all),
	}, nil
}

func byType(events []Event, eventType string) []Event {
	var out []Event
	for _, e := range events {
		if strings.EqualFold(e.Type, eventType) {
			out = append(out, e)
		}
	}
	return out
}

// uniqueClients collects client ids seen in [from, to].
func uniqueClients(events []Event, from, to time.Time) map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range events {
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		if client := clientID(e); client != "" {
			out[client] = struct{}{}
		}
	}
	return out
}

// recoveryRate is the share of failures followed within an hour by a
// success for the same client.
func recoveryRate(failures, successes []Event) float64 {
	if len(failures) == 0 {
		return 0
	}
	recovered := 0
	for _, f := range failures {
		client := clientID(f)
		if client == "" {
			continue
		}
		deadline := f.Timestamp.Add(recoveryWindow)
		for _, s := range successes {
			if clientID(s) == client && !s.Timestamp.Before(f.Timestamp) && !s.Timestamp.After(deadline) {
				recovered++
				break
			}
		}
	}
	return percentage(recovered, len(failures))
}

func clientID(e Event) string {
	v, ok := e.Attributes["client_id"]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		f, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(n)), 64)
		return f, err == nil
	}
}

// percentile expects sorted input. percentile(0) is the first element.
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	p = min(100, max(0, p))
	if p == 0 {
		return sorted[0]
	}
	idx := int(math.Ceil(float64(p)/100*float64(len(sorted)))) - 1
	idx = min(len(sorted)-1, max(0, idx))
	return sorted[idx]
}

func percentage(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) * 100 / float64(den)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

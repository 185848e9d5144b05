// Package profile stores what the assistant knows about its user: name,
// timezone, preferences, goals and the people they care about.
package profile

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/cognis/internal/fsutil"
)

// UserProfile is the persisted profile document.
type UserProfile struct {
	Name          string            `json:"name"`
	Timezone      string            `json:"timezone"`
	Preferences   map[string]string `json:"preferences"`
	Goals         []string          `json:"goals"`
	Relationships map[string]string `json:"relationships"`
	Notes         string            `json:"notes"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Empty reports whether nothing worth showing the model has been recorded.
func (p UserProfile) Empty() bool {
	return strings.TrimSpace(p.Name) == "" && len(p.Preferences) == 0 && len(p.Goals) == 0 &&
		len(p.Relationships) == 0 && strings.TrimSpace(p.Notes) == ""
}

// People returns relationship names in a stable order.
func (p UserProfile) People() []string {
	names := make([]string, 0, len(p.Relationships))
	for name := range p.Relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fields accepted by SetField.
const (
	FieldName     = "name"
	FieldTimezone = "timezone"
	FieldNotes    = "notes"
)

// Store keeps one profile in a JSON file. Reads of a missing or corrupt
// file return an empty profile.
type Store struct {
	mu     sync.Mutex
	path   string
	now    func() time.Time
	logger *slog.Logger
}

func NewStore(path string) *Store {
	return &Store{
		path:   path,
		now:    time.Now,
		logger: slog.Default().With("component", "profile"),
	}
}

func (s *Store) Path() string { return s.path }

// Get returns the current profile.
func (s *Store) Get() (UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(), nil
}

// SetField sets name, timezone or notes. Unknown fields are ignored.
func (s *Store) SetField(field, value string) error {
	return s.update(func(p *UserProfile) {
		switch field {
		case FieldName:
			p.Name = value
		case FieldTimezone:
			p.Timezone = value
		case FieldNotes:
			p.Notes = value
		}
	})
}

func (s *Store) SetPreference(key, value string) error {
	return s.update(func(p *UserProfile) {
		p.Preferences[key] = value
	})
}

// AddGoal appends goal unless it is already present.
func (s *Store) AddGoal(goal string) error {
	return s.update(func(p *UserProfile) {
		if !slices.Contains(p.Goals, goal) {
			p.Goals = append(p.Goals, goal)
		}
	})
}

func (s *Store) RemoveGoal(goal string) error {
	return s.update(func(p *UserProfile) {
		p.Goals = slices.DeleteFunc(p.Goals, func(g string) bool { return g == goal })
	})
}

func (s *Store) AddRelationship(name, notes string) error {
	return s.update(func(p *UserProfile) {
		p.Relationships[name] = notes
	})
}

// FormatForPrompt renders the "## User Profile" block, or "" when the
// profile is empty.
func (s *Store) FormatForPrompt() (string, error) {
	p, err := s.Get()
	if err != nil {
		return "", err
	}
	return Format(p), nil
}

// Format renders p for the system prompt.
func Format(p UserProfile) string {
	if p.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteString("## User Profile\n\n")
	if strings.TrimSpace(p.Name) != "" {
		fmt.Fprintf(&b, "**Name:** %s\n", p.Name)
	}
	if strings.TrimSpace(p.Timezone) != "" {
		fmt.Fprintf(&b, "**Timezone:** %s\n", p.Timezone)
	}
	if strings.TrimSpace(p.Notes) != "" {
		fmt.Fprintf(&b, "**Notes:** %s\n", p.Notes)
	}
	if len(p.Preferences) > 0 {
		b.WriteString("\n**Preferences:**\n")
		keys := make([]string, 0, len(p.Preferences))
		for k := range p.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, p.Preferences[k])
		}
	}
	if len(p.Goals) > 0 {
		b.WriteString("\n**Goals:**\n")
		for _, g := range p.Goals {
			fmt.Fprintf(&b, "- %s\n", g)
		}
	}
	if len(p.Relationships) > 0 {
		b.WriteString("\n**People:**\n")
		for _, name := range p.People() {
			if notes := strings.TrimSpace(p.Relationships[name]); notes != "" {
				fmt.Fprintf(&b, "- %s: %s\n", name, p.Relationships[name])
			} else {
				fmt.Fprintf(&b, "- %s\n", name)
			}
		}
	}
	return b.String()
}

func (s *Store) update(fn func(*UserProfile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.load()
	fn(&p)
	p.UpdatedAt = s.now().UTC()
	if err := fsutil.WriteJSON(s.path, p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *Store) load() UserProfile {
	var p UserProfile
	if _, err := fsutil.ReadJSON(s.path, &p); err != nil {
		s.logger.Warn("profile unreadable, starting empty", "path", s.path, "error", err)
		p = UserProfile{}
	}
	if p.Preferences == nil {
		p.Preferences = map[string]string{}
	}
	if p.Relationships == nil {
		p.Relationships = map[string]string{}
	}
	if p.Goals == nil {
		p.Goals = []string{}
	}
	return p
}

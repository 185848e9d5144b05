package memory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/cognis/internal/fsutil"
)

// ErrBlankContent is returned when remembering empty text.
var ErrBlankContent = errors.New("content must not be blank")

// Entry is one stored memory. Entries are never mutated after creation.
type Entry struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Embedding []float64 `json:"embedding"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FileStore keeps memories in one JSON file. Every operation loads,
// mutates and saves under the store lock.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path is the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Remember stores content unless an entry with the same trimmed,
// case-folded content exists, in which case that entry is returned.
func (s *FileStore) Remember(content, source string, tags []string) (Entry, error) {
	normalized := strings.TrimSpace(content)
	if normalized == "" {
		return Entry{}, ErrBlankContent
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	key := strings.ToLower(normalized)
	for _, existing := range entries {
		if strings.ToLower(strings.TrimSpace(existing.Content)) == key {
			return existing, nil
		}
	}
	if source == "" {
		source = "agent"
	}
	cleanTags := normalizeTags(tags)
	now := s.now().UTC()
	entry := Entry{
		ID:        uuid.NewString(),
		Content:   normalized,
		Tags:      cleanTags,
		Embedding: Embed(normalized, cleanTags),
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entries = append(entries, entry)
	if err := s.save(entries); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Forget removes the entry with id and reports whether it existed.
func (s *FileStore) Forget(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.load()
	kept := entries[:0]
	removed := false
	for _, e := range entries {
		if e.ID == id {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return false, nil
	}
	return true, s.save(kept)
}

// Recall returns up to max(1,max) entries. A blank query returns the newest
// entries; otherwise entries with a positive score, best first.
func (s *FileStore) Recall(query string, max int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recall(s.load(), query, max), nil
}

func recall(entries []Entry, query string, max int) []Entry {
	if len(entries) == 0 {
		return nil
	}
	limit := max
	if limit < 1 {
		limit = 1
	}
	if strings.TrimSpace(query) == "" {
		newest := newestFirst(entries)
		if len(newest) > limit {
			newest = newest[:limit]
		}
		return newest
	}

	terms := Tokenize(query)
	queryVec := Embed(query, nil)
	type scored struct {
		entry Entry
		score float64
	}
	var ranked []scored
	for _, e := range entries {
		if sc := score(e, terms, queryVec); sc > 0 {
			ranked = append(ranked, scored{entry: e, score: sc})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Entry, len(ranked))
	for i, r := range ranked {
		out[i] = r.entry
	}
	return out
}

// List returns every entry, newest first.
func (s *FileStore) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.load()), nil
}

// Count returns the number of stored entries.
func (s *FileStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.load()), nil
}

// FormatContext renders the newest entries as "- content [tags]" lines.
func (s *FileStore) FormatContext(max int) (string, error) {
	entries, err := s.Recall("", max)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := "- " + e.Content
		if len(e.Tags) > 0 {
			line += " [" + strings.Join(e.Tags, ", ") + "]"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

// load treats a missing or unreadable file as empty.
func (s *FileStore) load() []Entry {
	var entries []Entry
	if _, err := fsutil.ReadJSON(s.path, &entries); err != nil {
		return nil
	}
	return entries
}

func (s *FileStore) save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	if err := fsutil.WriteJSON(s.path, entries); err != nil {
		return fmt.Errorf("save memories: %w", err)
	}
	return nil
}

func newestFirst(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

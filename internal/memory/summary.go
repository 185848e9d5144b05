package memory

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/haasonsaas/cognis/internal/fsutil"
)

const (
	// DefaultSummaryChars is the default summary window.
	DefaultSummaryChars = 2000
	minSummaryChars     = 64
	snippetChars        = 180
)

// SummaryManager keeps a bounded plain-text log of recent turns.
type SummaryManager struct {
	mu       sync.Mutex
	path     string
	maxChars int
}

// NewSummaryManager returns a manager writing to path. A non-positive
// maxChars selects DefaultSummaryChars; anything else is raised to at least
// 64 characters.
func NewSummaryManager(path string, maxChars int) *SummaryManager {
	if maxChars <= 0 {
		maxChars = DefaultSummaryChars
	}
	if maxChars < minSummaryChars {
		maxChars = minSummaryChars
	}
	return &SummaryManager{path: path, maxChars: maxChars}
}

// Current returns the trimmed summary, or "" when none was written yet.
func (m *SummaryManager) Current() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current()
}

func (m *SummaryManager) current() (string, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read summary: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// RecordTurn appends one "User: … | Assistant: …" line and keeps the last
// maxChars characters.
func (m *SummaryManager) RecordTurn(prompt, response string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.current()
	if err != nil {
		return err
	}
	snippet := "User: " + shrink(prompt) + " | Assistant: " + shrink(response)
	merged := snippet
	if current != "" {
		merged = current + "\n" + snippet
	}
	if runes := []rune(merged); len(runes) > m.maxChars {
		merged = string(runes[len(runes)-m.maxChars:])
	}
	return fsutil.WriteFileAtomic(m.path, []byte(merged+"\n"), 0o644)
}

func shrink(s string) string {
	normalized := collapseSpace(s)
	runes := []rune(normalized)
	if len(runes) <= snippetChars {
		return normalized
	}
	return string(runes[:snippetChars-3]) + "..."
}

// Package sessions persists the conversation log: one Turn per completed
// agent run, appended durably and listed oldest first.
package sessions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/cognis/internal/fsutil"
	"github.com/haasonsaas/cognis/pkg/models"
)

// Turn is one user prompt, the final reply, and the transcript that produced it.
type Turn struct {
	ID         string               `json:"id"`
	CreatedAt  time.Time            `json:"createdAt"`
	Prompt     string               `json:"prompt"`
	Response   string               `json:"response"`
	Transcript []models.ChatMessage `json:"transcript"`
}

// Store is the conversation persistence contract.
type Store interface {
	Append(ctx context.Context, turn Turn) error
	List(ctx context.Context) ([]Turn, error)
	Close() error
}

// Backend names accepted by COGNIS_CONVERSATION_STORE.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendFile   = "file"
)

const (
	EnvBackend    = "COGNIS_CONVERSATION_STORE"
	EnvSQLitePath = "COGNIS_CONVERSATION_SQLITE_PATH"
)

// prepare fills the id and timestamp of a turn that lacks them.
func prepare(turn Turn) Turn {
	if strings.TrimSpace(turn.ID) == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	turn.CreatedAt = turn.CreatedAt.UTC()
	if turn.Transcript == nil {
		turn.Transcript = []models.ChatMessage{}
	}
	return turn
}

// BackendFromEnv returns the selected backend name. Unset means sqlite;
// any unrecognised value falls back to the file backend.
func BackendFromEnv(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	switch strings.ToLower(strings.TrimSpace(getenv(EnvBackend))) {
	case "", BackendSQLite:
		return BackendSQLite
	case BackendBolt, "bbolt":
		return BackendBolt
	default:
		return BackendFile
	}
}

// DefaultPath is where a backend keeps its data inside the workspace.
func DefaultPath(workspace, backend string) string {
	dir := filepath.Join(workspace, ".cognis")
	switch backend {
	case BackendSQLite:
		return filepath.Join(dir, "conversations.db")
	case BackendBolt:
		return filepath.Join(dir, "conversations.bolt")
	default:
		return filepath.Join(dir, "conversations.json")
	}
}

// OpenFromEnv opens the conversation store for workspace using the
// process environment.
func OpenFromEnv(workspace string) (Store, string, error) {
	return Open(workspace, os.Getenv)
}

// Open selects and opens a backend. It also returns the backend name so
// callers can report it.
func Open(workspace string, getenv func(string) string) (Store, string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	backend := BackendFromEnv(getenv)
	path := DefaultPath(workspace, backend)
	if backend == BackendSQLite {
		if override := strings.TrimSpace(getenv(EnvSQLitePath)); override != "" {
			path = fsutil.ExpandHome(override)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, backend, fmt.Errorf("create conversation dir: %w", err)
	}

	switch backend {
	case BackendSQLite:
		s, err := NewSQLiteStore(path)
		return s, backend, err
	case BackendBolt:
		s, err := NewBoltStore(path)
		return s, backend, err
	default:
		return NewFileStore(path), backend, nil
	}
}

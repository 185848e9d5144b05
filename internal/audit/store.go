package audit

import (
	"log/slog"
	"sync"

	"github.com/haasonsaas/cognis/internal/fsutil"
)

// Store loads and saves the whole event log.
type Store interface {
	Load() ([]Event, error)
	Save(events []Event) error
}

// FileStore keeps events as a JSON array. A file that cannot be parsed is
// treated as an empty log so a corrupt audit file never blocks the gateway.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default().With("component", "audit")
	}
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []Event
	if _, err := fsutil.ReadJSON(s.path, &events); err != nil {
		s.logger.Warn("audit log unreadable, starting empty", "path", s.path, "error", err)
		return nil, nil
	}
	return events, nil
}

func (s *FileStore) Save(events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if events == nil {
		events = []Event{}
	}
	return fsutil.WriteJSON(s.path, events)
}

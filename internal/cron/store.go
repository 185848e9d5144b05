package cron

import (
	"fmt"
	"sync"

	"github.com/haasonsaas/cognis/internal/fsutil"
)

// Store loads and saves the full job list.
type Store interface {
	Load() ([]Job, error)
	Save(jobs []Job) error
}

// FileStore keeps jobs as a JSON array, rewritten atomically on save.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []Job
	if _, err := fsutil.ReadJSON(s.path, &jobs); err != nil {
		return nil, fmt.Errorf("load cron jobs: %w", err)
	}
	return jobs, nil
}

func (s *FileStore) Save(jobs []Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if jobs == nil {
		jobs = []Job{}
	}
	if err := fsutil.WriteJSON(s.path, jobs); err != nil {
		return fmt.Errorf("save cron jobs: %w", err)
	}
	return nil
}

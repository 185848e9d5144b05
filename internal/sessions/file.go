package sessions

import (
	"context"
	"sync"

	"github.com/haasonsaas/cognis/internal/fsutil"
)

// FileStore keeps the whole conversation log in one JSON file and rewrites
// it on every append. Fine for small histories.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Append(_ context.Context, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, err := s.load()
	if err != nil {
		return err
	}
	turns = append(turns, prepare(turn))
	return fsutil.WriteJSON(s.path, turns)
}

func (s *FileStore) List(_ context.Context) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) load() ([]Turn, error) {
	var turns []Turn
	if _, err := fsutil.ReadJSON(s.path, &turns); err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

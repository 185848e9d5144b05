package payments

import (
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/cognis/internal/fsutil"
)

// Transaction is one spend request and its current state.
type Transaction struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Merchant    string    `json:"merchant"`
	Category    string    `json:"category"`
	AmountCents int64     `json:"amountCents"`
	Description string    `json:"description"`
	ExternalRef string    `json:"externalRef"`
	Status      Status    `json:"status"`
	Reason      string    `json:"reason"`
}

// State is everything the ledger persists.
type State struct {
	Policy       Policy        `json:"policy"`
	Transactions []Transaction `json:"transactions"`
}

// EmptyState has the default policy and no transactions.
func EmptyState() State {
	return State{Policy: DefaultPolicy(), Transactions: []Transaction{}}
}

// Store loads and saves the whole ledger state.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// FileStore keeps the ledger in one JSON document, replaced atomically on
// every save. A missing or unreadable file yields EmptyState.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default().With("component", "payments")
	}
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := EmptyState()
	found, err := fsutil.ReadJSON(s.path, &state)
	if err != nil {
		s.logger.Warn("payment ledger unreadable, using defaults", "path", s.path, "error", err)
		return EmptyState(), nil
	}
	if !found {
		return EmptyState(), nil
	}
	state.Policy = state.Policy.Normalized()
	if state.Transactions == nil {
		state.Transactions = []Transaction{}
	}
	return state, nil
}

func (s *FileStore) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.Transactions == nil {
		state.Transactions = []Transaction{}
	}
	return fsutil.WriteJSON(s.path, state)
}

package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const (
	createTurnsTable = `CREATE TABLE IF NOT EXISTS conversation_turns (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	prompt TEXT NOT NULL,
	response TEXT NOT NULL,
	transcript_json TEXT NOT NULL
)`
	createTurnsIndex = `CREATE INDEX IF NOT EXISTS idx_conversation_turns_created_at
	ON conversation_turns(created_at DESC)`
	insertTurn = `INSERT INTO conversation_turns (id, created_at, prompt, response, transcript_json)
	VALUES (?, ?, ?, ?, ?)`
	selectTurns = `SELECT id, created_at, prompt, response, transcript_json
	FROM conversation_turns ORDER BY created_at ASC`
)

// timeLayout is fixed width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps WAL checkpoints simple for a single-process store.
	db.SetMaxOpenConns(1)

	store := NewSQLiteStoreWithDB(db)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStoreWithDB wraps an existing connection without migrating it.
func NewSQLiteStoreWithDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// DB exposes the underlying connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		createTurnsTable,
		createTurnsIndex,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate conversation store: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, turn Turn) error {
	turn = prepare(turn)
	transcript, err := json.Marshal(turn.Transcript)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, insertTurn,
		turn.ID,
		turn.CreatedAt.Format(timeLayout),
		turn.Prompt,
		turn.Response,
		string(transcript),
	); err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, selectTurns)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var (
			turn       Turn
			createdAt  string
			transcript string
		)
		if err := rows.Scan(&turn.ID, &createdAt, &turn.Prompt, &turn.Response, &transcript); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("turn %s: bad created_at %q: %w", turn.ID, createdAt, err)
		}
		if err := json.Unmarshal([]byte(transcript), &turn.Transcript); err != nil {
			return nil, fmt.Errorf("turn %s: bad transcript: %w", turn.ID, err)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

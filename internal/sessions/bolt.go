package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketTurns = []byte("conversation_turns")

// BoltStore implements Store on a bbolt file. Keys are the fixed-width
// creation time followed by the turn id, so a forward cursor walk is
// oldest first.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTurns)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func turnKey(turn Turn) []byte {
	return []byte(turn.CreatedAt.Format(timeLayout) + "/" + turn.ID)
}

func (s *BoltStore) Append(_ context.Context, turn Turn) error {
	turn = prepare(turn)
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTurns).Put(turnKey(turn), data)
	})
}

func (s *BoltStore) List(_ context.Context) ([]Turn, error) {
	turns := []Turn{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTurns).ForEach(func(k, v []byte) error {
			var turn Turn
			if err := json.Unmarshal(v, &turn); err != nil {
				return fmt.Errorf("turn %s: %w", k, err)
			}
			turns = append(turns, turn)
			return nil
		})
	})
	return turns, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

package localstate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mealboard/internal/chat"
)

const chatSnapshotKey = "mealboard.chat.v1"

// Store is a namespaced JSON key-value store over the local database.
// It backs hydration: state saved here survives restarts and is loaded
// before the in-memory stores are handed to a frontend.
type Store struct {
	db *sql.DB
}

// NewStore creates a local state store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Set stores a JSON-encoded value under key, replacing any previous value.
func (s *Store) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}

	query := `INSERT INTO kv (key, value, updated_at)
	          VALUES (?, ?, ?)
	          ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.Exec(query, key, string(data), time.Now()); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// Get decodes the value stored under key into out. It reports false when
// the key has never been written.
func (s *Store) Get(key string, out interface{}) (bool, error) {
	var data string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Delete removes a key; deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// SaveChatSnapshot persists the chat state. Implements chat.Persister.
func (s *Store) SaveChatSnapshot(snap chat.Snapshot) error {
	return s.Set(chatSnapshotKey, snap)
}

// LoadChatSnapshot returns the persisted chat state, or nil when no
// snapshot has been saved yet. Implements chat.Persister.
func (s *Store) LoadChatSnapshot() (*chat.Snapshot, error) {
	var snap chat.Snapshot
	found, err := s.Get(chatSnapshotKey, &snap)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &snap, nil
}

package training

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/uam-labs/arbiter/pkg/contracts"

	_ "modernc.org/sqlite"
)

// Store is key-value persistence for training configuration records,
// keyed by rule-set snapshot hash. Old snapshots keep their records for
// audit; staleness is decided by the manager, not the store.
type Store interface {
	// Get returns the record for the snapshot or ErrConfigNotFound.
	Get(ctx context.Context, snapshotHash string) ([]byte, error)
	// Put persists the record for the snapshot, replacing any previous one.
	Put(ctx context.Context, snapshotHash string, record []byte) error
}

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, snapshotHash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[snapshotHash]
	if !ok {
		return nil, contracts.ErrConfigNotFound
	}
	out := make([]byte, len(rec))
	copy(out, rec)
	return out, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, snapshotHash string, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(record))
	copy(cp, record)
	s.records[snapshotHash] = cp
	return nil
}

// SQLiteStore persists records in a SQLite key-value table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database handle and creates the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	query := `
	CREATE TABLE IF NOT EXISTS training_configs (
		snapshot_hash TEXT PRIMARY KEY,
		record JSON NOT NULL,
		saved_at DATETIME NOT NULL
	);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return nil, fmt.Errorf("training: create schema: %w", err)
	}
	return s, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, snapshotHash string) ([]byte, error) {
	var record []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM training_configs WHERE snapshot_hash = ?`, snapshotHash,
	).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, contracts.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("training: load record: %w", err)
	}
	return record, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, snapshotHash string, record []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO training_configs (snapshot_hash, record, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(snapshot_hash) DO UPDATE SET
			record = excluded.record,
			saved_at = excluded.saved_at`,
		snapshotHash, record, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("training: save record: %w", err)
	}
	return nil
}

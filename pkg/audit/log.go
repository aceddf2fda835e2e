// Package audit records every sync, evaluation, side effect, and training
// completion in an append-only, hash-chained log. The chain makes the
// decision trail tamper-evident: each entry hashes its predecessor, so any
// rewrite breaks verification from that point on.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uam-labs/arbiter/pkg/canonical"
)

var (
	ErrEntryNotFound = errors.New("audit: entry not found")
	ErrChainBroken   = errors.New("audit: hash chain is broken")
)

// EventType categorizes audit entries.
type EventType string

const (
	EventRuleSync   EventType = "rule_sync"
	EventEvaluation EventType = "evaluation"
	EventGrant      EventType = "grant"
	EventTicket     EventType = "ticket"
	EventTraining   EventType = "training"
)

// Entry is a single immutable record in the decision log.
type Entry struct {
	EntryID      string          `json:"entry_id"`
	Sequence     uint64          `json:"sequence"`
	Timestamp    time.Time       `json:"timestamp"`
	Event        EventType       `json:"event"`
	Subject      string          `json:"subject"` // e.g. "user:alice", "snapshot:sha256:…"
	Payload      json.RawMessage `json:"payload"`
	PayloadHash  string          `json:"payload_hash"`
	PreviousHash string          `json:"previous_hash"`
	EntryHash    string          `json:"entry_hash"`
}

// Log is an append-only decision log with hash chaining.
type Log struct {
	mu        sync.RWMutex
	entries   []*Entry
	byID      map[string]*Entry
	sequence  uint64
	chainHead string
	clock     func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{
		byID:      make(map[string]*Entry),
		chainHead: "genesis",
		clock:     time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// Append serializes the payload and adds a chained entry.
func (l *Log) Append(event EventType, subject string, payload any) (*Entry, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("audit: serialize payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequence++
	entry := &Entry{
		EntryID:      uuid.New().String(),
		Sequence:     l.sequence,
		Timestamp:    l.clock().UTC(),
		Event:        event,
		Subject:      subject,
		Payload:      payloadBytes,
		PayloadHash:  canonical.HashBytes(payloadBytes),
		PreviousHash: l.chainHead,
	}
	hash, err := entryHash(entry)
	if err != nil {
		l.sequence--
		return nil, err
	}
	entry.EntryHash = hash
	l.chainHead = hash

	l.entries = append(l.entries, entry)
	l.byID[entry.EntryID] = entry
	return entry, nil
}

func entryHash(e *Entry) (string, error) {
	hashable := struct {
		Sequence     uint64    `json:"sequence"`
		Timestamp    time.Time `json:"timestamp"`
		Event        EventType `json:"event"`
		Subject      string    `json:"subject"`
		PayloadHash  string    `json:"payload_hash"`
		PreviousHash string    `json:"previous_hash"`
	}{e.Sequence, e.Timestamp, e.Event, e.Subject, e.PayloadHash, e.PreviousHash}

	return canonical.Hash(hashable)
}

// Get retrieves an entry by ID.
func (l *Log) Get(entryID string) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.byID[entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return e, nil
}

// ChainHead returns the hash of the latest entry.
func (l *Log) ChainHead() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chainHead
}

// Size returns the number of entries.
func (l *Log) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Filter selects entries for queries and exports.
type Filter struct {
	Event      EventType
	Subject    string
	StartTime  *time.Time
	EndTime    *time.Time
	MaxResults int
}

func (f Filter) matches(e *Entry) bool {
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.Subject != "" && e.Subject != f.Subject {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

// Query returns entries matching the filter, in append order.
func (l *Log) Query(f Filter) []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Entry
	for _, e := range l.entries {
		if f.matches(e) {
			out = append(out, e)
			if f.MaxResults > 0 && len(out) >= f.MaxResults {
				break
			}
		}
	}
	return out
}

// VerifyChain recomputes every hash and checks linkage.
func (l *Log) VerifyChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return VerifyEntries(l.entries)
}

// VerifyEntries checks hash linkage over an exported entry sequence, so an
// evidence pack can be verified without reconstructing the log. The
// sequence must start at the chain genesis.
func VerifyEntries(entries []*Entry) error {
	expectedPrev := "genesis"
	for i, e := range entries {
		if e.PreviousHash != expectedPrev {
			return fmt.Errorf("%w: entry %d previous_hash %s, expected %s",
				ErrChainBroken, i, e.PreviousHash, expectedPrev)
		}
		if e.PayloadHash != canonical.HashBytes(e.Payload) {
			return fmt.Errorf("%w: entry %d payload hash mismatch", ErrChainBroken, i)
		}
		computed, err := entryHash(e)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrChainBroken, i, err)
		}
		if computed != e.EntryHash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, i)
		}
		expectedPrev = e.EntryHash
	}
	return nil
}

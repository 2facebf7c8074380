package storage

import (
	"sync"

	"trailguard/core"
)

// MessageStore is the append-only ledger of alert delivery attempts. The
// dispatch engine folds over it for history and stats instead of keeping
// separate counters. Implementations must preserve append order and be safe
// for concurrent use. Key shapes (message id, event id, recipient id) are
// shared by all backends so invariants transfer to durable storage.
type MessageStore interface {
	// Append records one delivery attempt.
	Append(msg core.AlertMessage) error
	// List returns messages most-recent-first, optionally filtered by
	// recipient id ("" = all) and capped at limit (<= 0 = no cap).
	List(recipientID string, limit int) ([]core.AlertMessage, error)
}

// MemoryMessageStore is the in-process MessageStore.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages []core.AlertMessage
}

// NewMemoryMessageStore creates an empty in-memory ledger.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{}
}

// Append records one delivery attempt.
func (s *MemoryMessageStore) Append(msg core.AlertMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	return nil
}

// List returns messages most-recent-first.
func (s *MemoryMessageStore) List(recipientID string, limit int) ([]core.AlertMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.AlertMessage, 0, len(s.messages))
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if recipientID != "" && m.RecipientID != recipientID {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

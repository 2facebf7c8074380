package storage

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"trailguard/core"
)

// AckStore retains acknowledgment records keyed by event id. It is
// capacity-bounded rather than time-bounded, giving acks a longer retention
// window than the dedup entries they back. Eviction is LRU on insert.
type AckStore struct {
	cache *lru.Cache[string, core.Acknowledgment]
}

// NewAckStore creates an acknowledgment store with the given capacity.
func NewAckStore(capacity int) (*AckStore, error) {
	cache, err := lru.New[string, core.Acknowledgment](capacity)
	if err != nil {
		return nil, err
	}
	return &AckStore{cache: cache}, nil
}

// Put stores the acknowledgment for its event id.
func (s *AckStore) Put(ack core.Acknowledgment) {
	s.cache.Add(ack.EventID, ack)
}

// Get returns the acknowledgment for an event id.
func (s *AckStore) Get(eventID string) (core.Acknowledgment, error) {
	ack, ok := s.cache.Get(eventID)
	if !ok {
		return core.Acknowledgment{}, ErrAckNotFound
	}
	return ack, nil
}

// Len returns the number of retained acknowledgments.
func (s *AckStore) Len() int {
	return s.cache.Len()
}

package storage

import (
	"sync"

	"trailguard/core"
)

// DetectionStore keeps the bounded recent-history buffer of accepted
// detections, most-recent-first. Detections are immutable after insert and
// are only ever removed by capacity eviction.
type DetectionStore struct {
	mu       sync.RWMutex
	capacity int
	recent   []core.Detection
	byEvent  map[string]int // event id -> index into recent
}

// NewDetectionStore creates a detection history buffer with the given
// capacity.
func NewDetectionStore(capacity int) *DetectionStore {
	return &DetectionStore{
		capacity: capacity,
		recent:   make([]core.Detection, 0, capacity),
		byEvent:  make(map[string]int),
	}
}

// Insert prepends a detection, evicting the oldest past capacity.
func (s *DetectionStore) Insert(d core.Detection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append([]core.Detection{d}, s.recent...)
	if len(s.recent) > s.capacity {
		evicted := s.recent[len(s.recent)-1]
		s.recent = s.recent[:len(s.recent)-1]
		delete(s.byEvent, evicted.EventID)
	}
	s.reindexLocked()
}

// Get returns the detection for an event id.
func (s *DetectionStore) Get(eventID string) (*core.Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byEvent[eventID]
	if !ok {
		return nil, ErrDetectionNotFound
	}
	d := s.recent[idx]
	return &d, nil
}

// Recent returns up to limit detections, most-recent-first. A limit <= 0
// returns the full buffer.
func (s *DetectionStore) Recent(limit int) []core.Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.recent)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]core.Detection, n)
	copy(out, s.recent[:n])
	return out
}

// Len returns the number of retained detections.
func (s *DetectionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recent)
}

func (s *DetectionStore) reindexLocked() {
	for i := range s.recent {
		s.byEvent[s.recent[i].EventID] = i
	}
}

package storage

import (
	"context"
	"sync"
	"time"
)

// DedupWindow is the short-lived record of recently seen event ids that
// makes intake idempotent. An id present in the window maps to the ack id
// issued on first acceptance, so retried uploads get the original receipt
// back. Implementations must be safe for concurrent use.
type DedupWindow interface {
	// Check reports whether the event id was seen inside the window and, if
	// so, returns the ack id issued for it.
	Check(ctx context.Context, eventID string) (ackID string, seen bool, err error)
	// Remember records the event id with its ack id for the window's TTL,
	// unless the id is already present. It returns the ack id that ended up
	// stored, so a caller that loses a race to a concurrent submission gets
	// the winner's receipt in one atomic step.
	Remember(ctx context.Context, eventID, ackID string) (storedAckID string, existed bool, err error)
}

type dedupEntry struct {
	ackID  string
	seenAt time.Time
}

// MemoryDedupWindow is the in-process DedupWindow. Expired entries are
// purged lazily on each Check rather than by a background timer, so the map
// never grows unbounded under steady load.
type MemoryDedupWindow struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]dedupEntry
	now     func() time.Time
}

// NewMemoryDedupWindow creates an in-memory dedup window with the given TTL.
func NewMemoryDedupWindow(ttl time.Duration) *MemoryDedupWindow {
	return &MemoryDedupWindow{
		ttl:     ttl,
		entries: make(map[string]dedupEntry),
		now:     time.Now,
	}
}

// Check looks up the event id, purging expired entries first. The purge only
// removes already-expired entries, so it is harmless even when the request
// that triggered it is later rejected.
func (w *MemoryDedupWindow) Check(_ context.Context, eventID string) (string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.purgeLocked()

	entry, ok := w.entries[eventID]
	if !ok {
		return "", false, nil
	}
	return entry.ackID, true, nil
}

// Remember records the event id with its ack id unless a live entry already
// holds one; the check and the write share the lock.
func (w *MemoryDedupWindow) Remember(_ context.Context, eventID, ackID string) (string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.purgeLocked()

	if entry, ok := w.entries[eventID]; ok {
		return entry.ackID, true, nil
	}
	w.entries[eventID] = dedupEntry{ackID: ackID, seenAt: w.now()}
	return ackID, false, nil
}

// Len returns the number of live entries, purging expired ones first.
func (w *MemoryDedupWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.purgeLocked()
	return len(w.entries)
}

func (w *MemoryDedupWindow) purgeLocked() {
	cutoff := w.now().Add(-w.ttl)
	for id, entry := range w.entries {
		if entry.seenAt.Before(cutoff) {
			delete(w.entries, id)
		}
	}
}

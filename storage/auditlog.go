package storage

import (
	"sync"
	"time"
)

// AuditEntry is one intake action recorded for operator review.
type AuditEntry struct {
	At       time.Time `json:"at"`
	EventID  string    `json:"event_id"`
	DeviceID string    `json:"device_id"`
	Action   string    `json:"action"`
	Detail   string    `json:"detail,omitempty"`
}

// AuditLog is a bounded in-memory trail of intake actions. Oldest entries
// rotate out past capacity.
type AuditLog struct {
	mu       sync.RWMutex
	capacity int
	entries  []AuditEntry
}

// NewAuditLog creates an audit log with the given capacity.
func NewAuditLog(capacity int) *AuditLog {
	return &AuditLog{capacity: capacity}
}

// Append records an entry, rotating out the oldest past capacity.
func (l *AuditLog) Append(e AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
}

// Recent returns up to limit entries, most-recent-first.
func (l *AuditLog) Recent(limit int) []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]AuditEntry, 0, n)
	for i := len(l.entries) - 1; i >= len(l.entries)-n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

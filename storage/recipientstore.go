package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"trailguard/core"
)

// RecipientStore is the in-memory recipient ledger: pure CRUD plus derived
// views. No validation happens here; the dispatch engine validates before
// writing, so the ledger serves both manual and automatic flows.
type RecipientStore struct {
	mu         sync.RWMutex
	recipients map[string]*core.Recipient
}

// NewRecipientStore creates an empty recipient ledger.
func NewRecipientStore() *RecipientStore {
	return &RecipientStore{recipients: make(map[string]*core.Recipient)}
}

// Add stores a new recipient, assigning an opaque id and stamping the
// creation time once.
func (s *RecipientStore) Add(r core.Recipient) *core.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = uuid.New().String()
	r.CreatedAt = time.Now()
	cp := r
	s.recipients[r.ID] = &cp
	out := cp
	return &out
}

// Update applies a partial update with merge semantics.
func (s *RecipientStore) Update(id string, u core.RecipientUpdate) (*core.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipients[id]
	if !ok {
		return nil, ErrRecipientNotFound
	}
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.Phone != nil {
		r.Phone = *u.Phone
	}
	if u.Email != nil {
		r.Email = *u.Email
	}
	if u.Channels != nil {
		r.Channels = append([]core.Channel(nil), (*u.Channels)...)
	}
	if u.Active != nil {
		r.Active = *u.Active
	}
	if u.AutoAlert != nil {
		r.AutoAlert = *u.AutoAlert
	}
	cp := *r
	return &cp, nil
}

// Delete removes a recipient.
func (s *RecipientStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recipients[id]; !ok {
		return ErrRecipientNotFound
	}
	delete(s.recipients, id)
	return nil
}

// Get returns a copy of the recipient.
func (s *RecipientStore) Get(id string) (*core.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipients[id]
	if !ok {
		return nil, ErrRecipientNotFound
	}
	cp := *r
	return &cp, nil
}

// List returns all recipients ordered by creation time.
func (s *RecipientStore) List() []core.Recipient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(func(*core.Recipient) bool { return true })
}

// ListActive returns recipients with the active flag set.
func (s *RecipientStore) ListActive() []core.Recipient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(func(r *core.Recipient) bool { return r.Active })
}

// ListAutoAlert returns recipients that are both active and flagged for
// automatic alerts.
func (s *RecipientStore) ListAutoAlert() []core.Recipient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(func(r *core.Recipient) bool { return r.Active && r.AutoAlert })
}

func (s *RecipientStore) filterLocked(keep func(*core.Recipient) bool) []core.Recipient {
	out := make([]core.Recipient, 0, len(s.recipients))
	for _, r := range s.recipients {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

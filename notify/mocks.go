package notify

import (
	"context"
	"fmt"
	"sync"

	"trailguard/core"
)

// SentRecord captures one delivery made through a MockSender.
type SentRecord struct {
	RecipientID string
	Text        string
}

// MockSender is a test double for a channel sender. It records every send
// and can be configured to fail.
type MockSender struct {
	mu       sync.Mutex
	channel  core.Channel
	sent     []SentRecord
	failWith error
	failNext int
	counter  int
}

// NewMockSender creates a mock sender for the given channel.
func NewMockSender(channel core.Channel) *MockSender {
	return &MockSender{channel: channel}
}

func (m *MockSender) Channel() core.Channel { return m.channel }

func (m *MockSender) Validate(r *core.Recipient) error {
	switch m.channel {
	case core.ChannelEmail:
		if r.Email == "" {
			return fmt.Errorf("%w: recipient %s has no email address", core.ErrMissingContactField, r.ID)
		}
	default:
		if r.Phone == "" {
			return fmt.Errorf("%w: recipient %s has no phone for %s", core.ErrMissingContactField, r.ID, m.channel)
		}
	}
	return nil
}

func (m *MockSender) Send(ctx context.Context, r *core.Recipient, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		err := m.failWith
		if m.failNext > 0 {
			m.failNext--
			if m.failNext == 0 {
				m.failWith = nil
			}
		}
		return "", err
	}

	m.counter++
	m.sent = append(m.sent, SentRecord{RecipientID: r.ID, Text: text})
	return fmt.Sprintf("mock-%s-%d", m.channel, m.counter), nil
}

// FailWith makes every subsequent send fail with err until cleared.
func (m *MockSender) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
	m.failNext = 0
}

// FailNext makes only the next n sends fail with err.
func (m *MockSender) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
	m.failNext = n
}

// Clear removes any configured failure.
func (m *MockSender) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = nil
	m.failNext = 0
}

// Sent returns a copy of the delivery records.
func (m *MockSender) Sent() []SentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentRecord, len(m.sent))
	copy(out, m.sent)
	return out
}

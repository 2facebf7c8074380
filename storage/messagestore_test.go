package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trailguard/core"
)

func seedMessages(t *testing.T, s MessageStore) {
	t.Helper()
	for i := 1; i <= 5; i++ {
		recipient := "r1"
		if i%2 == 0 {
			recipient = "r2"
		}
		err := s.Append(core.AlertMessage{
			ID:          fmt.Sprintf("m%d", i),
			EventID:     "e1",
			RecipientID: recipient,
			Channel:     core.ChannelSMS,
			Status:      core.MessageStatusSent,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		})
		require.NoError(t, err)
	}
}

func TestMemoryMessageStore_ListMostRecentFirst(t *testing.T) {
	s := NewMemoryMessageStore()
	seedMessages(t, s)

	all, err := s.List("", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "m5", all[0].ID)
	assert.Equal(t, "m1", all[4].ID)

	capped, err := s.List("", 2)
	require.NoError(t, err)
	require.Len(t, capped, 2)
	assert.Equal(t, "m5", capped[0].ID)

	r1, err := s.List("r1", 0)
	require.NoError(t, err)
	require.Len(t, r1, 3)
	for _, m := range r1 {
		assert.Equal(t, "r1", m.RecipientID)
	}
}

func TestSQLiteMessageStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLiteMessageStore(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer s.Close()

	seedMessages(t, s)

	all, err := s.List("", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "m5", all[0].ID)

	r2, err := s.List("r2", 1)
	require.NoError(t, err)
	require.Len(t, r2, 1)
	assert.Equal(t, "m4", r2[0].ID)
	assert.Equal(t, core.ChannelSMS, r2[0].Channel)
	assert.Equal(t, core.MessageStatusSent, r2[0].Status)
}

func TestSQLiteMessageStore_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLiteMessageStore(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer s.Close()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := s.Append(core.AlertMessage{
					ID:          fmt.Sprintf("w%d-m%d", w, i),
					EventID:     "e1",
					RecipientID: "r1",
					Channel:     core.ChannelSMS,
					Status:      core.MessageStatusSent,
					CreatedAt:   time.Now(),
					UpdatedAt:   time.Now(),
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	all, err := s.List("", 0)
	require.NoError(t, err)
	assert.Len(t, all, writers*perWriter)

	// Every append must land on its own seq value or most-recent-first
	// ordering is undefined.
	var distinct, total int
	err = s.db.QueryRow(`SELECT COUNT(DISTINCT seq), COUNT(*) FROM alert_messages`).Scan(&distinct, &total)
	require.NoError(t, err)
	assert.Equal(t, total, distinct)
}

func TestAckStore_CapacityBounded(t *testing.T) {
	s, err := NewAckStore(2)
	require.NoError(t, err)

	s.Put(core.Acknowledgment{EventID: "e1", AckID: "a1"})
	s.Put(core.Acknowledgment{EventID: "e2", AckID: "a2"})
	s.Put(core.Acknowledgment{EventID: "e3", AckID: "a3"})

	assert.Equal(t, 2, s.Len())
	_, err = s.Get("e1")
	assert.ErrorIs(t, err, ErrAckNotFound)

	ack, err := s.Get("e3")
	require.NoError(t, err)
	assert.Equal(t, "a3", ack.AckID)
}

func TestAuditLog_RotatesPastCapacity(t *testing.T) {
	l := NewAuditLog(3)
	for i := 1; i <= 5; i++ {
		l.Append(AuditEntry{EventID: fmt.Sprintf("e%d", i), Action: "accepted"})
	}

	recent := l.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "e5", recent[0].EventID)
	assert.Equal(t, "e3", recent[2].EventID)
}

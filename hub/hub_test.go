package hub

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trailguard/core"
)

func newTestHub(buffer int) *Hub {
	return NewHub(buffer, zap.NewNop().Sugar())
}

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	h := newTestHub(4)

	ch1, cancel1 := h.Subscribe()
	ch2, cancel2 := h.Subscribe()
	defer cancel1()
	defer cancel2()

	assert.Equal(t, 2, h.SubscriberCount())

	h.Publish(core.Device{ID: "cam-01", Status: core.DeviceStatusOnline})

	for _, ch := range []<-chan core.Device{ch1, ch2} {
		select {
		case d := <-ch:
			assert.Equal(t, "cam-01", d.ID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive update")
		}
	}
}

func TestHub_SlowSubscriberDropsOldest(t *testing.T) {
	h := newTestHub(2)

	ch, cancel := h.Subscribe()
	defer cancel()

	for i := 1; i <= 4; i++ {
		h.Publish(core.Device{ID: fmt.Sprintf("cam-%02d", i)})
	}

	// Buffer holds two slots; the two oldest updates were shed.
	d := <-ch
	assert.Equal(t, "cam-03", d.ID)
	d = <-ch
	assert.Equal(t, "cam-04", d.ID)
	select {
	case d := <-ch:
		t.Fatalf("unexpected extra update %q", d.ID)
	default:
	}
}

func TestHub_CancelRemovesSubscriber(t *testing.T) {
	h := newTestHub(4)

	ch, cancel := h.Subscribe()
	cancel()
	cancel() // idempotent

	assert.Equal(t, 0, h.SubscriberCount())
	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic on the closed channel.
	h.Publish(core.Device{ID: "cam-01"})
}

func TestHub_TelemetryRingIsBounded(t *testing.T) {
	h := newTestHub(4)
	base := time.Now().UTC()

	for i := 0; i < telemetryCap+20; i++ {
		h.PublishAt(core.Device{
			ID:    "cam-01",
			Stats: core.DeviceStats{CPUPercent: float64(i)},
		}, base.Add(time.Duration(i)*time.Second))
	}

	samples := h.Telemetry("cam-01", 0)
	require.Len(t, samples, telemetryCap)
	// Oldest first, with the first 20 samples rotated out.
	assert.Equal(t, float64(20), samples[0].CPUPercent)
	assert.Equal(t, float64(telemetryCap+19), samples[len(samples)-1].CPUPercent)

	tail := h.Telemetry("cam-01", 5)
	require.Len(t, tail, 5)
	assert.Equal(t, float64(telemetryCap+15), tail[0].CPUPercent)

	assert.Empty(t, h.Telemetry("unknown", 0))
}

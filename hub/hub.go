// Package hub fans out device state updates to stream subscribers and keeps
// a short telemetry history per device for dashboard charts.
package hub

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"trailguard/core"
)

const (
	// defaultSubscriberBuffer is the per-subscriber channel depth. A slow
	// consumer loses its oldest pending update, never blocks the publisher.
	defaultSubscriberBuffer = 64

	// telemetryCap bounds the per-device sample ring.
	telemetryCap = 100
)

type subscriber struct {
	ch chan core.Device
}

// Hub broadcasts device updates to registered subscribers and records
// telemetry samples. All methods are safe for concurrent use.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	telemetry   map[string][]core.TelemetrySample
	bufferSize  int
	logger      *zap.SugaredLogger
}

// NewHub creates a hub with the given per-subscriber buffer size. A size of
// zero falls back to the default.
func NewHub(bufferSize int, logger *zap.SugaredLogger) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultSubscriberBuffer
	}
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		telemetry:   make(map[string][]core.TelemetrySample),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers a new update listener. The returned cancel function
// removes the subscription and closes the channel; it is safe to call more
// than once.
func (h *Hub) Subscribe() (<-chan core.Device, func()) {
	s := &subscriber{ch: make(chan core.Device, h.bufferSize)}

	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	total := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debugw("Stream subscriber registered", "total_subscribers", total)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, s)
			h.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, cancel
}

// Publish delivers a device snapshot to every subscriber and appends a
// telemetry sample to the device's ring. Full subscriber buffers shed their
// oldest update so the publisher never blocks on a slow consumer.
func (h *Hub) Publish(d core.Device) {
	h.PublishAt(d, time.Now().UTC())
}

// PublishAt is Publish with an explicit sample timestamp.
func (h *Hub) PublishAt(d core.Device, at time.Time) {
	h.mu.Lock()
	ring := append(h.telemetry[d.ID], core.SampleOf(&d, at))
	if len(ring) > telemetryCap {
		ring = ring[len(ring)-telemetryCap:]
	}
	h.telemetry[d.ID] = ring
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subscribers {
		select {
		case s.ch <- d:
		default:
			// Drop the oldest pending update to make room.
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- d:
			default:
			}
			h.logger.Debugw("Stream subscriber lagging, dropped oldest update",
				"device_id", d.ID)
		}
	}
}

// Telemetry returns up to limit samples for a device, oldest first. A limit
// of zero returns the whole ring.
func (h *Hub) Telemetry(deviceID string, limit int) []core.TelemetrySample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ring := h.telemetry[deviceID]
	if limit > 0 && limit < len(ring) {
		ring = ring[len(ring)-limit:]
	}
	out := make([]core.TelemetrySample, len(ring))
	copy(out, ring)
	return out
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

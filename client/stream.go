package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"trailguard/core"
)

// ConnState is the connection state exposed by the reconnector and the
// health manager.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateError        ConnState = "error"
)

// StreamOptions tunes the stream reconnector.
type StreamOptions struct {
	// BaseURL is the server root.
	BaseURL string
	// RetryDelay is the fixed pause before each reconnect attempt.
	RetryDelay time.Duration
	// OnState, when set, is called on every state transition.
	OnState func(ConnState)
	// OnDevices, when set, is called with the full device list after every
	// snapshot or upsert.
	OnDevices func([]core.Device)
}

// streamFrame is the SSE envelope for device_update payloads.
type streamFrame struct {
	Devices []core.Device `json:"devices"`
}

// Streamer consumes the server's device event stream and keeps a local
// device cache current. Transport failures schedule a reconnect after a
// fixed delay, forever, until Stop.
type Streamer struct {
	opts   StreamOptions
	http   *http.Client
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	state   ConnState
	devices []core.Device

	cancel  context.CancelFunc
	done    chan struct{}
	startMu sync.Mutex
	running bool
}

// NewStreamer creates a stream reconnector. A zero retry delay falls back
// to 3 seconds.
func NewStreamer(opts StreamOptions, logger *zap.SugaredLogger) *Streamer {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 3 * time.Second
	}
	return &Streamer{
		opts:   opts,
		http:   &http.Client{}, // no client timeout: the stream stays open
		logger: logger,
		state:  StateDisconnected,
	}
}

// Start launches the connect loop. It returns immediately.
func (s *Streamer) Start(ctx context.Context) {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Stop tears the stream down and waits for the loop to exit, clearing any
// pending reconnect timer. Stopping a streamer that is not running is a
// no-op.
func (s *Streamer) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	<-s.done
	s.running = false
}

// State returns the current connection state.
func (s *Streamer) State() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Devices returns a copy of the local device cache.
func (s *Streamer) Devices() []core.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Device, len(s.devices))
	copy(out, s.devices)
	return out
}

func (s *Streamer) run(ctx context.Context) {
	defer close(s.done)
	defer s.setState(StateDisconnected)

	for {
		s.setState(StateConnecting)
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		s.setState(StateError)
		s.logger.Warnw("Device stream lost, reconnecting",
			"retry_delay", s.opts.RetryDelay, "error", err)
		if err := sleepCtx(ctx, s.opts.RetryDelay); err != nil {
			return
		}
	}
}

// consume holds one stream connection open and applies its events until the
// transport fails or ctx is cancelled.
func (s *Streamer) consume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.BaseURL+"/api/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	s.setState(StateConnected)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			s.handleEvent(event, []byte(strings.TrimPrefix(line, "data: ")))
		case line == "":
			event = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed by server")
}

func (s *Streamer) handleEvent(event string, data []byte) {
	switch event {
	case "devices":
		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Warnw("Bad devices frame on stream", "error", err)
			return
		}
		s.replaceDevices(frame.Devices)
	case "device_update":
		var device core.Device
		if err := json.Unmarshal(data, &device); err != nil {
			s.logger.Warnw("Bad device_update frame on stream", "error", err)
			return
		}
		s.upsertDevice(device)
	case "connected", "heartbeat":
		// Keepalive frames carry no device state.
	}
}

// replaceDevices swaps the whole cache for a fresh snapshot.
func (s *Streamer) replaceDevices(devices []core.Device) {
	s.mu.Lock()
	s.devices = devices
	snapshot := make([]core.Device, len(devices))
	copy(snapshot, devices)
	s.mu.Unlock()

	if s.opts.OnDevices != nil {
		s.opts.OnDevices(snapshot)
	}
}

// upsertDevice replaces the cached entry with a matching id, or appends.
func (s *Streamer) upsertDevice(device core.Device) {
	s.mu.Lock()
	replaced := false
	for i := range s.devices {
		if s.devices[i].ID == device.ID {
			s.devices[i] = device
			replaced = true
			break
		}
	}
	if !replaced {
		s.devices = append(s.devices, device)
	}
	snapshot := make([]core.Device, len(s.devices))
	copy(snapshot, s.devices)
	s.mu.Unlock()

	if s.opts.OnDevices != nil {
		s.opts.OnDevices(snapshot)
	}
}

func (s *Streamer) setState(state ConnState) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()

	if changed && s.opts.OnState != nil {
		s.opts.OnState(state)
	}
}

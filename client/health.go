package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthOptions tunes the polling health manager.
type HealthOptions struct {
	// BaseURL is the server root; the probe hits /health.
	BaseURL string
	// Interval is the probe cadence while healthy.
	Interval time.Duration
	// ProbeTimeout bounds each probe.
	ProbeTimeout time.Duration
	// BackoffBase is the first reconnect delay after a failed probe.
	BackoffBase time.Duration
	// BackoffMax caps the reconnect delay.
	BackoffMax time.Duration
	// OnState, when set, is called on every state transition.
	OnState func(ConnState)
}

// HealthManager polls the server health endpoint. While healthy it probes on
// a fixed interval; after a failure it retries with exponential backoff,
// resetting to the base delay on the next success. A probe never panics or
// propagates past the loop; it either succeeds or counts as a failure.
type HealthManager struct {
	opts   HealthOptions
	http   *http.Client
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	state    ConnState
	failures int

	cancel  context.CancelFunc
	done    chan struct{}
	kick    chan struct{}
	startMu sync.Mutex
	running bool
}

// NewHealthManager creates a health manager. Zero option fields fall back to
// defaults: 5s interval, 5s probe timeout, 1s base backoff capped at 30s.
func NewHealthManager(opts HealthOptions, logger *zap.SugaredLogger) *HealthManager {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	return &HealthManager{
		opts:   opts,
		http:   &http.Client{Timeout: opts.ProbeTimeout},
		logger: logger,
		state:  StateDisconnected,
		kick:   make(chan struct{}, 1),
	}
}

// Start launches the probe loop. It returns immediately.
func (m *HealthManager) Start(ctx context.Context) {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.done = make(chan struct{})
	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

// Stop cancels the loop and waits for it to exit; any pending probe timer is
// stopped before Stop returns.
func (m *HealthManager) Stop() {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if !m.running {
		return
	}
	m.cancel()
	<-m.done
	m.running = false
}

// ForceReconnect skips any pending backoff and probes immediately.
func (m *HealthManager) ForceReconnect() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// State returns the current connection state.
func (m *HealthManager) State() ConnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Failures returns the current consecutive probe failure count.
func (m *HealthManager) Failures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failures
}

// NextDelay returns the delay the manager would wait before the next probe
// given its consecutive failure count: min(base·2^(failures-1), max) after a
// failure, the fixed interval while healthy.
func (m *HealthManager) NextDelay() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failures == 0 {
		return m.opts.Interval
	}
	return backoffDelay(m.opts.BackoffBase, m.opts.BackoffMax, m.failures-1)
}

func (m *HealthManager) run(ctx context.Context) {
	defer close(m.done)
	defer m.setState(StateDisconnected)

	timer := time.NewTimer(0) // probe immediately on start
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		m.probeOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		timer.Reset(m.NextDelay())
	}
}

// probeOnce runs a single health probe and updates state and failure count.
func (m *HealthManager) probeOnce(ctx context.Context) {
	if m.State() != StateConnected {
		m.setState(StateConnecting)
	}

	if err := m.probe(ctx); err != nil {
		m.mu.Lock()
		m.failures++
		failures := m.failures
		m.mu.Unlock()
		m.setState(StateError)
		m.logger.Warnw("Health probe failed",
			"consecutive_failures", failures, "next_delay", m.NextDelay(), "error", err)
		return
	}

	m.mu.Lock()
	recovered := m.failures > 0
	m.failures = 0
	m.mu.Unlock()
	m.setState(StateConnected)
	if recovered {
		m.logger.Infow("Server reachable again")
	}
}

func (m *HealthManager) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.opts.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (m *HealthManager) setState(state ConnState) {
	m.mu.Lock()
	changed := m.state != state
	m.state = state
	m.mu.Unlock()

	if changed && m.opts.OnState != nil {
		m.opts.OnState(state)
	}
}

// Package connectivity tracks whether the remote backend is reachable.
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dukerupert/huddle/internal/metrics"
)

// Config holds probe configuration.
type Config struct {
	// ProbeURL is fetched to test reachability. Empty disables probing; the
	// flag then only changes through Set.
	ProbeURL string
	Interval time.Duration
	Timeout  time.Duration
	// Initial is the flag value before the first probe completes.
	Initial bool
}

// Monitor holds the process-wide connected flag.
type Monitor struct {
	cfg        Config
	connected  atomic.Bool
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu        sync.Mutex
	listeners map[int]func(bool)
	nextID    int
	changedAt time.Time

	stopCh  chan struct{}
	stopped chan struct{}
}

func NewMonitor(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Monitor {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	mon := &Monitor{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    m,
		logger:     logger,
		listeners:  make(map[int]func(bool)),
		changedAt:  time.Now(),
		stopCh:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	mon.connected.Store(cfg.Initial)
	m.SetConnected(cfg.Initial)
	return mon
}

// Connected reports the current flag value.
func (m *Monitor) Connected() bool {
	return m.connected.Load()
}

// Set updates the flag. Listeners run synchronously, only on a change.
func (m *Monitor) Set(up bool) {
	if m.connected.Swap(up) == up {
		return
	}
	m.metrics.SetConnected(up)
	m.logger.Info("connectivity changed", "connected", up)

	m.mu.Lock()
	m.changedAt = time.Now()
	fns := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(up)
	}
}

// ChangedAt returns when the flag last flipped.
func (m *Monitor) ChangedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changedAt
}

// OnChange registers fn for flag changes and returns a func that removes it.
func (m *Monitor) OnChange(fn func(connected bool)) (remove func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Probe performs one reachability check and updates the flag. Any response
// below 500 counts as reachable.
func (m *Monitor) Probe(ctx context.Context) error {
	err := m.probe(ctx)
	m.Set(err == nil)
	return err
}

func (m *Monitor) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.ProbeURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe backend: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe backend: status %d", resp.StatusCode)
	}
	return nil
}

// Start probes once and then keeps probing in the background: every
// Interval while connected, with exponential spacing up to Interval while
// not.
func (m *Monitor) Start(ctx context.Context) {
	if m.cfg.ProbeURL == "" {
		close(m.stopped)
		return
	}

	m.Probe(ctx)

	go func() {
		defer close(m.stopped)

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = m.cfg.Interval / 10
		bo.MaxInterval = m.cfg.Interval

		for {
			wait := m.cfg.Interval
			if !m.Connected() {
				wait = bo.NextBackOff()
			}
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-m.stopCh:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}

			if err := m.Probe(ctx); err != nil {
				m.logger.Debug("backend unreachable", "error", err)
				continue
			}
			bo.Reset()
		}
	}()
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	<-m.stopped
}

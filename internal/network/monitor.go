// Package network tracks connectivity and notifies watchers when it changes.
package network

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/scheduler"
	"go.uber.org/zap"
)

// Status is the connectivity state.
type Status int

const (
	Disconnected Status = iota
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Listener receives connectivity changes.
type Listener func(Status)

// Handle identifies a registered listener.
type Handle int

// Watcher is the connectivity capability the SDK depends on.
type Watcher interface {
	Watch(l Listener) Handle
	Unwatch(h Handle)
}

// Monitor fans connectivity changes out to listeners. Platforms report
// changes with Set; StartProbe derives them from periodic HTTP probes.
type Monitor struct {
	logger *zap.Logger

	mu        sync.Mutex
	status    Status
	listeners map[Handle]Listener
	next      Handle
	probe     *scheduler.Ticker
}

// NewMonitor creates a monitor that assumes the device is online.
func NewMonitor(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		logger:    logger,
		status:    Connected,
		listeners: make(map[Handle]Listener),
	}
}

// Watch registers l and returns its handle.
func (m *Monitor) Watch(l Listener) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.listeners[m.next] = l
	return m.next
}

// Unwatch removes a listener. Unknown handles are ignored.
func (m *Monitor) Unwatch(h Handle) {
	m.mu.Lock()
	delete(m.listeners, h)
	m.mu.Unlock()
}

// Status returns the last known state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Set records a new state. Listeners are called outside the lock, and only
// when the state changes.
func (m *Monitor) Set(status Status) {
	m.mu.Lock()
	if m.status == status {
		m.mu.Unlock()
		return
	}
	m.status = status
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	m.logger.Info("network status changed", zap.Stringer("status", status))
	for _, l := range listeners {
		l(status)
	}
}

// StartProbe checks target every interval and updates the state from the
// outcome. Any HTTP response counts as connected.
func (m *Monitor) StartProbe(target string, interval time.Duration, client *http.Client) {
	if client == nil {
		client = &http.Client{Timeout: interval}
	}
	m.mu.Lock()
	if m.probe == nil {
		m.probe = scheduler.NewTicker("network-probe", func(ctx context.Context) {
			m.Set(probe(ctx, client, target))
		}, m.logger)
	}
	probeTicker := m.probe
	m.mu.Unlock()

	probeTicker.Start(interval)
}

// Stop ends probing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	probeTicker := m.probe
	m.mu.Unlock()
	if probeTicker != nil {
		probeTicker.Stop()
	}
}

func probe(ctx context.Context, client *http.Client, target string) Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return Disconnected
	}
	resp, err := client.Do(req)
	if err != nil {
		return Disconnected
	}
	resp.Body.Close()
	return Connected
}

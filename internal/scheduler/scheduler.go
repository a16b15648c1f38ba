// Package scheduler runs a task on a fixed interval in its own goroutine.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is the periodic work. It receives a context cancelled on Stop.
type Task func(ctx context.Context)

// Ticker runs a Task every interval until stopped. The interval can be
// changed while running, including from inside the task.
type Ticker struct {
	name   string
	task   Task
	logger *zap.Logger

	mu       sync.Mutex
	running  bool
	interval time.Duration
	cancel   context.CancelFunc
	reset    chan time.Duration
	wg       sync.WaitGroup
}

// NewTicker creates a stopped ticker.
func NewTicker(name string, task Task, logger *zap.Logger) *Ticker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ticker{name: name, task: task, logger: logger}
}

// Start begins the loop. A running ticker keeps its goroutine and switches
// to the new interval.
func (t *Ticker) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = interval
	if t.running {
		select {
		case <-t.reset:
		default:
		}
		t.reset <- interval
		t.logger.Debug("ticker rescheduled", zap.String("name", t.name), zap.Duration("interval", interval))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.running = true
	t.cancel = cancel
	t.reset = make(chan time.Duration, 1)
	t.wg.Add(1)
	go t.loop(ctx, interval, t.reset)

	t.logger.Debug("ticker started", zap.String("name", t.name), zap.Duration("interval", interval))
}

// Reschedule applies interval only when it differs from the current one. It
// reports whether anything changed.
func (t *Ticker) Reschedule(interval time.Duration) bool {
	t.mu.Lock()
	same := t.running && t.interval == interval
	t.mu.Unlock()
	if same || interval <= 0 {
		return false
	}
	t.Start(interval)
	return true
}

// Stop ends the loop and waits for a running task to return. It must not be
// called from the task itself.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.cancel()
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Debug("ticker stopped", zap.String("name", t.name))
}

// Running reports whether the loop is active.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Interval returns the current interval, zero when stopped.
func (t *Ticker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	return t.interval
}

func (t *Ticker) loop(ctx context.Context, interval time.Duration, reset <-chan time.Duration) {
	defer t.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-reset:
			ticker.Reset(d)
		case <-ticker.C:
			t.task(ctx)
		}
	}
}

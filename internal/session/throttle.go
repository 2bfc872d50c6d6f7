package session

import (
	"sync"
	"time"
)

// DefaultThrottle bounds how often a growing message is republished.
const DefaultThrottle = 100 * time.Millisecond

// throttler coalesces publish requests into at most one call per interval.
// flush publishes immediately and cancels any pending timer.
type throttler struct {
	interval time.Duration
	publish  func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newThrottler(interval time.Duration, publish func()) *throttler {
	if interval <= 0 {
		interval = DefaultThrottle
	}
	return &throttler{interval: interval, publish: publish}
}

func (t *throttler) schedule() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(t.interval, t.fire)
}

func (t *throttler) fire() {
	t.mu.Lock()
	if t.stopped || t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()
	t.publish()
}

func (t *throttler) flush() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	stopped := t.stopped
	t.mu.Unlock()
	if !stopped {
		t.publish()
	}
}

func (t *throttler) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

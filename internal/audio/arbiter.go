// Package audio owns the process-wide playback slot. At most one Handle is
// active at a time; starting new playback always tears down the old one
// first.
package audio

import (
	"log/slog"
	"sync"
)

// Source records who started the active playback.
type Source string

const (
	SourceManual Source = "manual"
	SourceAuto   Source = "auto"
)

// Handle is a playing audio resource.
type Handle interface {
	// Stop halts playback and returns once resources are released. It is
	// safe to call more than once.
	Stop()
	// Done is closed when playback ends for any reason.
	Done() <-chan struct{}
	// Err reports why playback ended, nil for natural completion or Stop.
	Err() error
}

// Listener observes arbiter transitions. Listeners run synchronously and in
// transition order; they must not call back into the Arbiter.
type Listener func(playing bool, source Source)

// Arbiter enforces the single playback slot.
type Arbiter struct {
	logger *slog.Logger

	mu     sync.Mutex
	active Handle
	source Source
	gen    uint64

	// notifyMu is taken before mu is released so listeners see
	// transitions in order.
	notifyMu  sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64
}

func NewArbiter(logger *slog.Logger) *Arbiter {
	return &Arbiter{
		logger:    logger.With(slog.String("component", "audio-arbiter")),
		listeners: make(map[uint64]Listener),
	}
}

// Acquire stops any active playback and registers h. The previous handle is
// fully stopped before Acquire returns.
func (a *Arbiter) Acquire(h Handle, source Source) {
	a.mu.Lock()
	if prev := a.active; prev != nil && prev != h {
		a.logger.Debug("preempting playback", slog.String("previous_source", string(a.source)), slog.String("source", string(source)))
		prev.Stop()
	}
	a.active = h
	a.source = source
	a.gen++
	gen := a.gen
	a.notifyMu.Lock()
	a.mu.Unlock()
	a.dispatch(true, source)
	a.notifyMu.Unlock()

	go a.watch(h, gen)
}

// Release stops h if it is the active handle. Releasing anything else is a
// no-op.
func (a *Arbiter) Release(h Handle) {
	a.mu.Lock()
	if a.active == nil || a.active != h {
		a.mu.Unlock()
		return
	}
	a.clearLocked()
}

// StopAll stops the active playback, if any.
func (a *Arbiter) StopAll() {
	a.mu.Lock()
	if a.active == nil {
		a.mu.Unlock()
		return
	}
	a.clearLocked()
}

// clearLocked is called with mu held and releases it.
func (a *Arbiter) clearLocked() {
	h, source := a.active, a.source
	h.Stop()
	a.active = nil
	a.gen++
	a.notifyMu.Lock()
	a.mu.Unlock()
	a.dispatch(false, source)
	a.notifyMu.Unlock()
}

// Playing reports whether anything is playing and who started it.
func (a *Arbiter) Playing() (bool, Source) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active != nil, a.source
}

// Active reports whether h is the handle currently holding the slot.
func (a *Arbiter) Active(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return h != nil && a.active == h
}

// Subscribe registers l and returns a function removing it.
func (a *Arbiter) Subscribe(l Listener) func() {
	a.notifyMu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = l
	a.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.notifyMu.Lock()
			delete(a.listeners, id)
			a.notifyMu.Unlock()
		})
	}
}

func (a *Arbiter) dispatch(playing bool, source Source) {
	for _, l := range a.listeners {
		l(playing, source)
	}
}

func (a *Arbiter) watch(h Handle, gen uint64) {
	<-h.Done()
	if err := h.Err(); err != nil {
		a.logger.Warn("playback failed", slogError(err))
	}
	a.mu.Lock()
	if a.gen != gen || a.active != h {
		a.mu.Unlock()
		return
	}
	a.clearLocked()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

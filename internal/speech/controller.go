// Package speech reads assistant replies aloud. A Controller fetches audio
// for one request at a time and hands it to the shared audio.Arbiter; newer
// requests supersede older ones even if the older response arrives later.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alecci-media/boardroom/internal/audio"
	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/tts"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StateError   State = "error"
)

// Options tunes a Controller.
type Options struct {
	// Source tags playback started by this controller.
	Source        audio.Source
	MaxTextLength int
	// OnChange observes state transitions. It is called with the
	// controller's lock held and must not call back into the controller.
	// Arbiter listeners run under the same lock when this controller
	// acquires the slot.
	OnChange func(State, error)
	Logger   *slog.Logger
}

// Controller plays persona-voiced speech for arbitrary text.
type Controller struct {
	synth    tts.Synthesizer
	player   audio.Player
	arbiter  *audio.Arbiter
	registry *persona.Registry
	source   audio.Source
	maxText  int
	onChange func(State, error)
	logger   *slog.Logger

	mu     sync.Mutex
	token  uint64
	cancel context.CancelFunc
	handle audio.Handle
	state  State
	err    error

	wg sync.WaitGroup
}

func NewController(synth tts.Synthesizer, player audio.Player, arbiter *audio.Arbiter, registry *persona.Registry, opts Options) *Controller {
	source := opts.Source
	if source == "" {
		source = audio.SourceManual
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		synth:    synth,
		player:   player,
		arbiter:  arbiter,
		registry: registry,
		source:   source,
		maxText:  opts.MaxTextLength,
		onChange: opts.OnChange,
		logger:   logger.With(slog.String("component", "speech"), slog.String("source", string(source))),
		state:    StateIdle,
	}
}

// Speaking reports whether this controller's playback holds the arbiter's
// slot.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	return h != nil && c.arbiter.Active(h)
}

// State returns the current state and, in StateError, its cause.
func (c *Controller) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.err
}

// Play speaks text in the voice of persona id. It returns immediately; the
// returned channel is closed once the request settles: playback ended, it
// failed, or it was superseded. Invalid input moves the controller to
// StateError without touching the arbiter.
func (c *Controller) Play(ctx context.Context, text string, id persona.ID) <-chan struct{} {
	done := make(chan struct{})

	p, err := c.registry.Get(id)
	var clean string
	if err == nil {
		clean, err = tts.Prepare(text, c.maxText)
	}

	c.mu.Lock()
	c.token++
	token := c.token
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.handle = nil
	if err != nil {
		c.setLocked(StateError, err)
		c.mu.Unlock()
		c.logger.Debug("rejected speech request", slog.String("persona", string(id)), slogError(err))
		close(done)
		return done
	}
	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setLocked(StateLoading, nil)
	c.mu.Unlock()

	c.arbiter.StopAll()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		defer cancel()
		c.run(reqCtx, token, p, clean)
	}()
	return done
}

func (c *Controller) run(ctx context.Context, token uint64, p persona.Persona, text string) {
	resp, err := c.synth.Synthesize(ctx, tts.Request{Text: text, PersonaID: p.ID, Voice: p.Voice})
	if !c.current(token) {
		if err == nil {
			resp.Body.Close()
		}
		c.logger.Debug("discarding superseded speech response", slog.String("persona", string(p.ID)))
		return
	}
	if err != nil {
		c.settle(ctx, token, err)
		return
	}

	h, err := c.player.Play(ctx, resp.Body, resp.ContentType)
	if err != nil {
		c.settle(ctx, token, err)
		return
	}

	// The token check and Acquire happen under one lock so a Stop or newer
	// Play either prevents the acquire or sees the handle and releases it.
	c.mu.Lock()
	if c.token != token {
		c.mu.Unlock()
		h.Stop()
		return
	}
	c.handle = h
	c.arbiter.Acquire(h, c.source)
	c.setLocked(StatePlaying, nil)
	c.mu.Unlock()

	<-h.Done()
	c.settle(ctx, token, h.Err())
}

// settle records the outcome of request token if it is still current.
func (c *Controller) settle(ctx context.Context, token uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != token {
		return
	}
	c.handle = nil
	c.cancel = nil
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		c.logger.Warn("speech playback failed", slogError(err))
		c.setLocked(StateError, err)
		return
	}
	c.setLocked(StateIdle, nil)
}

// Stop abandons the current request: a pending fetch is aborted and its
// response discarded, and this controller's playback is stopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.token++
	cancel := c.cancel
	h := c.handle
	c.cancel = nil
	c.handle = nil
	c.setLocked(StateIdle, nil)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if h != nil {
		c.arbiter.Release(h)
	}
}

// Close stops and waits for in-flight requests to return.
func (c *Controller) Close() {
	c.Stop()
	c.wg.Wait()
}

func (c *Controller) current(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token == token
}

func (c *Controller) setLocked(s State, err error) {
	if c.state == s && err == nil && c.err == nil {
		return
	}
	c.state = s
	c.err = err
	if c.onChange != nil {
		c.onChange(s, err)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

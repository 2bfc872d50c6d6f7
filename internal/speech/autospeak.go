package speech

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/session"
)

// AutoSpeaker reads each finished assistant reply aloud once. Feed it every
// session snapshot; it speaks when a stream goes from streaming to ready.
type AutoSpeaker struct {
	ctx    context.Context
	ctrl   *Controller
	logger *slog.Logger

	mu           sync.Mutex
	enabled      bool
	wasStreaming bool
	lastSpoken   string
}

// NewAutoSpeaker speaks through ctrl, which should use audio.SourceAuto.
func NewAutoSpeaker(ctx context.Context, ctrl *Controller, enabled bool, logger *slog.Logger) *AutoSpeaker {
	return &AutoSpeaker{
		ctx:     ctx,
		ctrl:    ctrl,
		enabled: enabled,
		logger:  logger.With(slog.String("component", "auto-speak")),
	}
}

func (a *AutoSpeaker) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// SetEnabled toggles auto-speak. Turning it off stops any reply being read.
func (a *AutoSpeaker) SetEnabled(on bool) {
	a.mu.Lock()
	a.enabled = on
	a.mu.Unlock()
	if !on {
		a.ctrl.Stop()
	}
}

// Observe inspects a snapshot and starts speech when a reply just finished.
func (a *AutoSpeaker) Observe(snap session.Snapshot) {
	a.mu.Lock()
	switch snap.Status {
	case session.StatusStreaming:
		a.wasStreaming = true
		a.mu.Unlock()
		return
	case session.StatusReady:
	default:
		if snap.Status != session.StatusSubmitted {
			a.wasStreaming = false
		}
		a.mu.Unlock()
		return
	}
	if !a.wasStreaming {
		a.mu.Unlock()
		return
	}
	a.wasStreaming = false
	if !a.enabled || len(snap.Messages) == 0 {
		a.mu.Unlock()
		return
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Role != conversation.RoleAssistant || last.ID == a.lastSpoken {
		a.mu.Unlock()
		return
	}
	text := last.Text()
	if text == "" {
		a.mu.Unlock()
		return
	}
	a.lastSpoken = last.ID
	a.mu.Unlock()

	id := snap.PersonaFor(last)
	a.logger.Debug("speaking reply", slog.String("message_id", last.ID), slog.String("persona", string(id)))
	a.ctrl.Play(a.ctx, text, id)
}

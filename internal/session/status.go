// Package session drives one conversation from the client side: it sends
// messages, folds streamed events into the transcript, and tracks which
// persona each message belongs to.
package session

import (
	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
)

// Status is the state of the current request/response cycle.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSubmitted Status = "submitted"
	StatusStreaming Status = "streaming"
	StatusReady     Status = "ready"
	StatusError     Status = "error"
)

// Busy reports whether a stream is in flight.
func (s Status) Busy() bool {
	return s == StatusSubmitted || s == StatusStreaming
}

// Snapshot is an immutable view of an orchestrator published to observers.
type Snapshot struct {
	ConversationID string
	Status         Status
	Messages       []conversation.Message
	Selected       persona.ID
	Default        persona.ID
	Usage          *protocol.Usage
	Err            error
}

// LastAssistant returns the most recent assistant message, if any.
func (s Snapshot) LastAssistant() (conversation.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == conversation.RoleAssistant {
			return s.Messages[i], true
		}
	}
	return conversation.Message{}, false
}

// PersonaFor resolves the display persona of m within this snapshot.
func (s Snapshot) PersonaFor(m conversation.Message) persona.ID {
	return ResolvePersona(m, s.Default)
}

package protocol

import (
	"encoding/json"
	"time"

	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/persona"
)

// ModelMode selects the completion model and the closing prompt section.
type ModelMode string

const (
	ModeChat      ModelMode = "chat-model"
	ModeReasoning ModelMode = "chat-model-reasoning"
)

// RequestHints describe where a request originated.
type RequestHints struct {
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	ConversationID string                  `json:"id"`
	RequestID      string                  `json:"requestId,omitempty"`
	Message        conversation.Message    `json:"message"`
	ModelMode      ModelMode               `json:"selectedChatModel"`
	Visibility     conversation.Visibility `json:"selectedVisibilityType"`
	PersonaID      persona.ID              `json:"selectedPersona"`
	Hints          RequestHints            `json:"requestHints"`
}

// VoiceRequest is the body of POST /api/voice.
type VoiceRequest struct {
	Text      string     `json:"text"`
	PersonaID persona.ID `json:"personaId"`
}

// VoteRequest is the body of POST /api/vote.
type VoteRequest struct {
	ConversationID string `json:"chatId"`
	MessageID      string `json:"messageId"`
	Type           string `json:"type"`
}

type EventType string

const (
	EventStart           EventType = "start"
	EventTextDelta       EventType = "text-delta"
	EventReasoningDelta  EventType = "reasoning-delta"
	EventToolCall        EventType = "tool-call"
	EventToolResult      EventType = "tool-result"
	EventUsage           EventType = "usage"
	EventPersonaMetadata EventType = "persona-metadata"
	EventDone            EventType = "done"
	EventError           EventType = "error"
)

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// StreamEvent is one element of a completion stream. Seq starts at 1 and
// increases by one per event within a stream.
type StreamEvent struct {
	Seq        int             `json:"seq"`
	Type       EventType       `json:"type"`
	MessageID  string          `json:"messageId,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Usage      *Usage          `json:"usage,omitempty"`
	PersonaID  persona.ID      `json:"personaId,omitempty"`
	Error      *ChatError      `json:"error,omitempty"`
}

// Terminal reports whether no events follow e.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

const (
	CodeBadRequest      = "bad_request"
	CodePaymentRequired = "payment_required"
	CodeRateLimited     = "rate_limit"
	CodeUnavailable     = "unavailable"
	CodeStreamActive    = "stream_active"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal"
)

// ChatError is the error shape exchanged over HTTP and inside error events.
type ChatError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ChatError) Error() string {
	return e.Code + ": " + e.Message
}

// StreamLifecycle is published on the bus when a stream starts or ends.
type StreamLifecycle struct {
	ConversationID string     `json:"conversation_id"`
	RequestID      string     `json:"request_id"`
	PersonaID      persona.ID `json:"persona_id"`
	Status         string     `json:"status"`
	Events         int        `json:"events,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

// HistoryUpdated tells history caches to refetch a user's conversation list.
type HistoryUpdated struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// AudioChunk carries synthesized audio to a remote speaker.
type AudioChunk struct {
	PlaybackID  string `json:"playback_id"`
	Target      string `json:"target"`
	ContentType string `json:"content_type"`
	Sequence    int    `json:"sequence"`
	Data        []byte `json:"data"`
	Final       bool   `json:"final"`
}

const (
	SubjectStreamStarted  = "chat.stream.started"
	SubjectStreamFinished = "chat.stream.finished"
	SubjectHistoryUpdated = "chat.history.updated"
	SubjectAudioPrefix    = "tts.audio"
	SubjectAudioStop      = "tts.audio.stop"
)

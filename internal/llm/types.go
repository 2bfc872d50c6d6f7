package llm

import (
	"context"
	"time"

	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
)

// Turn is one prior exchange passed to the model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a language model prompt.
type Request struct {
	ConversationID string
	PersonaID      persona.ID
	System         string
	Messages       []Turn
	Mode           protocol.ModelMode
	MaxTokens      int
	Temperature    float64
	TraceID        string
}

// ChunkKind tells consumers which part of a message a chunk extends.
type ChunkKind string

const (
	ChunkText      ChunkKind = "text"
	ChunkReasoning ChunkKind = "reasoning"
	ChunkUsage     ChunkKind = "usage"
)

// Chunk represents streamed model output.
type Chunk struct {
	Kind             ChunkKind
	Content          string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// LastUserText returns the newest user turn, used by backends that take a
// single prompt.
func (r Request) LastUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

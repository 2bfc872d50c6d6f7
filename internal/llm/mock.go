package llm

import (
	"context"
	"strings"
	"time"

	"github.com/alecci-media/boardroom/internal/protocol"
)

type mockGenerator struct {
	delay time.Duration
}

// NewMockGenerator streams a canned reply word by word, pausing delay
// between words.
func NewMockGenerator(delay time.Duration) Generator {
	return &mockGenerator{delay: delay}
}

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	start := time.Now()
	prompt := strings.TrimSpace(req.LastUserText())
	if req.Mode == protocol.ModeReasoning {
		if err := consumer(Chunk{Kind: ChunkReasoning, Content: "Considering the question."}); err != nil {
			return err
		}
	}
	reply := "[" + string(req.PersonaID) + "] mock completion for " + prompt
	words := strings.SplitAfter(reply, " ")
	for _, w := range words {
		if m.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.delay):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := consumer(Chunk{Kind: ChunkText, Content: w, Latency: time.Since(start)}); err != nil {
			return err
		}
	}
	return consumer(Chunk{
		Kind:             ChunkUsage,
		PromptTokens:     len(strings.Fields(req.System)) + len(strings.Fields(prompt)),
		CompletionTokens: len(words),
		Latency:          time.Since(start),
	})
}

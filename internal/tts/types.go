package tts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/alecci-media/boardroom/internal/persona"
)

// MaxTextLength bounds the text sent to a provider per request.
const MaxTextLength = 5000

var (
	// ErrNotConfigured means no provider credentials are available.
	ErrNotConfigured = errors.New("speech synthesis not configured")
	// ErrEmptyText means nothing speakable remained after cleaning.
	ErrEmptyText = errors.New("no speakable text")
)

// Request describes one synthesis call. Text must already be cleaned.
type Request struct {
	Text      string
	PersonaID persona.ID
	Voice     persona.Voice
}

// Audio is a streamed synthesis result. The caller must close Body.
type Audio struct {
	Body        io.ReadCloser
	ContentType string
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// ProviderError reports a non-success response from a synthesis provider.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("synthesis provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("synthesis provider returned status %d: %s", e.StatusCode, e.Body)
}

// Prepare truncates text to limit runes and strips markdown. It returns
// ErrEmptyText when the result is blank.
func Prepare(text string, limit int) (string, error) {
	if limit <= 0 {
		limit = MaxTextLength
	}
	clean := StripMarkdown(truncate(text, limit))
	if clean == "" {
		return "", ErrEmptyText
	}
	return clean, nil
}

func truncate(s string, limit int) string {
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(ctx context.Context, clip Clip) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	return Transcript{
		Text:       fmt.Sprintf("mock transcript of %.1f seconds", clip.Duration().Seconds()),
		Confidence: 1,
	}, nil
}

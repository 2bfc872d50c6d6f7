package tts

import (
	"bytes"
	"context"
	"io"
	"time"
)

// mockFrame is a silent MPEG-1 Layer III frame header followed by padding.
var mockFrame = append([]byte{0xFF, 0xFB, 0x90, 0x64}, make([]byte, 413)...)

type mockSynth struct {
	delay time.Duration
}

// NewMockSynth returns a synthesizer that waits delay and then yields a
// silent frame.
func NewMockSynth(delay time.Duration) Synthesizer {
	return &mockSynth{delay: delay}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}
	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return &Audio{Body: io.NopCloser(bytes.NewReader(mockFrame)), ContentType: "audio/mpeg"}, nil
}

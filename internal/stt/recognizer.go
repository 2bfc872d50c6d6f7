// Package stt turns recorded speech into text for voice input.
package stt

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotConfigured means no recognizer is available.
	ErrNotConfigured = errors.New("speech recognition not configured")
	// ErrInvalidAudio means the upload is not a readable PCM WAV file.
	ErrInvalidAudio = errors.New("invalid audio")
	// ErrTooLong means the clip exceeds the configured size or duration.
	ErrTooLong = errors.New("audio clip too long")
)

// Clip is decoded 16-bit PCM audio with interleaved channels.
type Clip struct {
	Samples    []int
	SampleRate int
	Channels   int
}

func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Transcript captures recognizer output.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognizer abstracts STT backends.
type Recognizer interface {
	Transcribe(ctx context.Context, clip Clip) (Transcript, error)
}

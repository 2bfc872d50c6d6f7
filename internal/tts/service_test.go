package tts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alecci-media/boardroom/internal/persona"
)

type recordingSynth struct {
	requests []Request
	err      error
}

func (r *recordingSynth) Synthesize(_ context.Context, req Request) (*Audio, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	return &Audio{Body: io.NopCloser(nil), ContentType: "audio/mpeg"}, nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestServiceSpeak(t *testing.T) {
	synth := &recordingSynth{}
	svc := NewService(persona.Default(), synth, ServiceConfig{}, newLogger())

	if _, err := svc.Speak(context.Background(), "u1", "# Hi **there**", persona.Collaborative); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if len(synth.requests) != 1 {
		t.Fatalf("expected one provider call, got %d", len(synth.requests))
	}
	req := synth.requests[0]
	if req.Text != "Hi there" {
		t.Fatalf("expected cleaned text, got %q", req.Text)
	}
	collab, _ := persona.Default().Get(persona.Collaborative)
	if req.Voice != collab.Voice {
		t.Fatalf("expected persona voice %+v, got %+v", collab.Voice, req.Voice)
	}
}

func TestServiceRejectsBeforeProvider(t *testing.T) {
	synth := &recordingSynth{}
	svc := NewService(persona.Default(), synth, ServiceConfig{}, newLogger())

	if _, err := svc.Speak(context.Background(), "u1", "hello", "robot"); !errors.Is(err, persona.ErrUnknownPersona) {
		t.Fatalf("expected unknown persona, got %v", err)
	}
	if _, err := svc.Speak(context.Background(), "u1", "```\ncode\n```", persona.Kim); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected empty text, got %v", err)
	}
	if len(synth.requests) != 0 {
		t.Fatalf("provider must not be called for invalid requests")
	}

	unconfigured := NewService(persona.Default(), nil, ServiceConfig{}, newLogger())
	if unconfigured.Enabled() {
		t.Fatalf("service without provider must report disabled")
	}
	if _, err := unconfigured.Speak(context.Background(), "u1", "hello", persona.Kim); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestServiceProviderFailure(t *testing.T) {
	synth := &recordingSynth{err: &ProviderError{StatusCode: 401}}
	svc := NewService(persona.Default(), synth, ServiceConfig{}, newLogger())
	_, err := svc.Speak(context.Background(), "u1", "hello", persona.Kim)
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != 401 {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestServiceRateLimit(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(persona.Default(), &recordingSynth{}, ServiceConfig{RequestsPerMinute: 2, Burst: 2}, newLogger())
	svc.clock = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if _, err := svc.Speak(context.Background(), "u1", "hello", persona.Kim); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if _, err := svc.Speak(context.Background(), "u1", "hello", persona.Kim); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if _, err := svc.Speak(context.Background(), "u2", "hello", persona.Kim); err != nil {
		t.Fatalf("other users keep their own allowance: %v", err)
	}
	now = now.Add(30 * time.Second)
	if _, err := svc.Speak(context.Background(), "u1", "hello", persona.Kim); err != nil {
		t.Fatalf("allowance should refill: %v", err)
	}
}

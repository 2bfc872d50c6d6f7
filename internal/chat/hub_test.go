package chat

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
)

func TestCursorWaitsForEvents(t *testing.T) {
	h := NewHub(time.Minute)
	s, err := h.Open("c1", "r1", persona.Kim, func() {})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cur := s.Cursor(0)
	got := make(chan protocol.StreamEvent, 1)
	go func() {
		evt, err := cur.Next(context.Background())
		if err == nil {
			got <- evt
		}
		close(got)
	}()
	s.append(protocol.StreamEvent{Type: protocol.EventStart})
	select {
	case evt := <-got:
		if evt.Seq != 1 {
			t.Fatalf("expected seq 1, got %d", evt.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cursor did not wake")
	}

	s.finish(time.Now())
	if _, err := cur.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestCursorHonoursContext(t *testing.T) {
	h := NewHub(time.Minute)
	s, _ := h.Open("c1", "r1", persona.Kim, func() {})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Cursor(0).Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestHubRetentionAndReopen(t *testing.T) {
	h := NewHub(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h.clock = func() time.Time { return now }

	cancelled := false
	s, err := h.Open("c1", "r1", persona.Kim, func() { cancelled = true })
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := h.Open("c1", "r2", persona.Kim, func() {}); !errors.Is(err, ErrStreamActive) {
		t.Fatalf("expected ErrStreamActive, got %v", err)
	}
	if h.Active() != 1 {
		t.Fatalf("expected one active stream")
	}
	if !h.Cancel("c1") || !cancelled {
		t.Fatal("expected cancel to reach the stream")
	}

	s.append(protocol.StreamEvent{Type: protocol.EventStart})
	s.finish(now)
	if _, ok := h.Lookup("c1", 0); !ok {
		t.Fatal("finished stream should be replayable within retention")
	}
	if _, ok := h.Lookup("c1", 1); ok {
		t.Fatal("fully read finished stream should not be offered")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := h.Lookup("c1", 0); ok {
		t.Fatal("expired stream should be swept")
	}
	if _, err := h.Open("c1", "r3", persona.Kim, func() {}); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

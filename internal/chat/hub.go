package chat

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
)

// Stream is the event log of one generation. Events are kept until the
// stream has been finished for longer than the hub's retention so clients
// can reattach and replay what they missed.
type Stream struct {
	ConversationID string
	RequestID      string
	PersonaID      persona.ID

	cancel context.CancelFunc

	mu         sync.Mutex
	events     []protocol.StreamEvent
	finished   bool
	finishedAt time.Time
	wake       chan struct{}
}

func newStream(conversationID, requestID string, id persona.ID, cancel context.CancelFunc) *Stream {
	return &Stream{
		ConversationID: conversationID,
		RequestID:      requestID,
		PersonaID:      id,
		cancel:         cancel,
		wake:           make(chan struct{}),
	}
}

// append assigns the next sequence number to evt and wakes readers.
func (s *Stream) append(evt protocol.StreamEvent) protocol.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt.Seq = len(s.events) + 1
	s.events = append(s.events, evt)
	close(s.wake)
	s.wake = make(chan struct{})
	return evt
}

func (s *Stream) finish(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.finishedAt = at
	close(s.wake)
	s.wake = make(chan struct{})
}

// Finished reports whether the generation has ended.
func (s *Stream) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Len returns the number of events recorded so far.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Cursor returns a reader positioned after sequence number after.
func (s *Stream) Cursor(after int) *Cursor {
	if after < 0 {
		after = 0
	}
	return &Cursor{stream: s, next: after}
}

// Cursor reads a stream's events in order. It is not safe for concurrent use.
type Cursor struct {
	stream *Stream
	next   int
}

// Next blocks until the next event is available. It returns io.EOF once the
// stream is finished and every event has been read.
func (c *Cursor) Next(ctx context.Context) (protocol.StreamEvent, error) {
	for {
		c.stream.mu.Lock()
		if c.next < len(c.stream.events) {
			evt := c.stream.events[c.next]
			c.stream.mu.Unlock()
			c.next++
			return evt, nil
		}
		if c.stream.finished {
			c.stream.mu.Unlock()
			return protocol.StreamEvent{}, io.EOF
		}
		wake := c.stream.wake
		c.stream.mu.Unlock()

		select {
		case <-ctx.Done():
			return protocol.StreamEvent{}, ctx.Err()
		case <-wake:
		}
	}
}

// Hub tracks at most one live stream per conversation.
type Hub struct {
	retention time.Duration
	clock     func() time.Time

	mu      sync.Mutex
	streams map[string]*Stream
}

func NewHub(retention time.Duration) *Hub {
	return &Hub{
		retention: retention,
		clock:     time.Now,
		streams:   make(map[string]*Stream),
	}
}

// Open registers a new stream for a conversation. It fails with
// ErrStreamActive while an earlier stream is still generating.
func (h *Hub) Open(conversationID, requestID string, id persona.ID, cancel context.CancelFunc) (*Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweepLocked()
	if existing, ok := h.streams[conversationID]; ok && !existing.Finished() {
		return nil, ErrStreamActive
	}
	s := newStream(conversationID, requestID, id, cancel)
	h.streams[conversationID] = s
	return s, nil
}

// Lookup returns the conversation's stream if it is live, or finished within
// the retention window with events after seq after.
func (h *Hub) Lookup(conversationID string, after int) (*Stream, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweepLocked()
	s, ok := h.streams[conversationID]
	if !ok {
		return nil, false
	}
	if s.Finished() && s.Len() <= after {
		return nil, false
	}
	return s, true
}

// Cancel aborts the conversation's live stream.
func (h *Hub) Cancel(conversationID string) bool {
	h.mu.Lock()
	s, ok := h.streams[conversationID]
	h.mu.Unlock()
	if !ok || s.Finished() {
		return false
	}
	s.cancel()
	return true
}

// CancelAll aborts every live stream.
func (h *Hub) CancelAll() {
	h.mu.Lock()
	streams := make([]*Stream, 0, len(h.streams))
	for _, s := range h.streams {
		streams = append(streams, s)
	}
	h.mu.Unlock()
	for _, s := range streams {
		if !s.Finished() {
			s.cancel()
		}
	}
}

// Discard drops a stream that never started generating.
func (h *Hub) Discard(s *Stream) {
	s.finish(h.clock())
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[s.ConversationID] == s {
		delete(h.streams, s.ConversationID)
	}
}

// Active returns the number of streams still generating.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.streams {
		if !s.Finished() {
			n++
		}
	}
	return n
}

func (h *Hub) sweepLocked() {
	now := h.clock()
	for id, s := range h.streams {
		s.mu.Lock()
		expired := s.finished && now.Sub(s.finishedAt) > h.retention
		s.mu.Unlock()
		if expired {
			delete(h.streams, id)
		}
	}
}

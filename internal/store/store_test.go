package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecci-media/boardroom/internal/config"
	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/persona"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.StoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "chat.db")
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func saveChat(t *testing.T, s *Store, id, user string, at time.Time) {
	t.Helper()
	if err := s.SaveConversation(context.Background(), conversation.Conversation{ID: id, UserID: user, Title: id, CreatedAt: at}); err != nil {
		t.Fatalf("save conversation: %v", err)
	}
}

func TestOpenInMemory(t *testing.T) {
	s := openStore(t, config.StoreConfig{Path: ":memory:"})
	saveChat(t, s, "c1", "u1", time.Now())
	if _, err := s.GetConversation(context.Background(), "c1"); err != nil {
		t.Fatalf("get conversation: %v", err)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, config.StoreConfig{})
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	saveChat(t, s, "c1", "u1", base)

	user := conversation.TextMessage("m1", "hello", base)
	user.ConversationID = "c1"
	user.Role = conversation.RoleUser
	user.PersonaID = persona.Kim
	if err := s.SaveMessage(ctx, user); err != nil {
		t.Fatalf("save user message: %v", err)
	}

	reply := conversation.Message{
		ID:             "m2",
		ConversationID: "c1",
		Role:           conversation.RoleAssistant,
		Parts:          []conversation.Part{{Type: conversation.PartText, Text: "hi"}},
		CreatedAt:      base.Add(time.Second),
	}
	if err := s.SaveMessage(ctx, reply); err != nil {
		t.Fatalf("save reply: %v", err)
	}
	reply.PersonaID = persona.Kim
	reply.Parts = append(reply.Parts, conversation.Part{Type: conversation.PartText, Text: " there"})
	if err := s.SaveMessage(ctx, reply); err != nil {
		t.Fatalf("update reply: %v", err)
	}
	reply.PersonaID = persona.Alexandria
	if err := s.SaveMessage(ctx, reply); err != nil {
		t.Fatalf("update reply again: %v", err)
	}

	msgs, err := s.ListMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if msgs[1].Text() != "hi there" {
		t.Fatalf("expected updated parts, got %q", msgs[1].Text())
	}
	if msgs[1].PersonaID != persona.Kim {
		t.Fatalf("persona must not be overwritten once stored, got %q", msgs[1].PersonaID)
	}
	if !msgs[0].CreatedAt.Equal(base) {
		t.Fatalf("unexpected created at %s", msgs[0].CreatedAt)
	}
}

func TestListConversationsPaginates(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, config.StoreConfig{})
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		saveChat(t, s, id, "u1", base.Add(time.Duration(i)*time.Hour))
	}
	saveChat(t, s, "other", "u2", base.Add(10*time.Hour))

	page, err := s.ListConversations(ctx, "u1", 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Conversations) != 2 || page.Conversations[0].ID != "d" || page.Conversations[1].ID != "c" || !page.HasMore {
		t.Fatalf("unexpected first page %+v", page)
	}
	page, err = s.ListConversations(ctx, "u1", 2, "c")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Conversations) != 2 || page.Conversations[0].ID != "b" || page.HasMore {
		t.Fatalf("unexpected second page %+v", page)
	}
	if _, err := s.ListConversations(ctx, "u1", 2, "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign cursor, got %v", err)
	}
}

func TestVotesAndDeleteCascade(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, config.StoreConfig{})
	saveChat(t, s, "c1", "u1", time.Now())
	m := conversation.TextMessage("m1", "answer", time.Now())
	m.ConversationID = "c1"
	m.Role = conversation.RoleAssistant
	if err := s.SaveMessage(ctx, m); err != nil {
		t.Fatalf("save message: %v", err)
	}

	if err := s.RecordVote(ctx, conversation.Vote{ConversationID: "c1", MessageID: "m1", Up: true}); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := s.RecordVote(ctx, conversation.Vote{ConversationID: "c1", MessageID: "m1", Up: false}); err != nil {
		t.Fatalf("revote: %v", err)
	}
	votes, err := s.ListVotes(ctx, "c1")
	if err != nil {
		t.Fatalf("list votes: %v", err)
	}
	if len(votes) != 1 || votes[0].Up {
		t.Fatalf("expected a single downvote, got %+v", votes)
	}
	if err := s.RecordVote(ctx, conversation.Vote{ConversationID: "c1", MessageID: "missing", Up: true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := s.DeleteConversation(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msgs, err := s.ListMessages(ctx, "c1")
	if err != nil || len(msgs) != 0 {
		t.Fatalf("expected cascade delete of messages, got %d (%v)", len(msgs), err)
	}
	votes, err = s.ListVotes(ctx, "c1")
	if err != nil || len(votes) != 0 {
		t.Fatalf("expected cascade delete of votes, got %d (%v)", len(votes), err)
	}
	if err := s.DeleteConversation(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, config.StoreConfig{})
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }
	s.cfg.RetentionDays = 7
	s.cfg.MaxConversations = 2

	saveChat(t, s, "ancient", "u1", now.Add(-30*24*time.Hour))
	saveChat(t, s, "old", "u1", now.Add(-3*24*time.Hour))
	saveChat(t, s, "mid", "u1", now.Add(-2*24*time.Hour))
	saveChat(t, s, "new", "u1", now.Add(-time.Hour))

	if err := s.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}
	page, err := s.ListConversations(ctx, "u1", 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Conversations) != 2 || page.Conversations[0].ID != "new" || page.Conversations[1].ID != "mid" {
		t.Fatalf("unexpected survivors %+v", page.Conversations)
	}
}

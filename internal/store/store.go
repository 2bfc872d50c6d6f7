// Package store persists conversations, messages and votes in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alecci-media/boardroom/internal/config"
	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/persona"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a conversation or message does not exist.
var ErrNotFound = errors.New("not found")

const memoryPath = ":memory:"

// Store wraps a SQLite-backed chat history.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config and applies retention.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "store"))
	dsn := "file::memory:?_pragma=foreign_keys(ON)"
	if cfg.Path != memoryPath {
		dir := filepath.Dir(cfg.Path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.Path == memoryPath {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("store vacuum failed", slogError(err))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("store prune on start failed", slogError(err))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS chats (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    visibility TEXT NOT NULL DEFAULT 'private',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_user_created ON chats(user_id, created_at);
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    chat_id TEXT NOT NULL,
    role TEXT NOT NULL,
    parts BLOB NOT NULL,
    persona_id TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at);
CREATE TABLE IF NOT EXISTS votes (
    chat_id TEXT NOT NULL,
    message_id TEXT NOT NULL,
    is_upvoted INTEGER NOT NULL,
    PRIMARY KEY(chat_id, message_id),
    FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE,
    FOREIGN KEY(message_id) REFERENCES messages(id) ON DELETE CASCADE
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveConversation inserts c or updates its title and visibility.
func (s *Store) SaveConversation(ctx context.Context, c conversation.Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock()
	}
	if c.Visibility == "" {
		c.Visibility = conversation.VisibilityPrivate
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats(id, user_id, title, visibility, created_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title, visibility=excluded.visibility`,
		c.ID, c.UserID, c.Title, string(c.Visibility), c.CreatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// GetConversation returns the conversation with id.
func (s *Store) GetConversation(ctx context.Context, id string) (conversation.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, visibility, created_at FROM chats WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return c, err
}

// Page is one slice of a user's conversation list.
type Page struct {
	Conversations []conversation.Conversation `json:"chats"`
	HasMore       bool                        `json:"hasMore"`
}

// ListConversations returns up to limit conversations for userID, newest
// first. A non-empty endingBefore restricts the page to conversations created
// before that conversation.
func (s *Store) ListConversations(ctx context.Context, userID string, limit int, endingBefore string) (Page, error) {
	if limit <= 0 {
		limit = 20
	}
	cutoff := int64(1<<63 - 1)
	if endingBefore != "" {
		var created int64
		err := s.db.QueryRowContext(ctx,
			`SELECT created_at FROM chats WHERE id = ? AND user_id = ?`, endingBefore, userID).Scan(&created)
		if errors.Is(err, sql.ErrNoRows) {
			return Page{}, fmt.Errorf("conversation %s: %w", endingBefore, ErrNotFound)
		}
		if err != nil {
			return Page{}, err
		}
		cutoff = created
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, visibility, created_at FROM chats
		 WHERE user_id = ? AND created_at < ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, userID, cutoff, limit+1)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	page := Page{Conversations: []conversation.Conversation{}}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return Page{}, err
		}
		page.Conversations = append(page.Conversations, c)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	if len(page.Conversations) > limit {
		page.Conversations = page.Conversations[:limit]
		page.HasMore = true
	}
	return page, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (conversation.Conversation, error) {
	var c conversation.Conversation
	var visibility string
	var created int64
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &visibility, &created); err != nil {
		return c, err
	}
	c.Visibility = conversation.Visibility(visibility)
	c.CreatedAt = time.Unix(0, created).UTC()
	return c, nil
}

// SaveMessage inserts m or replaces its parts. A stored persona is never
// overwritten.
func (s *Store) SaveMessage(ctx context.Context, m conversation.Message) error {
	if m.ConversationID == "" {
		return errors.New("save message: conversation id required")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock()
	}
	parts := m.Parts
	if parts == nil {
		parts = []conversation.Part{}
	}
	encoded, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("encode parts: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages(id, chat_id, role, parts, persona_id, created_at)
		 VALUES(?, ?, ?, ?, NULLIF(?, ''), ?)
		 ON CONFLICT(id) DO UPDATE SET parts=excluded.parts,
		     persona_id=COALESCE(messages.persona_id, excluded.persona_id)`,
		m.ID, m.ConversationID, string(m.Role), encoded, string(m.PersonaID), m.CreatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// ListMessages returns a conversation's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, parts, COALESCE(persona_id, ''), created_at
		 FROM messages WHERE chat_id = ? ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []conversation.Message{}
	for rows.Next() {
		var m conversation.Message
		var role, personaID string
		var parts []byte
		var created int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &parts, &personaID, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(parts, &m.Parts); err != nil {
			return nil, fmt.Errorf("decode parts of %s: %w", m.ID, err)
		}
		m.Role = conversation.Role(role)
		m.PersonaID = persona.ID(personaID)
		m.CreatedAt = time.Unix(0, created).UTC()
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// RecordVote sets the vote for a message, replacing any earlier vote.
func (s *Store) RecordVote(ctx context.Context, v conversation.Vote) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE id = ? AND chat_id = ?`, v.MessageID, v.ConversationID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("message %s: %w", v.MessageID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO votes(chat_id, message_id, is_upvoted) VALUES(?, ?, ?)
		 ON CONFLICT(chat_id, message_id) DO UPDATE SET is_upvoted=excluded.is_upvoted`,
		v.ConversationID, v.MessageID, v.Up)
	if err != nil {
		return fmt.Errorf("record vote: %w", err)
	}
	return nil
}

// ListVotes returns the votes cast in a conversation.
func (s *Store) ListVotes(ctx context.Context, conversationID string) ([]conversation.Vote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, message_id, is_upvoted FROM votes WHERE chat_id = ? ORDER BY rowid`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	votes := []conversation.Vote{}
	for rows.Next() {
		var v conversation.Vote
		if err := rows.Scan(&v.ConversationID, &v.MessageID, &v.Up); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// DeleteConversation removes a conversation with its messages and votes.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.cfg.RetentionDays <= 0 && s.cfg.MaxConversations <= 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM chats WHERE created_at < ?`, cutoff.UTC().UnixNano()); err != nil {
			return err
		}
	}
	if s.cfg.MaxConversations > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM chats WHERE id IN (
			SELECT id FROM chats ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxConversations)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Package chat runs completions for incoming chat requests and keeps their
// event streams resumable.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/llm"
	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
	"github.com/alecci-media/boardroom/internal/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrStreamActive   = errors.New("a response is already streaming for this conversation")
	ErrNoActiveStream = errors.New("no active stream")
	ErrForbidden      = errors.New("conversation belongs to another user")
)

const genericFailure = "An error occurred while generating the response."

// Store is the persistence the service needs.
type Store interface {
	GetConversation(ctx context.Context, id string) (conversation.Conversation, error)
	SaveConversation(ctx context.Context, c conversation.Conversation) error
	SaveMessage(ctx context.Context, m conversation.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error)
}

// Composer builds a persona's system prompt.
type Composer interface {
	Compose(ctx context.Context, id persona.ID, hints protocol.RequestHints, mode protocol.ModelMode) (string, error)
}

// Publisher announces stream lifecycle changes. A nil Publisher is allowed.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

type Deps struct {
	Registry  *persona.Registry
	Composer  Composer
	Generator llm.Generator
	Store     Store
	Hub       *Hub
	Publisher Publisher
}

type Service struct {
	registry  *persona.Registry
	composer  Composer
	generator llm.Generator
	store     Store
	hub       *Hub
	publisher Publisher
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started  metric.Int64Counter
	finished metric.Int64Counter
	failed   metric.Int64Counter
	events   metric.Int64Counter
}

func NewService(parent context.Context, deps Deps, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	meter := otel.Meter("github.com/alecci-media/boardroom/chat")
	started, _ := meter.Int64Counter("boardroom.chat.streams_started", metric.WithDescription("Completion streams started"))
	finished, _ := meter.Int64Counter("boardroom.chat.streams_finished", metric.WithDescription("Completion streams finished"))
	failed, _ := meter.Int64Counter("boardroom.chat.streams_failed", metric.WithDescription("Completion streams that ended in error"))
	events, _ := meter.Int64Counter("boardroom.chat.stream_events", metric.WithDescription("Stream events emitted"))
	return &Service{
		registry:  deps.Registry,
		composer:  deps.Composer,
		generator: deps.Generator,
		store:     deps.Store,
		hub:       deps.Hub,
		publisher: deps.Publisher,
		logger:    logger.With(slog.String("component", "chat-service")),
		clock:     time.Now,
		newID:     uuid.NewString,
		ctx:       ctx,
		cancel:    cancel,
		started:   started,
		finished:  finished,
		failed:    failed,
		events:    events,
	}
}

// Close aborts running generations and waits for them to persist.
func (s *Service) Close() {
	s.cancel()
	s.hub.CancelAll()
	s.wg.Wait()
}

func badRequest(msg string) error {
	return &protocol.ChatError{Code: protocol.CodeBadRequest, Message: msg}
}

// Start validates req, records the user's message and begins generating the
// reply in the background. Generation outlives ctx: only Cancel or Close
// stops it, so a disconnected client can Resume.
func (s *Service) Start(ctx context.Context, userID string, req protocol.ChatRequest) (*Stream, error) {
	id := req.PersonaID
	if id == "" {
		id = s.registry.Default()
	}
	if !s.registry.Has(id) {
		return nil, badRequest(fmt.Sprintf("unknown persona %q", id))
	}
	msg := req.Message
	if strings.TrimSpace(msg.Text()) == "" && len(msg.Parts) == 0 {
		return nil, badRequest("message must not be empty")
	}
	if msg.Role != "" && msg.Role != conversation.RoleUser {
		return nil, badRequest("only user messages can be sent")
	}
	if req.ModelMode == "" {
		req.ModelMode = protocol.ModeChat
	}
	if req.ModelMode != protocol.ModeChat && req.ModelMode != protocol.ModeReasoning {
		return nil, badRequest(fmt.Sprintf("unknown model %q", req.ModelMode))
	}
	switch req.Visibility {
	case "":
		req.Visibility = conversation.VisibilityPrivate
	case conversation.VisibilityPrivate, conversation.VisibilityPublic:
	default:
		return nil, badRequest(fmt.Sprintf("unknown visibility %q", req.Visibility))
	}
	convID := req.ConversationID
	if convID == "" {
		convID = s.newID()
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = s.newID()
	}

	conv, err := s.store.GetConversation(ctx, convID)
	isNew := errors.Is(err, store.ErrNotFound)
	switch {
	case isNew:
	case err != nil:
		return nil, fmt.Errorf("load conversation: %w", err)
	case conv.UserID != userID:
		return nil, ErrForbidden
	}

	genCtx, cancel := context.WithCancel(s.ctx)
	stream, err := s.hub.Open(convID, requestID, id, cancel)
	if err != nil {
		cancel()
		return nil, err
	}
	abort := func(err error) (*Stream, error) {
		cancel()
		s.hub.Discard(stream)
		return nil, err
	}

	now := s.clock()
	msg.ConversationID = convID
	msg.Role = conversation.RoleUser
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.TagPersona(id)

	if isNew {
		conv = conversation.Conversation{
			ID:         convID,
			UserID:     userID,
			Title:      conversation.TitleFrom(msg),
			Visibility: req.Visibility,
			CreatedAt:  now,
		}
		if err := s.store.SaveConversation(ctx, conv); err != nil {
			return abort(err)
		}
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return abort(err)
	}
	history, err := s.store.ListMessages(ctx, convID)
	if err != nil {
		return abort(fmt.Errorf("load history: %w", err))
	}
	system, err := s.composer.Compose(ctx, id, req.Hints, req.ModelMode)
	if err != nil {
		return abort(fmt.Errorf("compose prompt: %w", err))
	}

	genReq := llm.Request{
		ConversationID: convID,
		PersonaID:      id,
		System:         system,
		Messages:       turns(history),
		Mode:           req.ModelMode,
		TraceID:        requestID,
	}

	attrs := metric.WithAttributes(attribute.String("persona", string(id)))
	s.started.Add(ctx, 1, attrs)
	s.publish(protocol.SubjectStreamStarted, protocol.StreamLifecycle{
		ConversationID: convID,
		RequestID:      requestID,
		PersonaID:      id,
		Status:         "started",
		Timestamp:      now.UTC(),
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.generate(genCtx, userID, stream, genReq)
	}()

	s.logger.Info("chat stream started",
		slog.String("conversation_id", convID),
		slog.String("request_id", requestID),
		slog.String("persona", string(id)),
	)
	return stream, nil
}

// Resume returns the conversation's stream for replay after seq after.
func (s *Service) Resume(ctx context.Context, userID, conversationID string, after int) (*Stream, error) {
	if err := s.authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	stream, ok := s.hub.Lookup(conversationID, after)
	if !ok {
		return nil, ErrNoActiveStream
	}
	return stream, nil
}

// Cancel stops the conversation's live generation. Content produced so far
// is kept.
func (s *Service) Cancel(ctx context.Context, userID, conversationID string) error {
	if err := s.authorize(ctx, userID, conversationID); err != nil {
		return err
	}
	if !s.hub.Cancel(conversationID) {
		return ErrNoActiveStream
	}
	s.logger.Info("chat stream cancelled", slog.String("conversation_id", conversationID))
	return nil
}

// Active returns the number of conversations currently generating.
func (s *Service) Active() int { return s.hub.Active() }

// authorize checks the caller owns a conversation that may have a stream. An
// unknown conversation has nothing in flight.
func (s *Service) authorize(ctx context.Context, userID, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoActiveStream
	}
	if err != nil {
		return err
	}
	if conv.UserID != userID {
		return ErrForbidden
	}
	return nil
}

func (s *Service) generate(ctx context.Context, userID string, stream *Stream, req llm.Request) {
	reply := conversation.Message{
		ID:             s.newID(),
		ConversationID: req.ConversationID,
		Role:           conversation.RoleAssistant,
		CreatedAt:      s.clock(),
	}
	reply.TagPersona(req.PersonaID)

	emit := func(evt protocol.StreamEvent) {
		evt.MessageID = reply.ID
		stream.append(evt)
		s.events.Add(context.Background(), 1)
	}
	emit(protocol.StreamEvent{Type: protocol.EventStart})
	emit(protocol.StreamEvent{Type: protocol.EventPersonaMetadata, PersonaID: req.PersonaID})

	err := s.generator.Generate(ctx, req, func(c llm.Chunk) error {
		switch c.Kind {
		case llm.ChunkText:
			reply.AppendDelta(conversation.PartText, c.Content)
			emit(protocol.StreamEvent{Type: protocol.EventTextDelta, Delta: c.Content})
		case llm.ChunkReasoning:
			reply.AppendDelta(conversation.PartReasoning, c.Content)
			emit(protocol.StreamEvent{Type: protocol.EventReasoningDelta, Delta: c.Content})
		case llm.ChunkUsage:
			emit(protocol.StreamEvent{Type: protocol.EventUsage, Usage: &protocol.Usage{
				PromptTokens:     c.PromptTokens,
				CompletionTokens: c.CompletionTokens,
			}})
		}
		return nil
	})

	stopped := err != nil && ctx.Err() != nil
	if len(reply.Parts) > 0 {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if serr := s.store.SaveMessage(saveCtx, reply); serr != nil {
			s.logger.Error("persist assistant message failed",
				slog.String("conversation_id", req.ConversationID), slogError(serr))
		}
		cancel()
	}

	attrs := metric.WithAttributes(attribute.String("persona", string(req.PersonaID)))
	status := "done"
	switch {
	case err == nil || stopped:
		if stopped {
			status = "stopped"
		}
		emit(protocol.StreamEvent{Type: protocol.EventDone})
		s.finished.Add(context.Background(), 1, attrs)
	default:
		status = "error"
		emit(protocol.StreamEvent{Type: protocol.EventError, Error: toChatError(err)})
		s.failed.Add(context.Background(), 1, attrs)
		s.logger.Warn("chat stream failed",
			slog.String("conversation_id", req.ConversationID), slogError(err))
	}
	now := s.clock()
	stream.finish(now)

	s.publish(protocol.SubjectStreamFinished, protocol.StreamLifecycle{
		ConversationID: req.ConversationID,
		RequestID:      stream.RequestID,
		PersonaID:      req.PersonaID,
		Status:         status,
		Events:         stream.Len(),
		Timestamp:      now.UTC(),
	})
	s.publish(protocol.SubjectHistoryUpdated, protocol.HistoryUpdated{
		ConversationID: req.ConversationID,
		UserID:         userID,
		Timestamp:      now.UTC(),
	})
	s.logger.Info("chat stream finished",
		slog.String("conversation_id", req.ConversationID),
		slog.String("status", status),
		slog.Int("events", stream.Len()),
	)
}

// toChatError keeps provider errors clients can act on and hides the rest.
func toChatError(err error) *protocol.ChatError {
	var chatErr *protocol.ChatError
	if errors.As(err, &chatErr) {
		return chatErr
	}
	return &protocol.ChatError{Code: protocol.CodeInternal, Message: genericFailure}
}

func (s *Service) publish(subject string, v any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(subject, v); err != nil {
		s.logger.Warn("publish failed", slog.String("subject", subject), slogError(err))
	}
}

func turns(history []conversation.Message) []llm.Turn {
	out := make([]llm.Turn, 0, len(history))
	for _, m := range history {
		text := m.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, llm.Turn{Role: string(m.Role), Content: text})
	}
	return out
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

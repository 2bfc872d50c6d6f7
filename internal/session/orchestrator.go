package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
	"github.com/google/uuid"
)

// Options configures an Orchestrator.
type Options struct {
	ConversationID string
	Registry       *persona.Registry
	Transport      Transport
	// Selected is the initially selected persona; the registry default when
	// empty.
	Selected   persona.ID
	ModelMode  protocol.ModelMode
	Visibility conversation.Visibility
	Hints      protocol.RequestHints
	// History seeds the transcript with persisted messages.
	History  []conversation.Message
	Throttle time.Duration

	// OnUpdate receives snapshots, at most once per Throttle while content
	// streams and immediately on status changes. It runs synchronously and
	// must not call SendMessage, Resume, Stop or SelectPersona.
	OnUpdate func(Snapshot)
	// OnHistoryChanged is called after a response completes so conversation
	// lists can be refetched.
	OnHistoryChanged func(conversationID string)
	Notifier         Notifier
	Logger           *slog.Logger
}

type stream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	requestID string
	// captured is the persona selected when the request was sent. Empty for
	// resumed streams, which learn their persona from server metadata.
	captured  persona.ID
	lastSeq   int
	messageID string
}

// Orchestrator owns the transcript and the single in-flight stream of one
// conversation.
type Orchestrator struct {
	id         string
	registry   *persona.Registry
	transport  Transport
	mode       protocol.ModelMode
	visibility conversation.Visibility
	hints      protocol.RequestHints
	onUpdate   func(Snapshot)
	onHistory  func(string)
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string

	throttle *throttler
	emitMu   sync.Mutex

	mu          sync.Mutex
	status      Status
	messages    []conversation.Message
	selected    persona.ID
	usage       *protocol.Usage
	lastErr     error
	active      *stream
	resumeAfter int
	resumeMsgID string
	closed      bool
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil {
		return nil, errors.New("session: registry is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("session: transport is required")
	}
	selected := opts.Selected
	if selected == "" {
		selected = opts.Registry.Default()
	}
	if _, err := opts.Registry.Get(selected); err != nil {
		return nil, err
	}
	id := opts.ConversationID
	if id == "" {
		id = uuid.NewString()
	}
	mode := opts.ModelMode
	if mode == "" {
		mode = protocol.ModeChat
	}
	visibility := opts.Visibility
	if visibility == "" {
		visibility = conversation.VisibilityPrivate
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	history := make([]conversation.Message, len(opts.History))
	for i, m := range opts.History {
		history[i] = m.Clone()
	}

	o := &Orchestrator{
		id:         id,
		registry:   opts.Registry,
		transport:  opts.Transport,
		mode:       mode,
		visibility: visibility,
		hints:      opts.Hints,
		onUpdate:   opts.OnUpdate,
		onHistory:  opts.OnHistoryChanged,
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "session"), slog.String("conversation_id", id)),
		now:        time.Now,
		newID:      uuid.NewString,
		status:     StatusIdle,
		messages:   history,
		selected:   selected,
	}
	o.throttle = newThrottler(opts.Throttle, o.emit)
	return o, nil
}

// ID returns the conversation id.
func (o *Orchestrator) ID() string { return o.id }

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Selected returns the currently selected persona.
func (o *Orchestrator) Selected() persona.ID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selected
}

// AwaitingReply reports whether the transcript ends without an answer: the
// last message is the user's, or a stream was interrupted before it
// finished. Reattaching is only meaningful then; a reply that already
// finished would be replayed as a new one.
func (o *Orchestrator) AwaitingReply() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil {
		return false
	}
	if o.resumeAfter > 0 {
		return true
	}
	n := len(o.messages)
	return n > 0 && o.messages[n-1].Role == conversation.RoleUser
}

// Snapshot returns a deep copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	msgs := make([]conversation.Message, len(o.messages))
	for i, m := range o.messages {
		msgs[i] = m.Clone()
	}
	var usage *protocol.Usage
	if o.usage != nil {
		u := *o.usage
		usage = &u
	}
	return Snapshot{
		ConversationID: o.id,
		Status:         o.status,
		Messages:       msgs,
		Selected:       o.selected,
		Default:        o.registry.Default(),
		Usage:          usage,
		Err:            o.lastErr,
	}
}

// SelectPersona changes the persona used for the next send. Messages already
// in the transcript keep their persona.
func (o *Orchestrator) SelectPersona(id persona.ID) error {
	p, err := o.registry.Get(id)
	if err != nil {
		return err
	}
	o.mu.Lock()
	if o.selected == id {
		o.mu.Unlock()
		return nil
	}
	o.selected = id
	o.mu.Unlock()

	o.notifier.Toast(fmt.Sprintf("Now consulting with %s - %s", p.DisplayName, p.Role))
	o.throttle.flush()
	return nil
}

// SendMessage appends a user message and starts streaming the reply. The
// selected persona is read once, here, and travels with the request; later
// selection changes do not affect this exchange. It returns ErrBusy while
// another response is in flight.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) (conversation.Message, error) {
	if strings.TrimSpace(text) == "" {
		return conversation.Message{}, errors.New("message is empty")
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return conversation.Message{}, errors.New("session closed")
	}
	if o.active != nil {
		o.mu.Unlock()
		return conversation.Message{}, ErrBusy
	}
	captured := o.selected
	msg := conversation.TextMessage(o.newID(), text, o.now().UTC())
	msg.ConversationID = o.id
	msg.TagPersona(captured)
	o.messages = append(o.messages, msg)

	st := o.beginLocked(ctx, captured)
	req := protocol.ChatRequest{
		ConversationID: o.id,
		RequestID:      st.requestID,
		Message:        msg.Clone(),
		ModelMode:      o.mode,
		Visibility:     o.visibility,
		PersonaID:      captured,
		Hints:          o.hints,
	}
	o.mu.Unlock()

	o.logger.Debug("sending message", slog.String("request_id", st.requestID), slog.String("persona", string(captured)))
	o.throttle.flush()

	go func() {
		defer close(st.done)
		defer st.cancel()
		es, err := o.transport.Send(st.ctx, req)
		if err != nil {
			o.fail(st, err)
			return
		}
		o.consume(st, es)
	}()
	return msg.Clone(), nil
}

// Resume reattaches to a response still being generated on the server,
// continuing after the last event this orchestrator saw. Events already
// applied are skipped, so resuming twice never duplicates content. It
// returns ErrNoActiveStream, leaving the session idle, when there is
// nothing to resume.
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return errors.New("session closed")
	}
	if o.active != nil {
		o.mu.Unlock()
		return ErrBusy
	}
	after := o.resumeAfter
	st := o.beginLocked(ctx, "")
	st.lastSeq = after
	st.messageID = o.resumeMsgID
	o.mu.Unlock()

	es, err := o.transport.Resume(st.ctx, o.id, after)
	if err != nil {
		defer close(st.done)
		defer st.cancel()
		if !errors.Is(err, ErrNoActiveStream) {
			o.fail(st, err)
			return err
		}
		o.mu.Lock()
		if o.active == st {
			o.active = nil
			o.status = StatusIdle
			o.resumeAfter, o.resumeMsgID = 0, ""
		}
		o.mu.Unlock()
		o.throttle.flush()
		o.logger.Debug("nothing to resume")
		return ErrNoActiveStream
	}

	o.throttle.flush()
	go func() {
		defer close(st.done)
		defer st.cancel()
		o.consume(st, es)
	}()
	return nil
}

// Stop aborts the in-flight response. Content that already arrived stays in
// the transcript. The server is asked to stop generating as well.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	st := o.active
	if st == nil {
		changed := o.status != StatusIdle
		o.status = StatusIdle
		o.mu.Unlock()
		if changed {
			o.throttle.flush()
		}
		return nil
	}
	o.active = nil
	o.status = StatusIdle
	o.resumeAfter, o.resumeMsgID = 0, ""
	st.cancel()
	o.mu.Unlock()

	<-st.done
	o.throttle.flush()
	o.logger.Info("stream stopped", slog.String("request_id", st.requestID))

	if err := o.transport.Cancel(ctx, o.id); err != nil {
		o.logger.Warn("server cancel failed", slogError(err))
		return fmt.Errorf("cancel on server: %w", err)
	}
	return nil
}

// Wait blocks until no stream is in flight and returns the error of the
// last stream, if it failed.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	st := o.active
	o.mu.Unlock()
	if st != nil {
		select {
		case <-st.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == StatusError {
		return o.lastErr
	}
	return nil
}

// Close detaches from any in-flight stream without asking the server to
// stop, so the response can be resumed later.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	st := o.active
	o.active = nil
	o.mu.Unlock()
	if st != nil {
		st.cancel()
		<-st.done
	}
	o.throttle.stop()
}

func (o *Orchestrator) beginLocked(ctx context.Context, captured persona.ID) *stream {
	sctx, cancel := context.WithCancel(ctx)
	st := &stream{
		ctx:       sctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		requestID: o.newID(),
		captured:  captured,
	}
	o.active = st
	o.status = StatusSubmitted
	o.lastErr = nil
	return st
}

func (o *Orchestrator) consume(st *stream, es EventStream) {
	defer es.Close()
	for {
		ev, err := es.Next(st.ctx)
		if errors.Is(err, io.EOF) {
			o.complete(st)
			return
		}
		if err != nil {
			o.fail(st, err)
			return
		}
		if o.apply(st, ev) {
			return
		}
	}
}

// apply folds ev into the transcript. It reports whether the stream is over.
func (o *Orchestrator) apply(st *stream, ev protocol.StreamEvent) bool {
	o.mu.Lock()
	if o.active != st {
		o.mu.Unlock()
		return true
	}
	if ev.Seq > 0 && ev.Seq <= st.lastSeq {
		o.mu.Unlock()
		return false
	}
	if ev.Seq > 0 {
		st.lastSeq = ev.Seq
	}
	statusChanged := false
	if o.status == StatusSubmitted {
		o.status = StatusStreaming
		statusChanged = true
	}

	switch ev.Type {
	case protocol.EventStart:
		o.startMessageLocked(st, ev.MessageID)
	case protocol.EventTextDelta:
		o.currentLocked(st).AppendDelta(conversation.PartText, ev.Delta)
	case protocol.EventReasoningDelta:
		o.currentLocked(st).AppendDelta(conversation.PartReasoning, ev.Delta)
	case protocol.EventToolCall:
		m := o.currentLocked(st)
		m.Parts = append(m.Parts, conversation.Part{
			Type:       conversation.PartTool,
			ToolCallID: ev.ToolCallID,
			ToolName:   ev.ToolName,
			ToolState:  conversation.ToolCalled,
			Input:      append([]byte(nil), ev.Input...),
		})
	case protocol.EventToolResult:
		if !o.currentLocked(st).ResolveTool(ev.ToolCallID, ev.Output) {
			o.logger.Debug("tool result without call", slog.String("tool_call_id", ev.ToolCallID))
		}
	case protocol.EventUsage:
		if ev.Usage != nil {
			u := *ev.Usage
			o.usage = &u
		}
	case protocol.EventPersonaMetadata:
		o.applyPersonaLocked(st, ev.PersonaID)
	case protocol.EventDone:
		o.mu.Unlock()
		o.complete(st)
		return true
	case protocol.EventError:
		o.mu.Unlock()
		var err error = errors.New("stream reported an error without details")
		if ev.Error != nil {
			err = ev.Error
		}
		o.fail(st, err)
		return true
	default:
		o.logger.Debug("ignoring unknown stream event", slog.String("type", string(ev.Type)))
	}
	o.mu.Unlock()

	if statusChanged {
		o.throttle.flush()
	} else {
		o.throttle.schedule()
	}
	return false
}

func (o *Orchestrator) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := len(o.messages) - 1; i >= 0; i-- {
		if o.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// startMessageLocked begins the assistant message for st. A start event for
// a message already in the transcript means the server is replaying the
// stream from the beginning, so the message is rebuilt rather than extended.
func (o *Orchestrator) startMessageLocked(st *stream, id string) *conversation.Message {
	if id == "" {
		id = o.newID()
	}
	idx := o.indexLocked(id)
	if idx >= 0 {
		o.messages[idx].Parts = nil
	} else {
		o.messages = append(o.messages, conversation.Message{
			ID:             id,
			ConversationID: o.id,
			Role:           conversation.RoleAssistant,
			CreatedAt:      o.now().UTC(),
		})
		idx = len(o.messages) - 1
	}
	st.messageID = id
	m := &o.messages[idx]
	if st.captured != "" {
		m.TagPersona(st.captured)
	}
	return m
}

func (o *Orchestrator) currentLocked(st *stream) *conversation.Message {
	if idx := o.indexLocked(st.messageID); idx >= 0 {
		return &o.messages[idx]
	}
	return o.startMessageLocked(st, st.messageID)
}

// applyPersonaLocked records server persona metadata. It only tags a message
// that has no persona yet; when it does, the selection follows it.
func (o *Orchestrator) applyPersonaLocked(st *stream, id persona.ID) {
	if !o.registry.Has(id) {
		o.logger.Warn("ignoring unknown persona metadata", slog.String("persona", string(id)))
		return
	}
	m := o.currentLocked(st)
	if m.PersonaID != "" {
		if m.PersonaID != id {
			o.logger.Debug("persona metadata conflicts with recorded persona",
				slog.String("message_id", m.ID),
				slog.String("recorded", string(m.PersonaID)),
				slog.String("metadata", string(id)))
		}
		return
	}
	m.TagPersona(id)
	o.selected = id
}

func (o *Orchestrator) complete(st *stream) {
	o.mu.Lock()
	if o.active != st {
		o.mu.Unlock()
		return
	}
	o.active = nil
	o.status = StatusReady
	o.resumeAfter, o.resumeMsgID = 0, ""
	o.mu.Unlock()

	o.throttle.flush()
	o.logger.Debug("stream finished", slog.String("request_id", st.requestID), slog.Int("events", st.lastSeq))
	if o.onHistory != nil {
		o.onHistory(o.id)
	}
}

func (o *Orchestrator) fail(st *stream, err error) {
	o.mu.Lock()
	if o.active != st {
		// Stopped or superseded; the error is expected.
		o.mu.Unlock()
		return
	}
	o.active = nil
	o.status = StatusError
	o.lastErr = err
	o.resumeAfter, o.resumeMsgID = st.lastSeq, st.messageID
	o.mu.Unlock()

	o.throttle.flush()
	o.surface(err)
}

func (o *Orchestrator) surface(err error) {
	switch Classify(err) {
	case Blocking:
		var chatErr *protocol.ChatError
		errors.As(err, &chatErr)
		o.logger.Warn("stream blocked", slog.String("code", chatErr.Code), slogError(err))
		o.notifier.Block(chatErr)
	case Transient:
		var chatErr *protocol.ChatError
		errors.As(err, &chatErr)
		o.logger.Warn("stream failed", slog.String("code", chatErr.Code), slogError(err))
		o.notifier.Toast(chatErr.Message)
	default:
		o.logger.Error("stream failed", slogError(err))
	}
}

func (o *Orchestrator) emit() {
	if o.onUpdate == nil {
		return
	}
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.onUpdate(o.Snapshot())
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

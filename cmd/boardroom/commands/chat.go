package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alecci-media/boardroom/internal/audio"
	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
	"github.com/alecci-media/boardroom/internal/session"
	"github.com/alecci-media/boardroom/internal/speech"
	"github.com/spf13/cobra"
)

type chatOptions struct {
	conversationID string
	persona        string
	reasoning      bool
	public         bool
	speak          bool
	usage          bool
	voice          voiceOptions
}

func newChatCmd(a *app) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk with the advisors",
		Long: `Sends a single message, or starts an interactive session when no
message is given. Continuing a conversation prints its transcript and
reattaches to a reply still being generated.

Interactive commands:
  /persona [id]   show or switch the advisor for the next message
  /stop           stop the reply being generated
  /speak on|off   read finished replies aloud
  /listen [n]     read the nth most recent reply aloud (default 1)
  /voice <file>   send the transcript of a WAV recording
  /id             print the conversation id
  /quit           leave; an unfinished reply keeps generating on the server

Examples:
  boardroom chat "Where should we cut costs?"
  boardroom chat --persona kim --reasoning
  boardroom chat --conversation 6f1c...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), a, opts, cmd.InOrStdin(), args)
		},
	}
	cmd.Flags().StringVarP(&opts.conversationID, "conversation", "c", "", "continue an existing conversation")
	cmd.Flags().StringVarP(&opts.persona, "persona", "p", "", "advisor to consult (default: the server default persona)")
	cmd.Flags().BoolVar(&opts.reasoning, "reasoning", false, "use the reasoning model")
	cmd.Flags().BoolVar(&opts.public, "public", false, "make a new conversation public")
	cmd.Flags().BoolVar(&opts.speak, "speak", false, "read finished replies aloud")
	cmd.Flags().BoolVar(&opts.usage, "usage", false, "print token usage after each reply")
	opts.voice.register(cmd)
	return cmd
}

// chatSession bundles an orchestrator with its terminal output and optional
// speech.
type chatSession struct {
	orch     *session.Orchestrator
	render   *renderer
	registry *persona.Registry
	voice    *voice
	ctrl     *speech.Controller // auto-speak
	manual   *speech.Controller // /listen
	auto     *speech.AutoSpeaker
}

func (s *chatSession) Close() {
	if s.orch != nil {
		s.orch.Close()
	}
	if s.ctrl != nil {
		s.ctrl.Close()
	}
	if s.manual != nil {
		s.manual.Close()
	}
	if s.voice != nil {
		s.voice.Close()
	}
}

func (a *app) openChat(ctx context.Context, opts *chatOptions) (*chatSession, error) {
	registry, err := a.registry(ctx)
	if err != nil {
		return nil, err
	}
	s := &chatSession{
		registry: registry,
		render:   newRenderer(a.out, registry, opts.usage),
	}

	var selected persona.ID
	if opts.persona != "" {
		if selected, err = registry.Parse(opts.persona); err != nil {
			return nil, err
		}
	}

	var history []conversation.Message
	if opts.conversationID != "" {
		history, err = a.history(ctx, opts.conversationID)
		if err != nil {
			return nil, err
		}
	}

	if opts.speak {
		if s.voice, err = a.openVoice(ctx, opts.voice); err != nil {
			return nil, err
		}
		s.ctrl = s.voice.controller(a, registry, audio.SourceAuto)
		s.manual = s.voice.controller(a, registry, audio.SourceManual)
		s.auto = speech.NewAutoSpeaker(ctx, s.ctrl, true, a.logger)
	}

	mode := protocol.ModeChat
	if opts.reasoning {
		mode = protocol.ModeReasoning
	}
	visibility := conversation.VisibilityPrivate
	if opts.public {
		visibility = conversation.VisibilityPublic
	}

	s.orch, err = session.New(session.Options{
		ConversationID: opts.conversationID,
		Registry:       registry,
		Transport:      a.transport(),
		Selected:       selected,
		ModelMode:      mode,
		Visibility:     visibility,
		History:        history,
		OnUpdate: func(snap session.Snapshot) {
			s.render.update(snap)
			if s.auto != nil {
				s.auto.Observe(snap)
			}
		},
		Notifier: printNotifier{w: a.errOut},
		Logger:   a.logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.render.transcript(history)
	s.render.prime(s.orch.Snapshot())
	return s, nil
}

// history loads persisted messages. A conversation the server has never
// seen starts empty under the given id.
func (a *app) history(ctx context.Context, id string) ([]conversation.Message, error) {
	var msgs []conversation.Message
	err := a.call(ctx, http.MethodGet, "/api/chat/"+url.PathEscape(id)+"/messages", nil, nil, &msgs)
	var chatErr *protocol.ChatError
	if errors.As(err, &chatErr) && chatErr.Code == protocol.CodeNotFound {
		return nil, nil
	}
	return msgs, err
}

func runChat(ctx context.Context, a *app, opts *chatOptions, in io.Reader, args []string) error {
	s, err := a.openChat(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.conversationID != "" && s.orch.AwaitingReply() {
		if err := s.orch.Resume(ctx); err != nil && !errors.Is(err, session.ErrNoActiveStream) {
			return err
		}
		if err := s.orch.Wait(ctx); err != nil {
			a.logger.Warn("resumed reply failed", slogError(err))
		}
	}

	if len(args) == 1 {
		if _, err := s.orch.SendMessage(ctx, args[0]); err != nil {
			return err
		}
		err := s.orch.Wait(ctx)
		s.waitSpeech(ctx)
		fmt.Fprintf(a.errOut, "conversation %s\n", s.orch.ID())
		return err
	}
	return s.repl(ctx, a, in)
}

// waitSpeech lets a reply that is being read aloud finish before exit.
func (s *chatSession) waitSpeech(ctx context.Context) {
	if s.voice == nil {
		return
	}
	s.voice.wait(ctx, s.ctrl, s.manual)
}

// listen reads the nth most recent assistant reply aloud in the voice it was
// attributed to, preempting whatever is playing.
func (s *chatSession) listen(ctx context.Context, n int) (conversation.Message, persona.ID, error) {
	snap := s.orch.Snapshot()
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		m := snap.Messages[i]
		if m.Role != conversation.RoleAssistant || m.Text() == "" {
			continue
		}
		if n--; n > 0 {
			continue
		}
		id := snap.PersonaFor(m)
		s.manual.Play(ctx, m.Text(), id)
		return m, id, nil
	}
	return conversation.Message{}, "", errors.New("no such reply")
}

func (s *chatSession) repl(ctx context.Context, a *app, in io.Reader) error {
	fmt.Fprintf(a.errOut, "conversation %s, consulting %s. /quit to leave.\n", s.orch.ID(), s.render.name(s.orch.Selected()))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			err := s.orch.Wait(ctx)
			s.waitSpeech(ctx)
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := s.command(ctx, a, line)
			if err != nil {
				fmt.Fprintf(a.errOut, "! %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}
		// Lines typed ahead are sent once the current reply settles.
		if s.orch.Status().Busy() {
			_ = s.orch.Wait(ctx)
		}
		if _, err := s.orch.SendMessage(ctx, line); err != nil {
			if errors.Is(err, session.ErrBusy) {
				fmt.Fprintln(a.errOut, "! still answering; /stop to interrupt")
				continue
			}
			fmt.Fprintf(a.errOut, "! %v\n", err)
		}
	}
}

func (s *chatSession) command(ctx context.Context, a *app, line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/stop":
		if s.ctrl != nil {
			s.ctrl.Stop()
			s.manual.Stop()
		}
		return false, s.orch.Stop(ctx)
	case "/id":
		fmt.Fprintln(a.out, s.orch.ID())
		return false, nil
	case "/persona":
		if len(fields) < 2 {
			selected := s.orch.Selected()
			for _, p := range s.registry.List() {
				marker := " "
				if p.ID == selected {
					marker = "*"
				}
				fmt.Fprintf(a.out, "%s %-14s %s, %s\n", marker, p.ID, p.DisplayName, p.Role)
			}
			return false, nil
		}
		id, err := s.registry.Parse(fields[1])
		if err != nil {
			return false, err
		}
		return false, s.orch.SelectPersona(id)
	case "/voice":
		if len(fields) < 2 {
			return false, errors.New("usage: /voice <file.wav>")
		}
		transcript, err := a.transcribe(ctx, fields[1])
		if err != nil {
			return false, err
		}
		fmt.Fprintf(a.errOut, "you said: %s\n", transcript.Text)
		if s.orch.Status().Busy() {
			_ = s.orch.Wait(ctx)
		}
		_, err = s.orch.SendMessage(ctx, transcript.Text)
		return false, err
	case "/listen":
		if s.manual == nil {
			return false, errors.New("start with --speak to enable voice")
		}
		if s.orch.Status().Busy() {
			_ = s.orch.Wait(ctx)
		}
		n := 1
		if len(fields) > 1 {
			var err error
			if n, err = strconv.Atoi(fields[1]); err != nil || n < 1 {
				return false, fmt.Errorf("usage: /listen [n], got %q", fields[1])
			}
		}
		_, id, err := s.listen(ctx, n)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(a.errOut, "listening to %s\n", s.render.name(id))
		return false, nil
	case "/speak":
		if s.auto == nil {
			return false, errors.New("start with --speak to enable voice")
		}
		on := len(fields) < 2 || fields[1] == "on"
		s.auto.SetEnabled(on)
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

package commands

import (
	"fmt"
	"io"
	"sync"

	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
	"github.com/alecci-media/boardroom/internal/session"
)

// renderer prints streamed replies incrementally from session snapshots.
type renderer struct {
	out       io.Writer
	registry  *persona.Registry
	showUsage bool

	mu        sync.Mutex
	messageID string
	printed   int
	status    session.Status
}

func newRenderer(out io.Writer, registry *persona.Registry, showUsage bool) *renderer {
	return &renderer{out: out, registry: registry, showUsage: showUsage, status: session.StatusIdle}
}

// prime marks everything in snap as already printed.
func (r *renderer) prime(snap session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := snap.LastAssistant(); ok {
		r.messageID = last.ID
		r.printed = len(last.Text())
	}
}

func (r *renderer) update(snap session.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := snap.LastAssistant(); ok {
		text := last.Text()
		if last.ID != r.messageID && text != "" {
			r.messageID = last.ID
			r.printed = 0
			fmt.Fprintf(r.out, "\n%s: ", r.name(snap.PersonaFor(last)))
		}
		if last.ID == r.messageID && len(text) > r.printed {
			fmt.Fprint(r.out, text[r.printed:])
			r.printed = len(text)
		}
	}

	if snap.Status == r.status {
		return
	}
	prev := r.status
	r.status = snap.Status
	if !prev.Busy() || snap.Status.Busy() {
		return
	}
	fmt.Fprintln(r.out)
	if snap.Status == session.StatusReady && r.showUsage && snap.Usage != nil {
		fmt.Fprintf(r.out, "(%d prompt / %d completion tokens)\n", snap.Usage.PromptTokens, snap.Usage.CompletionTokens)
	}
}

func (r *renderer) name(id persona.ID) string {
	p, err := r.registry.Get(id)
	if err != nil {
		return string(id)
	}
	return p.DisplayName
}

// transcript prints persisted messages before the conversation continues.
func (r *renderer) transcript(msgs []conversation.Message) {
	def := r.registry.Default()
	for _, m := range msgs {
		text := m.Text()
		if text == "" {
			continue
		}
		who := "you"
		if m.Role == conversation.RoleAssistant {
			who = r.name(session.ResolvePersona(m, def))
		}
		fmt.Fprintf(r.out, "%s: %s\n", who, text)
	}
}

// printNotifier surfaces session errors on the terminal.
type printNotifier struct {
	w io.Writer
}

func (n printNotifier) Block(err *protocol.ChatError) {
	fmt.Fprintf(n.w, "\n! action required: %s\n", err.Message)
}

func (n printNotifier) Toast(msg string) {
	fmt.Fprintf(n.w, "* %s\n", msg)
}

// Package conversation defines the messages and conversations exchanged
// between the chat client and server.
package conversation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alecci-media/boardroom/internal/persona"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type PartType string

const (
	PartText      PartType = "text"
	PartFile      PartType = "file"
	PartReasoning PartType = "reasoning"
	PartTool      PartType = "tool-invocation"
)

type ToolState string

const (
	ToolCalled   ToolState = "call"
	ToolResolved ToolState = "result"
)

// Part is one typed fragment of a message's content.
type Part struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`

	URL       string `json:"url,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Filename  string `json:"filename,omitempty"`

	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ToolState  ToolState       `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
}

// Message is a single user or assistant turn. PersonaID is set at most once:
// use TagPersona rather than assigning it directly.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"chatId,omitempty"`
	Role           Role       `json:"role"`
	Parts          []Part     `json:"parts"`
	PersonaID      persona.ID `json:"personaId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// TagPersona assigns id if the message has no persona yet. It reports
// whether the message now carries id.
func (m *Message) TagPersona(id persona.ID) bool {
	if id == "" {
		return false
	}
	if m.PersonaID == "" {
		m.PersonaID = id
		return true
	}
	return m.PersonaID == id
}

// AppendDelta extends the trailing part of the given type, or starts a new
// part when the last part has a different type.
func (m *Message) AppendDelta(kind PartType, delta string) {
	if n := len(m.Parts); n > 0 && m.Parts[n-1].Type == kind {
		m.Parts[n-1].Text += delta
		return
	}
	m.Parts = append(m.Parts, Part{Type: kind, Text: delta})
}

// ResolveTool attaches output to the tool invocation with the given call id.
func (m *Message) ResolveTool(callID string, output json.RawMessage) bool {
	for i := len(m.Parts) - 1; i >= 0; i-- {
		p := &m.Parts[i]
		if p.Type == PartTool && p.ToolCallID == callID {
			p.Output = append(json.RawMessage(nil), output...)
			p.ToolState = ToolResolved
			return true
		}
	}
	return false
}

// Text joins the message's text parts.
func (m Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if p.Type == PartText && strings.TrimSpace(p.Text) != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	out := m
	out.Parts = make([]Part, len(m.Parts))
	for i, p := range m.Parts {
		p.Input = append(json.RawMessage(nil), p.Input...)
		p.Output = append(json.RawMessage(nil), p.Output...)
		out.Parts[i] = p
	}
	return out
}

// TextMessage builds a single-part user message.
func TextMessage(id string, text string, at time.Time) Message {
	return Message{ID: id, Role: RoleUser, Parts: []Part{{Type: PartText, Text: text}}, CreatedAt: at}
}

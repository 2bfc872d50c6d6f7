package conversation

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alecci-media/boardroom/internal/persona"
)

func TestTagPersonaIsWriteOnce(t *testing.T) {
	var m Message
	if !m.TagPersona(persona.Alexandria) {
		t.Fatalf("first tag should succeed")
	}
	if m.TagPersona(persona.Kim) {
		t.Fatalf("retag with a different persona should be refused")
	}
	if m.PersonaID != persona.Alexandria {
		t.Fatalf("persona changed to %q", m.PersonaID)
	}
	if !m.TagPersona(persona.Alexandria) {
		t.Fatalf("retag with the same persona should report true")
	}
}

func TestAppendDeltaMergesRuns(t *testing.T) {
	var m Message
	m.AppendDelta(PartReasoning, "think")
	m.AppendDelta(PartReasoning, "ing")
	m.AppendDelta(PartText, "Hel")
	m.AppendDelta(PartText, "lo")
	if len(m.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(m.Parts))
	}
	if m.Parts[0].Text != "thinking" || m.Parts[1].Text != "Hello" {
		t.Fatalf("unexpected parts %+v", m.Parts)
	}
	if m.Text() != "Hello" {
		t.Fatalf("unexpected text %q", m.Text())
	}
}

func TestResolveTool(t *testing.T) {
	m := Message{Parts: []Part{{Type: PartTool, ToolCallID: "c1", ToolState: ToolCalled}}}
	if !m.ResolveTool("c1", json.RawMessage(`{"ok":true}`)) {
		t.Fatalf("expected tool to resolve")
	}
	if m.Parts[0].ToolState != ToolResolved {
		t.Fatalf("tool state not updated")
	}
	if m.ResolveTool("missing", nil) {
		t.Fatalf("unknown call id should not resolve")
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := Message{Parts: []Part{{Type: PartText, Text: "a"}}}
	c := m.Clone()
	c.Parts[0].Text = "b"
	if m.Parts[0].Text != "a" {
		t.Fatalf("clone shares parts")
	}
}

func TestTitleFrom(t *testing.T) {
	if got := TitleFrom(TextMessage("1", "  How do   I grow\n pipeline? ", time.Now())); got != "How do I grow pipeline?" {
		t.Fatalf("unexpected title %q", got)
	}
	long := TitleFrom(TextMessage("2", strings.Repeat("word ", 40), time.Now()))
	if !strings.HasSuffix(long, "...") || len([]rune(long)) > maxTitleLength {
		t.Fatalf("unexpected long title %q", long)
	}
	if TitleFrom(Message{}) != "New chat" {
		t.Fatalf("expected fallback title")
	}
}

// Package prompt assembles the system instruction sent with every completion
// request.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
)

// ContextLoader yields the knowledge text for a persona.
type ContextLoader interface {
	Load(ctx context.Context, id persona.ID) (string, error)
}

// Composer joins persona prompts, knowledge, and request hints.
type Composer struct {
	registry *persona.Registry
	loader   ContextLoader
}

// NewComposer returns a composer. loader may be nil, in which case no
// knowledge section is rendered.
func NewComposer(registry *persona.Registry, loader ContextLoader) *Composer {
	return &Composer{registry: registry, loader: loader}
}

// Compose loads knowledge for id and renders the full instruction.
func (c *Composer) Compose(ctx context.Context, id persona.ID, hints protocol.RequestHints, mode protocol.ModelMode) (string, error) {
	p, err := c.registry.Get(id)
	if err != nil {
		return "", err
	}
	var knowledge string
	if c.loader != nil {
		knowledge, err = c.loader.Load(ctx, id)
		if err != nil {
			return "", fmt.Errorf("load knowledge for %s: %w", id, err)
		}
	}
	return Render(p, knowledge, hints, mode), nil
}

// Render is the deterministic part of Compose.
func Render(p persona.Persona, knowledge string, hints protocol.RequestHints, mode protocol.ModelMode) string {
	var b strings.Builder
	b.WriteString(p.SystemPrompt)

	if p.Composite() {
		b.WriteString("\n\n")
		b.WriteString(addressingClause)
	}

	if knowledge != "" {
		b.WriteString(authoredContentHeader)
		b.WriteString(knowledge)
		b.WriteString("\n---END OF YOUR WORK---")
	}

	b.WriteString("\n\n")
	b.WriteString(RenderHints(hints))

	if mode != protocol.ModeReasoning {
		b.WriteString("\n\n")
		b.WriteString(artifactsGuidance)
	}
	return b.String()
}

// RenderHints formats the request origin block.
func RenderHints(h protocol.RequestHints) string {
	return fmt.Sprintf("About the origin of user's request:\n- lat: %s\n- lon: %s\n- city: %s\n- country: %s\n",
		orUnknown(h.Latitude), orUnknown(h.Longitude), orUnknown(h.City), orUnknown(h.Country))
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}

const addressingClause = `SMART CONTEXT DETECTION: If the user specifically addresses one executive (e.g., "Kim, what do you think?" or "@alexandria your take?" or "Alexandria alone"), respond ONLY as that executive. Look for natural cues like names, "you" directed at one person, or explicit requests. When responding as one executive, start with their name and don't include the other's perspective.`

const authoredContentHeader = `

## YOUR AUTHORED CONTENT
The following is content YOU have personally written and published throughout your career. This is YOUR work, YOUR research, YOUR frameworks.

**HOW TO REFERENCE THIS CONTENT:**
- Say "In my article about..." or "As I wrote about..."
- Say "My research on..." or "My framework for..."
- Say "I developed this approach..." or "I published this..."
- NEVER say "According to the document" or "The file says" or "Based on the knowledge base"

**CRITICAL:** You ARE the author. Speak as the creator of this content, not as someone referencing external material.

---YOUR PUBLISHED WORK---
`

const artifactsGuidance = `Documents are a side panel for longer written work. When a document is open it sits beside the conversation and updates in real time.

Use the createDocument tool:
- for substantial content (more than 10 lines) or code
- for content the user will likely save or reuse, such as emails, plans, or briefs
- when the user explicitly asks for a document

Do not use createDocument for explanations, conversational replies, or when asked to keep it in chat.

Use the updateDocument tool for revisions. Prefer full rewrites for major changes and targeted edits for isolated ones. Never update a document immediately after creating it; wait for feedback.`

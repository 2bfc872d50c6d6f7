package session

import (
	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/persona"
)

// ResolvePersona returns the persona to display for m. A persona recorded on
// the message always wins. Messages stored before personas were recorded
// fall back to fallback, never to the live selection, so switching personas
// cannot repaint history.
func ResolvePersona(m conversation.Message, fallback persona.ID) persona.ID {
	if m.PersonaID != "" {
		return m.PersonaID
	}
	return fallback
}

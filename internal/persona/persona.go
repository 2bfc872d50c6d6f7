// Package persona holds the catalog of executive personalities a user can
// consult. The catalog is built once at process start and is read-only
// afterwards; every other package resolves personas through a Registry
// instead of switching on raw ids.
package persona

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPersona is returned when an id is not in the catalog.
var ErrUnknownPersona = errors.New("unknown persona")

// ID identifies a persona.
type ID string

const (
	Alexandria    ID = "alexandria"
	Kim           ID = "kim"
	Collaborative ID = "collaborative"
)

// Voice carries the speech synthesis parameters for a persona.
type Voice struct {
	VoiceID         string  `json:"voice_id" yaml:"voice_id"`
	ModelID         string  `json:"model_id" yaml:"model_id"`
	Stability       float64 `json:"stability" yaml:"stability"`
	SimilarityBoost float64 `json:"similarity_boost" yaml:"similarity_boost"`
	Style           float64 `json:"style" yaml:"style"`
	SpeakerBoost    bool    `json:"speaker_boost" yaml:"speaker_boost"`
}

// Persona is an immutable catalog entry.
type Persona struct {
	ID           ID
	DisplayName  string
	Role         string
	Description  string
	Expertise    []string
	SystemPrompt string
	Voice        Voice

	// KnowledgeNamespace names the reference corpus directory for this persona.
	KnowledgeNamespace string

	// Constituents lists the personas a composite persona speaks for. Empty
	// for single personas.
	Constituents []ID

	// SharedNamespace is the corpus shared by all constituents of a composite.
	SharedNamespace string
}

// Composite reports whether p stands for more than one underlying persona.
func (p Persona) Composite() bool {
	return len(p.Constituents) > 0
}

// FirstName returns the first word of the display name.
func (p Persona) FirstName() string {
	name := strings.TrimSpace(p.DisplayName)
	if idx := strings.IndexByte(name, ' '); idx > 0 {
		return name[:idx]
	}
	return name
}

func (p Persona) clone() Persona {
	out := p
	out.Expertise = append([]string(nil), p.Expertise...)
	out.Constituents = append([]ID(nil), p.Constituents...)
	return out
}

func (p Persona) validate() error {
	if p.ID == "" {
		return errors.New("persona id must not be empty")
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return fmt.Errorf("persona %q: display name must not be empty", p.ID)
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return fmt.Errorf("persona %q: system prompt must not be empty", p.ID)
	}
	for _, c := range p.Constituents {
		if c == p.ID {
			return fmt.Errorf("persona %q lists itself as a constituent", p.ID)
		}
	}
	return nil
}

package persona

import (
	"fmt"
)

// Registry is a read-only lookup over a fixed set of personas.
type Registry struct {
	order []ID
	byID  map[ID]Persona
}

// NewRegistry validates the given personas and indexes them. The first
// persona becomes the default used for messages that carry no persona.
func NewRegistry(personas ...Persona) (*Registry, error) {
	if len(personas) == 0 {
		return nil, fmt.Errorf("persona registry requires at least one persona")
	}
	r := &Registry{byID: make(map[ID]Persona, len(personas))}
	for _, p := range personas {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona %q", p.ID)
		}
		r.byID[p.ID] = p.clone()
		r.order = append(r.order, p.ID)
	}
	for _, p := range r.byID {
		for _, c := range p.Constituents {
			constituent, ok := r.byID[c]
			if !ok {
				return nil, fmt.Errorf("persona %q: constituent %q not in catalog", p.ID, c)
			}
			if constituent.Composite() {
				return nil, fmt.Errorf("persona %q: constituent %q must not be composite", p.ID, c)
			}
		}
	}
	return r, nil
}

// Get returns the persona with the given id.
func (r *Registry) Get(id ID) (Persona, error) {
	p, ok := r.byID[id]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %q", ErrUnknownPersona, id)
	}
	return p.clone(), nil
}

// Has reports whether id is in the catalog.
func (r *Registry) Has(id ID) bool {
	_, ok := r.byID[id]
	return ok
}

// List returns all personas in catalog order.
func (r *Registry) List() []Persona {
	out := make([]Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out
}

// Default is the fixed persona assigned to legacy assistant messages that
// were stored without persona metadata.
func (r *Registry) Default() ID {
	return r.order[0]
}

// Parse converts a raw string into a known ID.
func (r *Registry) Parse(raw string) (ID, error) {
	id := ID(raw)
	if !r.Has(id) {
		return "", fmt.Errorf("%w: %q", ErrUnknownPersona, raw)
	}
	return id, nil
}

// WithVoiceOverrides returns a copy of the registry where the voice id of
// each listed persona is replaced. Unknown ids are reported as errors.
func (r *Registry) WithVoiceOverrides(overrides map[ID]string) (*Registry, error) {
	personas := r.List()
	for id := range overrides {
		if !r.Has(id) {
			return nil, fmt.Errorf("voice override: %w: %q", ErrUnknownPersona, id)
		}
	}
	for i := range personas {
		if voiceID, ok := overrides[personas[i].ID]; ok && voiceID != "" {
			personas[i].Voice.VoiceID = voiceID
		}
	}
	return NewRegistry(personas...)
}

// WithDefault returns a copy of the registry with id moved to the front of
// the catalog, making it the default.
func (r *Registry) WithDefault(id ID) (*Registry, error) {
	if !r.Has(id) {
		return nil, fmt.Errorf("default persona: %w: %q", ErrUnknownPersona, id)
	}
	personas := make([]Persona, 0, len(r.order))
	personas = append(personas, r.byID[id])
	for _, other := range r.order {
		if other != id {
			personas = append(personas, r.byID[other])
		}
	}
	return NewRegistry(personas...)
}

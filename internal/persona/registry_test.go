package persona

import (
	"errors"
	"testing"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	if got := r.Default(); got != Alexandria {
		t.Fatalf("expected alexandria as default, got %q", got)
	}
	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 personas, got %d", len(list))
	}
	collab, err := r.Get(Collaborative)
	if err != nil {
		t.Fatalf("get collaborative: %v", err)
	}
	if !collab.Composite() {
		t.Fatalf("collaborative should be composite")
	}
	if collab.KnowledgeNamespace != "" {
		t.Fatalf("composite persona should not own a namespace, got %q", collab.KnowledgeNamespace)
	}
}

func TestGetUnknown(t *testing.T) {
	_, err := Default().Get("bob")
	if !errors.Is(err, ErrUnknownPersona) {
		t.Fatalf("expected ErrUnknownPersona, got %v", err)
	}
	if _, err := Default().Parse(""); !errors.Is(err, ErrUnknownPersona) {
		t.Fatalf("expected ErrUnknownPersona for empty id, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := Default()
	p, _ := r.Get(Kim)
	p.Expertise[0] = "mutated"
	p.Voice.VoiceID = "mutated"

	again, _ := r.Get(Kim)
	if again.Expertise[0] == "mutated" || again.Voice.VoiceID == "mutated" {
		t.Fatalf("registry entry was mutated through a returned value")
	}
}

func TestNewRegistryValidation(t *testing.T) {
	base := DefaultCatalog()
	tests := []struct {
		name     string
		personas []Persona
	}{
		{name: "empty", personas: nil},
		{name: "duplicate", personas: []Persona{base[0], base[0]}},
		{name: "missing constituent", personas: []Persona{base[0], base[2]}},
		{name: "blank prompt", personas: []Persona{{ID: "x", DisplayName: "X"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRegistry(tc.personas...); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestWithVoiceOverrides(t *testing.T) {
	r, err := Default().WithVoiceOverrides(map[ID]string{Kim: "voice-k"})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	kim, _ := r.Get(Kim)
	if kim.Voice.VoiceID != "voice-k" {
		t.Fatalf("expected overridden voice, got %q", kim.Voice.VoiceID)
	}
	if _, err := Default().WithVoiceOverrides(map[ID]string{"nobody": "v"}); err == nil {
		t.Fatalf("expected error for unknown persona override")
	}
}

func TestFirstName(t *testing.T) {
	p, _ := Default().Get(Alexandria)
	if p.FirstName() != "Alexandria" {
		t.Fatalf("unexpected first name %q", p.FirstName())
	}
}

func TestWithDefault(t *testing.T) {
	r, err := Default().WithDefault(Kim)
	if err != nil {
		t.Fatalf("with default: %v", err)
	}
	if r.Default() != Kim {
		t.Fatalf("expected kim as default, got %q", r.Default())
	}
	if len(r.List()) != len(Default().List()) {
		t.Fatalf("catalog size changed")
	}
	if Default().Default() != Alexandria {
		t.Fatalf("original registry must be unchanged")
	}
	if _, err := Default().WithDefault("nobody"); err == nil {
		t.Fatalf("expected error for unknown default")
	}
}

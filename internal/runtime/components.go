package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alecci-media/boardroom/internal/config"
	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/tts"
)

// buildRegistry orders the catalog so the configured default persona comes
// first and applies voice overrides for known personas.
func buildRegistry(cfg config.Config, logger *slog.Logger) (*persona.Registry, error) {
	registry, err := persona.Default().WithDefault(persona.ID(cfg.Chat.DefaultPersona))
	if err != nil {
		return nil, fmt.Errorf("chat.default_persona: %w", err)
	}

	overrides := make(map[persona.ID]string)
	for name, pc := range cfg.Personas {
		id := persona.ID(name)
		if pc.VoiceID == "" {
			continue
		}
		if !registry.Has(id) {
			logger.Warn("ignoring voice override for unknown persona", slog.String("persona", name))
			continue
		}
		overrides[id] = pc.VoiceID
	}
	if len(overrides) == 0 {
		return registry, nil
	}
	return registry.WithVoiceOverrides(overrides)
}

// newSynthesizer returns the configured provider, or nil when voice is
// disabled or lacks credentials.
func newSynthesizer(cfg config.TTSConfig, logger *slog.Logger) (tts.Synthesizer, error) {
	switch cfg.Mode {
	case "disabled":
		return nil, nil
	case "mock":
		return tts.NewMockSynth(50 * time.Millisecond), nil
	case "exec":
		return tts.NewExecSynth(cfg.Command, cfg.ContentType)
	case "elevenlabs", "":
		el, err := tts.NewElevenLabs(tts.ElevenLabsConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			ModelID: cfg.ModelID,
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		})
		if errors.Is(err, tts.ErrNotConfigured) {
			logger.Warn("ELEVENLABS_API_KEY not set; voice disabled")
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return el, nil
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

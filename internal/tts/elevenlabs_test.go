package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alecci-media/boardroom/internal/persona"
)

func TestElevenLabsRequiresKey(t *testing.T) {
	if _, err := NewElevenLabs(ElevenLabsConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestElevenLabsStreamsAudio(t *testing.T) {
	var got elevenLabsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-123/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("Accept") != "audio/mpeg" {
			t.Errorf("unexpected accept header %q", r.Header.Get("Accept"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	synth, err := NewElevenLabs(ElevenLabsConfig{APIKey: "secret", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	voice := persona.Voice{VoiceID: "voice-123", Stability: 0.7, SimilarityBoost: 0.8, Style: 0.25, SpeakerBoost: true}
	audio, err := synth.Synthesize(context.Background(), Request{Text: "hello", PersonaID: persona.Kim, Voice: voice})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	defer audio.Body.Close()
	data, _ := io.ReadAll(audio.Body)
	if string(data) != "mp3-bytes" || audio.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected audio %q (%s)", data, audio.ContentType)
	}
	if got.Text != "hello" || got.ModelID != DefaultModelID {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.VoiceSettings.Stability != 0.7 || got.VoiceSettings.Style != 0.25 || !got.VoiceSettings.UseSpeakerBoost {
		t.Fatalf("voice settings not forwarded: %+v", got.VoiceSettings)
	}
}

func TestElevenLabsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	synth, _ := NewElevenLabs(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := synth.Synthesize(context.Background(), Request{Text: "hi", Voice: persona.Voice{VoiceID: "v"}})
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.StatusCode != http.StatusTooManyRequests || perr.Body != "quota exceeded" {
		t.Fatalf("unexpected provider error %+v", perr)
	}
}

package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultElevenLabsURL = "https://api.elevenlabs.io"
	DefaultModelID       = "eleven_flash_v2_5"
	maxErrorBody         = 2048
)

// ElevenLabsConfig configures the ElevenLabs streaming endpoint.
type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	ModelID string
	Timeout time.Duration
	Client  *http.Client
}

// ElevenLabs streams mp3 audio from the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	apiKey  string
	baseURL string
	modelID string
	client  *http.Client
}

type elevenLabsRequest struct {
	Text          string                `json:"text"`
	ModelID       string                `json:"model_id"`
	VoiceSettings elevenLabsVoiceParams `json:"voice_settings"`
}

type elevenLabsVoiceParams struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// NewElevenLabs returns ErrNotConfigured when no API key is set.
func NewElevenLabs(cfg ElevenLabsConfig) (*ElevenLabs, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultElevenLabsURL
	}
	client := cfg.Client
	if client == nil {
		// Only the response header wait is bounded; the body streams.
		client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Timeout,
		}}
	}
	return &ElevenLabs{apiKey: cfg.APIKey, baseURL: base, modelID: cfg.ModelID, client: client}, nil
}

func (e *ElevenLabs) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if req.Voice.VoiceID == "" {
		return nil, fmt.Errorf("persona %s has no voice id", req.PersonaID)
	}
	model := req.Voice.ModelID
	if model == "" {
		model = e.modelID
	}
	if model == "" {
		model = DefaultModelID
	}
	payload := elevenLabsRequest{
		Text:    req.Text,
		ModelID: model,
		VoiceSettings: elevenLabsVoiceParams{
			Stability:       req.Voice.Stability,
			SimilarityBoost: req.Voice.SimilarityBoost,
			Style:           req.Voice.Style,
			UseSpeakerBoost: req.Voice.SpeakerBoost,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", e.baseURL, url.PathEscape(req.Voice.VoiceID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("xi-api-key", e.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &Audio{Body: resp.Body, ContentType: contentType}, nil
}

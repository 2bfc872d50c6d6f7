package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alecci-media/boardroom/internal/protocol"
)

// Remote synthesizes through a boardroom server's /api/voice endpoint. The
// server owns provider credentials and voice parameters, so only the persona
// id travels.
type Remote struct {
	baseURL string
	userID  string
	client  *http.Client
}

func NewRemote(baseURL, userID string, client *http.Client) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{baseURL: strings.TrimRight(baseURL, "/"), userID: userID, client: client}
}

func (r *Remote) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	body, err := json.Marshal(protocol.VoiceRequest{Text: req.Text, PersonaID: req.PersonaID})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/voice", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	if r.userID != "" {
		httpReq.Header.Set("X-User-ID", r.userID)
	}
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("voice request: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return &Audio{Body: resp.Body, ContentType: resp.Header.Get("Content-Type")}, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var chatErr protocol.ChatError
	if json.Unmarshal(raw, &chatErr) == nil && chatErr.Message != "" {
		raw = []byte(chatErr.Message)
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, ErrNotConfigured
	}
	return nil, &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}

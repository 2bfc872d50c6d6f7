package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
	"github.com/alecci-media/boardroom/internal/tts"
)

func (a *api) handleVoice(w http.ResponseWriter, r *http.Request) {
	var req protocol.VoiceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "invalid request body")
		return
	}
	audio, err := a.deps.Voice.Speak(r.Context(), userID(r), req.Text, req.PersonaID)
	if err != nil {
		a.failVoice(w, r, err)
		return
	}
	defer audio.Body.Close()

	contentType := audio.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 16*1024)
	for {
		n, rerr := audio.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) && r.Context().Err() == nil {
				a.logger.Warn("voice stream interrupted", slogError(rerr))
			}
			return
		}
	}
}

func (a *api) failVoice(w http.ResponseWriter, r *http.Request, err error) {
	var provider *tts.ProviderError
	switch {
	case errors.Is(err, persona.ErrUnknownPersona):
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "unknown persona")
	case errors.Is(err, tts.ErrEmptyText):
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "no speakable text")
	case errors.Is(err, tts.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, protocol.CodeUnavailable, "voice synthesis is not configured")
	case errors.Is(err, tts.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, protocol.CodeRateLimited, err.Error())
	case errors.As(err, &provider):
		status := provider.StatusCode
		if status < 400 {
			status = http.StatusBadGateway
		}
		a.logger.Warn("voice provider failure", slog.Int("status", provider.StatusCode))
		writeError(w, status, protocol.CodeUnavailable, "voice provider error")
	default:
		a.fail(w, r, err)
	}
}

package httpapi

import (
	"errors"
	"net/http"

	"github.com/alecci-media/boardroom/internal/protocol"
	"github.com/alecci-media/boardroom/internal/stt"
)

func (a *api) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if a.deps.Transcriber == nil || !a.deps.Transcriber.Enabled() {
		writeError(w, http.StatusServiceUnavailable, protocol.CodeUnavailable, "voice input is not configured")
		return
	}
	transcript, err := a.deps.Transcriber.Transcribe(r.Context(), r.Body)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, transcript)
	case errors.Is(err, stt.ErrInvalidAudio), errors.Is(err, stt.ErrTooLong):
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, err.Error())
	default:
		a.logger.Warn("transcription failed", slogError(err))
		writeError(w, http.StatusBadGateway, protocol.CodeUnavailable, "transcription failed")
	}
}

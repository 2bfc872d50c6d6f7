package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alecci-media/boardroom/internal/chat"
	"github.com/alecci-media/boardroom/internal/protocol"
)

func (a *api) handleChat(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "invalid request body")
		return
	}
	stream, err := a.deps.Chat.Start(r.Context(), userID(r), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.serveStream(w, r, stream, 0)
}

func (a *api) handleResume(w http.ResponseWriter, r *http.Request) {
	after := 0
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}
	stream, err := a.deps.Chat.Resume(r.Context(), userID(r), r.PathValue("id"), after)
	if errors.Is(err, chat.ErrNoActiveStream) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.serveStream(w, r, stream, after)
}

func (a *api) handleCancel(w http.ResponseWriter, r *http.Request) {
	err := a.deps.Chat.Cancel(r.Context(), userID(r), r.PathValue("id"))
	if err != nil && !errors.Is(err, chat.ErrNoActiveStream) {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// serveStream writes the stream's events after seq as server-sent events
// until the stream ends or the client goes away. A disconnect never stops
// generation.
func (a *api) serveStream(w http.ResponseWriter, r *http.Request, stream *chat.Stream, after int) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, protocol.CodeInternal, "streaming unsupported")
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	cursor := stream.Cursor(after)
	for {
		waitCtx, cancel := context.WithTimeout(r.Context(), a.deps.KeepAlive)
		evt, err := cursor.Next(waitCtx)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return
		case r.Context().Err() != nil:
			a.logger.Debug("client detached from stream", slog.String("conversation_id", stream.ConversationID))
			return
		case errors.Is(err, context.DeadlineExceeded):
			if _, werr := io.WriteString(w, ": keepalive\n\n"); werr != nil {
				return
			}
			flusher.Flush()
			continue
		default:
			return
		}

		data, err := json.Marshal(evt)
		if err != nil {
			a.logger.Error("encode stream event", slogError(err))
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

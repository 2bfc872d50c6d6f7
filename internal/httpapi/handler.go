// Package httpapi exposes the chat server over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alecci-media/boardroom/internal/chat"
	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
	"github.com/alecci-media/boardroom/internal/store"
	"github.com/alecci-media/boardroom/internal/stt"
	"github.com/alecci-media/boardroom/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	userHeader  = "X-User-ID"
	defaultUser = "guest"
	maxBody     = 1 << 20
)

type Deps struct {
	Chat     *chat.Service
	Store    *store.Store
	Voice    *tts.Service
	Registry *persona.Registry
	// Transcriber serves voice input; nil answers 503.
	Transcriber *stt.Service
	// Ready reports whether the server accepts traffic.
	Ready func() bool
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// KeepAlive is the idle interval between SSE comments.
	KeepAlive time.Duration
}

type api struct {
	deps     Deps
	logger   *slog.Logger
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewHandler returns the routed HTTP handler.
func NewHandler(deps Deps, logger *slog.Logger) http.Handler {
	if deps.KeepAlive <= 0 {
		deps.KeepAlive = 15 * time.Second
	}
	meter := otel.Meter("github.com/alecci-media/boardroom/httpapi")
	requests, _ := meter.Int64Counter("boardroom.http.requests", metric.WithDescription("HTTP requests served"))
	latency, _ := meter.Float64Histogram("boardroom.http.duration", metric.WithUnit("s"), metric.WithDescription("HTTP request duration"))
	a := &api{
		deps:     deps,
		logger:   logger.With(slog.String("component", "httpapi")),
		requests: requests,
		latency:  latency,
	}

	mux := http.NewServeMux()
	a.route(mux, "POST /api/chat", a.handleChat)
	a.route(mux, "GET /api/chat/{id}/stream", a.handleResume)
	a.route(mux, "DELETE /api/chat/{id}/stream", a.handleCancel)
	a.route(mux, "GET /api/chat/{id}/messages", a.handleMessages)
	a.route(mux, "DELETE /api/chat/{id}", a.handleDelete)
	a.route(mux, "GET /api/history", a.handleHistory)
	a.route(mux, "GET /api/vote", a.handleVotes)
	a.route(mux, "POST /api/vote", a.handleVote)
	a.route(mux, "POST /api/voice", a.handleVoice)
	a.route(mux, "POST /api/transcribe", a.handleTranscribe)
	a.route(mux, "GET /api/personas", a.handlePersonas)
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /readyz", a.handleReady)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}
	return mux
}

// route registers h behind request metrics labelled with pattern.
func (a *api) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		attrs := metric.WithAttributes(
			attribute.String("route", pattern),
			attribute.Int("status", rec.status),
		)
		a.requests.Add(r.Context(), 1, attrs)
		a.latency.Record(r.Context(), time.Since(start).Seconds(), attrs)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(userHeader)); id != "" {
		return id
	}
	return defaultUser
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *api) handleReady(w http.ResponseWriter, _ *http.Request) {
	if a.deps.Ready == nil || a.deps.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, protocol.ChatError{Code: code, Message: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	return dec.Decode(v)
}

// fail maps service errors onto HTTP statuses. Unknown errors are logged and
// answered with a generic message.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	var chatErr *protocol.ChatError
	switch {
	case errors.As(err, &chatErr):
		writeJSON(w, statusFor(chatErr.Code), chatErr)
	case errors.Is(err, chat.ErrStreamActive):
		writeError(w, http.StatusConflict, protocol.CodeStreamActive, err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, chat.ErrNoActiveStream):
		writeError(w, http.StatusNotFound, protocol.CodeNotFound, "not found")
	case errors.Is(err, chat.ErrForbidden):
		writeError(w, http.StatusForbidden, protocol.CodeBadRequest, "forbidden")
	case errors.Is(err, persona.ErrUnknownPersona):
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, err.Error())
	default:
		a.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slogError(err))
		writeError(w, http.StatusInternalServerError, protocol.CodeInternal, "internal error")
	}
}

func statusFor(code string) int {
	switch code {
	case protocol.CodeBadRequest:
		return http.StatusBadRequest
	case protocol.CodePaymentRequired:
		return http.StatusPaymentRequired
	case protocol.CodeRateLimited:
		return http.StatusTooManyRequests
	case protocol.CodeUnavailable:
		return http.StatusServiceUnavailable
	case protocol.CodeStreamActive:
		return http.StatusConflict
	case protocol.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecci-media/boardroom/internal/config"
	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func collect(t *testing.T, g Generator, req Request) ([]Chunk, error) {
	t.Helper()
	var chunks []Chunk
	err := g.Generate(context.Background(), req, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	return chunks, err
}

func textOf(chunks []Chunk, kind ChunkKind) string {
	var b strings.Builder
	for _, c := range chunks {
		if c.Kind == kind {
			b.WriteString(c.Content)
		}
	}
	return b.String()
}

func TestMockGeneratorStreamsWords(t *testing.T) {
	req := Request{PersonaID: persona.Kim, Messages: []Turn{{Role: "user", Content: "hello there"}}}
	chunks, err := collect(t, NewMockGenerator(0), req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := textOf(chunks, ChunkText); got != "[kim] mock completion for hello there" {
		t.Fatalf("unexpected text %q", got)
	}
	last := chunks[len(chunks)-1]
	if last.Kind != ChunkUsage || last.CompletionTokens == 0 {
		t.Fatalf("expected trailing usage chunk, got %+v", last)
	}
}

func TestMockGeneratorHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMockGenerator(0).Generate(ctx, Request{}, func(Chunk) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestOllamaGeneratorStreamsChat(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		lines := []string{
			`{"message":{"role":"assistant","thinking":"hmm"},"done":false}`,
			`{"message":{"role":"assistant","content":"Hel"},"done":false}`,
			`{"message":{"role":"assistant","content":"lo"},"done":false}`,
			`{"message":{"role":"assistant","content":""},"done":true,"eval_count":7,"prompt_eval_count":11}`,
		}
		for _, l := range lines {
			_, _ = io.WriteString(w, l+"\n")
		}
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(OllamaConfig{Endpoint: srv.URL + "/", ModelChat: "chat", ModelReasoning: "think"})
	chunks, err := collect(t, gen, Request{
		System:   "be brief",
		Messages: []Turn{{Role: "user", Content: "hi"}},
		Mode:     protocol.ModeReasoning,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got.Model != "think" || !got.Think || !got.Stream {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("expected system message first, got %+v", got.Messages)
	}
	if textOf(chunks, ChunkText) != "Hello" || textOf(chunks, ChunkReasoning) != "hmm" {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
	last := chunks[len(chunks)-1]
	if last.Kind != ChunkUsage || last.PromptTokens != 11 || last.CompletionTokens != 7 {
		t.Fatalf("unexpected usage %+v", last)
	}
}

func TestOllamaGeneratorStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		code   string
	}{
		{http.StatusPaymentRequired, protocol.CodePaymentRequired},
		{http.StatusTooManyRequests, protocol.CodeRateLimited},
		{http.StatusInternalServerError, protocol.CodeUnavailable},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		_, err := collect(t, NewOllamaGenerator(OllamaConfig{Endpoint: srv.URL}), Request{})
		srv.Close()
		var chatErr *protocol.ChatError
		if !errors.As(err, &chatErr) || chatErr.Code != tc.code {
			t.Fatalf("status %d: expected code %s, got %v", tc.status, tc.code, err)
		}
	}
}

func TestOllamaGeneratorTruncatedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":{"content":"partial"},"done":false}`+"\n")
	}))
	defer srv.Close()
	chunks, err := collect(t, NewOllamaGenerator(OllamaConfig{Endpoint: srv.URL}), Request{})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
	if textOf(chunks, ChunkText) != "partial" {
		t.Fatalf("expected partial text before failure")
	}
}

func TestExecGeneratorStreamsNDJSON(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "model.sh")
	body := "#!/bin/sh\ncat >/dev/null\n" +
		"echo '{\"reasoning\":\"r\"}'\n" +
		"echo '{\"content\":\"a\"}'\n" +
		"echo '{\"content\":\"b\",\"done\":true,\"prompt_tokens\":3,\"completion_tokens\":2}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	gen, err := NewExecGenerator(script)
	if err != nil {
		t.Fatalf("new exec: %v", err)
	}
	chunks, err := collect(t, gen, Request{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if textOf(chunks, ChunkText) != "ab" || textOf(chunks, ChunkReasoning) != "r" {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
	last := chunks[len(chunks)-1]
	if last.Kind != ChunkUsage || last.PromptTokens != 3 {
		t.Fatalf("unexpected usage %+v", last)
	}
}

func TestExecGeneratorRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecGenerator("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestServiceAppliesDefaults(t *testing.T) {
	var seen Request
	gen := generatorFunc(func(ctx context.Context, req Request, consumer func(Chunk) error) error {
		seen = req
		return consumer(Chunk{Kind: ChunkText, Content: "ok"})
	})
	svc := NewService(config.LLMConfig{MaxTokens: 99, Temperature: 0.3, TimeoutSeconds: 5}, gen, newLogger())
	chunks, err := collect(t, svc, Request{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if seen.MaxTokens != 99 || seen.Temperature != 0.3 {
		t.Fatalf("expected defaults applied, got %+v", seen)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected passthrough chunk")
	}

	failing := generatorFunc(func(context.Context, Request, func(Chunk) error) error {
		return errors.New("boom")
	})
	if _, err := collect(t, NewService(config.LLMConfig{}, failing, newLogger()), Request{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewGeneratorModes(t *testing.T) {
	for _, mode := range []string{"mock", "ollama"} {
		if _, err := NewGenerator(config.LLMConfig{Mode: mode}); err != nil {
			t.Fatalf("mode %s: %v", mode, err)
		}
	}
	if _, err := NewGenerator(config.LLMConfig{Mode: "bogus"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

type generatorFunc func(context.Context, Request, func(Chunk) error) error

func (f generatorFunc) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	return f(ctx, req, consumer)
}

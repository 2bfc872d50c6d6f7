package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alecci-media/boardroom/internal/protocol"
)

type OllamaConfig struct {
	Endpoint       string
	ModelChat      string
	ModelReasoning string
	Client         *http.Client
}

type ollamaGenerator struct {
	endpoint       string
	modelChat      string
	modelReasoning string
	client         *http.Client
}

func NewOllamaGenerator(cfg OllamaConfig) Generator {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &ollamaGenerator{
		endpoint:       strings.TrimRight(cfg.Endpoint, "/"),
		modelChat:      cfg.ModelChat,
		modelReasoning: cfg.ModelReasoning,
		client:         client,
	}
}

func (g *ollamaGenerator) modelForMode(mode protocol.ModelMode) string {
	if mode == protocol.ModeReasoning && g.modelReasoning != "" {
		return g.modelReasoning
	}
	if g.modelChat != "" {
		return g.modelChat
	}
	return "llama3.2:latest"
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Think    bool            `json:"think,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaStreamResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	EvalCount       int           `json:"eval_count,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	Error           string        `json:"error,omitempty"`
}

func (g *ollamaGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	messages := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, t := range req.Messages {
		messages = append(messages, ollamaMessage{Role: t.Role, Content: t.Content})
	}
	payload := ollamaRequest{
		Model:    g.modelForMode(req.Mode),
		Messages: messages,
		Stream:   true,
		Think:    req.Mode == protocol.ModeReasoning,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	start := time.Now()
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaStreamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("decode ollama chunk: %w", err)
		}
		if chunk.Error != "" {
			return &protocol.ChatError{Code: protocol.CodeUnavailable, Message: chunk.Error}
		}
		if chunk.Message.Thinking != "" {
			if err := consumer(Chunk{Kind: ChunkReasoning, Content: chunk.Message.Thinking, Latency: time.Since(start)}); err != nil {
				return err
			}
		}
		if chunk.Message.Content != "" {
			if err := consumer(Chunk{Kind: ChunkText, Content: chunk.Message.Content, Latency: time.Since(start)}); err != nil {
				return err
			}
		}
		if chunk.Done {
			return consumer(Chunk{
				Kind:             ChunkUsage,
				PromptTokens:     chunk.PromptEvalCount,
				CompletionTokens: chunk.EvalCount,
				Latency:          time.Since(start),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

// statusError maps provider statuses onto the codes clients act on.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = "completion provider returned " + resp.Status
	}
	code := protocol.CodeUnavailable
	switch resp.StatusCode {
	case http.StatusPaymentRequired:
		code = protocol.CodePaymentRequired
	case http.StatusTooManyRequests:
		code = protocol.CodeRateLimited
	case http.StatusBadRequest, http.StatusNotFound:
		code = protocol.CodeBadRequest
	}
	return &protocol.ChatError{Code: code, Message: msg}
}

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// execGenerator runs a local command per request. The command reads one JSON
// request on stdin and writes newline-delimited JSON chunks on stdout.
type execGenerator struct {
	cmd []string
}

type execRequest struct {
	System      string  `json:"system"`
	Messages    []Turn  `json:"messages"`
	Mode        string  `json:"mode"`
	Persona     string  `json:"persona"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type execChunk struct {
	Content          string `json:"content,omitempty"`
	Reasoning        string `json:"reasoning,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	Done             bool   `json:"done,omitempty"`
}

func NewExecGenerator(command string) (Generator, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse llm command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("llm command empty")
	}
	return &execGenerator{cmd: args}, nil
}

func (g *execGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	input, err := json.Marshal(execRequest{
		System:      req.System,
		Messages:    req.Messages,
		Mode:        string(req.Mode),
		Persona:     string(req.PersonaID),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, g.cmd[0], g.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start llm command: %w", err)
	}

	consumeErr := g.consume(stdout, consumer)
	if consumeErr != nil {
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if consumeErr != nil {
		return consumeErr
	}
	if waitErr != nil {
		return fmt.Errorf("llm exec command failed: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (g *execGenerator) consume(stdout io.Reader, consumer func(Chunk) error) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	usageSent := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var c execChunk
		if err := json.Unmarshal(line, &c); err != nil {
			return fmt.Errorf("decode llm exec chunk: %w", err)
		}
		if c.Reasoning != "" {
			if err := consumer(Chunk{Kind: ChunkReasoning, Content: c.Reasoning}); err != nil {
				return err
			}
		}
		if c.Content != "" {
			if err := consumer(Chunk{Kind: ChunkText, Content: c.Content}); err != nil {
				return err
			}
		}
		if !usageSent && (c.Done || c.PromptTokens > 0 || c.CompletionTokens > 0) {
			usageSent = true
			if err := consumer(Chunk{Kind: ChunkUsage, PromptTokens: c.PromptTokens, CompletionTokens: c.CompletionTokens}); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

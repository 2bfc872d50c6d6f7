package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// execSynth runs an external command per request. The command reads one JSON
// request on stdin and writes NDJSON lines of base64 audio on stdout.
type execSynth struct {
	cmd         []string
	contentType string
}

type execRequest struct {
	Text            string  `json:"text"`
	Persona         string  `json:"persona"`
	VoiceID         string  `json:"voice_id"`
	ModelID         string  `json:"model_id"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"speaker_boost"`
}

type execResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Final       bool   `json:"final"`
}

func NewExecSynth(command, contentType string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &execSynth{cmd: args, contentType: contentType}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	data, err := json.Marshal(execRequest{
		Text:            req.Text,
		Persona:         string(req.PersonaID),
		VoiceID:         req.Voice.VoiceID,
		ModelID:         req.Voice.ModelID,
		Stability:       req.Voice.Stability,
		SimilarityBoost: req.Voice.SimilarityBoost,
		Style:           req.Voice.Style,
		SpeakerBoost:    req.Voice.SpeakerBoost,
	})
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	if _, err := stdin.Write(data); err != nil {
		_ = cmd.Wait()
		return nil, err
	}
	stdin.Close()

	pr, pw := io.Pipe()
	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		var streamErr error
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var resp execResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				streamErr = fmt.Errorf("decode tts output: %w", err)
				break
			}
			chunk, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
			if err != nil {
				streamErr = fmt.Errorf("decode tts audio: %w", err)
				break
			}
			if _, err := pw.Write(chunk); err != nil {
				streamErr = err
				break
			}
			if resp.Final {
				break
			}
		}
		if streamErr == nil {
			streamErr = scanner.Err()
		}
		if streamErr != nil {
			// Unblock the child before waiting on it.
			_ = cmd.Process.Kill()
		}
		waitErr := cmd.Wait()
		if streamErr == nil && waitErr != nil && !errors.Is(ctx.Err(), context.Canceled) {
			streamErr = fmt.Errorf("tts command: %w", waitErr)
		}
		pw.CloseWithError(streamErr)
	}()
	return &Audio{Body: pr, ContentType: e.contentType}, nil
}

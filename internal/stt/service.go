package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alecci-media/boardroom/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// ServiceConfig bounds accepted uploads.
type ServiceConfig struct {
	MaxBytes    int64
	MaxDuration time.Duration
	Timeout     time.Duration
}

// Service validates voice uploads and runs the recognizer.
type Service struct {
	cfg        ServiceConfig
	recognizer Recognizer
	logger     *slog.Logger

	requests metric.Int64Counter
	failures metric.Int64Counter
	seconds  metric.Float64Counter
}

// NewRecognizer returns the configured backend, or nil when voice input is
// disabled.
func NewRecognizer(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "disabled", "":
		return nil, nil
	case "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}

// NewService returns a transcription service. A nil recognizer makes every
// request fail with ErrNotConfigured.
func NewService(recognizer Recognizer, cfg ServiceConfig, log *slog.Logger) *Service {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 << 20
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 2 * time.Minute
	}
	meter := otel.Meter("github.com/alecci-media/boardroom/stt")
	requests, _ := meter.Int64Counter("boardroom.stt.requests", metric.WithDescription("Transcription requests"))
	failures, _ := meter.Int64Counter("boardroom.stt.failures", metric.WithDescription("Failed transcription requests"))
	seconds, _ := meter.Float64Counter("boardroom.stt.audio_seconds", metric.WithDescription("Seconds of audio transcribed"), metric.WithUnit("s"))
	return &Service{
		cfg:        cfg,
		recognizer: recognizer,
		logger:     log.With(slog.String("component", "stt-service")),
		requests:   requests,
		failures:   failures,
		seconds:    seconds,
	}
}

// Enabled reports whether a recognizer is configured.
func (s *Service) Enabled() bool { return s.recognizer != nil }

// Transcribe decodes a WAV upload and returns its trimmed transcript.
func (s *Service) Transcribe(ctx context.Context, body io.Reader) (Transcript, error) {
	if s.recognizer == nil {
		return Transcript{}, ErrNotConfigured
	}
	raw, err := io.ReadAll(io.LimitReader(body, s.cfg.MaxBytes+1))
	if err != nil {
		return Transcript{}, fmt.Errorf("read audio: %w", err)
	}
	if int64(len(raw)) > s.cfg.MaxBytes {
		return Transcript{}, fmt.Errorf("%w: more than %d bytes", ErrTooLong, s.cfg.MaxBytes)
	}
	clip, err := DecodeWAV(bytes.NewReader(raw))
	if err != nil {
		return Transcript{}, err
	}
	duration := clip.Duration()
	if duration > s.cfg.MaxDuration {
		return Transcript{}, fmt.Errorf("%w: %s exceeds %s", ErrTooLong, duration.Round(time.Millisecond), s.cfg.MaxDuration)
	}
	if len(clip.Samples) == 0 {
		return Transcript{}, fmt.Errorf("%w: no samples", ErrInvalidAudio)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	ctx, span := otel.Tracer("github.com/alecci-media/boardroom/stt").Start(ctx, "stt.transcribe")
	defer span.End()
	span.SetAttributes(attribute.Float64("audio_seconds", duration.Seconds()), attribute.Int("sample_rate", clip.SampleRate))
	s.requests.Add(ctx, 1)
	s.seconds.Add(ctx, duration.Seconds())

	start := time.Now()
	result, err := s.recognizer.Transcribe(ctx, clip)
	if err != nil {
		s.failures.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("stt transcription failed", slogError(err))
		return Transcript{}, fmt.Errorf("transcribe: %w", err)
	}
	result.Text = strings.TrimSpace(result.Text)
	s.logger.Debug("transcribed clip",
		slog.Duration("audio", duration),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("chars", len(result.Text)))
	return result, nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

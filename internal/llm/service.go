package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alecci-media/boardroom/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// NewGenerator builds the backend selected by cfg.Mode.
func NewGenerator(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockGenerator(25 * time.Millisecond), nil
	case "ollama":
		return NewOllamaGenerator(OllamaConfig{
			Endpoint:       cfg.Endpoint,
			ModelChat:      cfg.ModelChat,
			ModelReasoning: cfg.ModelReasoning,
		}), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}

// Service applies configured defaults and limits to every generation and
// records traces and metrics around the backend.
type Service struct {
	cfg       config.LLMConfig
	generator Generator
	logger    *slog.Logger

	generations metric.Int64Counter
	failures    metric.Int64Counter
	latency     metric.Float64Histogram
}

func NewService(cfg config.LLMConfig, generator Generator, logger *slog.Logger) *Service {
	meter := otel.Meter("github.com/alecci-media/boardroom/llm")
	generations, _ := meter.Int64Counter("boardroom.llm.generations", metric.WithDescription("Completion requests"))
	failures, _ := meter.Int64Counter("boardroom.llm.failures", metric.WithDescription("Failed completion requests"))
	latency, _ := meter.Float64Histogram("boardroom.llm.latency", metric.WithUnit("s"), metric.WithDescription("Completion latency"))
	return &Service{
		cfg:         cfg,
		generator:   generator,
		logger:      logger.With(slog.String("component", "llm-service")),
		generations: generations,
		failures:    failures,
		latency:     latency,
	}
}

// Generate implements Generator.
func (s *Service) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	req.MaxTokens = coalesceInt(req.MaxTokens, s.cfg.MaxTokens)
	if req.Temperature == 0 {
		req.Temperature = s.cfg.Temperature
	}
	if s.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	attrs := metric.WithAttributes(
		attribute.String("persona", string(req.PersonaID)),
		attribute.String("mode", string(req.Mode)),
	)
	ctx, span := otel.Tracer("github.com/alecci-media/boardroom/llm").Start(ctx, "llm.generate")
	span.SetAttributes(
		attribute.String("conversation.id", req.ConversationID),
		attribute.String("persona", string(req.PersonaID)),
		attribute.String("mode", string(req.Mode)),
	)
	defer span.End()
	s.generations.Add(ctx, 1, attrs)

	start := time.Now()
	err := s.generator.Generate(ctx, req, consumer)
	s.latency.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		if ctx.Err() == nil {
			s.failures.Add(ctx, 1, attrs)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Warn("llm generation failed", slog.String("conversation_id", req.ConversationID), slogError(err))
		}
		return err
	}
	s.logger.Debug("llm generation complete",
		slog.String("conversation_id", req.ConversationID),
		slog.Duration("latency", time.Since(start)),
	)
	return nil
}

func coalesceInt(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alecci-media/boardroom/internal/persona"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// ErrRateLimited means the caller exceeded its synthesis allowance.
var ErrRateLimited = errors.New("voice rate limit exceeded")

const limiterIdle = 10 * time.Minute

// ServiceConfig tunes the voice service.
type ServiceConfig struct {
	MaxTextLength int
	// RequestsPerMinute per user; zero disables limiting.
	RequestsPerMinute float64
	Burst             int
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Service validates voice requests and forwards them to a provider.
type Service struct {
	cfg      ServiceConfig
	registry *persona.Registry
	synth    Synthesizer
	logger   *slog.Logger
	clock    func() time.Time

	mu       sync.Mutex
	limiters map[string]*userLimiter

	requests metric.Int64Counter
	failures metric.Int64Counter
}

// NewService returns a voice service. A nil synth makes every request fail
// with ErrNotConfigured.
func NewService(registry *persona.Registry, synth Synthesizer, cfg ServiceConfig, log *slog.Logger) *Service {
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = MaxTextLength
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	meter := otel.Meter("github.com/alecci-media/boardroom/tts")
	requests, _ := meter.Int64Counter("boardroom.tts.requests", metric.WithDescription("Speech synthesis requests"))
	failures, _ := meter.Int64Counter("boardroom.tts.failures", metric.WithDescription("Failed speech synthesis requests"))
	return &Service{
		cfg:      cfg,
		registry: registry,
		synth:    synth,
		logger:   log.With(slog.String("component", "tts-service")),
		clock:    time.Now,
		limiters: make(map[string]*userLimiter),
		requests: requests,
		failures: failures,
	}
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool { return s.synth != nil }

// Speak validates the request and returns the provider's audio stream.
func (s *Service) Speak(ctx context.Context, userID, text string, id persona.ID) (*Audio, error) {
	p, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	clean, err := Prepare(text, s.cfg.MaxTextLength)
	if err != nil {
		return nil, err
	}
	if s.synth == nil {
		return nil, ErrNotConfigured
	}
	if !s.allow(userID) {
		return nil, ErrRateLimited
	}

	ctx, span := otel.Tracer("github.com/alecci-media/boardroom/tts").Start(ctx, "tts.synthesize")
	defer span.End()
	span.SetAttributes(attribute.String("persona", string(p.ID)), attribute.Int("chars", len(clean)))
	attrs := metric.WithAttributes(attribute.String("persona", string(p.ID)))
	s.requests.Add(ctx, 1, attrs)

	audio, err := s.synth.Synthesize(ctx, Request{Text: clean, PersonaID: p.ID, Voice: p.Voice})
	if err != nil {
		s.failures.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("speech synthesis failed", slog.String("persona", string(p.ID)), slogError(err))
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return audio, nil
}

func (s *Service) allow(userID string) bool {
	if s.cfg.RequestsPerMinute <= 0 {
		return true
	}
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, l := range s.limiters {
		if now.Sub(l.lastSeen) > limiterIdle {
			delete(s.limiters, id)
		}
	}
	l, ok := s.limiters[userID]
	if !ok {
		l = &userLimiter{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerMinute/60), s.cfg.Burst)}
		s.limiters[userID] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

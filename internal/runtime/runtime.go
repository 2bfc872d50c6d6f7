// Package runtime wires the chat server together and runs it until its
// context ends.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alecci-media/boardroom/internal/bus"
	"github.com/alecci-media/boardroom/internal/chat"
	"github.com/alecci-media/boardroom/internal/config"
	"github.com/alecci-media/boardroom/internal/httpapi"
	"github.com/alecci-media/boardroom/internal/knowledge"
	"github.com/alecci-media/boardroom/internal/llm"
	"github.com/alecci-media/boardroom/internal/natsserver"
	"github.com/alecci-media/boardroom/internal/prompt"
	"github.com/alecci-media/boardroom/internal/store"
	"github.com/alecci-media/boardroom/internal/stt"
	"github.com/alecci-media/boardroom/internal/tts"
)

const pruneInterval = time.Hour

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup

	nats  *natsserver.EmbeddedServer
	bus   *bus.Client
	store *store.Store
	chat  *chat.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start builds every component, serves HTTP and blocks until ctx is done.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := newTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}()

	handler, err := r.build(ctx, tel.metrics)
	if err != nil {
		r.close()
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slogError(err))
			serveErr <- err
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pruneLoop(ctx)
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		cancel()
	}

	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Duration(r.cfg.HTTP.ShutdownTimeoutMS)*time.Millisecond)
	defer cancelShutdown()
	// Generations end first so open SSE responses see their terminal event.
	r.chat.Close()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slogError(err))
	}
	r.wg.Wait()
	r.close()

	return runErr
}

func (r *Runtime) build(ctx context.Context, metrics http.Handler) (http.Handler, error) {
	registry, err := buildRegistry(r.cfg, r.logger)
	if err != nil {
		return nil, err
	}

	var publisher chat.Publisher
	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		r.nats, err = natsserver.Start(busCfg, r.logger)
		if err != nil {
			return nil, err
		}
		if r.nats != nil {
			busCfg.Servers = []string{r.nats.ClientURL()}
		}
		r.bus, err = bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			return nil, err
		}
		retention := time.Duration(r.cfg.Chat.StreamRetentionSeconds) * time.Second
		if err := r.bus.EnsureChatStream(max(retention, time.Hour)); err != nil {
			r.logger.Warn("chat notification stream unavailable", slogError(err))
		}
		publisher = r.bus
	}

	r.store, err = store.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return nil, err
	}

	var loader prompt.ContextLoader
	if root := r.cfg.Knowledge.Root; root != "" {
		if info, statErr := os.Stat(root); statErr == nil && info.IsDir() {
			kl := knowledge.NewLoader(os.DirFS(root), registry, knowledge.Options{
				TTL:         r.cfg.Knowledge.TTL(),
				Parallelism: r.cfg.Knowledge.Parallelism,
			}, r.logger)
			if r.cfg.Knowledge.Watch {
				if err := kl.Watch(ctx, root); err != nil {
					r.logger.Warn("knowledge watch disabled", slogError(err))
				}
			}
			loader = kl
		} else {
			r.logger.Warn("knowledge root not found; personas run without reference material", slog.String("root", root))
		}
	}

	backend, err := llm.NewGenerator(r.cfg.LLM)
	if err != nil {
		return nil, err
	}
	synth, err := newSynthesizer(r.cfg.TTS, r.logger)
	if err != nil {
		return nil, err
	}

	r.chat = chat.NewService(ctx, chat.Deps{
		Registry:  registry,
		Composer:  prompt.NewComposer(registry, loader),
		Generator: llm.NewService(r.cfg.LLM, backend, r.logger),
		Store:     r.store,
		Hub:       chat.NewHub(time.Duration(r.cfg.Chat.StreamRetentionSeconds) * time.Second),
		Publisher: publisher,
	}, r.logger)

	voice := tts.NewService(registry, synth, tts.ServiceConfig{
		MaxTextLength:     r.cfg.TTS.MaxTextLength,
		RequestsPerMinute: r.cfg.TTS.RequestsPerMinute,
		Burst:             r.cfg.TTS.Burst,
	}, r.logger)

	recognizer, err := stt.NewRecognizer(r.cfg.STT)
	if err != nil {
		return nil, err
	}
	transcriber := stt.NewService(recognizer, stt.ServiceConfig{
		MaxBytes:    r.cfg.STT.MaxBytes,
		MaxDuration: time.Duration(r.cfg.STT.MaxSeconds) * time.Second,
		Timeout:     time.Duration(r.cfg.STT.TimeoutSeconds) * time.Second,
	}, r.logger)

	r.logger.Info("components ready",
		slog.String("llm_mode", r.cfg.LLM.Mode),
		slog.Bool("voice", voice.Enabled()),
		slog.Bool("voice_input", transcriber.Enabled()),
		slog.Bool("knowledge", loader != nil),
		slog.Bool("bus", r.bus != nil),
	)

	return httpapi.NewHandler(httpapi.Deps{
		Chat:        r.chat,
		Store:       r.store,
		Voice:       voice,
		Registry:    registry,
		Transcriber: transcriber,
		Ready:       r.healthy,
		Metrics:     metrics,
	}, r.logger), nil
}

func (r *Runtime) healthy() bool {
	if !r.ready.Load() {
		return false
	}
	if r.cfg.Bus.Enabled && !r.bus.Healthy() {
		return false
	}
	if r.nats != nil && !r.nats.Running() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return r.store.Ping(ctx) == nil
}

func (r *Runtime) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.store.Prune(ctx); err != nil {
				r.logger.Warn("store prune failed", slogError(err))
			}
		}
	}
}

func (r *Runtime) close() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("store close error", slogError(err))
		}
	}
	r.bus.Close()
	r.nats.Shutdown()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

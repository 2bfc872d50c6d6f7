package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecci-media/boardroom/internal/config"
	"github.com/alecci-media/boardroom/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	configPath := flag.String("config", "", "Path to boardroom.yaml (built-in defaults when empty)")
	checkOnly := flag.Bool("check", false, "Validate the configuration and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}
	if err := run(*configPath, *checkOnly, os.Stdout); err != nil {
		os.Exit(1)
	}
}

func run(configPath string, checkOnly bool, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(out, nil)).Error("invalid configuration",
			slog.String("path", configPath), slog.String("error", err.Error()))
		return err
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(cfg.Telemetry.LogLevel)})).
		With(slog.String("service", cfg.ServiceName), slog.String("version", version))
	if checkOnly {
		logger.Info("configuration ok", slog.String("environment", cfg.Environment),
			slog.String("llm_mode", cfg.LLM.Mode), slog.String("tts_mode", cfg.TTS.Mode), slog.String("stt_mode", cfg.STT.Mode))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runtime.New(cfg, logger).Start(ctx); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

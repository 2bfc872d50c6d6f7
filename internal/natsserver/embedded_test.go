package natsserver

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alecci-media/boardroom/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStartSkipsExternalBus(t *testing.T) {
	for _, cfg := range []config.BusConfig{
		{Enabled: false, Embedded: true},
		{Enabled: true, Embedded: false},
	} {
		srv, err := Start(cfg, newLogger())
		if err != nil || srv != nil {
			t.Fatalf("expected no server for %+v, got %v, %v", cfg, srv, err)
		}
		if srv.Running() {
			t.Fatal("nil server reported running")
		}
		srv.Shutdown()
	}
}

func TestStartServesLoopback(t *testing.T) {
	srv, err := Start(config.BusConfig{Enabled: true, Embedded: true, Port: -1, StoreDir: t.TempDir()}, newLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !srv.Running() {
		t.Fatal("expected running server")
	}
	if !strings.HasPrefix(srv.ClientURL(), "nats://127.0.0.1:") {
		t.Fatalf("unexpected client url %q", srv.ClientURL())
	}
	srv.Shutdown()
	if srv.Running() {
		t.Fatal("server still running after shutdown")
	}
}

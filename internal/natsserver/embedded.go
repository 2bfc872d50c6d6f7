// Package natsserver runs an in-process NATS server so a single boardroomd
// needs no external broker.
package natsserver

import (
	"cmp"
	"fmt"
	"log/slog"
	"time"

	"github.com/alecci-media/boardroom/internal/config"
	"github.com/nats-io/nats-server/v2/server"
)

const (
	readyTimeout = 5 * time.Second
	// Chat notifications are small; the cap keeps a forgotten stream from
	// filling the disk.
	maxStoreBytes = 256 << 20
)

// EmbeddedServer is the broker boardroomd hosts when bus.embedded is set. It
// listens on loopback only and keeps JetStream state for the chat stream.
type EmbeddedServer struct {
	ns  *server.Server
	log *slog.Logger
}

// Start returns nil, nil when the bus is disabled or external.
func Start(cfg config.BusConfig, log *slog.Logger) (*EmbeddedServer, error) {
	if !cfg.Enabled || !cfg.Embedded {
		return nil, nil
	}
	storeDir := cmp.Or(cfg.StoreDir, "./data/nats")

	ns, err := server.NewServer(&server.Options{
		ServerName:        "boardroomd",
		Host:              "127.0.0.1",
		Port:              cfg.Port,
		JetStream:         true,
		JetStreamMaxStore: maxStoreBytes,
		StoreDir:          storeDir,
		NoSigs:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready after %s", readyTimeout)
	}

	e := &EmbeddedServer{ns: ns, log: log.With(slog.String("component", "natsserver"))}
	e.log.Info("embedded NATS server started", slog.String("url", ns.ClientURL()), slog.String("store_dir", storeDir))
	return e, nil
}

func (e *EmbeddedServer) ClientURL() string {
	return e.ns.ClientURL()
}

// Running reports whether the server still accepts clients.
func (e *EmbeddedServer) Running() bool {
	return e != nil && e.ns != nil && e.ns.Running()
}

func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.log.Info("shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}

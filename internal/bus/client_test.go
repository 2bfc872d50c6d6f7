package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alecci-media/boardroom/internal/config"
	"github.com/alecci-media/boardroom/internal/natsserver"
	"github.com/alecci-media/boardroom/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startBus(t *testing.T) *Client {
	t.Helper()
	srv, err := natsserver.Start(config.BusConfig{
		Enabled:  true,
		Embedded: true,
		Port:     -1,
		StoreDir: t.TempDir(),
	}, newLogger())
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestPublishJSONRoundTrip(t *testing.T) {
	client := startBus(t)
	if !client.Healthy() {
		t.Fatal("expected healthy connection")
	}

	got := make(chan protocol.HistoryUpdated, 1)
	sub, err := client.Subscribe(protocol.SubjectHistoryUpdated, func(data []byte) {
		var evt protocol.HistoryUpdated
		if err := json.Unmarshal(data, &evt); err == nil {
			got <- evt
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if err := client.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if err := client.PublishJSON(protocol.SubjectHistoryUpdated, protocol.HistoryUpdated{ConversationID: "c1", UserID: "u1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case evt := <-got:
		if evt.ConversationID != "c1" || evt.UserID != "u1" {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestEnsureChatStreamRetainsNotifications(t *testing.T) {
	client := startBus(t)
	if err := client.EnsureChatStream(time.Hour); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}
	// Idempotent on restart.
	if err := client.EnsureChatStream(time.Hour); err != nil {
		t.Fatalf("ensure stream again: %v", err)
	}
	if _, err := client.JetStream().Publish(protocol.SubjectStreamFinished, []byte(`{"status":"done"}`)); err != nil {
		t.Fatalf("jetstream publish: %v", err)
	}
	info, err := client.JetStream().StreamInfo(ChatStream)
	if err != nil {
		t.Fatalf("stream info: %v", err)
	}
	if info.State.Msgs != 1 {
		t.Fatalf("expected 1 retained message, got %d", info.State.Msgs)
	}
}

func TestConnectRequiresServers(t *testing.T) {
	if _, err := Connect(context.Background(), config.BusConfig{}, newLogger()); err == nil {
		t.Fatal("expected error without servers")
	}
}

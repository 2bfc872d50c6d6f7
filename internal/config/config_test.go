package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Knowledge.TTL().Minutes() != 5 {
		t.Fatalf("expected 5 minute knowledge ttl, got %s", cfg.Knowledge.TTL())
	}
	if cfg.Chat.DefaultPersona != "alexandria" {
		t.Fatalf("expected alexandria default persona, got %q", cfg.Chat.DefaultPersona)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BOARDROOM_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("BOARDROOM_BUS_USERNAME", "alice")
	t.Setenv("BOARDROOM_BUS_PASSWORD", "secret")
	t.Setenv("BOARDROOM_BUS_TLS_INSECURE", "true")
	t.Setenv("BOARDROOM_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("BOARDROOM_HTTP_PORT", "9090")
	t.Setenv("BOARDROOM_STORE_PATH", "./tmp.db")
	t.Setenv("BOARDROOM_STORE_RETENTION_DAYS", "7")
	t.Setenv("BOARDROOM_STORE_MAX_CONVERSATIONS", "123")
	t.Setenv("BOARDROOM_STORE_VACUUM_ON_START", "true")
	t.Setenv("BOARDROOM_LLM_MODE", "ollama")
	t.Setenv("BOARDROOM_LLM_TEMPERATURE", "0.2")
	t.Setenv("BOARDROOM_TTS_REQUESTS_PER_MINUTE", "12.5")
	t.Setenv("ELEVENLABS_API_KEY", "xi-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.HTTP.Port != 9090 {
		t.Fatalf("expected http port override, got %d", cfg.HTTP.Port)
	}
	if cfg.Store.Path != "./tmp.db" {
		t.Fatalf("expected store path override")
	}
	if cfg.Store.RetentionDays != 7 {
		t.Fatalf("expected retention days 7, got %d", cfg.Store.RetentionDays)
	}
	if cfg.Store.MaxConversations != 123 {
		t.Fatalf("expected max conversations 123, got %d", cfg.Store.MaxConversations)
	}
	if !cfg.Store.VacuumOnStart {
		t.Fatal("expected vacuum on start true")
	}
	if cfg.LLM.Mode != "ollama" || cfg.LLM.Temperature != 0.2 {
		t.Fatalf("expected llm overrides, got %+v", cfg.LLM)
	}
	if cfg.TTS.RequestsPerMinute != 12.5 {
		t.Fatalf("expected tts rate override, got %v", cfg.TTS.RequestsPerMinute)
	}
	if cfg.TTS.APIKey != "xi-key" {
		t.Fatalf("expected api key from ELEVENLABS_API_KEY")
	}
}

func TestVoiceOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ELEVENLABS_VOICE_ID_ALEXANDRIA", "voice-alex")
	t.Setenv("ELEVENLABS_VOICE_ID_KIM", " voice-kim ")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Personas["kim"].VoiceID; got != "voice-kim" {
		t.Fatalf("expected kim voice, got %q", got)
	}
	if got := cfg.Personas["collaborative"].VoiceID; got != "voice-alex" {
		t.Fatalf("expected collaborative to borrow alexandria voice, got %q", got)
	}

	t.Setenv("ELEVENLABS_VOICE_ID_COLLABORATIVE", "voice-team")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Personas["collaborative"].VoiceID; got != "voice-team" {
		t.Fatalf("expected own collaborative voice, got %q", got)
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env.local"), []byte("BOARDROOM_LLM_MODEL_CHAT=local-model\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("BOARDROOM_LLM_MODEL_CHAT=env-model\nBOARDROOM_HTTP_BIND=127.0.0.1\nBOARDROOM_SERVICE_NAME=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Registered with t.Setenv so the values loaded from files get cleaned up.
	t.Setenv("BOARDROOM_LLM_MODEL_CHAT", "")
	os.Unsetenv("BOARDROOM_LLM_MODEL_CHAT")
	t.Setenv("BOARDROOM_HTTP_BIND", "")
	os.Unsetenv("BOARDROOM_HTTP_BIND")
	t.Setenv("BOARDROOM_SERVICE_NAME", "from-process")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.ModelChat != "local-model" {
		t.Fatalf("expected .env.local to win, got %q", cfg.LLM.ModelChat)
	}
	if cfg.HTTP.Bind != "127.0.0.1" {
		t.Fatalf("expected .env value, got %q", cfg.HTTP.Bind)
	}
	if cfg.ServiceName != "from-process" {
		t.Fatalf("expected process env to win, got %q", cfg.ServiceName)
	}
}

func TestLoadYAMLAndValidate(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "boardroom.yaml")
	body := "llm:\n  mode: exec\n  command: ./model.sh\npersonas:\n  kim:\n    voice_id: yaml-voice\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Command != "./model.sh" || cfg.Personas["kim"].VoiceID != "yaml-voice" {
		t.Fatalf("unexpected yaml config: %+v", cfg)
	}

	if err := os.WriteFile(path, []byte("llm:\n  mode: exec\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for exec mode without command")
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSTTValidation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BOARDROOM_STT_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec stt without command")
	}
	t.Setenv("BOARDROOM_STT_COMMAND", "whisper-cli --json")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.STT.Command != "whisper-cli --json" || cfg.STT.Language != "en" {
		t.Fatalf("unexpected stt config %+v", cfg.STT)
	}
}

func TestTraceSampleRatio(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry.TraceSampleRatio != 1 {
		t.Fatalf("expected full sampling by default, got %v", cfg.Telemetry.TraceSampleRatio)
	}
	t.Setenv("BOARDROOM_TELEMETRY_TRACE_SAMPLE_RATIO", "1.5")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for sample ratio above 1")
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	// StdoutTraces prints spans when no OTLP endpoint is set.
	StdoutTraces bool `yaml:"stdout_traces"`
	// TraceSampleRatio is the fraction of root spans recorded, 0 to 1.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

type HTTPConfig struct {
	Bind              string `yaml:"bind"`
	Port              int    `yaml:"port"`
	ShutdownTimeoutMS int    `yaml:"shutdown_timeout_ms"`
}

type Config struct {
	ServiceName string                   `yaml:"service_name"`
	Environment string                   `yaml:"environment"`
	HTTP        HTTPConfig               `yaml:"http"`
	Telemetry   TelemetryConfig          `yaml:"telemetry"`
	Bus         BusConfig                `yaml:"bus"`
	Store       StoreConfig              `yaml:"store"`
	Knowledge   KnowledgeConfig          `yaml:"knowledge"`
	LLM         LLMConfig                `yaml:"llm"`
	TTS         TTSConfig                `yaml:"tts"`
	STT         STTConfig                `yaml:"stt"`
	Chat        ChatConfig               `yaml:"chat"`
	Personas    map[string]PersonaConfig `yaml:"personas"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path             string `yaml:"path"`
	RetentionDays    int    `yaml:"retention_days"`
	MaxConversations int    `yaml:"max_conversations"`
	VacuumOnStart    bool   `yaml:"vacuum_on_start"`
}

type KnowledgeConfig struct {
	Root        string `yaml:"root"`
	TTLSeconds  int    `yaml:"ttl_seconds"`
	Parallelism int    `yaml:"parallelism"`
	Watch       bool   `yaml:"watch"`
}

func (k KnowledgeConfig) TTL() time.Duration {
	return time.Duration(k.TTLSeconds) * time.Second
}

type LLMConfig struct {
	Mode           string  `yaml:"mode"` // mock, ollama, exec
	Endpoint       string  `yaml:"endpoint"`
	Command        string  `yaml:"command"`
	ModelChat      string  `yaml:"model_chat"`
	ModelReasoning string  `yaml:"model_reasoning"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type TTSConfig struct {
	Mode              string  `yaml:"mode"` // elevenlabs, exec, mock, disabled
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	ModelID           string  `yaml:"model_id"`
	Command           string  `yaml:"command"`
	ContentType       string  `yaml:"content_type"`
	MaxTextLength     int     `yaml:"max_text_length"`
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
	TimeoutMS         int     `yaml:"timeout_ms"`
}

type STTConfig struct {
	Mode           string `yaml:"mode"` // exec, mock, disabled
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	Language       string `yaml:"language"`
	MaxSeconds     int    `yaml:"max_seconds"`
	MaxBytes       int64  `yaml:"max_bytes"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type ChatConfig struct {
	DefaultPersona string `yaml:"default_persona"`
	// StreamRetentionSeconds keeps finished streams resumable for a while.
	StreamRetentionSeconds int `yaml:"stream_retention_seconds"`
	HistoryPageSize        int `yaml:"history_page_size"`
}

type PersonaConfig struct {
	VoiceID string `yaml:"voice_id"`
}

func Default() Config {
	return Config{
		ServiceName: "boardroom",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:              "0.0.0.0",
			Port:              8080,
			ShutdownTimeoutMS: 10000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:         "info",
			OTLPInsecure:     true,
			TraceSampleRatio: 1,
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path:             "./data/boardroom.db",
			RetentionDays:    0,
			MaxConversations: 0,
		},
		Knowledge: KnowledgeConfig{
			Root:        "./knowledge-base",
			TTLSeconds:  300,
			Parallelism: 8,
			Watch:       true,
		},
		LLM: LLMConfig{
			Mode:           "mock",
			Endpoint:       "http://localhost:11434",
			ModelChat:      "llama3.2:latest",
			ModelReasoning: "deepseek-r1:latest",
			MaxTokens:      2048,
			Temperature:    0.7,
			TimeoutSeconds: 300,
		},
		TTS: TTSConfig{
			Mode:              "elevenlabs",
			ModelID:           "eleven_flash_v2_5",
			ContentType:       "audio/mpeg",
			MaxTextLength:     5000,
			RequestsPerMinute: 30,
			Burst:             5,
			TimeoutMS:         30000,
		},
		STT: STTConfig{
			Mode:           "disabled",
			Language:       "en",
			MaxSeconds:     120,
			MaxBytes:       16 << 20,
			TimeoutSeconds: 45,
		},
		Chat: ChatConfig{
			DefaultPersona:         "alexandria",
			StreamRetentionSeconds: 300,
			HistoryPageSize:        20,
		},
		Personas: map[string]PersonaConfig{},
	}
}

// Load reads .env files from the working directory, then the YAML file at
// path, then environment overrides. Variables already set in the process
// environment always win over .env files.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env.local", ".env"); err != nil {
		return Config{}, err
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadDotEnv loads each existing file. Earlier files take precedence since
// godotenv never overwrites a variable that is already set.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "BOARDROOM_SERVICE_NAME")
	overrideString(&cfg.Environment, "BOARDROOM_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "BOARDROOM_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "BOARDROOM_HTTP_PORT")
	overrideInt(&cfg.HTTP.ShutdownTimeoutMS, "BOARDROOM_HTTP_SHUTDOWN_TIMEOUT_MS")
	overrideString(&cfg.Telemetry.LogLevel, "BOARDROOM_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "BOARDROOM_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "BOARDROOM_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "BOARDROOM_TELEMETRY_STDOUT_TRACES")
	overrideFloat(&cfg.Telemetry.TraceSampleRatio, "BOARDROOM_TELEMETRY_TRACE_SAMPLE_RATIO")
	overrideBool(&cfg.Bus.Enabled, "BOARDROOM_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "BOARDROOM_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "BOARDROOM_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "BOARDROOM_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "BOARDROOM_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "BOARDROOM_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "BOARDROOM_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "BOARDROOM_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "BOARDROOM_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "BOARDROOM_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "BOARDROOM_STORE_PATH")
	overrideInt(&cfg.Store.RetentionDays, "BOARDROOM_STORE_RETENTION_DAYS")
	overrideInt(&cfg.Store.MaxConversations, "BOARDROOM_STORE_MAX_CONVERSATIONS")
	overrideBool(&cfg.Store.VacuumOnStart, "BOARDROOM_STORE_VACUUM_ON_START")
	overrideString(&cfg.Knowledge.Root, "BOARDROOM_KNOWLEDGE_ROOT")
	overrideInt(&cfg.Knowledge.TTLSeconds, "BOARDROOM_KNOWLEDGE_TTL_SECONDS")
	overrideInt(&cfg.Knowledge.Parallelism, "BOARDROOM_KNOWLEDGE_PARALLELISM")
	overrideBool(&cfg.Knowledge.Watch, "BOARDROOM_KNOWLEDGE_WATCH")
	overrideString(&cfg.LLM.Mode, "BOARDROOM_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "BOARDROOM_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "BOARDROOM_LLM_COMMAND")
	overrideString(&cfg.LLM.ModelChat, "BOARDROOM_LLM_MODEL_CHAT")
	overrideString(&cfg.LLM.ModelReasoning, "BOARDROOM_LLM_MODEL_REASONING")
	overrideInt(&cfg.LLM.MaxTokens, "BOARDROOM_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "BOARDROOM_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.TimeoutSeconds, "BOARDROOM_LLM_TIMEOUT_SECONDS")
	overrideString(&cfg.TTS.Mode, "BOARDROOM_TTS_MODE")
	overrideString(&cfg.TTS.APIKey, "BOARDROOM_TTS_API_KEY")
	overrideString(&cfg.TTS.APIKey, "ELEVENLABS_API_KEY")
	overrideString(&cfg.TTS.BaseURL, "BOARDROOM_TTS_BASE_URL")
	overrideString(&cfg.TTS.ModelID, "BOARDROOM_TTS_MODEL_ID")
	overrideString(&cfg.TTS.Command, "BOARDROOM_TTS_COMMAND")
	overrideInt(&cfg.TTS.MaxTextLength, "BOARDROOM_TTS_MAX_TEXT_LENGTH")
	overrideFloat(&cfg.TTS.RequestsPerMinute, "BOARDROOM_TTS_REQUESTS_PER_MINUTE")
	overrideInt(&cfg.TTS.Burst, "BOARDROOM_TTS_BURST")
	overrideInt(&cfg.TTS.TimeoutMS, "BOARDROOM_TTS_TIMEOUT_MS")
	overrideString(&cfg.STT.Mode, "BOARDROOM_STT_MODE")
	overrideString(&cfg.STT.Command, "BOARDROOM_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "BOARDROOM_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "BOARDROOM_STT_LANGUAGE")
	overrideInt(&cfg.STT.MaxSeconds, "BOARDROOM_STT_MAX_SECONDS")
	overrideInt(&cfg.STT.TimeoutSeconds, "BOARDROOM_STT_TIMEOUT_SECONDS")
	overrideString(&cfg.Chat.DefaultPersona, "BOARDROOM_CHAT_DEFAULT_PERSONA")
	overrideInt(&cfg.Chat.StreamRetentionSeconds, "BOARDROOM_CHAT_STREAM_RETENTION_SECONDS")
	overrideInt(&cfg.Chat.HistoryPageSize, "BOARDROOM_CHAT_HISTORY_PAGE_SIZE")
	overrideVoiceIDs(cfg)
}

const voiceEnvPrefix = "ELEVENLABS_VOICE_ID_"

// overrideVoiceIDs applies ELEVENLABS_VOICE_ID_<PERSONA> variables. The
// collaborative persona speaks with Alexandria's voice unless it has its own.
func overrideVoiceIDs(cfg *Config) {
	if cfg.Personas == nil {
		cfg.Personas = map[string]PersonaConfig{}
	}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, voiceEnvPrefix) || strings.TrimSpace(value) == "" {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, voiceEnvPrefix))
		pc := cfg.Personas[name]
		pc.VoiceID = strings.TrimSpace(value)
		cfg.Personas[name] = pc
	}
	if _, own := os.LookupEnv(voiceEnvPrefix + "COLLABORATIVE"); !own {
		if alex, ok := os.LookupEnv(voiceEnvPrefix + "ALEXANDRIA"); ok && strings.TrimSpace(alex) != "" {
			cfg.Personas["collaborative"] = PersonaConfig{VoiceID: strings.TrimSpace(alex)}
		}
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.TraceSampleRatio < 0 || cfg.Telemetry.TraceSampleRatio > 1 {
		return errors.New("telemetry.trace_sample_ratio must be between 0 and 1")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	if cfg.Store.MaxConversations < 0 {
		return errors.New("store.max_conversations must be >= 0")
	}
	if cfg.Knowledge.TTLSeconds <= 0 {
		return errors.New("knowledge.ttl_seconds must be positive")
	}
	switch cfg.LLM.Mode {
	case "mock", "ollama", "exec":
	default:
		return errors.New("llm.mode must be one of mock|ollama|exec")
	}
	if cfg.LLM.Mode == "ollama" && cfg.LLM.Endpoint == "" {
		return errors.New("llm.endpoint must be set when mode=ollama")
	}
	if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
		return errors.New("llm.command must be set when mode=exec")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "elevenlabs", "mock", "exec", "disabled":
	default:
		return errors.New("tts.mode must be one of elevenlabs|mock|exec|disabled")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.MaxTextLength <= 0 {
		return errors.New("tts.max_text_length must be positive")
	}
	if cfg.TTS.RequestsPerMinute < 0 {
		return errors.New("tts.requests_per_minute must be >= 0")
	}
	switch cfg.STT.Mode {
	case "exec", "mock", "disabled":
	default:
		return errors.New("stt.mode must be one of exec|mock|disabled")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.STT.MaxSeconds <= 0 || cfg.STT.MaxBytes <= 0 {
		return errors.New("stt.max_seconds and stt.max_bytes must be positive")
	}
	if cfg.Chat.DefaultPersona == "" {
		return errors.New("chat.default_persona must not be empty")
	}
	if cfg.Chat.StreamRetentionSeconds < 0 {
		return errors.New("chat.stream_retention_seconds must be >= 0")
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type LLMProvider string

const (
	LLMProviderOpenAI LLMProvider = "openai"
	LLMProviderGemini LLMProvider = "gemini"
)

type TTSProvider string

const (
	TTSProviderMurf   TTSProvider = "murf"
	TTSProviderOpenAI TTSProvider = "openai"
)

type Config struct {
	Addr string

	// CORS; also the websocket origin allowlist. Empty => any origin.
	CORSAllowedOrigins map[string]struct{}

	// Voice sessions (/ws/stream).
	HandshakeTimeout  time.Duration
	TurnTimeout       time.Duration
	SummaryTimeout    time.Duration
	StoreTimeout      time.Duration
	WSPingInterval    time.Duration
	WSWriteTimeout    time.Duration
	WSReadTimeout     time.Duration
	MaxAudioBytes     int64
	MaxJSONBytes      int64
	OutboundQueueSize int

	// Admission for /ws/stream, per client address. Zero disables a limit.
	WSConnectRPS           float64
	WSConnectBurst         int
	WSMaxSessionsPerClient int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	// Generation
	LLMProvider      LLMProvider
	LLMModel         string
	LLMBaseURL       string
	LLMTemperature   float64
	LLMMaxToolRounds int
	GeminiAPIKey     string

	// Speech-to-text (OpenAI-compatible, Groq by default)
	STTBaseURL string
	STTModel   string
	GroqAPIKey string

	// Text-to-speech
	TTSProvider    TTSProvider
	TTSFormat      string
	MurfAPIKey     string
	MurfBaseURL    string
	OpenAIAPIKey   string
	OpenAITTSModel string
	OpenAITTSVoice string

	// Persona store. DATABASE_URL wins over Supabase; neither => in-memory.
	DatabaseURL string
	Migrate     bool
	SupabaseURL string
	SupabaseKey string
	RedisURL    string
	CacheTTL    time.Duration

	// Retrieval. Disabled when QDRANT_URL is empty.
	QdrantURL           string
	QdrantAPIKey        string
	QdrantCollection    string
	EmbeddingBaseURL    string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimensions int
}

// RetrievalEnabled reports whether a vector store is configured.
func (c Config) RetrievalEnabled() bool {
	return c.QdrantURL != ""
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                   envOr("VOICEBOT_ADDR", ":8000"),
		CORSAllowedOrigins:     make(map[string]struct{}),
		HandshakeTimeout:       envDurationOr("VOICEBOT_HANDSHAKE_TIMEOUT", 5*time.Second),
		TurnTimeout:            envDurationOr("VOICEBOT_TURN_TIMEOUT", 60*time.Second),
		SummaryTimeout:         envDurationOr("VOICEBOT_SUMMARY_TIMEOUT", 30*time.Second),
		StoreTimeout:           envDurationOr("VOICEBOT_STORE_TIMEOUT", 5*time.Second),
		WSPingInterval:         envDurationOr("VOICEBOT_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:         envDurationOr("VOICEBOT_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:          envDurationOr("VOICEBOT_WS_READ_TIMEOUT", 0),
		MaxAudioBytes:          envInt64Or("VOICEBOT_MAX_AUDIO_BYTES", 10<<20), // 10 MiB
		MaxJSONBytes:           envInt64Or("VOICEBOT_MAX_JSON_BYTES", 64*1024),
		OutboundQueueSize:      envIntOr("VOICEBOT_OUTBOUND_QUEUE_SIZE", 128),
		WSConnectRPS:           envFloat64Or("VOICEBOT_WS_CONNECT_RPS", 2),
		WSConnectBurst:         envIntOr("VOICEBOT_WS_CONNECT_BURST", 10),
		WSMaxSessionsPerClient: envIntOr("VOICEBOT_WS_MAX_SESSIONS_PER_CLIENT", 5),
		ReadHeaderTimeout:      envDurationOr("VOICEBOT_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:    envDurationOr("VOICEBOT_SHUTDOWN_GRACE_PERIOD", 15*time.Second),
		LLMProvider:            LLMProvider(strings.ToLower(envOr("VOICEBOT_LLM_PROVIDER", string(LLMProviderOpenAI)))),
		LLMModel:               envOr("VOICEBOT_LLM_MODEL", "gemini-2.0-flash"),
		LLMBaseURL:             envOr("VOICEBOT_LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
		LLMTemperature:         envFloat64Or("VOICEBOT_LLM_TEMPERATURE", 0.7),
		LLMMaxToolRounds:       envIntOr("VOICEBOT_LLM_MAX_TOOL_ROUNDS", 4),
		GeminiAPIKey:           envOr("GEMINI_API_KEY", ""),
		STTBaseURL:             envOr("VOICEBOT_STT_BASE_URL", "https://api.groq.com/openai/v1"),
		STTModel:               envOr("VOICEBOT_STT_MODEL", "whisper-large-v3-turbo"),
		GroqAPIKey:             envOr("GROQ_API_KEY", ""),
		TTSProvider:            TTSProvider(strings.ToLower(envOr("VOICEBOT_TTS_PROVIDER", string(TTSProviderMurf)))),
		TTSFormat:              envOr("VOICEBOT_TTS_FORMAT", "MP3"),
		MurfAPIKey:             envOr("MURF_API_KEY", ""),
		MurfBaseURL:            envOr("VOICEBOT_MURF_BASE_URL", "https://api.murf.ai"),
		OpenAIAPIKey:           envOr("OPENAI_API_KEY", ""),
		OpenAITTSModel:         envOr("VOICEBOT_OPENAI_TTS_MODEL", "gpt-4o-mini-tts"),
		OpenAITTSVoice:         envOr("VOICEBOT_OPENAI_TTS_VOICE", "alloy"),
		DatabaseURL:            envOr("DATABASE_URL", ""),
		Migrate:                envBoolOr("VOICEBOT_MIGRATE", true),
		SupabaseURL:            envOr("SUPABASE_URL", ""),
		SupabaseKey:            envOr("SUPABASE_KEY", ""),
		RedisURL:               envOr("REDIS_URL", ""),
		CacheTTL:               envDurationOr("VOICEBOT_CACHE_TTL", 5*time.Minute),
		QdrantURL:              envOr("QDRANT_URL", ""),
		QdrantAPIKey:           envOr("QDRANT_API_KEY", ""),
		QdrantCollection:       envOr("VOICEBOT_QDRANT_COLLECTION", "documents"),
		EmbeddingBaseURL:       envOr("VOICEBOT_EMBEDDING_BASE_URL", ""),
		EmbeddingAPIKey:        envOr("VOICEBOT_EMBEDDING_API_KEY", envOr("OPENAI_API_KEY", "")),
		EmbeddingModel:         envOr("VOICEBOT_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions:    envIntOr("VOICEBOT_EMBEDDING_DIMENSIONS", 768),
	}

	for _, origin := range splitCSV(envOr("VOICEBOT_CORS_ORIGINS", "http://localhost:5173")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBOT_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.TurnTimeout < 0 {
		return Config{}, fmt.Errorf("VOICEBOT_TURN_TIMEOUT must be >= 0")
	}
	if cfg.SummaryTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBOT_SUMMARY_TIMEOUT must be > 0")
	}
	if cfg.StoreTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBOT_STORE_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOICEBOT_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBOT_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("VOICEBOT_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.MaxAudioBytes <= 0 {
		return Config{}, fmt.Errorf("VOICEBOT_MAX_AUDIO_BYTES must be > 0")
	}
	if cfg.MaxJSONBytes <= 0 {
		return Config{}, fmt.Errorf("VOICEBOT_MAX_JSON_BYTES must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("VOICEBOT_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.WSConnectRPS < 0 || cfg.WSConnectBurst < 0 || cfg.WSMaxSessionsPerClient < 0 {
		return Config{}, fmt.Errorf("VOICEBOT_WS_CONNECT_RPS, VOICEBOT_WS_CONNECT_BURST and VOICEBOT_WS_MAX_SESSIONS_PER_CLIENT must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBOT_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICEBOT_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.CacheTTL <= 0 {
		return Config{}, fmt.Errorf("VOICEBOT_CACHE_TTL must be > 0")
	}

	switch cfg.LLMProvider {
	case LLMProviderOpenAI, LLMProviderGemini:
	default:
		return Config{}, fmt.Errorf("VOICEBOT_LLM_PROVIDER must be one of openai|gemini")
	}
	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		return Config{}, fmt.Errorf("VOICEBOT_LLM_TEMPERATURE must be within [0, 2]")
	}
	if cfg.LLMMaxToolRounds <= 0 {
		return Config{}, fmt.Errorf("VOICEBOT_LLM_MAX_TOOL_ROUNDS must be > 0")
	}

	if cfg.GroqAPIKey == "" {
		return Config{}, fmt.Errorf("GROQ_API_KEY must be set")
	}

	switch cfg.TTSProvider {
	case TTSProviderMurf:
		if cfg.MurfAPIKey == "" {
			return Config{}, fmt.Errorf("MURF_API_KEY must be set when VOICEBOT_TTS_PROVIDER=murf")
		}
	case TTSProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return Config{}, fmt.Errorf("OPENAI_API_KEY must be set when VOICEBOT_TTS_PROVIDER=openai")
		}
	default:
		return Config{}, fmt.Errorf("VOICEBOT_TTS_PROVIDER must be one of murf|openai")
	}

	if (cfg.SupabaseURL == "") != (cfg.SupabaseKey == "") {
		return Config{}, fmt.Errorf("SUPABASE_URL and SUPABASE_KEY must be set together")
	}

	if cfg.RetrievalEnabled() {
		if cfg.QdrantCollection == "" {
			return Config{}, fmt.Errorf("VOICEBOT_QDRANT_COLLECTION must not be empty")
		}
		if cfg.EmbeddingAPIKey == "" {
			return Config{}, fmt.Errorf("VOICEBOT_EMBEDDING_API_KEY or OPENAI_API_KEY must be set when QDRANT_URL is set")
		}
		if cfg.EmbeddingDimensions <= 0 {
			return Config{}, fmt.Errorf("VOICEBOT_EMBEDDING_DIMENSIONS must be > 0")
		}
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

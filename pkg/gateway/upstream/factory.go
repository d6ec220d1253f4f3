// Package upstream builds the speech, generation, persona and retrieval
// backends a voice session talks to.
package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manasdhir/Voice-Bot/pkg/core/embed"
	"github.com/manasdhir/Voice-Bot/pkg/core/llm"
	"github.com/manasdhir/Voice-Bot/pkg/core/voice/stt"
	"github.com/manasdhir/Voice-Bot/pkg/core/voice/tts"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/config"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/live/session"
	"github.com/manasdhir/Voice-Bot/pkg/persona"
	"github.com/manasdhir/Voice-Bot/pkg/rag"
)

// Check is one dependency probed by /readyz.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Backends holds everything a session controller needs besides its
// connection.
type Backends struct {
	Engine      llm.Engine
	STT         stt.Provider
	TTS         tts.Provider
	Store       persona.Store
	Resolver    *persona.Resolver
	Summaries   *persona.SummaryWriter
	SearchTools session.SearchTools

	Checks  []Check
	closers []func()
}

// Close releases pools and clients in reverse order of creation.
func (b *Backends) Close() {
	if b == nil {
		return
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

type Factory struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (f Factory) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// Build creates every backend named by cfg. On error, whatever was already
// opened is closed.
func (f Factory) Build(ctx context.Context, cfg config.Config) (*Backends, error) {
	b := &Backends{}

	engine, err := f.NewEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b.Engine = engine
	b.STT = f.NewSTT(cfg)
	synth, err := f.NewTTS(cfg)
	if err != nil {
		return nil, err
	}
	b.TTS = synth

	if err := f.openStore(ctx, cfg, b); err != nil {
		b.Close()
		return nil, err
	}
	b.Resolver = persona.NewResolver(b.Store, cfg.StoreTimeout, f.logger())
	b.Summaries = persona.NewSummaryWriter(b.Store, cfg.StoreTimeout)

	if err := f.openRetrieval(cfg, b); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (f Factory) NewEngine(ctx context.Context, cfg config.Config) (llm.Engine, error) {
	switch cfg.LLMProvider {
	case config.LLMProviderOpenAI, "":
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:        cfg.GeminiAPIKey,
			BaseURL:       cfg.LLMBaseURL,
			Model:         cfg.LLMModel,
			Temperature:   cfg.LLMTemperature,
			MaxToolRounds: cfg.LLMMaxToolRounds,
			HTTPClient:    f.HTTPClient,
		}), nil
	case config.LLMProviderGemini:
		return llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey:        cfg.GeminiAPIKey,
			Model:         cfg.LLMModel,
			Temperature:   float32(cfg.LLMTemperature),
			MaxToolRounds: cfg.LLMMaxToolRounds,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func (f Factory) NewSTT(cfg config.Config) stt.Provider {
	return stt.NewOpenAI(stt.OpenAIConfig{
		APIKey:     cfg.GroqAPIKey,
		BaseURL:    cfg.STTBaseURL,
		Model:      cfg.STTModel,
		HTTPClient: f.HTTPClient,
	})
}

func (f Factory) NewTTS(cfg config.Config) (tts.Provider, error) {
	switch cfg.TTSProvider {
	case config.TTSProviderMurf, "":
		return tts.NewMurf(tts.MurfConfig{
			APIKey:     cfg.MurfAPIKey,
			BaseURL:    cfg.MurfBaseURL,
			HTTPClient: f.HTTPClient,
		}), nil
	case config.TTSProviderOpenAI:
		return tts.NewOpenAI(tts.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAITTSModel,
			Voice:      cfg.OpenAITTSVoice,
			HTTPClient: f.HTTPClient,
		}), nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.TTSProvider)
	}
}

// openStore picks Postgres, then Supabase, then memory, and puts a Redis
// read cache in front when REDIS_URL is set.
func (f Factory) openStore(ctx context.Context, cfg config.Config, b *Backends) error {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := persona.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, pg.Close)
		if cfg.Migrate {
			mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := persona.Migrate(mctx, pg.Pool())
			cancel()
			if err != nil {
				return err
			}
		}
		b.Store = pg
		b.Checks = append(b.Checks, Check{Name: "postgres", Ping: pg.Ping})
	case cfg.SupabaseURL != "":
		sb, err := persona.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return err
		}
		b.Store = sb
	default:
		f.logger().Warn("no persona store configured; using in-memory store")
		b.Store = persona.NewMemoryStore()
	}

	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	b.closers = append(b.closers, func() { _ = client.Close() })
	b.Checks = append(b.Checks, Check{Name: "redis", Ping: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}})
	b.Store = persona.NewCachedStore(b.Store, client, cfg.CacheTTL, f.logger())
	return nil
}

func (f Factory) openRetrieval(cfg config.Config, b *Backends) error {
	if !cfg.RetrievalEnabled() {
		return nil
	}
	store, err := rag.NewQdrantStore(rag.QdrantConfig{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	})
	if err != nil {
		return err
	}
	b.closers = append(b.closers, func() { _ = store.Close() })
	b.Checks = append(b.Checks, Check{Name: "qdrant", Ping: store.Ping})

	embedder := embed.NewOpenAI(embed.OpenAIConfig{
		APIKey:     cfg.EmbeddingAPIKey,
		BaseURL:    cfg.EmbeddingBaseURL,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
		HTTPClient: f.HTTPClient,
	})
	retriever, err := rag.NewRetriever(embedder, store, rag.DefaultK)
	if err != nil {
		return err
	}
	b.SearchTools = SearchTools(retriever)
	return nil
}

// SearchTools binds retriever to each session's scope. A nil retriever
// yields a factory that returns no tool.
func SearchTools(retriever *rag.Retriever) session.SearchTools {
	return func(scope rag.Scope) llm.Tool {
		if retriever == nil || !scope.Valid() {
			return nil
		}
		return rag.NewSearchTool(retriever, scope)
	}
}

// Ping runs every readiness check and returns the failures by name.
func (b *Backends) Ping(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	if b == nil {
		return failed
	}
	for _, c := range b.Checks {
		if c.Ping == nil {
			continue
		}
		if err := c.Ping(ctx); err != nil {
			failed[c.Name] = err
		}
	}
	return failed
}

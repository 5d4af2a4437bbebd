package bootstrap

import (
	"context"
	"fmt"
	"log"

	"code-review-be/internal/config"
	"code-review-be/internal/model"
	"code-review-be/internal/pkg/logger"
	"code-review-be/internal/pkg/mailer"
	"code-review-be/internal/service"
	"code-review-be/pkg/database"
	"code-review-be/pkg/embedding"
	"code-review-be/pkg/embedding/jina"
	"code-review-be/pkg/events"
	"code-review-be/pkg/kvstore"
	"code-review-be/pkg/llm"
	"code-review-be/pkg/llm/factory"
	pktNats "code-review-be/pkg/nats"
	"code-review-be/pkg/rag"

	"gorm.io/gorm"
)

// Dependencies are the external capabilities the services run on.
// Tests fill them with in-memory fakes.
type Dependencies struct {
	DB             *gorm.DB
	Store          kvstore.Store
	Index          rag.Index
	Embedder       embedding.EmbeddingProvider
	LLM            llm.LLMProvider
	Mailer         mailer.IEmailService
	Publisher      events.Publisher
	OAuthProviders map[string]service.OAuthProvider
	Logger         logger.ILogger
}

// NewEmbeddingProvider picks the embedding backend named in cfg.EmbeddingProvider.
func NewEmbeddingProvider(cfg config.AIConfig) (embedding.EmbeddingProvider, error) {
	switch cfg.EmbeddingProvider {
	case "ollama":
		return embedding.NewOllamaProvider(cfg.OllamaBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimension), nil
	case "gemini":
		return embedding.NewGeminiProvider(cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimension), nil
	case "huggingface":
		return embedding.NewHuggingFaceProvider(cfg.HuggingFaceToken, cfg.EmbeddingModel, cfg.EmbeddingDimension), nil
	case "jina":
		return jina.NewJinaProvider(cfg.JinaAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbeddingProvider)
	}
}

// NewIndex uses pgvector on postgres and falls back to the in-memory index
// for the embedded sqlite database.
func NewIndex(db *gorm.DB, dsn string) rag.Index {
	if database.IsSQLite(dsn) {
		return rag.NewMemoryIndex()
	}
	return rag.NewPgvectorIndex(db)
}

// BuildDependencies connects to everything configured in cfg. The returned
// cleanup releases the connections that were opened.
func BuildDependencies(ctx context.Context, cfg *config.Config, sysLogger logger.ILogger) (Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := database.Open(cfg.Database.Connection)
	if err != nil {
		return Dependencies{}, cleanup, fmt.Errorf("connect database: %w", err)
	}
	closers = append(closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if database.IsSQLite(cfg.Database.Connection) {
		// the embedded database may be a throwaway one, so migrate on boot
		if err := db.AutoMigrate(model.Relational()...); err != nil {
			return Dependencies{}, cleanup, fmt.Errorf("migrate sqlite: %w", err)
		}
	}

	// Redis
	var store kvstore.Store
	if cfg.App.RedisURL != "" {
		rdb := kvstore.NewRedisClient(cfg.App.RedisURL)
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		store = kvstore.NewRedisStore(rdb)
	} else {
		if cfg.IsProduction() {
			return Dependencies{}, cleanup, fmt.Errorf("REDIS_URL is required in production")
		}
		log.Println("[WARN] REDIS_URL not set, using in-process store")
		store = kvstore.NewMemoryStore()
	}

	embedder, err := NewEmbeddingProvider(cfg.Ai)
	if err != nil {
		return Dependencies{}, cleanup, err
	}
	log.Printf("[INFO] Using Embedding Provider: %s (%s, %d dims)", cfg.Ai.EmbeddingProvider, cfg.Ai.EmbeddingModel, cfg.Ai.EmbeddingDimension)

	llmBaseURL := cfg.Ai.LLMBaseURL
	if llmBaseURL == "" && cfg.Ai.LLMProvider == "ollama" {
		llmBaseURL = cfg.Ai.OllamaBaseURL
	}
	llmProvider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, llmBaseURL, cfg.Ai.HuggingFaceToken)
	if err != nil {
		return Dependencies{}, cleanup, err
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// NATS
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(ctx, cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			publisher = natsPub
			closers = append(closers, natsPub.Close)
		}
	}

	providers := map[string]service.OAuthProvider{}
	if cfg.OAuth.Google.ClientID != "" {
		providers[service.ProviderGoogle] = service.NewGoogleProvider(cfg.OAuth.Google)
	}
	if cfg.OAuth.GitHub.ClientID != "" {
		providers[service.ProviderGitHub] = service.NewGitHubProvider(cfg.OAuth.GitHub)
	}

	return Dependencies{
		DB:       db,
		Store:    store,
		Index:    NewIndex(db, cfg.Database.Connection),
		Embedder: embedder,
		LLM:      llmProvider,
		Mailer: mailer.NewEmailService(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Email,
			cfg.SMTP.Password,
			cfg.SMTP.SenderName,
			sysLogger,
		),
		Publisher:      publisher,
		OAuthProviders: providers,
		Logger:         sysLogger,
	}, cleanup, nil
}

package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"rag-chat/internal/config"
	"rag-chat/internal/domain/ports/adapter"
	"rag-chat/internal/domain/ports/repository"
	aiAdapters "rag-chat/internal/infra/adapters/ai"
	pg "rag-chat/internal/infra/db/postgres"
	"rag-chat/internal/infra/db/sqlite"
	"rag-chat/internal/infra/sched"
	"rag-chat/internal/infra/vector/chromem"
	"rag-chat/internal/infra/vector/qdrant"
)

type store struct {
	repo  repository.ChatSessionRepository
	stats sched.StatsSource
	close func()
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (*store, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return &store{
			repo:  sqlite.NewChatSessionRepo(db),
			stats: sched.SQLStats(db),
			close: func() { _ = db.Close() },
		}, nil
	default:
		pool, err := pg.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &store{
			repo:  pg.NewChatSessionRepo(pool),
			stats: sched.PgxStats(pool),
			close: pool.Close,
		}, nil
	}
}

// buildAI registers every provider that has credentials and routes by
// model name, falling back to cfg.Provider. Both directions share one
// concurrency limiter.
func buildAI(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (adapter.Embedder, adapter.CompletionBackend, error) {
	counter := aiAdapters.NewTiktokenCounter()
	providers := map[string]aiAdapters.Provider{}

	if cfg.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, counter)
		if err != nil {
			return nil, nil, fmt.Errorf("openai adapter: %w", err)
		}
		providers["openai"] = oa
	}
	if cfg.GeminiKey != "" {
		gm, err := aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, "", cfg.EmbeddingModel, counter)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini adapter: %w", err)
		}
		providers["gemini"] = gm
	}
	if cfg.Provider == "noop" {
		providers["noop"] = aiAdapters.NewNoopAIAdapter()
	}

	multi := aiAdapters.NewMultiAIAdapter(cfg.Provider, providers, cfg.ModelProviders)
	embedder, err := multi.EmbedderFor(cfg.EmbeddingModel)
	if err != nil {
		return nil, nil, err
	}
	lim := aiAdapters.NewLimiter(cfg.ConcurrentLimit)

	logger.Info().
		Str("default_provider", cfg.Provider).
		Str("chat_model", cfg.ChatModel).
		Str("chat_provider", multi.ResolveProvider(cfg.ChatModel)).
		Str("embedding_model", cfg.EmbeddingModel).
		Str("embedding_provider", multi.ResolveProvider(cfg.EmbeddingModel)).
		Int("concurrent_limit", cfg.ConcurrentLimit).
		Msg("AI providers ready")

	return aiAdapters.NewLimitedEmbedder(embedder, lim), aiAdapters.NewLimitedAI(multi, lim), nil
}

type searcher struct {
	adapter.VectorSearcher
	close func()
}

func buildSearcher(ctx context.Context, cfg config.VectorStoreConfig, textField string, logger *zerolog.Logger) (*searcher, error) {
	switch cfg.Backend {
	case "chromem":
		s, err := chromem.NewSearcher(cfg.ChromemPath, cfg.Collection, textField)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.ChromemPath).Int("documents", s.Count()).Msg("chromem vector store ready")
		return &searcher{VectorSearcher: s, close: func() {}}, nil
	default:
		s, err := qdrant.NewSearcher(qdrant.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantTLS,
			Collection: cfg.Collection,
		})
		if err != nil {
			return nil, err
		}
		// retrieval failures degrade to empty context, so a missing
		// collection is not fatal
		if err := s.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("qdrant not ready")
		}
		return &searcher{VectorSearcher: s, close: func() { _ = s.Close() }}, nil
	}
}

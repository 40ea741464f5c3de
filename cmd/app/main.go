// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"rag-chat/internal/config"
	"rag-chat/internal/infra/api"
	"rag-chat/internal/infra/logging"
	"rag-chat/internal/infra/metrics"
	red "rag-chat/internal/infra/redis"
	"rag-chat/internal/infra/sched"
	"rag-chat/internal/infra/worker"
	"rag-chat/internal/usecase"
)

var version = "dev"

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (unredacted query logging)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Chat store ----
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("open chat store")
	}
	defer st.close()
	sessions := st.repo

	// ---- Redis (optional) ----
	var limiter api.RateLimiter
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rc.Close()
		sessions = red.NewChatSessionCache(sessions, rc, cfg.Redis.TTL, logger)
		limiter = red.NewRateLimiter(rc, cfg.Redis.RateLimit, cfg.Redis.RateEvery)
		logger.Info().Int("rate_limit", cfg.Redis.RateLimit).Dur("window", cfg.Redis.RateEvery).Msg("redis cache and rate limiting enabled")
	}

	// ---- AI + vector search ----
	embedder, backend, err := buildAI(ctx, cfg.AI, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai providers")
	}
	searcher, err := buildSearcher(ctx, cfg.VectorStore, cfg.RAG.TextField, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.VectorStore.Backend).Msg("vector store")
	}
	defer searcher.close()

	// ---- Worker pool ----
	pool := worker.NewPool(cfg.Worker.Workers, logger)
	pool.Start(ctx)
	defer pool.Stop()

	// ---- Use cases ----
	chatUC := usecase.NewChatUseCase(sessions, logger)
	retriever := usecase.NewContextRetriever(embedder, searcher, cfg.RAG.TextField, logger)
	streamer := usecase.NewCompletionStreamer(backend, cfg.AI.ChatModel, cfg.AI.MaxOutputTokens)
	ragUC := usecase.NewRAGChatUseCase(sessions, pool, retriever, streamer, usecase.RAGOptions{
		TopK:              cfg.RAG.TopK,
		HeartbeatInterval: cfg.RAG.HeartbeatInterval,
		TokenPacing:       cfg.RAG.TokenPacing,
		RetrievalTimeout:  cfg.RAG.RetrievalTimeout,
		StreamTimeout:     cfg.RAG.StreamTimeout,
	}, logger, cfg.Runtime.Dev)

	// ---- HTTP ----
	deps := api.Deps{
		Chat:           chatUC,
		RAG:            ragUC,
		Limiter:        limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.ReadTimeout,
		Logger:         logger,
	}
	if cfg.Auth.JWTSecret != "" {
		deps.Auth = api.NewAuthManager(cfg.Auth.JWTSecret)
	}
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(deps).Routes(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		// no WriteTimeout: streams outlive any fixed deadline
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		w := sched.NewPoolStatsWorker(15*time.Second, st.stats, logger)
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("bye")
}

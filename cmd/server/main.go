package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/vaultline/core/internal/audit"
	"github.com/vaultline/core/internal/authn"
	"github.com/vaultline/core/internal/cache"
	"github.com/vaultline/core/internal/config"
	"github.com/vaultline/core/internal/embedding"
	"github.com/vaultline/core/internal/evaluation"
	"github.com/vaultline/core/internal/handler"
	"github.com/vaultline/core/internal/ingest"
	"github.com/vaultline/core/internal/llm"
	"github.com/vaultline/core/internal/middleware"
	"github.com/vaultline/core/internal/objectstore"
	"github.com/vaultline/core/internal/prompt"
	"github.com/vaultline/core/internal/repository"
	"github.com/vaultline/core/internal/retrieval"
	"github.com/vaultline/core/internal/router"
	"github.com/vaultline/core/internal/vectorstore"
	"github.com/vaultline/core/internal/worker"
)

const Version = "0.1.0"

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("gcs client: %w", err)
	}
	defer gcsClient.Close()
	store := objectstore.NewGCSStore(gcsClient)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCPProject)
	if err != nil {
		return fmt.Errorf("pubsub client: %w", err)
	}
	defer pubsubClient.Close()
	ingestTopic := pubsubClient.Topic(cfg.PubSubIngestTopic)
	publisher := worker.NewPubsubPublisher(ingestTopic)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	// Reserved for the retrieval and embedding hot paths; wired once those
	// call sites take a cache argument.
	_ = cache.NewEmbeddingCache(rdb, 24*time.Hour)
	_ = cache.NewQueryCache(rdb, 5*time.Minute)

	embedClient, err := embedding.NewVertexClient(ctx, cfg.GCPProject, cfg.EmbeddingLocation, cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("embedding client: %w", err)
	}

	vertexProvider, err := llm.NewVertexProvider(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel)
	if err != nil {
		return fmt.Errorf("vertex provider: %w", err)
	}

	documentRepo := repository.NewDocumentRepo(pool)
	auditRepo := repository.NewAuditRepo(pool)
	usageRepo := repository.NewUsageRepo(pool)
	evaluationRepo := repository.NewEvaluationRepo(pool)
	queryRepo := repository.NewQueryRepo(pool)
	templateRepo := repository.NewPromptTemplateRepo(pool)
	vectorStore := vectorstore.NewCollectionStore(pool)

	catalogue := llm.NewCatalogue([]llm.Model{
		{
			ID:                  cfg.VertexAIModel,
			Provider:            "vertex",
			ContextWindowTokens: 1_000_000,
			CostPer1KInput:      0.00125,
			CostPer1KOutput:     0.005,
			P50LatencyMs:        1200,
			QualityScore:        0.92,
			SupportedPrivacy: map[llm.PrivacyLevel]bool{
				llm.PrivacyStandard:  true,
				llm.PrivacySensitive: true,
			},
			SupportsStreaming:  true,
			SupportsStructured: true,
		},
	})
	gateway := llm.New(catalogue, map[string]llm.Provider{"vertex": vertexProvider}, usageRepo)

	auditLogger := audit.New(auditRepo)
	promptManager := prompt.New(templateRepo)
	retriever := retrieval.New(embedClient, vectorStore, nil)
	orchestrator := ingest.New(store, documentRepo, auditLogger, publisher, cfg.GCSBucketName)
	evaluator := evaluation.New(evaluation.NewGatewayJudge(gateway), embedClient)

	jwksCache := authn.NewJWKSCache(cfg.JWKSTTL)
	defer jwksCache.Stop()
	verifier := authn.NewVerifier(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWKSURL, jwksCache)

	metricsReg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(metricsReg)

	generalLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		MaxRequests: 120,
		Window:      time.Minute,
	})
	defer generalLimiter.Stop()
	queryLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		MaxRequests: 20,
		Window:      time.Minute,
	})
	defer queryLimiter.Stop()

	uploadTracker := handler.NewInMemoryUploadTracker()

	deps := &router.Dependencies{
		DB:          pool,
		Verifier:    verifier,
		FrontendURL: cfg.FrontendURL,
		Version:     Version,
		Metrics:     metrics,
		MetricsReg:  metricsReg,

		Documents: handler.DocumentDeps{
			Repo:         documentRepo,
			Orchestrator: orchestrator,
			Tracker:      uploadTracker,
		},
		Tracker: uploadTracker,

		Query: handler.QueryDeps{
			Retriever:   retriever,
			Gateway:     gateway,
			Prompts:     promptManager,
			Audit:       auditLogger,
			Queries:     queryRepo,
			Evaluator:   evaluator,
			Evaluations: evaluationRepo,
			Metrics:     metrics,
		},

		Audit: handler.AuditDeps{Lister: auditRepo},
		Usage: handler.UsageDeps{Usage: usageRepo},

		GeneralRateLimiter: generalLimiter,
		QueryRateLimiter:   queryLimiter,
	}

	r := router.New(deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("vaultline server starting", "version", Version, "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received signal, shutting down gracefully", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal startup error", "error", err)
		os.Exit(1)
	}
}

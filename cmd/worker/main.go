package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"

	"github.com/vaultline/core/internal/audit"
	"github.com/vaultline/core/internal/chunking"
	"github.com/vaultline/core/internal/config"
	"github.com/vaultline/core/internal/embedding"
	"github.com/vaultline/core/internal/extraction"
	"github.com/vaultline/core/internal/objectstore"
	"github.com/vaultline/core/internal/repository"
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

	ingestSub := pubsubClient.Subscription(cfg.PubSubIngestTopic + ".worker")
	var retrySub *pubsub.Subscription
	if cfg.PubSubRetryTopic != "" {
		retrySub = pubsubClient.Subscription(cfg.PubSubRetryTopic + ".worker")
	}
	var healthSub *pubsub.Subscription
	if cfg.PubSubHealthTopic != "" {
		healthSub = pubsubClient.Subscription(cfg.PubSubHealthTopic + ".worker")
	}

	docAIClient, err := extraction.NewDocAIClient(ctx, cfg.DocAILocation, cfg.DocAIProcessorID)
	if err != nil {
		return fmt.Errorf("document ai client: %w", err)
	}
	cascade := extraction.NewCascade(extraction.PlainTextExtractor{}, docAIClient, nil)

	embedClient, err := embedding.NewVertexClient(ctx, cfg.GCPProject, cfg.EmbeddingLocation, cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("embedding client: %w", err)
	}
	embedPipeline := embedding.New(embedClient, cfg.EmbedBatchSize, cfg.EmbedConcurrent, cfg.EmbedMaxRetries)

	documentRepo := repository.NewDocumentRepo(pool)
	auditRepo := repository.NewAuditRepo(pool)
	auditLogger := audit.New(auditRepo)
	vectorStore := vectorstore.NewCollectionStore(pool)
	chunker := chunking.New(cfg.ChunkMinChars, cfg.ChunkMaxChars)

	processor := worker.NewProcessor(cfg.GCSBucketName, documentRepo, store, cascade, chunker, embedPipeline, vectorStore, auditLogger)
	scanner := worker.NewScanner(documentRepo, publisher)
	runtime := worker.NewRuntime(processor, ingestSub, retrySub, healthSub)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("vaultline worker starting", "version", Version, "project", cfg.GCPProject)
		errCh <- runtime.Run(ctx)
	}()

	go scanner.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received signal, shutting down worker", "signal", sig.String())
		cancel()
		<-errCh
	case err := <-errCh:
		cancel()
		if err != nil {
			return fmt.Errorf("worker runtime error: %w", err)
		}
	}

	slog.Info("worker stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal startup error", "error", err)
		os.Exit(1)
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns.
type Config struct {
	Port             int
	Environment      string
	DatabaseURL      string
	DatabaseMaxConns int

	GCPProject        string
	GCPRegion         string
	VertexAILocation  string
	VertexAIModel     string
	EmbeddingLocation string
	EmbeddingModel    string
	EmbeddingDims     int
	GCSBucketName     string
	DocAIProcessorID  string
	DocAILocation     string

	RedisAddr string

	PubSubIngestTopic string
	PubSubRetryTopic  string
	PubSubHealthTopic string

	JWTIssuer   string
	JWTAudience string
	JWKSURL     string
	JWKSTTL     time.Duration

	ChunkMinChars   int
	ChunkMaxChars   int
	EmbedBatchSize  int
	EmbedConcurrent int
	EmbedMaxRetries int

	CircuitBreakerThreshold int
	CircuitBreakerCooldown  time.Duration

	FrontendURL string
}

// Load reads configuration from environment variables. Required variables
// cause an error if missing; in non-development environments the JWT
// verification surface is also required.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	gcpProject := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if gcpProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required")
	}

	cfg := &Config{
		Port:             envInt("PORT", 8080),
		Environment:      envStr("ENVIRONMENT", "development"),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),

		GCPProject:        gcpProject,
		GCPRegion:         envStr("GCP_REGION", "us-east4"),
		VertexAILocation:  envStr("VERTEX_AI_LOCATION", "global"),
		VertexAIModel:     envStr("VERTEX_AI_MODEL", "gemini-3-pro-preview"),
		EmbeddingLocation: envStr("VERTEX_AI_EMBEDDING_LOCATION", envStr("GCP_REGION", "us-east4")),
		EmbeddingModel:    envStr("VERTEX_AI_EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDims:     envInt("EMBEDDING_DIMENSIONS", 768),
		GCSBucketName:     envStr("GCS_BUCKET_NAME", ""),
		DocAIProcessorID:  envStr("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocAILocation:     envStr("DOCUMENT_AI_LOCATION", "us"),

		RedisAddr: envStr("REDIS_ADDR", "localhost:6379"),

		PubSubIngestTopic: envStr("PUBSUB_INGEST_TOPIC", "documents.ingest"),
		PubSubRetryTopic:  envStr("PUBSUB_RETRY_TOPIC", "documents.retry"),
		PubSubHealthTopic: envStr("PUBSUB_HEALTH_TOPIC", "system.health"),

		JWTIssuer:   envStr("JWT_ISSUER", ""),
		JWTAudience: envStr("JWT_AUDIENCE", ""),
		JWKSURL:     envStr("JWKS_URL", ""),
		JWKSTTL:     envDuration("JWKS_CACHE_TTL", 3600*time.Second),

		ChunkMinChars:   envInt("CHUNK_MIN_CHARS", 200),
		ChunkMaxChars:   envInt("CHUNK_MAX_CHARS", 2000),
		EmbedBatchSize:  envInt("EMBED_BATCH_SIZE", 100),
		EmbedConcurrent: envInt("EMBED_CONCURRENCY", 4),
		EmbedMaxRetries: envInt("EMBED_MAX_RETRIES", 3),

		CircuitBreakerThreshold: envInt("CIRCUIT_BREAKER_THRESHOLD", 3),
		CircuitBreakerCooldown:  envDuration("CIRCUIT_BREAKER_COOLDOWN", 60*time.Second),

		FrontendURL: envStr("FRONTEND_URL", "http://localhost:3000"),
	}

	if cfg.Environment != "development" {
		if cfg.JWTIssuer == "" || cfg.JWKSURL == "" {
			return nil, fmt.Errorf("config.Load: JWT_ISSUER and JWKS_URL are required in %s environment", cfg.Environment)
		}
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

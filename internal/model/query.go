package model

import "time"

// QueryOutcome classifies how a RAG query resolved.
type QueryOutcome string

const (
	QueryAnswered QueryOutcome = "answered"
	QueryRefused  QueryOutcome = "refused"
	QueryFailed   QueryOutcome = "failed"
)

// Query is a single question posed against a tenant's document set.
type Query struct {
	ID              string       `json:"id"`
	TenantID        string       `json:"tenantId"`
	UserID          string       `json:"userId"`
	QueryText       string       `json:"queryText"`
	ConfidenceScore *float64     `json:"confidenceScore,omitempty"`
	Outcome         QueryOutcome `json:"outcome"`
	ChunksUsed      int          `json:"chunksUsed"`
	LatencyMs       *int64       `json:"latencyMs,omitempty"`
	ModelUsed       *string      `json:"modelUsed,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// Citation links a generated answer to the chunk it was grounded on.
type Citation struct {
	Index      int     `json:"index"`
	ChunkID    string  `json:"chunkId"`
	DocumentID string  `json:"documentId"`
	Excerpt    string  `json:"excerpt"`
	Relevance  float64 `json:"relevance"`
}

package model

import "time"

// Chunk is a semantically-bounded piece of a document's extracted text,
// with its embedding vector stored separately in the vector store.
type Chunk struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	DocumentID string    `json:"documentId"`
	Index      int       `json:"index"`
	Content    string    `json:"content"`
	CharCount  int       `json:"charCount"`
	PageNumber *int      `json:"pageNumber,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RankedChunk is a Chunk annotated with retrieval scoring signals.
type RankedChunk struct {
	Chunk        Chunk   `json:"chunk"`
	Document     Document `json:"document"`
	DenseScore   float64 `json:"denseScore"`
	BM25Score    float64 `json:"bm25Score"`
	FusedScore   float64 `json:"fusedScore"`
	RerankScore  float64 `json:"rerankScore"`
}

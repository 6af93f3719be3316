package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/vaultline/core/internal/model"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

type fakeDense struct {
	results []model.RankedChunk
	err     error
	gotTenant string
	gotTopK   int
}

func (f *fakeDense) Query(ctx context.Context, tenantID string, queryVec []float32, topK int) ([]model.RankedChunk, error) {
	f.gotTenant = tenantID
	f.gotTopK = topK
	return f.results, f.err
}

type fakeReranker struct {
	scores []float64
	err    error
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	return f.scores, f.err
}

func chunkResult(id, content string, score float64, perms ...string) model.RankedChunk {
	return model.RankedChunk{
		Chunk:      model.Chunk{ID: id, Content: content},
		Document:   model.Document{ID: "doc-" + id, Metadata: withPermissions(perms...)},
		DenseScore: score,
	}
}

func TestRetrieve_EmptyQueryErrors(t *testing.T) {
	r := New(&fakeEmbedder{}, &fakeDense{}, nil)
	if _, err := r.Retrieve(context.Background(), "tenant-a", Request{}); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestRetrieve_NoDenseCandidatesReturnsEmpty(t *testing.T) {
	r := New(&fakeEmbedder{vec: []float32{1}}, &fakeDense{}, nil)
	result, err := r.Retrieve(context.Background(), "tenant-a", Request{QueryText: "hello"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Candidates) != 0 {
		t.Fatalf("expected 0 candidates, got %d", len(result.Candidates))
	}
}

func TestRetrieve_FusesAndLimitsToFive(t *testing.T) {
	dense := &fakeDense{}
	for i := 0; i < 8; i++ {
		dense.results = append(dense.results, chunkResult(
			string(rune('a'+i)), "quarterly finance revenue report", 1.0-float64(i)*0.05))
	}
	r := New(&fakeEmbedder{vec: []float32{1}}, dense, nil)

	result, err := r.Retrieve(context.Background(), "tenant-a", Request{QueryText: "quarterly revenue", TopK: 10})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Candidates) != 5 {
		t.Fatalf("expected at most 5 results, got %d", len(result.Candidates))
	}
	if dense.gotTenant != "tenant-a" {
		t.Fatalf("expected tenant-a passed to dense search, got %q", dense.gotTenant)
	}
	if dense.gotTopK != 40 { // max(10*4, 20)
		t.Fatalf("expected dense fetch size 40, got %d", dense.gotTopK)
	}
}

func TestRetrieve_PermissionFilterAppliesBeforeRerank(t *testing.T) {
	dense := &fakeDense{results: []model.RankedChunk{
		chunkResult("a", "finance report", 0.9, "finance"),
		chunkResult("b", "hr handbook", 0.8, "hr"),
	}}
	r := New(&fakeEmbedder{vec: []float32{1}}, dense, nil)

	result, err := r.Retrieve(context.Background(), "tenant-a", Request{
		QueryText:           "report",
		TopK:                5,
		DocumentPermissions: []string{"finance"},
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Chunk.ID != "a" {
		t.Fatalf("expected only chunk a to survive permission filter, got %+v", result.Candidates)
	}
}

func TestRetrieve_RerankerReordersCandidates(t *testing.T) {
	dense := &fakeDense{results: []model.RankedChunk{
		chunkResult("a", "irrelevant text", 0.9),
		chunkResult("b", "highly relevant text", 0.5),
	}}
	reranker := &fakeReranker{scores: []float64{0.1, 0.95}}
	r := New(&fakeEmbedder{vec: []float32{1}}, dense, reranker)

	result, err := r.Retrieve(context.Background(), "tenant-a", Request{QueryText: "relevant", TopK: 5})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if result.Candidates[0].Chunk.ID != "b" {
		t.Fatalf("expected reranker to promote chunk b to top, got %+v", result.Candidates)
	}
	if !result.Candidates[0].Reranked || result.Candidates[0].RerankOriginalRank == 0 {
		t.Fatalf("expected rerank metadata set, got %+v", result.Candidates[0])
	}
}

func TestRetrieve_RerankerFailureFallsBackToFusedOrder(t *testing.T) {
	dense := &fakeDense{results: []model.RankedChunk{
		chunkResult("a", "text one", 0.9),
		chunkResult("b", "text two", 0.5),
	}}
	reranker := &fakeReranker{err: errors.New("reranker unavailable")}
	r := New(&fakeEmbedder{vec: []float32{1}}, dense, reranker)

	result, err := r.Retrieve(context.Background(), "tenant-a", Request{QueryText: "text", TopK: 5})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if result.Candidates[0].Chunk.ID != "a" {
		t.Fatalf("expected dense-leading order preserved on reranker failure, got %+v", result.Candidates)
	}
	for _, c := range result.Candidates {
		if c.Reranked {
			t.Fatal("expected Reranked=false on fallback")
		}
	}
}

func TestRetrieve_EmbedErrorPropagates(t *testing.T) {
	r := New(&fakeEmbedder{err: errors.New("embedding service down")}, &fakeDense{}, nil)
	if _, err := r.Retrieve(context.Background(), "tenant-a", Request{QueryText: "x"}); err == nil {
		t.Fatal("expected embed error to propagate")
	}
}

package retrieval

import "testing"

func TestReciprocalRankFusion_CombinesBothLists(t *testing.T) {
	candidates := []Candidate{
		{DenseRank: 1}, // index 0, top dense
		{DenseRank: 2}, // index 1
		{DenseRank: 3}, // index 2
	}
	// BM25 favors index 2 strongly, ranks index 0 second, skips index 1.
	bm25 := []bm25Result{
		{Index: 2, Score: 9.0},
		{Index: 0, Score: 4.0},
	}

	fused := reciprocalRankFusion(candidates, bm25)

	if len(fused) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(fused))
	}
	// index 2 appears at dense rank 3 and bm25 rank 1: 1/63 + 1/61.
	// index 0 appears at dense rank 1 and bm25 rank 2: 1/61 + 1/62.
	// index 1 appears only at dense rank 2: 1/62.
	// index 2's combined score should beat index 1's single-list score.
	top := fused[0]
	if top.FusedScore <= 0 {
		t.Fatalf("expected positive fused score, got %f", top.FusedScore)
	}
	for i := 1; i < len(fused); i++ {
		if fused[i-1].FusedScore < fused[i].FusedScore {
			t.Fatalf("fused results not sorted descending at index %d", i)
		}
	}
}

func TestReciprocalRankFusion_DenseOnlyWhenNoBM25Hits(t *testing.T) {
	candidates := []Candidate{{DenseRank: 1}, {DenseRank: 2}}
	fused := reciprocalRankFusion(candidates, nil)
	if fused[0].FusedScore <= fused[1].FusedScore {
		t.Fatal("expected dense rank order preserved when bm25 contributes nothing")
	}
}

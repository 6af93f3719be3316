package retrieval

import "sort"

// reciprocalRankFusion combines dense and BM25 rankings over the same
// candidate set. For each candidate appearing at 1-based rank r in either
// list, it accumulates 1/(rrfK+r); a candidate absent from a list
// contributes nothing for that list.
func reciprocalRankFusion(candidates []Candidate, bm25 []bm25Result) []Candidate {
	scores := make([]float64, len(candidates))

	for rank, c := range candidates {
		if c.DenseRank > 0 {
			scores[rank] += 1.0 / float64(rrfK+c.DenseRank)
		}
	}

	for rank, r := range bm25 {
		scores[r.Index] += 1.0 / float64(rrfK+rank+1)
		candidates[r.Index].BM25Score = r.Score
		candidates[r.Index].BM25Rank = rank + 1
	}

	for i := range candidates {
		candidates[i].FusedScore = scores[i]
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FusedScore > candidates[j].FusedScore
	})
	return candidates
}

// sortByRerankScore reorders candidates by their cross-encoder score,
// highest first.
func sortByRerankScore(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RerankScore > candidates[j].RerankScore
	})
}

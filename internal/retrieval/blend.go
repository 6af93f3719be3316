package retrieval

import (
	"math"
	"time"
)

// Weights for blending the RRF fused score with secondary signals the
// teacher's rerank formula considered: how recent the source document is,
// and how much of the corpus it represents. Spec.md leaves the exact mix
// feeding the final score open; this keeps fusion dominant while still
// rewarding fresh, well-populated documents the way the teacher did.
const (
	blendWeightFused    = 0.80
	blendWeightRecency  = 0.12
	blendWeightParentDoc = 0.08

	recencyFullDays = 7
	recencyZeroDays = 365
	parentDocCap    = 50.0
)

// blendSecondarySignals overwrites each candidate's FusedScore with a
// weighted combination of the RRF score, document recency, and parent
// document size, ported from the teacher's similarity/recency/parent-doc
// rerank weights.
func blendSecondarySignals(candidates []Candidate, now time.Time) {
	for i, c := range candidates {
		recency := recencyBoost(c.Document.CreatedAt, now)
		parentDoc := parentDocBoost(c.Document.ChunkCount)
		candidates[i].FusedScore = blendWeightFused*c.FusedScore +
			blendWeightRecency*recency +
			blendWeightParentDoc*parentDoc
	}
}

// recencyBoost scores [0,1]: documents newer than recencyFullDays score 1,
// documents older than recencyZeroDays score 0, linear decay between.
func recencyBoost(createdAt time.Time, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	daysSince := now.Sub(createdAt).Hours() / 24
	if daysSince < 0 {
		daysSince = 0
	}
	if daysSince <= recencyFullDays {
		return 1.0
	}
	if daysSince >= recencyZeroDays {
		return 0.0
	}
	return 1.0 - (daysSince-recencyFullDays)/(recencyZeroDays-recencyFullDays)
}

// parentDocBoost scores [0,1] by chunk count, capped at parentDocCap.
func parentDocBoost(chunkCount int) float64 {
	if chunkCount <= 0 {
		return 0
	}
	return math.Min(float64(chunkCount)/parentDocCap, 1.0)
}

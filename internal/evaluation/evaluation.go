// Package evaluation scores answered queries on RAGAS-style faithfulness,
// answer-relevance and context-precision metrics using an LLM as judge.
// Evaluation always runs after a query response has already reached its
// caller, so a slow or failing judge never touches query latency.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	answerRelevanceQuestions = 3
	maxChunkChars            = 800
)

// Judge is the minimal LLM contract the evaluator needs: send a prompt,
// get back raw text. GatewayJudge adapts internal/llm.Gateway to this.
type Judge interface {
	Judge(ctx context.Context, tenantID, userID, prompt string) (string, error)
}

// Embedder is the minimal embedding contract needed for answer-relevance
// scoring. internal/embedding.Client satisfies this.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Metrics holds RAGAS-style scores for one query/response pair, each in
// [0, 1]. A nil field means that metric could not be computed.
type Metrics struct {
	Faithfulness     *float64
	AnswerRelevance  *float64
	ContextPrecision *float64
}

// Composite averages whichever metrics were computed. Returns nil if none
// were.
func (m Metrics) Composite() *float64 {
	var sum float64
	var n int
	for _, s := range []*float64{m.Faithfulness, m.AnswerRelevance, m.ContextPrecision} {
		if s != nil {
			sum += *s
			n++
		}
	}
	if n == 0 {
		return nil
	}
	c := sum / float64(n)
	return &c
}

// Evaluator scores a RAG answer against the question and retrieved context
// using an LLM judge for faithfulness and context precision, and embedding
// cosine similarity for answer relevance.
type Evaluator struct {
	judge    Judge
	embedder Embedder
}

// New builds an Evaluator.
func New(judge Judge, embedder Embedder) *Evaluator {
	return &Evaluator{judge: judge, embedder: embedder}
}

// Evaluate runs all three metrics concurrently. It never returns an error:
// a metric that fails is logged and left nil in the result, matching the
// judge's own "never raise, return partial metrics" contract.
func (e *Evaluator) Evaluate(ctx context.Context, tenantID, userID, question, answer string, contexts []string) Metrics {
	var metrics Metrics
	var g errgroup.Group

	g.Go(func() error {
		score, err := e.scoreFaithfulness(ctx, tenantID, userID, question, answer, contexts)
		if err != nil {
			slog.Warn("evaluation.Evaluate: faithfulness failed", "error", err, "tenant_id", tenantID)
			return nil
		}
		metrics.Faithfulness = &score
		return nil
	})
	g.Go(func() error {
		score, err := e.scoreAnswerRelevance(ctx, tenantID, userID, question, answer)
		if err != nil {
			slog.Warn("evaluation.Evaluate: answer relevance failed", "error", err, "tenant_id", tenantID)
			return nil
		}
		metrics.AnswerRelevance = &score
		return nil
	})
	g.Go(func() error {
		score, err := e.scoreContextPrecision(ctx, tenantID, userID, question, contexts)
		if err != nil {
			slog.Warn("evaluation.Evaluate: context precision failed", "error", err, "tenant_id", tenantID)
			return nil
		}
		metrics.ContextPrecision = &score
		return nil
	})
	_ = g.Wait()

	return metrics
}

type faithfulnessJudgment struct {
	Claims    []string `json:"claims"`
	Supported []bool   `json:"supported"`
	Score     float64  `json:"score"`
}

func (e *Evaluator) scoreFaithfulness(ctx context.Context, tenantID, userID, question, answer string, contexts []string) (float64, error) {
	if len(contexts) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	for i, c := range contexts {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, c)
	}

	prompt := fmt.Sprintf(faithfulnessPrompt, sb.String(), question, answer)
	raw, err := e.judge.Judge(ctx, tenantID, userID, prompt)
	if err != nil {
		return 0, fmt.Errorf("evaluation.scoreFaithfulness: %w", err)
	}

	var judgment faithfulnessJudgment
	if err := parseJudgeJSON(raw, &judgment); err != nil {
		return 0, fmt.Errorf("evaluation.scoreFaithfulness: %w", err)
	}
	return clamp01(judgment.Score), nil
}

func (e *Evaluator) scoreAnswerRelevance(ctx context.Context, tenantID, userID, question, answer string) (float64, error) {
	prompt := fmt.Sprintf(answerRelevancePrompt, question, answer, answerRelevanceQuestions)
	raw, err := e.judge.Judge(ctx, tenantID, userID, prompt)
	if err != nil {
		return 0, fmt.Errorf("evaluation.scoreAnswerRelevance: %w", err)
	}

	var generated []string
	if err := parseJudgeJSON(raw, &generated); err != nil {
		return 0, fmt.Errorf("evaluation.scoreAnswerRelevance: %w", err)
	}
	if len(generated) == 0 {
		return 0, fmt.Errorf("evaluation.scoreAnswerRelevance: judge returned no reverse questions")
	}

	origVec, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return 0, fmt.Errorf("evaluation.scoreAnswerRelevance: embed question: %w", err)
	}

	var total float64
	for _, q := range generated {
		vec, err := e.embedder.EmbedQuery(ctx, q)
		if err != nil {
			return 0, fmt.Errorf("evaluation.scoreAnswerRelevance: embed generated question: %w", err)
		}
		total += cosineSimilarity(origVec, vec)
	}
	return clamp01(total / float64(len(generated))), nil
}

func (e *Evaluator) scoreContextPrecision(ctx context.Context, tenantID, userID, question string, contexts []string) (float64, error) {
	if len(contexts) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	for i, c := range contexts {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		text := c
		if len(text) > maxChunkChars {
			text = text[:maxChunkChars]
		}
		fmt.Fprintf(&sb, "[Chunk %d]:\n%s", i+1, text)
	}

	prompt := fmt.Sprintf(contextPrecisionPrompt, question, sb.String())
	raw, err := e.judge.Judge(ctx, tenantID, userID, prompt)
	if err != nil {
		return 0, fmt.Errorf("evaluation.scoreContextPrecision: %w", err)
	}

	var ratings []float64
	if err := parseJudgeJSON(raw, &ratings); err != nil {
		return 0, fmt.Errorf("evaluation.scoreContextPrecision: %w", err)
	}
	if len(ratings) == 0 {
		return 0, fmt.Errorf("evaluation.scoreContextPrecision: judge returned no ratings")
	}

	var total float64
	for _, r := range ratings {
		total += r / 3.0
	}
	return clamp01(total / float64(len(ratings))), nil
}

var (
	jsonFence = regexp.MustCompile("```(?:json)?")
	jsonBody  = regexp.MustCompile(`(?s)[\[{].*[\]}]`)
)

// parseJudgeJSON extracts and unmarshals the first JSON value in raw into
// v. Judges sometimes wrap their JSON in markdown code fences or add
// commentary around it.
func parseJudgeJSON(raw string, v interface{}) error {
	text := jsonFence.ReplaceAllString(raw, "")
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "`")
	text = strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	match := jsonBody.FindString(text)
	if match == "" {
		return fmt.Errorf("no JSON value found in judge response: %.200s", text)
	}
	return json.Unmarshal([]byte(match), v)
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range a {
		normA += float64(x) * float64(x)
	}
	for _, x := range b {
		normB += float64(x) * float64(x)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

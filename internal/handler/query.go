package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaultline/core/internal/audit"
	"github.com/vaultline/core/internal/evaluation"
	"github.com/vaultline/core/internal/llm"
	"github.com/vaultline/core/internal/middleware"
	"github.com/vaultline/core/internal/model"
	"github.com/vaultline/core/internal/prompt"
	"github.com/vaultline/core/internal/retrieval"
	"github.com/vaultline/core/internal/tenant"
)

// QueryRequest is the body of POST /query and POST /query/stream.
type QueryRequest struct {
	Question            string   `json:"question"`
	TopK                int      `json:"top_k"`
	Privacy             string   `json:"privacy"`
	Strategy            string   `json:"strategy"`
	DocumentPermissions []string `json:"document_permissions"`
}

// QueryRecorder persists the query row produced by each call.
type QueryRecorder interface {
	Create(ctx context.Context, q *model.Query) error
}

// EvaluationRecorder persists the RAGAS-style judge scores for one query.
type EvaluationRecorder interface {
	Create(ctx context.Context, res *model.EvaluationResult) error
}

// QueryDeps bundles the dependencies the query handlers need.
type QueryDeps struct {
	Retriever   *retrieval.Retriever
	Gateway     *llm.Gateway
	Prompts     *prompt.Manager
	Audit       *audit.Logger
	Queries     QueryRecorder
	Evaluator   *evaluation.Evaluator
	Evaluations EvaluationRecorder
	Metrics     *middleware.Metrics
}

const promptTemplateName = "rag_default"

func decodeQueryRequest(r *http.Request) (QueryRequest, error) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return QueryRequest{}, fmt.Errorf("invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return QueryRequest{}, fmt.Errorf("question is required")
	}
	return req, nil
}

func (deps QueryDeps) selectionConstraints(req QueryRequest) llm.SelectionConstraints {
	privacy := llm.PrivacyStandard
	if req.Privacy != "" {
		privacy = llm.PrivacyLevel(req.Privacy)
	}
	return llm.SelectionConstraints{Privacy: privacy}
}

func (deps QueryDeps) strategy(req QueryRequest) llm.Strategy {
	if req.Strategy != "" {
		return llm.Strategy(req.Strategy)
	}
	return llm.StrategyLowestCost
}

// retrieveAndBuildPrompt runs retrieval and renders the answer prompt. It
// returns ok=false when no context was retrieved, the NO_CONTEXT case.
func (deps QueryDeps) retrieveAndBuildPrompt(ctx context.Context, tenantID string, req QueryRequest) (systemPrompt, userPrompt string, candidates []retrieval.Candidate, ok bool, err error) {
	result, err := deps.Retriever.Retrieve(ctx, tenantID, retrieval.Request{
		QueryText:           req.Question,
		TopK:                req.TopK,
		DocumentPermissions: req.DocumentPermissions,
	})
	if err != nil {
		return "", "", nil, false, err
	}
	if len(result.Candidates) == 0 {
		return "", "", nil, false, nil
	}

	var contextBuilder strings.Builder
	for i, c := range result.Candidates {
		fmt.Fprintf(&contextBuilder, "[%d] %s\n\n", i+1, c.Chunk.Content)
	}

	template, err := deps.Prompts.Resolve(ctx, tenantID, promptTemplateName)
	if err != nil {
		return "", "", nil, false, err
	}
	rendered := strings.NewReplacer(
		"{tenant_name}", tenantID,
		"{context}", contextBuilder.String(),
		"{question}", req.Question,
	).Replace(template)

	return "Answer strictly and only from the provided context. If the context does not contain the answer, say so plainly.",
		rendered, result.Candidates, true, nil
}

// Query handles POST /query: blocking retrieval + generation.
func Query(deps QueryDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		start := time.Now()

		req, err := decodeQueryRequest(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeValidationError, err.Error(), nil)
			return
		}

		systemPrompt, userPrompt, candidates, ok, err := deps.retrieveAndBuildPrompt(r.Context(), principal.TenantID, req)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, CodeInternalError, "retrieval failed", nil)
			return
		}
		if !ok {
			deps.recordOutcome(r.Context(), principal, req, nil, model.QueryRefused, nil, time.Since(start))
			writeError(w, r, http.StatusUnprocessableEntity, CodeNoContext, "no relevant context was found for this question", nil)
			return
		}

		resp, err := deps.Gateway.Generate(r.Context(), principal.TenantID, principal.UserID, llm.GenerateRequest{
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
			InputTokens:  len(userPrompt) / 4,
			Constraints:  deps.selectionConstraints(req),
			Strategy:     deps.strategy(req),
		})
		if err != nil {
			deps.recordOutcome(r.Context(), principal, req, candidates, model.QueryFailed, nil, time.Since(start))
			writeError(w, r, http.StatusServiceUnavailable, CodeInternalError, "generation failed", nil)
			return
		}

		queryID := deps.recordOutcome(r.Context(), principal, req, candidates, model.QueryAnswered, &resp.ModelID, time.Since(start))
		deps.evaluateAsync(principal, queryID, req.Question, resp.Text, candidates)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"answer":     resp.Text,
			"model":      resp.ModelID,
			"provider":   resp.Provider,
			"citations":  citationsFrom(candidates),
			"query_id":   queryID,
		})
	}
}

// QueryStream handles POST /query/stream, the server-sent-events variant.
func QueryStream(deps QueryDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		start := time.Now()

		req, err := decodeQueryRequest(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeValidationError, err.Error(), nil)
			return
		}

		systemPrompt, userPrompt, candidates, ok, err := deps.retrieveAndBuildPrompt(r.Context(), principal.TenantID, req)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, CodeInternalError, "retrieval failed", nil)
			return
		}
		if !ok {
			deps.recordOutcome(r.Context(), principal, req, nil, model.QueryRefused, nil, time.Since(start))
			writeError(w, r, http.StatusUnprocessableEntity, CodeNoContext, "no relevant context was found for this question", nil)
			return
		}

		textCh, errCh, err := deps.Gateway.GenerateStream(r.Context(), principal.TenantID, principal.UserID, llm.GenerateRequest{
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
			InputTokens:  len(userPrompt) / 4,
			Constraints:  deps.selectionConstraints(req),
			Strategy:     deps.strategy(req),
		})
		if err != nil {
			deps.recordOutcome(r.Context(), principal, req, candidates, model.QueryFailed, nil, time.Since(start))
			writeError(w, r, http.StatusServiceUnavailable, CodeInternalError, "generation failed", nil)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, r, http.StatusInternalServerError, CodeInternalError, "streaming unsupported", nil)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		var full strings.Builder
		for chunk := range textCh {
			full.WriteString(chunk)
			data, _ := json.Marshal(map[string]string{"delta": chunk})
			fmt.Fprintf(w, "event: delta\ndata: %s\n\n", data)
			flusher.Flush()
		}
		if streamErr := <-errCh; streamErr != nil {
			fmt.Fprintf(w, "event: error\ndata: {\"message\":%q}\n\n", streamErr.Error())
			flusher.Flush()
			deps.recordOutcome(r.Context(), principal, req, candidates, model.QueryFailed, nil, time.Since(start))
			return
		}

		queryID := deps.recordOutcome(r.Context(), principal, req, candidates, model.QueryAnswered, nil, time.Since(start))
		deps.evaluateAsync(principal, queryID, req.Question, full.String(), candidates)

		fmt.Fprintf(w, "event: done\ndata: {\"query_id\":%q}\n\n", queryID)
		flusher.Flush()
	}
}

func citationsFrom(candidates []retrieval.Candidate) []model.Citation {
	citations := make([]model.Citation, 0, len(candidates))
	for i, c := range candidates {
		excerpt := c.Chunk.Content
		if len(excerpt) > 280 {
			excerpt = excerpt[:280]
		}
		citations = append(citations, model.Citation{
			Index:      i + 1,
			ChunkID:    c.Chunk.ID,
			DocumentID: c.Document.ID,
			Excerpt:    excerpt,
			Relevance:  c.FusedScore,
		})
	}
	return citations
}

// recordOutcome writes the audit entry and query row for one call,
// returning the generated query ID. Persistence failures never surface to
// the caller, who already has (or is about to get) their response.
func (deps QueryDeps) recordOutcome(ctx context.Context, principal tenant.Principal, req QueryRequest, candidates []retrieval.Candidate, outcome model.QueryOutcome, modelUsed *string, latency time.Duration) string {
	queryID := uuid.New().String()
	latencyMs := latency.Milliseconds()

	if outcome == model.QueryRefused && deps.Metrics != nil {
		deps.Metrics.IncrementQueryRefusal()
	}

	if deps.Audit != nil {
		if err := deps.Audit.LogQuery(ctx, principal.TenantID, principal.UserID, req.Question, outcome == model.QueryAnswered, map[string]interface{}{
			"outcome": outcome,
		}); err != nil {
			_ = err // audit failures never block the response path
		}
	}

	if deps.Queries != nil {
		q := &model.Query{
			ID:         queryID,
			TenantID:   principal.TenantID,
			UserID:     principal.UserID,
			QueryText:  req.Question,
			Outcome:    outcome,
			ChunksUsed: len(candidates),
			LatencyMs:  &latencyMs,
			ModelUsed:  modelUsed,
			CreatedAt:  time.Now().UTC(),
		}
		if err := deps.Queries.Create(ctx, q); err != nil {
			_ = err
		}
	}

	return queryID
}

// evaluateAsync scores the answer after it has already reached the
// caller, per the propagation policy's "post-processing hooks never
// surface errors" rule.
func (deps QueryDeps) evaluateAsync(principal tenant.Principal, queryID, question, answer string, candidates []retrieval.Candidate) {
	if deps.Evaluator == nil {
		return
	}
	contexts := make([]string, len(candidates))
	for i, c := range candidates {
		contexts[i] = c.Chunk.Content
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		metrics := deps.Evaluator.Evaluate(ctx, principal.TenantID, principal.UserID, question, answer, contexts)
		if deps.Evaluations == nil {
			return
		}
		res := &model.EvaluationResult{
			ID:               uuid.New().String(),
			TenantID:         principal.TenantID,
			QueryID:          queryID,
			Faithfulness:     metrics.Faithfulness,
			AnswerRelevance:  metrics.AnswerRelevance,
			ContextPrecision: metrics.ContextPrecision,
			Composite:        metrics.Composite(),
			CreatedAt:        time.Now().UTC(),
		}
		if err := deps.Evaluations.Create(ctx, res); err != nil {
			_ = err
		}
	}()
}

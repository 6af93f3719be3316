package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vaultline/core/internal/audit"
	"github.com/vaultline/core/internal/llm"
	"github.com/vaultline/core/internal/model"
	"github.com/vaultline/core/internal/prompt"
	"github.com/vaultline/core/internal/rbac"
	"github.com/vaultline/core/internal/retrieval"
	"github.com/vaultline/core/internal/tenant"
)

type stubDenseSearcher struct {
	chunks []model.RankedChunk
	err    error
}

func (s *stubDenseSearcher) Query(ctx context.Context, tenantID string, queryVec []float32, topK int) ([]model.RankedChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.chunks, nil
}

type stubQueryEmbedder struct{}

func (s *stubQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type stubProvider struct {
	text string
	err  error
}

func (s *stubProvider) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func (s *stubProvider) GenerateContentStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error) {
	textCh := make(chan string, 1)
	errCh := make(chan error, 1)
	textCh <- s.text
	close(textCh)
	errCh <- s.err
	close(errCh)
	return textCh, errCh
}

type stubUsageRecorder struct{}

func (s *stubUsageRecorder) RecordUsage(ctx context.Context, tenantID, userID, modelID, provider string, inputTokens, outputTokens int) error {
	return nil
}

type stubTemplateRepo struct{}

func (s *stubTemplateRepo) ListActive(ctx context.Context, tenantID, name string) ([]model.PromptTemplate, error) {
	return nil, nil
}

type stubAuditRepo struct{}

func (s *stubAuditRepo) Create(ctx context.Context, e *model.AuditLog) error { return nil }
func (s *stubAuditRepo) LatestHash(ctx context.Context, tenantID string) (string, error) {
	return "", nil
}

type stubQueryRecorder struct {
	created []*model.Query
}

func (s *stubQueryRecorder) Create(ctx context.Context, q *model.Query) error {
	s.created = append(s.created, q)
	return nil
}

func queryCatalogue() *llm.Catalogue {
	return llm.NewCatalogue([]llm.Model{{
		ID: "gemini-1.5-flash", Provider: "vertex", ContextWindowTokens: 32000,
		SupportedPrivacy: map[llm.PrivacyLevel]bool{llm.PrivacyStandard: true},
		SupportsStreaming: true,
	}})
}

func queryDeps(providerText string, providerErr error, chunks []model.RankedChunk) (QueryDeps, *stubQueryRecorder) {
	recorder := &stubQueryRecorder{}
	gateway := llm.New(queryCatalogue(), map[string]llm.Provider{
		"vertex": &stubProvider{text: providerText, err: providerErr},
	}, &stubUsageRecorder{})

	deps := QueryDeps{
		Retriever: retrieval.New(&stubQueryEmbedder{}, &stubDenseSearcher{chunks: chunks}, nil),
		Gateway:   gateway,
		Prompts:   prompt.New(&stubTemplateRepo{}),
		Audit:     audit.New(&stubAuditRepo{}),
		Queries:   recorder,
	}
	return deps, recorder
}

func queryRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(body))
	ctx := tenant.WithPrincipal(req.Context(), tenant.Principal{TenantID: "tenant-a", UserID: "user-1", Role: rbac.Viewer})
	return req.WithContext(ctx)
}

func sampleChunk(id string) model.RankedChunk {
	return model.RankedChunk{
		Chunk:    model.Chunk{ID: id, TenantID: "tenant-a", DocumentID: "doc-1", Content: "Vaultline ingests documents into per-tenant vector stores."},
		Document: model.Document{ID: "doc-1", TenantID: "tenant-a"},
	}
}

func TestQuery_Success(t *testing.T) {
	deps, recorder := queryDeps("Vaultline stores chunks per tenant.", nil, []model.RankedChunk{sampleChunk("c1")})
	handler := Query(deps)

	req := queryRequest(`{"question":"how are documents stored?","top_k":3}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["answer"] == "" {
		t.Error("expected a non-empty answer")
	}
	if len(recorder.created) != 1 {
		t.Fatalf("expected one query row recorded, got %d", len(recorder.created))
	}
	if recorder.created[0].Outcome != model.QueryAnswered {
		t.Errorf("outcome = %v, want QueryAnswered", recorder.created[0].Outcome)
	}
}

func TestQuery_NoContext(t *testing.T) {
	deps, recorder := queryDeps("unused", nil, nil)
	handler := Query(deps)

	req := queryRequest(`{"question":"anything?"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if len(recorder.created) != 1 || recorder.created[0].Outcome != model.QueryRefused {
		t.Fatalf("expected one QueryRefused row, got %+v", recorder.created)
	}
}

func TestQuery_EmptyQuestion(t *testing.T) {
	deps, _ := queryDeps("unused", nil, nil)
	handler := Query(deps)

	req := queryRequest(`{"question":""}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestQueryStream_Success(t *testing.T) {
	deps, recorder := queryDeps("streamed answer", nil, []model.RankedChunk{sampleChunk("c1")})
	handler := QueryStream(deps)

	req := queryRequest(`{"question":"how are documents stored?"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !bytes.Contains([]byte(body), []byte("event: delta")) {
		t.Error("expected at least one delta event")
	}
	if !bytes.Contains([]byte(body), []byte("event: done")) {
		t.Error("expected a done event")
	}
	if len(recorder.created) != 1 {
		t.Fatalf("expected one query row recorded, got %d", len(recorder.created))
	}
}

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
)

// VertexProvider implements Provider against Vertex AI Gemini, supporting
// both regional endpoints (via the Go SDK) and the "global" endpoint (via
// REST, since the SDK does not support it).
type VertexProvider struct {
	client     *genai.Client // nil when using the global endpoint
	httpClient *http.Client  // used for global-endpoint REST calls
	project    string
	location   string
	model      string
	useREST    bool
}

// NewVertexProvider creates a VertexProvider for the given project/location/
// model. location "global" routes through REST instead of the SDK.
func NewVertexProvider(ctx context.Context, project, location, model string) (*VertexProvider, error) {
	if location == "global" {
		httpClient, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return nil, fmt.Errorf("llm.NewVertexProvider: default credentials: %w", err)
		}
		return &VertexProvider{
			httpClient: httpClient,
			project:    project,
			location:   location,
			model:      model,
			useREST:    true,
		}, nil
	}

	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("llm.NewVertexProvider: %w", err)
	}
	return &VertexProvider{client: client, project: project, location: location, model: model}, nil
}

// GenerateContent implements Provider. Retries up to 3 times on a
// 429/RESOURCE_EXHAUSTED response with 500ms->1000ms->2000ms backoff,
// capped at a 4s ceiling, independent of the gateway's own fallback chain:
// this retries the same model before the gateway moves on to the next one.
func (v *VertexProvider) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return withRetry(ctx, "GenerateContent", func() (string, error) {
		if v.useREST {
			return v.generateContentREST(ctx, systemPrompt, userPrompt)
		}
		return v.generateContentSDK(ctx, systemPrompt, userPrompt)
	})
}

func (v *VertexProvider) generateContentSDK(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	model := v.client.GenerativeModel(v.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("llm.VertexProvider.GenerateContent: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("llm.VertexProvider.GenerateContent: empty response from model")
	}

	var parts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			parts = append(parts, string(t))
		}
	}
	return strings.Join(parts, ""), nil
}

type vertexRESTRequest struct {
	Contents          []vertexRESTContent        `json:"contents"`
	SystemInstruction *vertexRESTContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  *vertexRESTGenerationConfig `json:"generationConfig,omitempty"`
}

type vertexRESTContent struct {
	Role  string          `json:"role"`
	Parts []vertexRESTPart `json:"parts"`
}

type vertexRESTPart struct {
	Text string `json:"text"`
}

type vertexRESTGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type vertexRESTResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (v *VertexProvider) restRequestBody(systemPrompt, userPrompt string) ([]byte, error) {
	body := vertexRESTRequest{
		Contents: []vertexRESTContent{{Role: "user", Parts: []vertexRESTPart{{Text: userPrompt}}}},
	}
	if systemPrompt != "" {
		body.SystemInstruction = &vertexRESTContent{Role: "user", Parts: []vertexRESTPart{{Text: systemPrompt}}}
	}
	return json.Marshal(body)
}

func (v *VertexProvider) generateContentREST(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	url := fmt.Sprintf(
		"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:generateContent",
		v.project, v.model,
	)

	bodyBytes, err := v.restRequestBody(systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("llm.VertexProvider.GenerateContent: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("llm.VertexProvider.GenerateContent: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm.VertexProvider.GenerateContent: call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm.VertexProvider.GenerateContent: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm.VertexProvider.GenerateContent: status %d: %s", resp.StatusCode, respBody)
	}

	var genResp vertexRESTResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("llm.VertexProvider.GenerateContent: decode: %w", err)
	}
	if genResp.Error != nil {
		return "", fmt.Errorf("llm.VertexProvider.GenerateContent: API error %d: %s", genResp.Error.Code, genResp.Error.Message)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("llm.VertexProvider.GenerateContent: empty response from model")
	}

	var parts []string
	for _, p := range genResp.Candidates[0].Content.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("llm.VertexProvider.GenerateContent: no text in response")
	}
	return strings.Join(parts, ""), nil
}

// GenerateContentStream implements Provider.
func (v *VertexProvider) GenerateContentStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error) {
	textCh := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(textCh)
		defer close(errCh)

		var err error
		if v.useREST {
			err = v.streamContentREST(ctx, systemPrompt, userPrompt, textCh)
		} else {
			err = v.streamContentSDK(ctx, systemPrompt, userPrompt, textCh)
		}
		if err != nil {
			errCh <- err
		}
	}()

	return textCh, errCh
}

func (v *VertexProvider) streamContentSDK(ctx context.Context, systemPrompt, userPrompt string, textCh chan<- string) error {
	model := v.client.GenerativeModel(v.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	iter := model.GenerateContentStream(ctx, genai.Text(userPrompt))
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("llm.VertexProvider.GenerateContentStream: %w", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					textCh <- string(t)
				}
			}
		}
	}
}

func (v *VertexProvider) streamContentREST(ctx context.Context, systemPrompt, userPrompt string, textCh chan<- string) error {
	url := fmt.Sprintf(
		"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:streamGenerateContent?alt=sse",
		v.project, v.model,
	)

	bodyBytes, err := v.restRequestBody(systemPrompt, userPrompt)
	if err != nil {
		return fmt.Errorf("llm.VertexProvider.GenerateContentStream: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("llm.VertexProvider.GenerateContentStream: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llm.VertexProvider.GenerateContentStream: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("llm.VertexProvider.GenerateContentStream: status %d: %s", resp.StatusCode, body)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk vertexRESTResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					textCh <- part.Text
				}
			}
		}
	}
	return scanner.Err()
}

// HealthCheck validates Vertex AI connectivity with a minimal call.
func (v *VertexProvider) HealthCheck(ctx context.Context) error {
	resp, err := v.GenerateContent(ctx, "", "Reply with only: OK")
	if err != nil {
		return fmt.Errorf("vertex AI health check failed (model: %s, location: %s): %w", v.model, v.location, err)
	}
	if resp == "" {
		return fmt.Errorf("vertex AI returned empty response (model: %s)", v.model)
	}
	slog.Info("vertex ai health check passed", "model", v.model, "location", v.location)
	return nil
}

// Close releases the underlying SDK client, a no-op on the REST path.
func (v *VertexProvider) Close() {
	if v.client != nil {
		v.client.Close()
	}
}

var _ Provider = (*VertexProvider)(nil)

// ErrVertexRateLimited is returned when all retries are exhausted against a
// 429 response.
var ErrVertexRateLimited = fmt.Errorf("the system is experiencing high demand, please try again in a few seconds")

var vertexRetryConfig = struct {
	delays  []time.Duration
	ceiling time.Duration
}{
	delays:  []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond, 2000 * time.Millisecond},
	ceiling: 4 * time.Second,
}

func isVertexRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit")
}

// withRetry executes fn up to len(vertexRetryConfig.delays)+1 times,
// retrying only on 429/rate-limit responses from Vertex AI itself. This is
// independent of the gateway's own provider-to-provider fallback: it keeps
// retrying the same model briefly before giving up and letting the gateway
// move on.
func withRetry[T any](ctx context.Context, operation string, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil {
		return result, nil
	}
	if !isVertexRateLimitError(err) {
		return result, err
	}

	for i, delay := range vertexRetryConfig.delays {
		if delay > vertexRetryConfig.ceiling {
			delay = vertexRetryConfig.ceiling
		}

		slog.Warn("vertex AI rate limited, retrying",
			"operation", operation, "attempt", i+2, "delay_ms", delay.Milliseconds(), "error", err.Error())

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
		case <-time.After(delay):
		}

		result, err = fn()
		if err == nil {
			slog.Info("vertex AI retry succeeded", "operation", operation, "attempt", i+2)
			return result, nil
		}
		if !isVertexRateLimitError(err) {
			return result, err
		}
	}

	var zero T
	slog.Error("vertex AI retries exhausted", "operation", operation, "attempts", len(vertexRetryConfig.delays)+1)
	return zero, ErrVertexRateLimited
}

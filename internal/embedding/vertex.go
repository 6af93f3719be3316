package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/google"
)

// VertexClient calls the Vertex AI text embedding REST API.
type VertexClient struct {
	project  string
	location string
	model    string
	client   *http.Client
}

// NewVertexClient dials Vertex AI using application default credentials.
func NewVertexClient(ctx context.Context, project, location, model string) (*VertexClient, error) {
	client, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("embedding.NewVertexClient: %w", err)
	}
	return &VertexClient{project: project, location: location, model: model, client: client}, nil
}

type embeddingRequest struct {
	Instances []embeddingInstance `json:"instances"`
}

type embeddingInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type embeddingResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// EmbedDocuments embeds texts with RETRIEVAL_DOCUMENT task type, for
// chunks that will be stored and searched against.
func (c *VertexClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery embeds a single query string with RETRIEVAL_QUERY task type.
func (c *VertexClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding.EmbedQuery: expected 1 vector, got %d", len(vectors))
	}
	return vectors[0], nil
}

func (c *VertexClient) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	instances := make([]embeddingInstance, len(texts))
	for i, t := range texts {
		instances[i] = embeddingInstance{Content: t, TaskType: taskType}
	}

	body, err := json.Marshal(embeddingRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("embedding.embed: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding.embed: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding.embed: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding.embed: status %d: %s", resp.StatusCode, raw)
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("embedding.embed: decode: %w", err)
	}

	results := make([][]float32, len(decoded.Predictions))
	for i, p := range decoded.Predictions {
		if len(p.Embeddings.Values) != Dimensions {
			return nil, fmt.Errorf("embedding.embed: vector %d has %d dimensions, want %d", i, len(p.Embeddings.Values), Dimensions)
		}
		results[i] = p.Embeddings.Values
	}
	return results, nil
}

func (c *VertexClient) endpointURL() string {
	if c.location == "global" {
		return fmt.Sprintf(
			"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:predict",
			c.project, c.model,
		)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		c.location, c.project, c.location, c.model,
	)
}

var _ Client = (*VertexClient)(nil)

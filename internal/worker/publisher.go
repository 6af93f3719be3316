package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/vaultline/core/internal/ingest"
)

// PubsubPublisher implements ingest.Publisher over the documents.ingest
// topic, carrying "x-max-priority: 10" so re-queued retries never starve
// behind a backlog of fresh uploads.
type PubsubPublisher struct {
	topic *pubsub.Topic
}

// NewPubsubPublisher builds a PubsubPublisher.
func NewPubsubPublisher(topic *pubsub.Topic) *PubsubPublisher {
	return &PubsubPublisher{topic: topic}
}

var _ ingest.Publisher = (*PubsubPublisher)(nil)

// Enqueue publishes task as JSON with a max-priority attribute.
func (p *PubsubPublisher) Enqueue(ctx context.Context, task ingest.Task) error {
	payload, err := json.Marshal(Task{
		DocumentID:  task.DocumentID,
		TenantID:    task.TenantID,
		StorageKey:  task.StorageKey,
		ContentType: task.ContentType,
	})
	if err != nil {
		return fmt.Errorf("worker.Enqueue: marshal: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"x-max-priority": "10"},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("worker.Enqueue: publish: %w", err)
	}
	return nil
}

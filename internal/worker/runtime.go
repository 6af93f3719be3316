package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

const (
	softTimeout = 270 * time.Second
	hardTimeout = 330 * time.Second
)

// Runtime pulls tasks off the ingest and retry subscriptions and hands
// each to a Processor, respecting the soft/hard processing deadlines.
type Runtime struct {
	processor *Processor
	ingestSub *pubsub.Subscription
	retrySub  *pubsub.Subscription
	healthSub *pubsub.Subscription
}

// NewRuntime builds a Runtime. retrySub and healthSub may be nil if
// those queues are not wired for a given deployment.
func NewRuntime(processor *Processor, ingestSub, retrySub, healthSub *pubsub.Subscription) *Runtime {
	return &Runtime{processor: processor, ingestSub: ingestSub, retrySub: retrySub, healthSub: healthSub}
}

// Run blocks, consuming all configured subscriptions concurrently until
// ctx is cancelled or a subscription's Receive loop returns an error.
func (r *Runtime) Run(ctx context.Context) error {
	errCh := make(chan error, 3)
	active := 0

	start := func(sub *pubsub.Subscription, queue string) {
		active++
		go func() {
			errCh <- sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
				r.handle(msgCtx, queue, msg)
			})
		}()
	}

	if r.ingestSub != nil {
		start(r.ingestSub, "documents.ingest")
	}
	if r.retrySub != nil {
		start(r.retrySub, "documents.retry")
	}
	if r.healthSub != nil {
		start(r.healthSub, "system.health")
	}

	var firstErr error
	for i := 0; i < active; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Runtime) handle(parent context.Context, queue string, msg *pubsub.Message) {
	if queue == "system.health" {
		msg.Ack()
		return
	}

	var task Task
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		slog.Error("worker: malformed task payload, dead-lettering", "queue", queue, "error", err)
		msg.Ack() // never redeliver an unparseable payload
		return
	}

	ctx, hardCancel := context.WithTimeout(parent, hardTimeout)
	defer hardCancel()

	softTimer := time.AfterFunc(softTimeout, func() {
		slog.Warn("worker: soft timeout reached, marking document failed before hard cancel", "document_id", task.DocumentID)
		r.processor.failDocument(context.Background(), task.TenantID, task.DocumentID, context.DeadlineExceeded)
	})
	defer softTimer.Stop()

	skipped, err := r.processor.Process(ctx, task)
	if err != nil {
		slog.Error("worker: process_document failed terminally", "document_id", task.DocumentID, "queue", queue, "error", err)
		msg.Ack() // already dead-lettered by the processor's own retry loop
		return
	}
	if skipped {
		slog.Info("worker: process_document skipped", "document_id", task.DocumentID, "queue", queue)
	}
	msg.Ack()
}

// Package extraction turns an uploaded document into plain text, trying a
// native text layer first and falling back to managed OCR when the file
// has no extractable text of its own.
package extraction

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Entity is a named entity Document AI pulled out of a page, analogous to
// the teacher's entity extraction on invoices/contracts.
type Entity struct {
	Type       string
	Content    string
	Confidence float64
}

// Result is the outcome of extracting text from one document.
type Result struct {
	Text     string
	Pages    int
	Entities []Entity
}

// NativeExtractor reads text directly out of a document without OCR. ok is
// false when the mime type or content has no native text layer to read.
type NativeExtractor interface {
	Extract(ctx context.Context, r io.Reader, mimeType string) (result Result, ok bool, err error)
}

// OCRClient runs synchronous managed OCR over a document already resident
// in object storage.
type OCRClient interface {
	Process(ctx context.Context, gcsURI, mimeType string) (Result, error)
}

// AsyncOCRClient runs managed OCR as a long-running operation: Start
// returns an operation name immediately, Poll reports whether it has
// finished.
type AsyncOCRClient interface {
	StartBatch(ctx context.Context, gcsURI, mimeType string) (operation string, err error)
	Poll(ctx context.Context, operation string) (done bool, result Result, err error)
}

// Cascade tries a native text layer first. If that yields no text, it uses
// synchronous managed OCR when one is configured, returning its result or
// error; asynchronous managed OCR runs only when no synchronous client is
// set. Any stage may be nil to skip it.
type Cascade struct {
	Native   NativeExtractor
	OCR      OCRClient
	Async    AsyncOCRClient
	PollEvery   time.Duration
	PollTimeout time.Duration
}

// NewCascade builds a Cascade with the teacher's polling defaults: check
// every 5 seconds, give up after 10 minutes.
func NewCascade(native NativeExtractor, ocr OCRClient, async AsyncOCRClient) *Cascade {
	return &Cascade{
		Native:      native,
		OCR:         ocr,
		Async:       async,
		PollEvery:   5 * time.Second,
		PollTimeout: 10 * time.Minute,
	}
}

// Extract runs the cascade. localContent is the document's bytes for the
// native-text-layer probe; gcsURI is where the same document lives in
// object storage for the OCR fallbacks.
func (c *Cascade) Extract(ctx context.Context, localContent io.Reader, gcsURI, mimeType string) (Result, error) {
	if c.Native != nil {
		result, ok, err := c.Native.Extract(ctx, localContent, mimeType)
		if err != nil {
			return Result{}, fmt.Errorf("extraction.Extract: native: %w", err)
		}
		if ok {
			slog.Info("extraction: native text layer used", "mime_type", mimeType, "chars", len(result.Text))
			return result, nil
		}
	}

	if c.OCR != nil {
		slog.Info("extraction: falling back to managed OCR", "mime_type", mimeType, "uri", gcsURI)
		result, err := c.OCR.Process(ctx, gcsURI, mimeType)
		if err != nil {
			return Result{}, fmt.Errorf("extraction.Extract: ocr: %w", err)
		}
		return result, nil
	}

	if c.Async != nil {
		return c.pollAsync(ctx, gcsURI, mimeType)
	}

	return Result{}, fmt.Errorf("extraction.Extract: no extraction strategy available for %s", mimeType)
}

func (c *Cascade) pollAsync(ctx context.Context, gcsURI, mimeType string) (Result, error) {
	operation, err := c.Async.StartBatch(ctx, gcsURI, mimeType)
	if err != nil {
		return Result{}, fmt.Errorf("extraction.pollAsync: start: %w", err)
	}
	slog.Info("extraction: started async OCR", "operation", operation, "uri", gcsURI)

	deadline := time.Now().Add(c.PollTimeout)
	ticker := time.NewTicker(c.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return Result{}, fmt.Errorf("extraction.pollAsync: operation %s timed out after %s", operation, c.PollTimeout)
			}
			done, result, err := c.Async.Poll(ctx, operation)
			if err != nil {
				return Result{}, fmt.Errorf("extraction.pollAsync: poll: %w", err)
			}
			if done {
				slog.Info("extraction: async OCR complete", "operation", operation, "chars", len(result.Text))
				return result, nil
			}
		}
	}
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vaultline/core/internal/tracing"
)

const perAttemptTimeout = 30 * time.Second

// Gateway routes generation requests across a model catalogue with
// per-provider circuit breaking and ordered fallback.
type Gateway struct {
	catalogue *Catalogue
	providers map[string]Provider // keyed by provider label
	breakers  *breakerRegistry
	usage     UsageRecorder // nil disables usage tracking
}

// New creates a Gateway. providers maps each catalogue Model.Provider value
// to the client that serves it.
func New(catalogue *Catalogue, providers map[string]Provider, usage UsageRecorder) *Gateway {
	return &Gateway{
		catalogue: catalogue,
		providers: providers,
		breakers:  newBreakerRegistry(),
		usage:     usage,
	}
}

// Generate selects a model chain for req and attempts each in order,
// respecting each provider's circuit breaker, until one succeeds or every
// qualifying model has failed.
func (g *Gateway) Generate(ctx context.Context, tenantID, userID string, req GenerateRequest) (*GenerateResponse, error) {
	ctx, span := tracing.Start(ctx, "llm.Generate", tracing.StringAttr("tenant_id", tenantID))

	chain, err := g.catalogue.Select(req.Constraints, req.Strategy)
	if err != nil {
		span.End(err)
		return nil, err
	}

	var failures []AttemptFailure
	for _, model := range chain {
		provider, ok := g.providers[model.Provider]
		if !ok {
			failures = append(failures, AttemptFailure{ModelID: model.ID, Cause: fmt.Errorf("no client registered for provider %q", model.Provider)})
			continue
		}

		breaker := g.breakers.forProvider(model.Provider)
		if breaker.State() == gobreaker.StateOpen {
			failures = append(failures, AttemptFailure{ModelID: model.ID, Cause: errors.New("circuit breaker open")})
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
		result, err := breaker.Execute(func() (interface{}, error) {
			return provider.GenerateContent(attemptCtx, req.SystemPrompt, req.UserPrompt)
		})
		cancel()

		if err != nil {
			failures = append(failures, AttemptFailure{ModelID: model.ID, Cause: err})
			if !retryable(err) {
				wrapped := fmt.Errorf("llm.Generate: %w", err)
				span.End(wrapped)
				return nil, wrapped
			}
			continue
		}

		text := result.(string)
		g.recordUsage(ctx, tenantID, userID, model, req.InputTokens, text, span, nil)

		return &GenerateResponse{Text: text, ModelID: model.ID, Provider: model.Provider}, nil
	}

	finalErr := &AllProvidersFailedError{Attempts: failures}
	span.End(finalErr)
	return nil, finalErr
}

// GenerateStream behaves like Generate but streams content deltas. Fallback
// happens before the first chunk reaches the caller; once a provider has
// started streaming, an in-stream failure is surfaced directly rather than
// triggering fallback to the next model.
func (g *Gateway) GenerateStream(ctx context.Context, tenantID, userID string, req GenerateRequest) (<-chan string, <-chan error, error) {
	ctx, span := tracing.Start(ctx, "llm.GenerateStream", tracing.StringAttr("tenant_id", tenantID))

	chain, err := g.catalogue.Select(req.Constraints, req.Strategy)
	if err != nil {
		span.End(err)
		return nil, nil, err
	}

	var failures []AttemptFailure
	for _, model := range chain {
		provider, ok := g.providers[model.Provider]
		if !ok {
			failures = append(failures, AttemptFailure{ModelID: model.ID, Cause: fmt.Errorf("no client registered for provider %q", model.Provider)})
			continue
		}

		breaker := g.breakers.forProvider(model.Provider)
		if breaker.State() == gobreaker.StateOpen {
			failures = append(failures, AttemptFailure{ModelID: model.ID, Cause: errors.New("circuit breaker open")})
			continue
		}

		textCh, errCh := provider.GenerateContentStream(ctx, req.SystemPrompt, req.UserPrompt)

		first, ok := <-textCh
		if !ok {
			// Stream closed with no content: check whether it failed before
			// emitting anything, and if so try the next provider.
			var streamErr error
			select {
			case streamErr = <-errCh:
			default:
			}
			_, _ = breaker.Execute(func() (interface{}, error) { return nil, streamErr })
			failures = append(failures, AttemptFailure{ModelID: model.ID, Cause: streamErr})
			if streamErr != nil && !retryable(streamErr) {
				wrapped := fmt.Errorf("llm.GenerateStream: %w", streamErr)
				span.End(wrapped)
				return nil, nil, wrapped
			}
			continue
		}

		_, _ = breaker.Execute(func() (interface{}, error) { return nil, nil })

		out := make(chan string, 64)
		outErr := make(chan error, 1)
		out <- first

		go func() {
			defer close(out)
			defer close(outErr)
			var streamErr error
			for chunk := range textCh {
				out <- chunk
			}
			if err := <-errCh; err != nil {
				streamErr = err
				outErr <- err
			}
			g.recordUsage(ctx, tenantID, userID, model, req.InputTokens, "", span, streamErr)
		}()

		return out, outErr, nil
	}

	finalErr := &AllProvidersFailedError{Attempts: failures}
	span.End(finalErr)
	return nil, nil, finalErr
}

// recordUsage fires the usage hook without letting its failure affect the
// caller, then ends the call's tracing span with spanErr. Both are
// fire-and-forget post-processing: a usage-tracking failure is logged and
// never raised to the caller, who already has their answer.
func (g *Gateway) recordUsage(ctx context.Context, tenantID, userID string, model Model, inputTokens int, text string, span *tracing.Span, spanErr error) {
	if g.usage != nil {
		outputTokens := approxTokenCount(text)
		if err := g.usage.RecordUsage(ctx, tenantID, userID, model.ID, model.Provider, inputTokens, outputTokens); err != nil {
			slog.Error("llm.recordUsage: failed", "error", err, "model", model.ID, "provider", model.Provider)
		}
	}
	span.End(spanErr)
}

// approxTokenCount estimates token count at roughly 4 characters per
// token, sufficient for cost-accounting purposes without a tokenizer
// dependency.
func approxTokenCount(text string) int {
	return len(text) / 4
}

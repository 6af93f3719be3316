package llm

import (
	"errors"
	"testing"
)

func TestRetryable_RateLimitAndServerErrors(t *testing.T) {
	cases := []string{
		"429 Too Many Requests",
		"RESOURCE_EXHAUSTED: quota exceeded",
		"503 Service Unavailable",
		"context deadline exceeded",
	}
	for _, msg := range cases {
		if !retryable(errors.New(msg)) {
			t.Errorf("expected %q to be retryable", msg)
		}
	}
}

func TestRetryable_AuthAndBadRequestAreNot(t *testing.T) {
	cases := []string{
		"401 Unauthorized",
		"403 Forbidden: invalid API key",
		"400 Bad Request: INVALID_ARGUMENT",
	}
	for _, msg := range cases {
		if retryable(errors.New(msg)) {
			t.Errorf("expected %q to be non-retryable", msg)
		}
	}
}

func TestRetryable_NilError(t *testing.T) {
	if retryable(nil) {
		t.Error("expected nil error to be non-retryable")
	}
}

package llm

import "strings"

// retryable reports whether err warrants trying the next model in the
// fallback chain rather than surfacing immediately. Matches the teacher's
// string-sniffing approach to provider errors, since provider SDKs embed
// status information in error text rather than typed sentinel errors.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	nonRetryableMarkers := []string{
		"unauthorized", "forbidden", "invalid api key", "authentication",
		"invalid_argument", "400", "401", "403", "404",
	}
	for _, m := range nonRetryableMarkers {
		if strings.Contains(msg, m) {
			return false
		}
	}

	retryableMarkers := []string{
		"429", "rate limit", "resource_exhausted", "quota",
		"500", "502", "503", "504",
		"timeout", "deadline exceeded", "connection reset", "context deadline exceeded",
		"unavailable", "transient",
	}
	for _, m := range retryableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}

	// Unrecognized errors are treated conservatively as non-retryable so a
	// genuine caller-facing failure doesn't get masked by silently trying
	// every other provider.
	return false
}

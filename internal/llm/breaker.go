package llm

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

const (
	breakerFailureThreshold = 3
	breakerOpenDuration     = 60 * time.Second
)

// breakerRegistry lazily creates and caches one gobreaker.CircuitBreaker
// per provider name, so failures against one provider never trip another.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (r *breakerRegistry) forProvider(provider string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[provider]; ok {
		return b
	}

	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    provider,
		Timeout: breakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
	})
	r.breakers[provider] = b
	return b
}

// state reports the current breaker state for a provider, for
// observability and testing.
func (r *breakerRegistry) state(provider string) gobreaker.State {
	return r.forProvider(provider).State()
}

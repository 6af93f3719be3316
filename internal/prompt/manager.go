package prompt

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/vaultline/core/internal/model"
)

const cacheTTL = 60 * time.Second

type cacheKey struct {
	tenantID string
	name     string
}

type cacheEntry struct {
	templates []model.PromptTemplate
	fetchedAt time.Time
}

// Manager resolves and caches active prompt templates.
type Manager struct {
	repo TemplateRepository

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry

	rng *rand.Rand
	now func() time.Time
}

// New creates a Manager backed by repo.
func New(repo TemplateRepository) *Manager {
	return &Manager{
		repo:  repo,
		cache: make(map[cacheKey]cacheEntry),
		rng:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0xda7a)),
		now:   time.Now,
	}
}

// Resolve picks the active template body for (tenantID, name), following
// resolution order: tenant-specific active rows, then global active rows,
// then the hard-coded fallback. Among multiple active rows it samples by
// weighted random selection proportional to Weight.
func (m *Manager) Resolve(ctx context.Context, tenantID, name string) (string, error) {
	templates, err := m.activeTemplates(ctx, tenantID, name)
	if err != nil {
		return "", fmt.Errorf("prompt.Resolve: %w", err)
	}
	if len(templates) == 0 {
		if tenantID != "" {
			templates, err = m.activeTemplates(ctx, "", name)
			if err != nil {
				return "", fmt.Errorf("prompt.Resolve: %w", err)
			}
		}
	}
	if len(templates) == 0 {
		if name == fallbackName || name == "" {
			return fallbackTemplate, nil
		}
		return "", fmt.Errorf("prompt.Resolve: no active template for name %q", name)
	}

	return sampleByWeight(templates, m.rng).Body, nil
}

func (m *Manager) activeTemplates(ctx context.Context, tenantID, name string) ([]model.PromptTemplate, error) {
	key := cacheKey{tenantID: tenantID, name: name}

	m.mu.Lock()
	entry, ok := m.cache[key]
	m.mu.Unlock()
	if ok && m.now().Sub(entry.fetchedAt) < cacheTTL {
		return entry.templates, nil
	}

	templates, err := m.repo.ListActive(ctx, tenantID, name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[key] = cacheEntry{templates: templates, fetchedAt: m.now()}
	m.mu.Unlock()

	return templates, nil
}

// sampleByWeight picks one template proportional to Weight. A zero total
// weight falls back to the first entry, per spec.
func sampleByWeight(templates []model.PromptTemplate, rng *rand.Rand) model.PromptTemplate {
	var total float64
	for _, t := range templates {
		if t.Weight > 0 {
			total += t.Weight
		}
	}
	if total <= 0 {
		return templates[0]
	}

	r := rng.Float64() * total
	var cumulative float64
	for _, t := range templates {
		if t.Weight <= 0 {
			continue
		}
		cumulative += t.Weight
		if r < cumulative {
			return t
		}
	}
	return templates[len(templates)-1]
}

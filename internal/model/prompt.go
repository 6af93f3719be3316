package model

import "time"

// PromptTemplate is one versioned, optionally-weighted variant of a system
// prompt used by the LLM gateway. Multiple active rows with the same Name
// form an A/B cohort: Weight values across the cohort need not sum to 1,
// they are normalized at sampling time.
type PromptTemplate struct {
	ID        string    `json:"id"`
	TenantID  *string   `json:"tenantId,omitempty"` // nil == platform-wide default
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Body      string    `json:"body"`
	Weight    float64   `json:"weight"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

package model

import "time"

// TokenUsageLog aggregates LLM token consumption per tenant/user/model/
// provider/month, upserted by the LLM gateway's cost-tracking hook.
type TokenUsageLog struct {
	TenantID      string    `json:"tenantId"`
	UserID        string    `json:"userId"`
	Model         string    `json:"model"`
	Provider      string    `json:"provider"`
	Month         string    `json:"month"` // "2026-08"
	PromptTokens  int64     `json:"promptTokens"`
	OutputTokens  int64     `json:"outputTokens"`
	RequestCount  int64     `json:"requestCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

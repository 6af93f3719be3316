package model

import "time"

// EvaluationResult holds RAGAS-style judge scores for one answered query,
// scored asynchronously after the response has already reached the caller.
type EvaluationResult struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenantId"`
	QueryID           string    `json:"queryId"`
	Faithfulness      *float64  `json:"faithfulness"`
	AnswerRelevance   *float64  `json:"answerRelevance"`
	ContextPrecision  *float64  `json:"contextPrecision"`
	Composite         *float64  `json:"composite"`
	JudgeModel        string    `json:"judgeModel"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

package evaluation

import (
	"context"
	"fmt"

	"github.com/vaultline/core/internal/llm"
)

// judgeInputTokenDivisor approximates token count from prompt length, the
// same rough heuristic the LLM gateway uses for its own cost accounting.
const judgeInputTokenDivisor = 4

// GatewayJudge adapts an llm.Gateway into a Judge, routing judge prompts
// through the lowest-cost qualifying model rather than the production
// model used to answer the original query.
type GatewayJudge struct {
	gateway *llm.Gateway
}

// NewGatewayJudge builds a GatewayJudge backed by gateway.
func NewGatewayJudge(gateway *llm.Gateway) *GatewayJudge {
	return &GatewayJudge{gateway: gateway}
}

var _ Judge = (*GatewayJudge)(nil)

// Judge sends prompt through the gateway and returns the raw response text.
func (j *GatewayJudge) Judge(ctx context.Context, tenantID, userID, prompt string) (string, error) {
	resp, err := j.gateway.Generate(ctx, tenantID, userID, llm.GenerateRequest{
		UserPrompt:  prompt,
		InputTokens: len(prompt) / judgeInputTokenDivisor,
		Constraints: llm.SelectionConstraints{Privacy: llm.PrivacyStandard},
		Strategy:    llm.StrategyLowestCost,
	})
	if err != nil {
		return "", fmt.Errorf("evaluation.GatewayJudge.Judge: %w", err)
	}
	return resp.Text, nil
}

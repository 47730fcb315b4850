package verification

import (
	"context"

	"github.com/kirillm/verigate/internal/domain"
)

type evaluateRequest struct {
	domain.OrderAction
	CurrentQty float64 `json:"current_qty"`
}

type evaluateResponse struct {
	Verdict  *domain.PolicyVerdict `json:"verdict"`
	Degraded bool                  `json:"degraded"`
}

// PolicyClient клиент удаленного policy-сервиса
type PolicyClient struct {
	caller *httpCaller
}

// NewPolicyClient создает клиент policy-сервиса
func NewPolicyClient(opts Options) *PolicyClient {
	return &PolicyClient{caller: newHTTPCaller(opts)}
}

// Evaluate запрашивает вердикт. Никогда не возвращает ошибку: сбой = degraded.
func (c *PolicyClient) Evaluate(ctx context.Context, action domain.OrderAction, currentQty float64) domain.PolicyResult {
	req := evaluateRequest{OrderAction: action, CurrentQty: currentQty}
	resp, err := post[evaluateResponse](ctx, c.caller, "/v1/evaluate", req)
	if err != nil {
		c.caller.logger.Warn("policy service degraded for %s: %v", action.Symbol, err)
		return domain.PolicyDegraded()
	}

	if resp.Degraded {
		c.caller.logger.Warn("policy service reported degraded for %s", action.Symbol)
		return domain.PolicyDegraded()
	}
	if resp.Verdict == nil || resp.Verdict.VerdictID == "" {
		c.caller.logger.Warn("policy service returned empty verdict for %s", action.Symbol)
		return domain.PolicyDegraded()
	}

	return domain.PolicyResult{Verdict: resp.Verdict}
}

package verification

import (
	"context"

	"github.com/kirillm/verigate/internal/domain"
)

type proveResponse struct {
	Proof    *domain.RiskProof `json:"proof"`
	Degraded bool              `json:"degraded"`
}

// RiskClient клиент сервиса риск-доказательств
type RiskClient struct {
	caller *httpCaller
}

// NewRiskClient создает клиент risk-сервиса
func NewRiskClient(opts Options) *RiskClient {
	return &RiskClient{caller: newHTTPCaller(opts)}
}

// Prove запрашивает доказательство риска. Сбой или невалидный ответ = degraded.
func (c *RiskClient) Prove(ctx context.Context, action domain.OrderAction) domain.RiskResult {
	resp, err := post[proveResponse](ctx, c.caller, "/v1/prove", action)
	if err != nil {
		c.caller.logger.Warn("risk service degraded for %s: %v", action.Symbol, err)
		return domain.RiskDegraded()
	}

	if resp.Degraded {
		c.caller.logger.Warn("risk service reported degraded for %s", action.Symbol)
		return domain.RiskDegraded()
	}
	if resp.Proof == nil || resp.Proof.ProofID == "" || resp.Proof.VaRValue < 0 {
		c.caller.logger.Warn("risk service returned invalid proof for %s", action.Symbol)
		return domain.RiskDegraded()
	}

	return domain.RiskResult{Proof: resp.Proof}
}

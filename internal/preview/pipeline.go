// Package preview запускает обе верификации ордера и собирает Preview.
package preview

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillm/verigate/internal/domain"
	"github.com/kirillm/verigate/internal/metrics"
	"github.com/kirillm/verigate/pkg/utils"
)

// PolicyService compliance-проверка ордера
type PolicyService interface {
	Evaluate(ctx context.Context, action domain.OrderAction, currentQty float64) domain.PolicyResult
}

// RiskService количественная проверка риска
type RiskService interface {
	Prove(ctx context.Context, action domain.OrderAction) domain.RiskResult
}

// Config таймауты pipeline. Нулевой таймаут плеча = ограничение только Deadline.
type Config struct {
	PolicyTimeout time.Duration
	RiskTimeout   time.Duration
	Deadline      time.Duration
}

// Pipeline оркестратор двух верификаций
type Pipeline struct {
	policy PolicyService
	risk   RiskService
	config Config
	logger *utils.Logger
}

// NewPipeline создает pipeline
func NewPipeline(policy PolicyService, risk RiskService, config Config, logger *utils.Logger) *Pipeline {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Pipeline{
		policy: policy,
		risk:   risk,
		config: config,
		logger: logger,
	}
}

// Preview запрашивает обе верификации параллельно и комбинирует их.
//
// Возвращает *domain.SafeModeError если хотя бы одно плечо degraded,
// *domain.PolicyRejectedError если policy.Allow && proof.OK ложно,
// и ошибку контекста если запрос отменен вызывающим кодом.
func (p *Pipeline) Preview(ctx context.Context, action domain.OrderAction, currentQty float64) (*domain.Preview, error) {
	if err := action.Validate(); err != nil {
		metrics.IncPreview("invalid")
		return nil, err
	}

	legCtx := ctx
	if p.config.Deadline > 0 {
		var cancel context.CancelFunc
		legCtx, cancel = context.WithTimeout(ctx, p.config.Deadline)
		defer cancel()
	}

	policyCh := runLeg(legCtx, p.config.PolicyTimeout, func(c context.Context) domain.PolicyResult {
		start := time.Now()
		res := normalizePolicy(p.policy.Evaluate(c, action, currentQty))
		metrics.ObserveVerification(domain.LegPolicy, res.Degraded, time.Since(start))
		return res
	}, domain.PolicyDegraded())

	riskCh := runLeg(legCtx, p.config.RiskTimeout, func(c context.Context) domain.RiskResult {
		start := time.Now()
		res := normalizeRisk(p.risk.Prove(c, action))
		metrics.ObserveVerification(domain.LegRisk, res.Degraded, time.Since(start))
		return res
	}, domain.RiskDegraded())

	var (
		policyRes domain.PolicyResult
		riskRes   domain.RiskResult
	)
	for pending := 2; pending > 0; pending-- {
		select {
		case policyRes = <-policyCh:
		case riskRes = <-riskCh:
		case <-ctx.Done():
			metrics.IncPreview("canceled")
			return nil, fmt.Errorf("preview canceled: %w", ctx.Err())
		}
	}

	// плечи могли завершиться degraded из-за отмены родительского контекста
	if err := ctx.Err(); err != nil {
		metrics.IncPreview("canceled")
		return nil, fmt.Errorf("preview canceled: %w", err)
	}

	if policyRes.Degraded || riskRes.Degraded {
		metrics.IncPreview("safe_mode")
		p.logger.Warn("safe mode: %s %s %.4f (policy_degraded=%t risk_degraded=%t)",
			action.Side, action.Symbol, action.Quantity, policyRes.Degraded, riskRes.Degraded)
		return nil, &domain.SafeModeError{
			PolicyDegraded: policyRes.Degraded,
			RiskDegraded:   riskRes.Degraded,
			Action:         action,
			CurrentQty:     currentQty,
			PartialPolicy:  policyRes.Verdict,
			PartialProof:   riskRes.Proof,
		}
	}

	verdict, proof := *policyRes.Verdict, *riskRes.Proof
	if !verdict.Allow || !proof.OK {
		metrics.IncPreview("rejected")
		p.logger.Info("preview rejected: %s %s %.4f (verdict=%s allow=%t proof=%s ok=%t)",
			action.Side, action.Symbol, action.Quantity, verdict.VerdictID, verdict.Allow, proof.ProofID, proof.OK)
		return nil, &domain.PolicyRejectedError{
			VerdictID:   verdict.VerdictID,
			ProofID:     proof.ProofID,
			PolicyAllow: verdict.Allow,
			RiskOK:      proof.OK,
			Reasons:     append([]string(nil), verdict.Reasons...),
		}
	}

	metrics.IncPreview("ok")
	p.logger.Debug("preview ok: %s %s %.4f current=%.4f verdict=%s proof=%s",
		action.Side, action.Symbol, action.Quantity, currentQty, verdict.VerdictID, proof.ProofID)

	return &domain.Preview{
		Action: action,
		Policy: verdict,
		Proof:  proof,
	}, nil
}

// runLeg выполняет вызов с собственным таймаутом. Если вызов не вернулся
// вовремя, канал получает fallback, а результат вызова отбрасывается.
func runLeg[T any](ctx context.Context, timeout time.Duration, call func(context.Context) T, fallback T) <-chan T {
	out := make(chan T, 1)

	go func() {
		var (
			legCtx context.Context
			cancel context.CancelFunc
		)
		if timeout > 0 {
			legCtx, cancel = context.WithTimeout(ctx, timeout)
		} else {
			legCtx, cancel = context.WithCancel(ctx)
		}
		defer cancel()

		done := make(chan T, 1)
		go func() {
			done <- call(legCtx)
		}()

		select {
		case res := <-done:
			out <- res
		case <-legCtx.Done():
			out <- fallback
		}
	}()

	return out
}

// normalizePolicy: degraded результат не несет значения, а результат без значения считается degraded
func normalizePolicy(res domain.PolicyResult) domain.PolicyResult {
	if res.Degraded || res.Verdict == nil {
		return domain.PolicyDegraded()
	}
	return res
}

func normalizeRisk(res domain.RiskResult) domain.RiskResult {
	if res.Degraded || res.Proof == nil {
		return domain.RiskDegraded()
	}
	return res
}

package policy

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kirillm/verigate/internal/domain"
	"github.com/kirillm/verigate/pkg/utils"
)

// Engine локальный policy-сервис на YAML-профилях
type Engine struct {
	policy  *Policy
	logger  *utils.Logger
	allowed map[string]bool
	blocked map[string]bool
	newID   func() string
}

// NewEngine загружает профиль из файла
func NewEngine(policyPath, profile string, logger *utils.Logger) (*Engine, error) {
	policy, err := loadPolicy(policyPath, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	return NewEngineFromPolicy(policy, logger), nil
}

// NewEngineFromPolicy создает engine из уже загруженного профиля
func NewEngineFromPolicy(policy *Policy, logger *utils.Logger) *Engine {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Engine{
		policy:  policy,
		logger:  logger,
		allowed: symbolSet(policy.AllowedSymbols),
		blocked: symbolSet(policy.BlockedSymbols),
		newID:   func() string { return uuid.NewString() },
	}
}

// loadPolicy загружает policy из YAML
func loadPolicy(path, profileName string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parsePolicy(data, profileName)
}

func parsePolicy(data []byte, profileName string) (*Policy, error) {
	var config struct {
		PolicyProfiles map[string]Policy `yaml:"policy_profiles"`
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	// По умолчанию используем moderate
	if profileName == "" {
		profileName = "moderate"
	}

	policy, ok := config.PolicyProfiles[profileName]
	if !ok {
		return nil, fmt.Errorf("policy profile %s not found", profileName)
	}

	policy.ProfileName = profileName
	return &policy, nil
}

func symbolSet(symbols []string) map[string]bool {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return set
}

// Evaluate проверяет ордер на соответствие профилю.
// currentQty тот же снимок позиции, который видит supervisor.
func (e *Engine) Evaluate(ctx context.Context, action domain.OrderAction, currentQty float64) domain.PolicyResult {
	violations := e.checkSymbol(action)

	if e.policy.MaxOrderQty > 0 && action.Quantity > e.policy.MaxOrderQty {
		violations = append(violations, Violation{
			Type:           "order_size",
			LimitName:      "max_order_qty",
			LimitValue:     e.policy.MaxOrderQty,
			AttemptedValue: action.Quantity,
			Message:        fmt.Sprintf("order quantity %.4f exceeds limit %.4f", action.Quantity, e.policy.MaxOrderQty),
		})
	}

	if e.policy.MaxPositionQty > 0 {
		next := currentQty + action.SignedQuantity()
		// уменьшение позиции разрешено даже сверх лимита
		if math.Abs(next) > e.policy.MaxPositionQty && math.Abs(next) > math.Abs(currentQty) {
			violations = append(violations, Violation{
				Type:           "position_size",
				LimitName:      "max_position_qty",
				LimitValue:     e.policy.MaxPositionQty,
				AttemptedValue: math.Abs(next),
				Message:        fmt.Sprintf("position %.4f would exceed limit %.4f", math.Abs(next), e.policy.MaxPositionQty),
			})
		}
	}

	reasons := make([]string, 0, len(violations))
	for _, v := range violations {
		reasons = append(reasons, v.Message)
	}

	verdict := &domain.PolicyVerdict{
		VerdictID: e.newID(),
		Allow:     len(violations) == 0,
		Reasons:   reasons,
	}

	if !verdict.Allow {
		e.logger.Info("policy engine denied %s %s %.4f: %s",
			action.Side, action.Symbol, action.Quantity, strings.Join(reasons, "; "))
	}

	return domain.PolicyResult{Verdict: verdict}
}

func (e *Engine) checkSymbol(action domain.OrderAction) []Violation {
	symbol := strings.ToUpper(action.Symbol)

	if e.blocked[symbol] {
		return []Violation{{
			Type:    "symbol_blocked",
			Message: fmt.Sprintf("symbol %s is blocked", action.Symbol),
		}}
	}
	if len(e.allowed) > 0 && !e.allowed[symbol] {
		return []Violation{{
			Type:    "symbol_not_allowed",
			Message: fmt.Sprintf("symbol %s is not in the allowed list", action.Symbol),
		}}
	}
	return nil
}

// GetPolicy возвращает текущую политику
func (e *Engine) GetPolicy() *Policy {
	return e.policy
}

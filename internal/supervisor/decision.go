// Package supervisor содержит чистое правило допуска ордера.
//
// Функции пакета не имеют состояния и побочных эффектов: позиция передается
// явным аргументом, состояние HEALTHY/DEGRADED приходит снаружи.
package supervisor

import (
	"math"

	"github.com/kirillm/verigate/internal/domain"
)

// Checks результаты двух верификаций и флаг деградации
type Checks struct {
	ACEOk    bool `json:"ace_ok"`
	VaROk    bool `json:"var_ok"`
	Degraded bool `json:"degraded"`
}

// Order сторона и объем ордера
type Order struct {
	Side     domain.Side `json:"side"`
	Quantity float64     `json:"quantity"`
}

// Decide отображает проверки, ордер и текущую позицию в метку допуска.
//
// В здоровом режиме нужны обе проверки. В degraded режиме ACEOk/VaROk
// игнорируются и допускаются только ордера, уменьшающие позицию;
// APPROVE в этом режиме недостижим.
func Decide(checks Checks, order Order, currentQty float64) domain.Decision {
	if !checks.Degraded {
		if checks.ACEOk && checks.VaROk {
			return domain.DecisionApprove
		}
		return domain.DecisionReject
	}

	if IsReduction(currentQty, order.Side, order.Quantity) {
		return domain.DecisionApproveReductionOnly
	}
	return domain.DecisionReject
}

// IsReduction true если |currentQty + delta| строго меньше |currentQty|.
//
// Считает одну нетто-позицию на символ. Плоская позиция никогда не уменьшается.
func IsReduction(currentQty float64, side domain.Side, quantity float64) bool {
	var delta float64
	switch side {
	case domain.SideBuy:
		delta = quantity
	case domain.SideSell:
		delta = -quantity
	}

	next := currentQty + delta
	return math.Abs(next) < math.Abs(currentQty)
}

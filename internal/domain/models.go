package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Side направление ордера
type Side string

// Valid проверяет что сторона известна
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ParseSide нормализует строку ("BUY", " sell ") в Side
func ParseSide(raw string) (Side, error) {
	side := Side(strings.ToLower(strings.TrimSpace(raw)))
	if !side.Valid() {
		return "", fmt.Errorf("%w: unknown side %q", ErrInvalidInput, raw)
	}
	return side, nil
}

// Decision итоговая метка допуска ордера
type Decision string

// Admits возвращает true если ордер может быть передан дальше
func (d Decision) Admits() bool {
	return d == DecisionApprove || d == DecisionApproveReductionOnly
}

// OrderAction заявка на ордер. После передачи в pipeline не меняется.
type OrderAction struct {
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Quantity float64 `json:"quantity"`
}

// Validate проверяет заявку до любых внешних вызовов
func (a OrderAction) Validate() error {
	if strings.TrimSpace(a.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	if !a.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidInput, a.Side)
	}
	if math.IsNaN(a.Quantity) || math.IsInf(a.Quantity, 0) || a.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %v", ErrInvalidInput, a.Quantity)
	}
	return nil
}

// SignedQuantity возвращает +quantity для buy и -quantity для sell
func (a OrderAction) SignedQuantity() float64 {
	switch a.Side {
	case SideBuy:
		return a.Quantity
	case SideSell:
		return -a.Quantity
	default:
		return 0
	}
}

// PolicyVerdict вердикт compliance-политики
type PolicyVerdict struct {
	VerdictID string   `json:"verdict_id"`
	Allow     bool     `json:"allow"`
	Reasons   []string `json:"reasons"`
}

// RiskProof количественное доказательство риска
type RiskProof struct {
	ProofID  string  `json:"proof_id"`
	Hash     string  `json:"hash"`
	OK       bool    `json:"ok"`
	VaRValue float64 `json:"var_value"`
}

// PolicyResult ответ policy-сервиса: либо вердикт, либо degraded
type PolicyResult struct {
	Verdict  *PolicyVerdict
	Degraded bool
}

// RiskResult ответ risk-сервиса: либо доказательство, либо degraded
type RiskResult struct {
	Proof    *RiskProof
	Degraded bool
}

// PolicyDegraded результат недоступного policy-сервиса
func PolicyDegraded() PolicyResult {
	return PolicyResult{Degraded: true}
}

// RiskDegraded результат недоступного risk-сервиса
func RiskDegraded() RiskResult {
	return RiskResult{Degraded: true}
}

// Preview результат успешной двойной верификации
type Preview struct {
	Action OrderAction   `json:"action"`
	Policy PolicyVerdict `json:"policy"`
	Proof  RiskProof     `json:"proof"`
}

// Position снимок позиции, принадлежит внешнему учету
type Position struct {
	Symbol         string    `db:"symbol"`
	QuantitySigned float64   `db:"quantity_signed"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// AnchorReceipt результат анкоринга. Пустой TxHash означает что записи нет.
type AnchorReceipt struct {
	TxHash string `json:"tx_hash,omitempty"`
}

// Anchored true если транзакция подтверждена
func (r AnchorReceipt) Anchored() bool {
	return r.TxHash != ""
}

// Fill исполнение ордера для анкоринга
type Fill struct {
	OrderID       string `json:"order_id"`
	FillCID       string `json:"fill_cid"`
	DeltaNotional int64  `json:"delta_notional"`
	SlippageBps   int64  `json:"slippage_bps"`
	TraceID       string `json:"trace_id"`
}

// AdmissionRecord строка аудита решения о допуске
type AdmissionRecord struct {
	ID         int64     `db:"id" json:"id"`
	TraceID    string    `db:"trace_id" json:"trace_id"`
	Symbol     string    `db:"symbol" json:"symbol"`
	Side       string    `db:"side" json:"side"`
	Quantity   float64   `db:"quantity" json:"quantity"`
	CurrentQty float64   `db:"current_qty" json:"current_qty"`
	Decision   string    `db:"decision" json:"decision"`
	Degraded   bool      `db:"degraded" json:"degraded"`
	VerdictID  string    `db:"verdict_id" json:"verdict_id"`
	ProofID    string    `db:"proof_id" json:"proof_id"`
	Reasons    []string  `db:"reasons" json:"reasons"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AnchorRecord строка журнала анкоринга
type AnchorRecord struct {
	ID        int64     `db:"id" json:"id"`
	Kind      string    `db:"kind" json:"kind"` // preview, fill
	RefID     string    `db:"ref_id" json:"ref_id"`
	TraceID   string    `db:"trace_id" json:"trace_id"`
	TxHash    string    `db:"tx_hash" json:"tx_hash"` // пусто если анкоринг не удался
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

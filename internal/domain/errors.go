package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound возвращается когда запись не найдена
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput возвращается при некорректных входных данных
	ErrInvalidInput = errors.New("invalid input")

	// ErrSafeMode возвращается когда хотя бы одна верификация degraded
	ErrSafeMode = errors.New("safe mode: verification unavailable")

	// ErrPolicyRejected возвращается при бизнес-отказе policy/risk
	ErrPolicyRejected = errors.New("order rejected by policy or risk check")

	// ErrConfiguration возвращается при неполной конфигурации
	ErrConfiguration = errors.New("configuration error")

	// ErrAnchorTimeout внутренняя ошибка анкоринга, наружу не выходит
	ErrAnchorTimeout = errors.New("anchor stage timed out")

	// ErrDatabaseConnection возвращается при ошибке подключения к БД
	ErrDatabaseConnection = errors.New("database connection error")
)

// SafeModeError одна или обе верификации недоступны. Fail-closed.
//
// Частичные результаты доступны вызывающему коду, но не сериализуются:
// в ответе клиенту они не должны выглядеть как валидные.
type SafeModeError struct {
	PolicyDegraded bool `json:"policy_degraded"`
	RiskDegraded   bool `json:"risk_degraded"`

	// Action и CurrentQty позволяют вызывающему коду применить reduction-only правило
	Action     OrderAction `json:"action"`
	CurrentQty float64     `json:"current_qty"`

	PartialPolicy *PolicyVerdict `json:"-"`
	PartialProof  *RiskProof     `json:"-"`
}

// Degraded всегда true для SafeModeError
func (e *SafeModeError) Degraded() bool {
	return true
}

func (e *SafeModeError) Error() string {
	var legs []string
	if e.PolicyDegraded {
		legs = append(legs, LegPolicy)
	}
	if e.RiskDegraded {
		legs = append(legs, LegRisk)
	}
	return fmt.Sprintf("%s (degraded: %s)", ErrSafeMode.Error(), strings.Join(legs, ","))
}

func (e *SafeModeError) Unwrap() error {
	return ErrSafeMode
}

// StatusCode 409: система безопасности недоступна, можно повторить позже
func (e *SafeModeError) StatusCode() int {
	return http.StatusConflict
}

// PolicyRejectedError обе верификации ответили, но комбинированная проверка не прошла
type PolicyRejectedError struct {
	VerdictID   string   `json:"verdict_id"`
	ProofID     string   `json:"proof_id"`
	PolicyAllow bool     `json:"policy_allow"`
	RiskOK      bool     `json:"risk_ok"`
	Reasons     []string `json:"reasons,omitempty"`
}

func (e *PolicyRejectedError) Error() string {
	msg := fmt.Sprintf("%s (policy_allow=%t risk_ok=%t)", ErrPolicyRejected.Error(), e.PolicyAllow, e.RiskOK)
	if len(e.Reasons) > 0 {
		msg += ": " + strings.Join(e.Reasons, "; ")
	}
	return msg
}

func (e *PolicyRejectedError) Unwrap() error {
	return ErrPolicyRejected
}

// StatusCode 422: заявка рассмотрена и отклонена
func (e *PolicyRejectedError) StatusCode() int {
	return http.StatusUnprocessableEntity
}

// ConfigurationError обязательная настройка отсутствует или неверна
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrConfiguration.Error(), e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// MissingConfig ошибка для отсутствующего обязательного ключа
func MissingConfig(key string) error {
	return &ConfigurationError{Key: key, Reason: "is required"}
}

// StatusCode отображает ошибку в HTTP статус
func StatusCode(err error) int {
	var coded interface{ StatusCode() int }
	if errors.As(err, &coded) {
		return coded.StatusCode()
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

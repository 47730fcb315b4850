package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillm/verigate/internal/domain"
)

// Notifier отправляет операторские алерты. Ошибки доставки не возвращаются.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// NopNotifier используется когда Telegram не настроен
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) {}

// FormatSafeMode текст алерта о переходе в safe mode.
// Содержит только флаги деградации, без частичных вердиктов.
func FormatSafeMode(err *domain.SafeModeError, decision domain.Decision, traceID string) string {
	var b strings.Builder
	b.WriteString("🛑 *SAFE MODE*\n")
	fmt.Fprintf(&b, "Order: %s %g %s\n", err.Action.Side, err.Action.Quantity, err.Action.Symbol)
	fmt.Fprintf(&b, "Current qty: %g\n", err.CurrentQty)
	fmt.Fprintf(&b, "Policy degraded: %s\n", yesNo(err.PolicyDegraded))
	fmt.Fprintf(&b, "Risk degraded: %s\n", yesNo(err.RiskDegraded))
	fmt.Fprintf(&b, "Decision: %s", decision)
	if traceID != "" {
		fmt.Fprintf(&b, "\nTrace: `%s`", traceID)
	}
	return b.String()
}

// FormatAnchorFailure текст алерта о неудачном анкоринге
func FormatAnchorFailure(kind, refID, traceID string) string {
	return fmt.Sprintf("⚠️ *Anchoring failed*\nKind: %s\nRef: `%s`\nTrace: `%s`", kind, refID, traceID)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

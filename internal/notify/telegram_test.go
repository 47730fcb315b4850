package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/verigate/internal/domain"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestTelegramNotifier_Notify(t *testing.T) {
	api := &fakeSender{}
	n := newTelegramNotifier(api, 42, 10, nil)

	n.Notify(context.Background(), "hello")

	if api.count() != 1 {
		t.Fatalf("sent %d messages, want 1", api.count())
	}
	if api.sent[0].ChatID != 42 {
		t.Errorf("ChatID = %d, want 42", api.sent[0].ChatID)
	}
	if api.sent[0].Text != "hello" {
		t.Errorf("Text = %q", api.sent[0].Text)
	}
}

func TestTelegramNotifier_Throttle(t *testing.T) {
	api := &fakeSender{}
	n := newTelegramNotifier(api, 1, 2, nil)

	for i := 0; i < 5; i++ {
		n.Notify(context.Background(), "alert")
	}

	if api.count() != 2 {
		t.Errorf("sent %d messages, want 2 (burst limit)", api.count())
	}
}

func TestTelegramNotifier_SendErrorSwallowed(t *testing.T) {
	api := &fakeSender{err: errors.New("network down")}
	n := newTelegramNotifier(api, 1, 5, nil)

	// не должно паниковать
	n.Notify(context.Background(), "alert")
}

func TestTelegramNotifier_CancelledContext(t *testing.T) {
	api := &fakeSender{}
	n := newTelegramNotifier(api, 1, 5, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, "alert")

	if api.count() != 0 {
		t.Errorf("sent %d messages after cancel, want 0", api.count())
	}
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxLength int
		wantParts int
	}{
		{"short", "abc", 10, 1},
		{"two lines fit", "abc\ndef", 10, 1},
		{"split by lines", "abcdef\nghijkl", 8, 2},
		{"long single line", strings.Repeat("x", 25), 10, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := splitMessage(tt.text, tt.maxLength)
			if len(parts) != tt.wantParts {
				t.Fatalf("got %d parts %q, want %d", len(parts), parts, tt.wantParts)
			}
			for _, p := range parts {
				if len(p) > tt.maxLength {
					t.Errorf("part %q exceeds %d", p, tt.maxLength)
				}
			}
		})
	}
}

func TestSplitMessage_KeepsRunesWhole(t *testing.T) {
	// кириллица 2 байта, эмодзи 4; лимит нечетный, чтобы попасть внутрь руны
	text := strings.Repeat("Позиция ⚠️ превышена ", 40)

	for _, maxLength := range []int{7, 33, 101} {
		parts := splitMessage(text, maxLength)
		if strings.Join(parts, "") != text {
			t.Fatalf("maxLength=%d: parts do not reassemble the text", maxLength)
		}
		for _, p := range parts {
			if !utf8.ValidString(p) {
				t.Fatalf("maxLength=%d: part %q is not valid UTF-8", maxLength, p)
			}
			if len(p) > maxLength {
				t.Errorf("maxLength=%d: part %q exceeds limit", maxLength, p)
			}
		}
	}
}

func TestFormatSafeMode(t *testing.T) {
	err := &domain.SafeModeError{
		PolicyDegraded: false,
		RiskDegraded:   true,
		Action:         domain.OrderAction{Symbol: "AAPL", Side: domain.SideSell, Quantity: 5},
		CurrentQty:     10,
		PartialPolicy:  &domain.PolicyVerdict{VerdictID: "secret-verdict", Allow: true},
	}

	text := FormatSafeMode(err, domain.DecisionApproveReductionOnly, "trace-1")

	for _, want := range []string{"SAFE MODE", "AAPL", "Risk degraded: yes", "Policy degraded: no", "APPROVE_REDUCTION_ONLY", "trace-1"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "secret-verdict") {
		t.Error("safe mode alert must not leak partial verdict")
	}
}

package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/kirillm/verigate/internal/config"
	"github.com/kirillm/verigate/pkg/utils"
)

const maxMessageLength = 4096

// sender часть tgbotapi.BotAPI, нужная для отправки
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier шлет алерты в один чат с ограничением частоты
type TelegramNotifier struct {
	api     sender
	chatID  int64
	limiter *rate.Limiter
	logger  *utils.Logger
}

// NewTelegramNotifier авторизует бота и создает нотификатор
func NewTelegramNotifier(cfg config.TelegramConfig, logger *utils.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("Telegram alerts authorized: @%s", bot.Self.UserName)

	return newTelegramNotifier(bot, cfg.ChatID, cfg.AlertsPerMinute, logger), nil
}

func newTelegramNotifier(api sender, chatID int64, perMinute int, logger *utils.Logger) *TelegramNotifier {
	if perMinute <= 0 {
		perMinute = 6
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &TelegramNotifier{
		api:     api,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		logger:  logger,
	}
}

// Notify отправляет алерт; лишние алерты сверх лимита отбрасываются
func (n *TelegramNotifier) Notify(ctx context.Context, text string) {
	if ctx.Err() != nil {
		return
	}
	if !n.limiter.Allow() {
		n.logger.Warn("Telegram alert throttled")
		return
	}

	for _, part := range splitMessage(text, maxMessageLength) {
		msg := tgbotapi.NewMessage(n.chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := n.api.Send(msg); err != nil {
			n.logger.Error("Failed to send telegram alert: %v", err)
			return
		}
	}
}

// splitMessage разбивает длинное сообщение по строкам
func splitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var messages []string
	current := ""

	for _, line := range strings.Split(text, "\n") {
		// строка длиннее лимита режется жестко
		for len(line) > maxLength {
			if current != "" {
				messages = append(messages, current)
				current = ""
			}
			cut := runeCut(line, maxLength)
			messages = append(messages, line[:cut])
			line = line[cut:]
		}

		if current != "" && len(current)+len(line)+1 > maxLength {
			messages = append(messages, current)
			current = line
			continue
		}
		if current != "" {
			current += "\n"
		}
		current += line
	}

	if current != "" {
		messages = append(messages, current)
	}
	return messages
}

// runeCut граница реза не дальше maxLength байт, не посреди руны
func runeCut(line string, maxLength int) int {
	cut := maxLength
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	if cut == 0 {
		// лимит меньше одной руны
		_, cut = utf8.DecodeRuneInString(line)
	}
	return cut
}

package notifier

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/RyanLisse/mexc-sniper-bot/internal/domain"
)

// TelegramNotifier pushes error and critical alerts to an operator chat.
// It implements domain.AlertSink; delivery happens off the caller's
// goroutine so a slow Telegram API never stalls a trading cycle.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	enabled bool
	logger  *zap.Logger
}

func NewTelegramNotifier(botToken string, chatID int64, enabled bool, logger *zap.Logger) *TelegramNotifier {
	if !enabled {
		return &TelegramNotifier{enabled: false, logger: logger}
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		logger.Error("Failed to create telegram bot, alerts disabled", zap.Error(err))
		return &TelegramNotifier{enabled: false, logger: logger}
	}

	logger.Info("Telegram bot connected", zap.String("username", bot.Self.UserName))

	return &TelegramNotifier{
		bot:     bot,
		chatID:  chatID,
		enabled: true,
		logger:  logger,
	}
}

func (n *TelegramNotifier) Notify(alert *domain.ExecutionAlert) {
	if !n.enabled {
		return
	}
	if alert.Severity != domain.SeverityError && alert.Severity != domain.SeverityCritical {
		return
	}

	emoji := "⚠️"
	if alert.Severity == domain.SeverityCritical {
		emoji = "🚨"
	}
	text := fmt.Sprintf("%s *%s*\n%s", emoji, alert.Type, alert.Message)
	if alert.Symbol != "" {
		text += fmt.Sprintf("\nSymbol: %s", alert.Symbol)
	}

	go func() {
		msg := tgbotapi.NewMessage(n.chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Error("Failed to send telegram alert", zap.Error(err))
		}
	}()
}

package notify

import (
	"context"
	"fmt"

	"slotwatch/internal/config"
	"slotwatch/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender is the slice of the bot API the notifier needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes the notification text to a fixed chat. The
// chat from the stored user settings, when present, overrides the
// configured one.
type TelegramNotifier struct {
	bot      TelegramSender
	chatID   int64
	override int64
}

func NewTelegramNotifier(cfg config.TelegramNotifyConfig) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram notify: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID}, nil
}

// NewTelegramNotifierWithSender wires a prebuilt sender, used in tests.
func NewTelegramNotifierWithSender(bot TelegramSender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

// WithChat returns a copy targeting another chat.
func (t *TelegramNotifier) WithChat(chatID int64) *TelegramNotifier {
	clone := *t
	clone.override = chatID
	return &clone
}

func (t *TelegramNotifier) Notify(ctx context.Context, n models.Notification) error {
	chatID := t.chatID
	if t.override != 0 {
		chatID = t.override
	}
	if chatID == 0 {
		return fmt.Errorf("telegram notify: no chat configured")
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s\n%s", subject, renderText(n)))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram notify: %w", err)
	}
	return nil
}

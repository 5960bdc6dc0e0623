package notification

import (
	"context"
	"fmt"
	"strconv"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramNotifier sends alerts via the Telegram Bot API.
type TelegramNotifier struct {
	bot    *tgbot.BotAPI
	chatID string
	log    *zap.Logger
}

// NewTelegramNotifier authenticates the bot. chatID is either a numeric
// chat id or a channel username such as "@alerts".
func NewTelegramNotifier(botToken, chatID string, log *zap.Logger) (*TelegramNotifier, error) {
	b, err := tgbot.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newTelegram(b, chatID, log), nil
}

// NewTelegramNotifierWithEndpoint is NewTelegramNotifier against a custom
// Bot API endpoint, formatted like tgbot.APIEndpoint.
func NewTelegramNotifierWithEndpoint(botToken, chatID, endpoint string, client tgbot.HTTPClient, log *zap.Logger) (*TelegramNotifier, error) {
	b, err := tgbot.NewBotAPIWithClient(botToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newTelegram(b, chatID, log), nil
}

func newTelegram(b *tgbot.BotAPI, chatID string, log *zap.Logger) *TelegramNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &TelegramNotifier{bot: b, chatID: chatID, log: log}
}

func (t *TelegramNotifier) message(text string) tgbot.MessageConfig {
	if id, err := strconv.ParseInt(t.chatID, 10, 64); err == nil {
		return tgbot.NewMessage(id, text)
	}
	return tgbot.NewMessageToChannel(t.chatID, text)
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(t.message(Text(alert))); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	t.log.Info("telegram alert sent", zap.String("title", alert.Title))
	return nil
}

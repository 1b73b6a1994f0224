// Package notify delivers user-facing event messages. Delivery is best
// effort: a failed notification never fails the trading operation that
// produced it.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Notifier sends a message to a user identified by their Telegram chat ID.
type Notifier interface {
	Notify(ctx context.Context, telegramID int64, message string)
}

// TelegramNotifier delivers messages through the Telegram bot API.
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

// NewTelegram creates a Telegram notifier. The token is validated against
// the API during construction.
func NewTelegram(token string, log zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	return &TelegramNotifier{
		bot: bot,
		log: log.With().Str("component", "notify").Logger(),
	}, nil
}

// Notify sends a message. Errors are logged, never returned; trading must
// not depend on Telegram availability.
func (n *TelegramNotifier) Notify(_ context.Context, telegramID int64, message string) {
	msg := tgbotapi.NewMessage(telegramID, message)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn().Err(err).Int64("telegram_id", telegramID).Msg("Failed to deliver notification")
	}
}

// NopNotifier discards all messages. Used when no bot token is configured
// and in tests.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, int64, string) {}

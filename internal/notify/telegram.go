package notify

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"possync/internal/config"
	"possync/internal/events"
)

// sender is the slice of the bot API the notifier needs; tests substitute a
// recording fake.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier alerts the venue operator about sync trouble. Nil-safe:
// a nil notifier silently drops everything, so wiring stays unconditional.
type TelegramNotifier struct {
	bot         sender
	chatID      int64
	minAttempts int
	logger      *zerolog.Logger
}

// NewTelegramNotifier returns nil when no token is configured.
func NewTelegramNotifier(cfg config.NotifyConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	if cfg.TelegramToken == "" || cfg.ChatID == 0 {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}

	return &TelegramNotifier{
		bot:         bot,
		chatID:      cfg.ChatID,
		minAttempts: cfg.MinAttempts,
		logger:      logger,
	}, nil
}

// Notify sends a plain text message to the configured chat.
func (n *TelegramNotifier) Notify(ctx context.Context, message string) error {
	if n == nil || n.bot == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, message)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).Msg("Failed to send telegram notification")
		return err
	}
	return nil
}

// Attach subscribes the notifier to sync failure events. Push failures are
// reported only once the attempt counter crosses the configured threshold,
// auth expiry is reported immediately.
func (n *TelegramNotifier) Attach(bus *events.EventBus) {
	if n == nil || bus == nil {
		return
	}

	bus.Subscribe(events.EventSyncPushFailed, func(event *events.Event) error {
		var payload events.SyncEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		if payload.AttemptCount < n.minAttempts {
			return nil
		}
		text := fmt.Sprintf("⚠️ Sync failing: %s (attempt %d)\n%s", payload.Code, payload.AttemptCount, payload.Message)
		return n.Notify(context.Background(), text)
	})

	bus.Subscribe(events.EventSyncAuthExpired, func(event *events.Event) error {
		return n.Notify(context.Background(), "🔑 Session expired: operator sign-in required, sync is paused")
	})
}

package notify

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possync/internal/config"
	"possync/internal/events"
	possync "possync/internal/sync"
)

type fakeSender struct {
	sent []string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func newTestNotifier(minAttempts int) (*TelegramNotifier, *fakeSender) {
	logger := zerolog.Nop()
	sender := &fakeSender{}
	return &TelegramNotifier{
		bot:         sender,
		chatID:      42,
		minAttempts: minAttempts,
		logger:      &logger,
	}, sender
}

func TestNewTelegramNotifier_DisabledWithoutToken(t *testing.T) {
	logger := zerolog.Nop()
	n, err := NewTelegramNotifier(config.NotifyConfig{}, &logger)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestNotify_NilSafe(t *testing.T) {
	var n *TelegramNotifier
	assert.NoError(t, n.Notify(context.Background(), "hi"))
	n.Attach(events.NewEventBus())
}

func TestAttach_PushFailureThreshold(t *testing.T) {
	n, sender := newTestNotifier(3)
	bus := events.NewEventBus()
	n.Attach(bus)

	publish := func(attempts int) {
		_ = bus.PublishJSON(events.EventSyncPushFailed, events.SyncEventPayload{
			Code:         possync.CodeServerError,
			AttemptCount: attempts,
			Message:      "upstream 502",
		})
	}

	publish(1)
	publish(2)
	assert.Empty(t, sender.sent)

	publish(3)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], possync.CodeServerError)
	assert.Contains(t, sender.sent[0], "attempt 3")
}

func TestAttach_AuthExpiredImmediate(t *testing.T) {
	n, sender := newTestNotifier(5)
	bus := events.NewEventBus()
	n.Attach(bus)

	_ = bus.PublishJSON(events.EventSyncAuthExpired, events.SyncEventPayload{Code: possync.CodeAuthExpired})

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "sign-in")
}

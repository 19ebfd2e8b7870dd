package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/fleetdns/zonekeeper/pkg/config"
	"github.com/fleetdns/zonekeeper/pkg/events"
	"github.com/fleetdns/zonekeeper/pkg/log"
)

// Telegram consumes engine events from a broker subscription and sends
// them as chat messages. Send failures are logged and dropped; the
// pipeline never observes them.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	toggles config.NotifyConfig
	broker  *events.Broker
	sub     events.Subscriber
	doneCh  chan struct{}
	logger  zerolog.Logger
}

// NewTelegram creates the notifier. Returns nil (no error) when the
// integration is disabled in config.
func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{
		bot:     bot,
		chatID:  cfg.ChatID,
		toggles: cfg.Notify,
		doneCh:  make(chan struct{}),
		logger:  log.WithComponent("telegram"),
	}, nil
}

// Run subscribes to the broker and delivers events until Stop.
func (t *Telegram) Run(broker *events.Broker) {
	t.broker = broker
	t.sub = broker.Subscribe()
	go t.loop()
}

// Stop unsubscribes and waits for the delivery loop to drain.
func (t *Telegram) Stop() {
	t.broker.Unsubscribe(t.sub)
	<-t.doneCh
}

func (t *Telegram) loop() {
	defer close(t.doneCh)
	for ev := range t.sub {
		text, ok := Format(ev, t.toggles)
		if !ok {
			continue
		}
		t.send(text)
	}
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error().Err(err).Msg("failed to send telegram message")
	}
}

package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"

	"planforge/internal/security"
)

// telegramMaxMessage is kept below the Bot API limit of 4096 characters.
const telegramMaxMessage = 4000

// TelegramChannel integrates with the Telegram Bot API.
type TelegramChannel struct {
	mu      sync.Mutex
	token   string
	auth    *security.Authorizer
	logger  *slog.Logger
	bot     *tele.Bot
	handler func(InboundMessage)
	running bool
}

// TelegramConfig holds Telegram-specific configuration.
type TelegramConfig struct {
	Token string
	// Authorizer gates who may request plans. Nil allows everyone.
	Authorizer *security.Authorizer
	Logger     *slog.Logger
}

// NewTelegramChannel creates a new Telegram channel.
func NewTelegramChannel(cfg TelegramConfig) *TelegramChannel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramChannel{
		token:  cfg.Token,
		auth:   cfg.Authorizer,
		logger: logger.With("component", "telegram"),
	}
}

func (t *TelegramChannel) Name() string { return KindTelegram }

func (t *TelegramChannel) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  t.token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}

	// Commands without a registered handler, /plan included, arrive here.
	bot.Handle(tele.OnText, func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		senderID := strconv.FormatInt(sender.ID, 10)
		if !t.auth.IsAllowed(senderID) {
			t.logger.Warn("unauthorized user", "user_id", sender.ID, "username", sender.Username)
			return nil
		}

		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()

		if handler != nil {
			handler(InboundMessage{
				Channel:   KindTelegram,
				ChatID:    strconv.FormatInt(c.Chat().ID, 10),
				MessageID: strconv.Itoa(c.Message().ID),
				SenderID:  senderID,
				Sender:    strings.TrimSpace(sender.FirstName + " " + sender.LastName),
				Text:      c.Text(),
				Received:  c.Message().Time(),
			})
		}
		return nil
	})

	t.bot = bot
	t.running = true

	go bot.Start()

	go func() {
		<-ctx.Done()
		t.Stop(context.Background())
	}()

	return nil
}

func (t *TelegramChannel) Stop(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil && t.running {
		t.bot.Stop()
	}
	t.running = false
	return nil
}

func (t *TelegramChannel) Send(_ context.Context, msg OutboundMessage) error {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()

	if bot == nil {
		return fmt.Errorf("telegram bot not started")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	recipient := &tele.Chat{ID: chatID}
	opts := &tele.SendOptions{DisableWebPagePreview: true}
	if id, err := strconv.Atoi(msg.ReplyTo); err == nil {
		opts.ReplyTo = &tele.Message{ID: id, Chat: recipient}
	}
	for i, chunk := range splitMessage(msg.Text, telegramMaxMessage) {
		if i == 1 {
			// Only the first chunk quotes the request.
			opts.ReplyTo = nil
		}
		if _, err := bot.Send(recipient, chunk, opts); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func (t *TelegramChannel) OnMessage(handler func(InboundMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

func (t *TelegramChannel) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// line breaks and never splitting a UTF-8 sequence.
func splitMessage(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

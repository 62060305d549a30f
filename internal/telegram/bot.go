package telegram

import (
	"crypto-alert-notifier/lib/helpers"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"strconv"
	"strings"
)

// Scheme prefixes notification endpoints that address a telegram chat,
// e.g. "tg://123456789".
const Scheme = "tg://"

// NewBot creates new telegram bot
func NewBot(c BotConfig) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug

	return &Bot{
		api:    bot,
		Config: c,
	}, nil
}

// IsEndpoint reports whether endpoint addresses a telegram chat.
func IsEndpoint(endpoint string) bool {
	return strings.HasPrefix(endpoint, Scheme)
}

// ParseChatID extracts the chat id from a "tg://<chat_id>" endpoint.
func ParseChatID(endpoint string) (int64, error) {
	if !IsEndpoint(endpoint) {
		return 0, errors.Errorf("not a telegram endpoint: %s", endpoint)
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(endpoint, Scheme), "/"), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid telegram chat id in %s", endpoint)
	}
	return id, nil
}

// SendMessage sends a plain text message as MarkdownV2, escaping it first.
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, helpers.EscapeMarkdownV2(m.Text))
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"
	_, err := b.api.Send(msg)
	return errors.Wrapf(err, "could not send message to chat %d", m.ChatID)
}

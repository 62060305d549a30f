package notify

import (
	"context"
	"crypto-alert-notifier/internal/telegram"
	"crypto-alert-notifier/internal/types"

	"github.com/pkg/errors"
)

// ErrTelegramDisabled is returned for tg:// endpoints when no bot token is configured.
var ErrTelegramDisabled = errors.New("telegram endpoint but no telegram bot configured")

type telegramSender interface {
	SendMessage(m telegram.Message) error
}

// Router delivers through telegram for tg:// endpoints and through the
// webhook for everything else.
type Router struct {
	webhook  *Webhook
	telegram telegramSender
}

// NewRouter builds a Router. bot may be nil to disable telegram delivery.
func NewRouter(webhook *Webhook, bot *telegram.Bot) *Router {
	r := &Router{webhook: webhook}
	if bot != nil {
		r.telegram = bot
	}
	return r
}

func (r *Router) Notify(ctx context.Context, a types.Alert, currentPrice float64) error {
	switch {
	case a.NotificationData == "":
		return ErrNoEndpoint
	case telegram.IsEndpoint(a.NotificationData):
		return r.notifyTelegram(ctx, a, currentPrice)
	default:
		return r.webhook.Notify(ctx, a, currentPrice)
	}
}

func (r *Router) notifyTelegram(ctx context.Context, a types.Alert, currentPrice float64) error {
	if r.telegram == nil {
		return ErrTelegramDisabled
	}
	chatID, err := telegram.ParseChatID(a.NotificationData)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.telegram.SendMessage(telegram.Message{
		ChatID: chatID,
		Text:   RenderMessage(a, currentPrice),
	})
}

package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// BotConfig configuration of the bot
type BotConfig struct {
	Token string
	Debug bool
}

// sender is the part of the bot API used to deliver alerts.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot telegram delivery client
type Bot struct {
	api    sender
	Config BotConfig
}

// Message a telegram message struct
type Message struct {
	ChatID int64
	Text   string
}

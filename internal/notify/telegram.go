package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
)

// Bot is the part of *tgbotapi.BotAPI the sender uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender posts outcomes to one operator chat.
type TelegramSender struct {
	bot    Bot
	chatID int64
}

func NewTelegramSender(bot Bot, chatID int64) *TelegramSender {
	return &TelegramSender{bot: bot, chatID: chatID}
}

// NewTelegramBot connects to the Bot API with token.
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, catalog.E(catalog.ErrExternalService, "connect telegram", err)
	}
	return bot, nil
}

func (t *TelegramSender) ImportCompleted(ctx context.Context, r ImportReport) error {
	return t.send(FormatImportSummary(r))
}

func (t *TelegramSender) JobFailed(ctx context.Context, r FailureReport) error {
	return t.send(FormatFailure(r))
}

func (t *TelegramSender) send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return catalog.E(catalog.ErrExternalService, "send telegram message", fmt.Errorf("chat %d: %w", t.chatID, err))
	}
	return nil
}

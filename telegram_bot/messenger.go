package telegram_bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MessageOption изменяет исходящее сообщение перед отправкой
type MessageOption func(msg *tgbotapi.MessageConfig)

// Messenger отправляет сообщения в чат
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts ...MessageOption) error
}

// sender часть *tgbotapi.BotAPI, нужная для отправки
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramMessenger отправляет сообщения через Bot API
type TelegramMessenger struct {
	api sender
}

// NewTelegramMessenger создает отправителя поверх клиента Bot API
func NewTelegramMessenger(api *tgbotapi.BotAPI) *TelegramMessenger {
	return &TelegramMessenger{api: api}
}

// SendMessage отправляет HTML сообщение. Возвращает ошибку контекста,
// если Bot API не ответил до его отмены.
func (m *TelegramMessenger) SendMessage(ctx context.Context, chatID int64, text string, opts ...MessageOption) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	for _, opt := range opts {
		opt(&msg)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := m.api.Send(msg)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка отправки сообщения в чат %d: %w", chatID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("отправка сообщения в чат %d прервана: %w", chatID, ctx.Err())
	}
}

// NoopMessenger используется, когда BOT_TOKEN не задан
type NoopMessenger struct{}

func (NoopMessenger) SendMessage(ctx context.Context, chatID int64, text string, opts ...MessageOption) error {
	return nil
}

package telegram_bot

import (
	"net/url"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const playButtonText = "🦊 Играть"

// WithPlayButton добавляет к сообщению кнопку запуска игры.
// Пустой gameURL - кнопка не добавляется.
func WithPlayButton(gameURL string) MessageOption {
	return func(msg *tgbotapi.MessageConfig) {
		if gameURL == "" {
			return
		}

		row := tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(playButtonText, gameURL),
		)

		// Если есть клавиатура, добавляем строку с кнопкой
		if keyboard, ok := msg.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup); ok && keyboard != nil {
			keyboard.InlineKeyboard = append(keyboard.InlineKeyboard, row)
			return
		}

		keyboard := tgbotapi.NewInlineKeyboardMarkup(row)
		msg.ReplyMarkup = &keyboard
	}
}

// WithShareButton добавляет кнопку "Поделиться" для реферальной ссылки
func WithShareButton(link string) MessageOption {
	return func(msg *tgbotapi.MessageConfig) {
		if link == "" {
			return
		}

		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("🔗 Поделиться ссылкой", "https://t.me/share/url?url="+url.QueryEscape(link)),
			),
		)
		msg.ReplyMarkup = &keyboard
	}
}

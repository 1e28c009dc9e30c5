package telegram_bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"foxgem/common"
	"foxgem/leaderboard"
	"foxgem/referralLink"
	"foxgem/scores"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Bot обрабатывает команды игроков в чате
type Bot struct {
	API       *tgbotapi.BotAPI
	messenger Messenger
	scores    *scores.Service
	referrals *referralLink.ReferralService
	board     *leaderboard.Aggregator
	gameURL   string
	log       *logrus.Entry
}

// BotDeps сервисы, которые использует бот
type BotDeps struct {
	Scores    *scores.Service
	Referrals *referralLink.ReferralService
	Board     *leaderboard.Aggregator
	GameURL   string
}

// NewBotAPI авторизует клиента Bot API
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка авторизации бота: %w", err)
	}
	api.Debug = false
	common.Component("TELEGRAM_BOT").Infof("Авторизован как @%s", api.Self.UserName)
	return api, nil
}

// NewBot создает бота поверх авторизованного клиента
func NewBot(api *tgbotapi.BotAPI, messenger Messenger, deps BotDeps) *Bot {
	return &Bot{
		API:       api,
		messenger: messenger,
		scores:    deps.Scores,
		referrals: deps.Referrals,
		board:     deps.Board,
		gameURL:   deps.GameURL,
		log:       common.Component("TELEGRAM_BOT"),
	}
}

// Start обрабатывает обновления до отмены ctx
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.API.GetUpdatesChan(u)
	b.log.Info("Запуск основного цикла обработки обновлений")

	for {
		select {
		case <-ctx.Done():
			b.API.StopReceivingUpdates()
			b.log.Info("Цикл обработки обновлений остановлен")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.HandleMessage(ctx, update.Message)
			}
		}
	}
}

// HandleMessage обрабатывает одно сообщение
func (b *Bot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	command := parseCommand(msg.Text)
	b.log.WithFields(logrus.Fields{
		"user":    msg.From.ID,
		"command": command,
	}).Debug("Получено сообщение")

	var err error
	switch command {
	case "start":
		err = b.handleStart(ctx, msg)
	case "top":
		err = b.handleTop(ctx, msg)
	case "ref":
		err = b.handleRef(ctx, msg)
	case "stats":
		err = b.handleStats(ctx, msg)
	default:
		err = b.reply(ctx, msg.Chat.ID, helpText(), WithPlayButton(b.gameURL))
	}

	if err != nil {
		b.log.Errorf("Ошибка обработки команды /%s от %d: %v", command, msg.From.ID, err)

		// Ошибка сервиса, а не отправки: сообщаем пользователю
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			b.reply(ctx, msg.Chat.ID, "❌ Что-то пошло не так, попробуйте позже")
		}
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	profile, err := b.scores.SaveUser(ctx, profileFromTelegram(msg.From))
	if err != nil {
		return err
	}

	text := fmt.Sprintf("🦊 Привет, %s!\n\nСобирайте кристаллы, ставьте рекорды и попадайте в таблицу лидеров.",
		html.EscapeString(common.DisplayNameOf(profile.DisplayName, profile.FirstName, profile.LastName, profile.TelegramID)))

	if code := referralLink.ExtractReferralCode(msg.Text); code != "" && b.referrals != nil && b.referrals.Enabled() {
		_, err := b.referrals.AttributeReferral(ctx, code, profile.TelegramID)
		switch {
		case err == nil:
			text += "\n\n🎁 Вы пришли по приглашению друга, он получил бонус!"
		case errors.Is(err, common.ErrAlreadyAttributed), errors.Is(err, common.ErrValidation):
			// повторный переход или своя ссылка
		case errors.Is(err, common.ErrInvalidCode):
			text += "\n\n⚠️ Реферальный код не найден"
		default:
			return err
		}
	}

	return b.reply(ctx, msg.Chat.ID, text, WithPlayButton(b.gameURL))
}

func (b *Bot) handleTop(ctx context.Context, msg *tgbotapi.Message) error {
	entries, err := b.board.Top(ctx)
	if err != nil {
		return err
	}
	return b.reply(ctx, msg.Chat.ID, leaderboard.FormatTop(entries), WithPlayButton(b.gameURL))
}

func (b *Bot) handleRef(ctx context.Context, msg *tgbotapi.Message) error {
	if b.referrals == nil || !b.referrals.Enabled() {
		return b.reply(ctx, msg.Chat.ID, "❌ Реферальная система временно отключена")
	}

	if _, err := b.scores.SaveUser(ctx, profileFromTelegram(msg.From)); err != nil {
		return err
	}

	info, err := b.referrals.GetReferralLinkInfo(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	return b.reply(ctx, msg.Chat.ID, b.referrals.FormatReferralMenu(info), WithShareButton(info.ReferralLink))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	stats, err := b.scores.GetUserStats(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	if stats.Profile == nil || stats.GamesPlayed == 0 {
		return b.reply(ctx, msg.Chat.ID, "🎮 Вы еще не сыграли ни одной игры", WithPlayButton(b.gameURL))
	}

	text := "📊 <b>Ваша статистика</b>\n\n"
	text += fmt.Sprintf("🏆 Лучший результат: <b>%d</b>\n", stats.BestScore)
	text += fmt.Sprintf("🎮 Сыграно игр: %d\n", stats.GamesPlayed)
	text += fmt.Sprintf("🕹 Последняя игра: %s\n", common.FormatRussianDateTime(stats.Profile.LastPlayed))
	text += fmt.Sprintf("📅 В игре с %s\n", common.FormatRussianDate(stats.Profile.JoinDate))
	if stats.Profile.ReferralBonus > 0 {
		text += fmt.Sprintf("🎁 Реферальный бонус: +%d\n", stats.Profile.ReferralBonus)
	}
	return b.reply(ctx, msg.Chat.ID, text, WithPlayButton(b.gameURL))
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, opts ...MessageOption) error {
	return b.messenger.SendMessage(ctx, chatID, text, opts...)
}

// SetBotCommands устанавливает команды бота в боковом меню
func SetBotCommands(api *tgbotapi.BotAPI) error {
	log := common.Component("TELEGRAM_BOT")

	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "🦊 Начать игру"},
		{Command: "top", Description: "🏆 Таблица лидеров"},
		{Command: "ref", Description: "👥 Пригласить друга"},
		{Command: "stats", Description: "📊 Моя статистика"},
	}

	if _, err := api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return fmt.Errorf("ошибка настройки команд: %w", err)
	}

	log.Info("Команды бота успешно настроены")
	return nil
}

// parseCommand возвращает имя команды без "/" и упоминания бота
func parseCommand(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	command := strings.TrimPrefix(fields[0], "/")
	if i := strings.Index(command, "@"); i >= 0 {
		command = command[:i]
	}
	return strings.ToLower(command)
}

func profileFromTelegram(u *tgbotapi.User) common.ProfileUpdate {
	return common.ProfileUpdate{
		TelegramID:  u.ID,
		DisplayName: u.UserName,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
	}
}

func helpText() string {
	return "🦊 <b>FoxGem</b>\n\n" +
		"/start - начать игру\n" +
		"/top - таблица лидеров\n" +
		"/ref - пригласить друга\n" +
		"/stats - моя статистика"
}

// Package app собирает сервисы FoxGem и управляет их жизненным циклом.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"foxgem/common"
	"foxgem/handlers"
	"foxgem/leaderboard"
	"foxgem/referralLink"
	"foxgem/scores"
	"foxgem/services"
	"foxgem/storage"
	"foxgem/telegram_bot"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// App все сервисы приложения
type App struct {
	Config     *common.Config
	Store      storage.Store
	Dispatcher *telegram_bot.Dispatcher
	Referrals  *referralLink.ReferralService
	Scores     *scores.Service
	Board      *leaderboard.Aggregator
	BonusReset *services.BonusResetService
	Server     *handlers.Server

	botAPI *tgbotapi.BotAPI
	log    *logrus.Entry
}

// OpenStore открывает хранилище и применяет миграции
func OpenStore(ctx context.Context, cfg *common.Config) (storage.Store, error) {
	store, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия хранилища: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ошибка миграции хранилища: %w", err)
	}
	return store, nil
}

// InitializeApp инициализирует хранилище и сервисы. Сеть и расписание не запускаются до Run.
func InitializeApp(ctx context.Context, cfg *common.Config) (*App, error) {
	log := common.Component("APP")
	log.Info("Инициализация приложения")

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("Хранилище успешно инициализировано")

	return newApp(cfg, store)
}

func newApp(cfg *common.Config, store storage.Store) (*App, error) {
	a := &App{
		Config: cfg,
		Store:  store,
		log:    common.Component("APP"),
	}

	var messenger telegram_bot.Messenger = telegram_bot.NoopMessenger{}
	if cfg.BotToken != "" {
		api, err := telegram_bot.NewBotAPI(cfg.BotToken)
		if err != nil {
			return nil, fmt.Errorf("ошибка инициализации бота: %w", err)
		}
		a.botAPI = api
		messenger = telegram_bot.NewTelegramMessenger(api)
	} else {
		a.log.Warn("BOT_TOKEN не задан, бот и уведомления отключены")
	}

	a.Dispatcher = telegram_bot.NewDispatcher(messenger, cfg.NotificationTimeout, cfg.NotificationEnabled && cfg.BotToken != "")

	var adminID int64
	if cfg.AdminNotificationsEnabled {
		adminID = cfg.AdminID
	}

	a.Referrals = referralLink.NewReferralService(store, referralLink.Options{
		Enabled:     cfg.ReferralSystemEnabled,
		Reward:      cfg.ReferralBonusAmount,
		Window:      cfg.ReferralWindow(),
		LinkBaseURL: cfg.ReferralLinkBaseURL,
		AdminID:     adminID,
		NotifyAdmin: adminID != 0,
	}, a.Dispatcher)
	a.Scores = scores.NewService(store, a.Referrals, a.Dispatcher)
	a.Board = leaderboard.NewAggregator(store, cfg.LeaderboardMode, cfg.LeaderboardLimit)
	a.BonusReset = services.NewBonusResetService(store, cfg.BonusResetCron, a.Dispatcher, adminID)
	a.Server = handlers.NewServer(store, a.Scores, a.Referrals, a.Board)

	a.log.WithFields(logrus.Fields{
		"store":       cfg.StoreDriver,
		"leaderboard": a.Board.Mode(),
		"referrals":   cfg.ReferralSystemEnabled,
	}).Info("Инициализация приложения завершена")
	return a, nil
}

// Run запускает HTTP сервер, расписание и бота. Блокирует до отмены ctx
// или ошибки HTTP сервера, затем останавливает все сервисы.
func (a *App) Run(ctx context.Context) error {
	defer a.Shutdown()

	if a.Config.ReferralSystemEnabled {
		if err := a.BonusReset.Start(); err != nil {
			return err
		}
		defer a.BonusReset.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Port),
		Handler:           a.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.log.Infof("Запуск HTTP сервера на порту %d", a.Config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	botCtx, stopBot := context.WithCancel(ctx)
	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		a.StartBot(botCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Получен сигнал завершения")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("ошибка HTTP сервера: %w", err)
		}
	}

	stopBot()
	<-botDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Errorf("Ошибка остановки HTTP сервера: %v", err)
	}
	a.log.Info("HTTP сервер остановлен")
	return runErr
}

// StartBot запускает Telegram бота. Без BOT_TOKEN ничего не делает.
func (a *App) StartBot(ctx context.Context) {
	if a.botAPI == nil {
		return
	}
	a.log.Info("Запуск Telegram бота")

	// Настраиваем команды бота
	if err := telegram_bot.SetBotCommands(a.botAPI); err != nil {
		a.log.Errorf("Ошибка настройки команд бота: %v", err)
	}

	bot := telegram_bot.NewBot(a.botAPI, telegram_bot.NewTelegramMessenger(a.botAPI), telegram_bot.BotDeps{
		Scores:    a.Scores,
		Referrals: a.Referrals,
		Board:     a.Board,
		GameURL:   a.Config.GameURL,
	})
	bot.Start(ctx)
}

// Shutdown дожидается отправки уведомлений и закрывает хранилище
func (a *App) Shutdown() {
	a.Dispatcher.Wait()
	if err := a.Store.Close(); err != nil {
		a.log.Errorf("Ошибка закрытия хранилища: %v", err)
	}
	a.log.Info("Приложение остановлено")
}

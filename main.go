package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"foxgem/app"
	"foxgem/common"
	"foxgem/services"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "foxgem",
	Short:         "FoxGem: сервер игры, таблица лидеров и реферальная система",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API, Telegram бота и расписание обнуления бонусов",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Создать или обновить схему хранилища",
	RunE:  runMigrate,
}

var resetBonusesCmd = &cobra.Command{
	Use:   "reset-bonuses",
	Short: "Обнулить реферальные бонусы всех игроков прямо сейчас",
	RunE:  runResetBonuses,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(resetBonusesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		common.Log.Errorf("MAIN: %v", err)
		os.Exit(1)
	}
}

// loadConfig загружает конфигурацию и настраивает логгер
func loadConfig() (*common.Config, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	common.InitLogger(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := app.InitializeApp(ctx, cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	common.Component("MAIN").Info("Миграции применены")
	return nil
}

func runResetBonuses(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	affected, err := services.NewBonusResetService(store, cfg.BonusResetCron, nil, 0).RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Бонусы обнулены у %d игроков\n", affected)
	return nil
}

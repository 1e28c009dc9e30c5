package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Режимы построения таблицы лидеров
const (
	LeaderboardModeProfile = "profile" // bestScore + referralBonus из профиля
	LeaderboardModeLedger  = "ledger"  // лучший результат из журнала очков
)

// Драйверы хранилища
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

// Config содержит все настройки сервиса
type Config struct {
	Port int

	// Telegram
	BotToken                  string
	AdminID                   int64
	AdminNotificationsEnabled bool
	NotificationEnabled       bool
	NotificationTimeout       time.Duration
	GameURL                   string

	// Хранилище
	StoreDriver string
	PGHost      string
	PGPort      int
	PGUser      string
	PGPassword  string
	PGDBName    string
	PGSSLMode   string
	SQLitePath  string

	// Таблица лидеров
	LeaderboardMode  string
	LeaderboardLimit int

	// Реферальная система
	ReferralSystemEnabled bool
	ReferralBonusAmount   int64
	ReferralWindowDays    int
	ReferralLinkBaseURL   string
	BonusResetCron        string

	// Логирование
	LogLevel  string
	LogFormat string
}

// setDefaults задает значения по умолчанию для всех ключей
func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 3000)

	v.SetDefault("BOT_TOKEN", "")
	v.SetDefault("ADMIN_ID", 0)
	v.SetDefault("ADMIN_NOTIFICATIONS_ENABLED", false)
	v.SetDefault("NOTIFICATION_ENABLED", true)
	v.SetDefault("NOTIFICATION_TIMEOUT", "5s")
	v.SetDefault("GAME_URL", "")

	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("PG_HOST", "localhost")
	v.SetDefault("PG_PORT", 5432)
	v.SetDefault("PG_USER", "foxgem")
	v.SetDefault("PG_PASSWORD", "")
	v.SetDefault("PG_DBNAME", "foxgem")
	v.SetDefault("PG_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "foxgem.db")

	v.SetDefault("LEADERBOARD_MODE", LeaderboardModeProfile)
	v.SetDefault("LEADERBOARD_LIMIT", 10)

	v.SetDefault("REFERRAL_SYSTEM_ENABLED", true)
	v.SetDefault("REFERRAL_BONUS_AMOUNT", 5)
	v.SetDefault("REFERRAL_WINDOW_DAYS", 7)
	v.SetDefault("REFERRAL_LINK_BASE_URL", "https://t.me/FoxGemBot?startapp=ref_")
	v.SetDefault("BONUS_RESET_CRON", "0 0 0 * * 1") // каждый понедельник в 00:00

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// LoadConfig загружает конфигурацию: значения по умолчанию, затем файл
// (CONFIG_FILE или .env в рабочей директории), затем переменные окружения
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		if _, err := os.Stat(".env"); err == nil {
			configFile = ".env"
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if strings.HasSuffix(configFile, ".env") {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации %s: %w", configFile, err)
		}
	}

	return configFromViper(v)
}

func configFromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port: v.GetInt("PORT"),

		BotToken:                  v.GetString("BOT_TOKEN"),
		AdminID:                   v.GetInt64("ADMIN_ID"),
		AdminNotificationsEnabled: v.GetBool("ADMIN_NOTIFICATIONS_ENABLED"),
		NotificationEnabled:       v.GetBool("NOTIFICATION_ENABLED"),
		NotificationTimeout:       v.GetDuration("NOTIFICATION_TIMEOUT"),
		GameURL:                   v.GetString("GAME_URL"),

		StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),
		PGHost:      v.GetString("PG_HOST"),
		PGPort:      v.GetInt("PG_PORT"),
		PGUser:      v.GetString("PG_USER"),
		PGPassword:  v.GetString("PG_PASSWORD"),
		PGDBName:    v.GetString("PG_DBNAME"),
		PGSSLMode:   v.GetString("PG_SSLMODE"),
		SQLitePath:  v.GetString("SQLITE_PATH"),

		LeaderboardMode:  strings.ToLower(v.GetString("LEADERBOARD_MODE")),
		LeaderboardLimit: v.GetInt("LEADERBOARD_LIMIT"),

		ReferralSystemEnabled: v.GetBool("REFERRAL_SYSTEM_ENABLED"),
		ReferralBonusAmount:   v.GetInt64("REFERRAL_BONUS_AMOUNT"),
		ReferralWindowDays:    v.GetInt("REFERRAL_WINDOW_DAYS"),
		ReferralLinkBaseURL:   v.GetString("REFERRAL_LINK_BASE_URL"),
		BonusResetCron:        v.GetString("BONUS_RESET_CRON"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig возвращает конфигурацию только из значений по умолчанию
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := configFromViper(v)
	if err != nil {
		panic(fmt.Sprintf("значения по умолчанию не прошли проверку: %v", err))
	}
	return cfg
}

// Validate проверяет корректность настроек
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverSQLite, StoreDriverMemory:
	default:
		return fmt.Errorf("неизвестный STORE_DRIVER: %q", c.StoreDriver)
	}

	switch c.LeaderboardMode {
	case LeaderboardModeProfile, LeaderboardModeLedger:
	default:
		return fmt.Errorf("неизвестный LEADERBOARD_MODE: %q", c.LeaderboardMode)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("некорректный PORT: %d", c.Port)
	}
	if c.LeaderboardLimit <= 0 {
		return fmt.Errorf("LEADERBOARD_LIMIT должен быть положительным, получено %d", c.LeaderboardLimit)
	}
	if c.ReferralBonusAmount < 0 {
		return fmt.Errorf("REFERRAL_BONUS_AMOUNT не может быть отрицательным")
	}
	if c.ReferralBonusAmount > MaxReferralBonus {
		return fmt.Errorf("REFERRAL_BONUS_AMOUNT не может превышать %d", MaxReferralBonus)
	}
	if c.ReferralWindowDays <= 0 {
		return fmt.Errorf("REFERRAL_WINDOW_DAYS должен быть положительным, получено %d", c.ReferralWindowDays)
	}
	if c.NotificationTimeout <= 0 {
		return fmt.Errorf("NOTIFICATION_TIMEOUT должен быть положительным")
	}
	return nil
}

// ReferralWindow возвращает длительность окна реферального бонуса
func (c *Config) ReferralWindow() time.Duration {
	return time.Duration(c.ReferralWindowDays) * 24 * time.Hour
}

// PostgresDSN собирает строку подключения к PostgreSQL
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PGHost, c.PGPort, c.PGUser, c.PGPassword, c.PGDBName, c.PGSSLMode)
}

package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig проверяет значения по умолчанию
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Port != 3000 {
		t.Errorf("Ожидался порт 3000, получен %d", cfg.Port)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Errorf("Ожидался драйвер postgres, получен %s", cfg.StoreDriver)
	}
	if cfg.LeaderboardMode != LeaderboardModeProfile || cfg.LeaderboardLimit != 10 {
		t.Errorf("Таблица лидеров: mode=%s limit=%d", cfg.LeaderboardMode, cfg.LeaderboardLimit)
	}
	if cfg.ReferralBonusAmount != 5 || cfg.ReferralWindow() != 7*24*time.Hour {
		t.Errorf("Реферальная система: bonus=%d window=%v", cfg.ReferralBonusAmount, cfg.ReferralWindow())
	}
	if cfg.NotificationTimeout != 5*time.Second {
		t.Errorf("Ожидался таймаут уведомлений 5s, получен %v", cfg.NotificationTimeout)
	}
}

// TestLoadConfig_FileAndEnv проверяет приоритет: переменные окружения важнее файла
func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foxgem.env")
	content := "PORT=8080\nSTORE_DRIVER=sqlite\nSQLITE_PATH=/tmp/fox.db\nREFERRAL_BONUS_AMOUNT=10\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REFERRAL_BONUS_AMOUNT", "25")
	t.Setenv("LEADERBOARD_MODE", "LEDGER")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Port != 8080 || cfg.StoreDriver != StoreDriverSQLite || cfg.SQLitePath != "/tmp/fox.db" {
		t.Errorf("Значения из файла не применены: %+v", cfg)
	}
	if cfg.ReferralBonusAmount != 25 {
		t.Errorf("Ожидался бонус 25 из окружения, получен %d", cfg.ReferralBonusAmount)
	}
	if cfg.LeaderboardMode != LeaderboardModeLedger {
		t.Errorf("Ожидался режим ledger, получен %s", cfg.LeaderboardMode)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.env"))
	if _, err := LoadConfig(); err == nil {
		t.Error("Ожидалась ошибка чтения отсутствующего файла")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"драйвер", func(c *Config) { c.StoreDriver = "mongo" }},
		{"режим", func(c *Config) { c.LeaderboardMode = "weekly" }},
		{"порт", func(c *Config) { c.Port = 70000 }},
		{"лимит", func(c *Config) { c.LeaderboardLimit = 0 }},
		{"бонус", func(c *Config) { c.ReferralBonusAmount = -1 }},
		{"бонус больше максимума", func(c *Config) { c.ReferralBonusAmount = MaxReferralBonus + 1 }},
		{"окно", func(c *Config) { c.ReferralWindowDays = 0 }},
		{"таймаут", func(c *Config) { c.NotificationTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Ожидалась ошибка валидации")
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := DefaultConfig()
	want := "host=localhost port=5432 user=foxgem password= dbname=foxgem sslmode=disable"
	if got := cfg.PostgresDSN(); got != want {
		t.Errorf("PostgresDSN() = %q, ожидалось %q", got, want)
	}
}

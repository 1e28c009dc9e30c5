// Package storage хранит профили игроков и журнал очков.
//
// Все операции, меняющие счетчики, атомарны и выполняются условными
// обновлениями, без отдельного чтения перед записью.
package storage

import (
	"context"
	"errors"
	"time"

	"foxgem/common"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("запись не найдена")
	// ErrDuplicateCode реферальный код уже занят другим профилем
	ErrDuplicateCode = errors.New("реферальный код уже существует")
	// ErrAlreadyInvited у пользователя уже указан пригласивший
	ErrAlreadyInvited = errors.New("пригласивший уже указан")
)

// ReferralAttribution параметры начисления реферального бонуса
type ReferralAttribution struct {
	ReferrerID int64
	NewUserID  int64
	Reward     int64
	Window     time.Duration
	Now        time.Time
}

// Store контракт хранилища
type Store interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	// GetProfile возвращает ErrNotFound, если профиля нет
	GetProfile(ctx context.Context, telegramID int64) (*common.UserProfile, error)
	// GetProfileByReferralCode возвращает ErrNotFound, если код никому не принадлежит
	GetProfileByReferralCode(ctx context.Context, code string) (*common.UserProfile, error)
	// UpsertProfile создает профиль при первом обращении или обновляет отображаемые поля
	UpsertProfile(ctx context.Context, update common.ProfileUpdate, now time.Time) (*common.UserProfile, error)
	// RecordScore добавляет запись в журнал и обновляет профиль (bestScore = max, gamesPlayed + 1)
	RecordScore(ctx context.Context, update common.ProfileUpdate, entry common.ScoreEntry) (*common.UserProfile, error)
	// SetReferralCode записывает код, только если он еще не задан, и возвращает действующий код.
	// ErrDuplicateCode, если код занят другим профилем.
	SetReferralCode(ctx context.Context, telegramID int64, code string) (string, error)
	// AttributeReferral указывает пригласившего у нового пользователя и начисляет бонус
	// пригласившему в одной транзакции. ErrNotFound, если нового пользователя нет,
	// ErrAlreadyInvited, если пригласивший уже указан.
	AttributeReferral(ctx context.Context, a ReferralAttribution) (*common.ReferralCredit, error)
	// ResetBonuses обнуляет положительные бонусы и возвращает число затронутых профилей
	ResetBonuses(ctx context.Context, now time.Time) (int64, error)
	// TopByProfile возвращает профили по убыванию bestScore + referralBonus
	TopByProfile(ctx context.Context, limit int) ([]common.LeaderboardEntry, error)
	// TopByLedger возвращает лучший результат каждого игрока из журнала
	TopByLedger(ctx context.Context, limit int) ([]common.LeaderboardEntry, error)
	// CountScores возвращает число записей журнала игрока
	CountScores(ctx context.Context, telegramID int64) (int64, error)
}

// bonusWindowExpired сообщает, истекло ли окно бонуса к моменту now
func bonusWindowExpired(lastReset, now time.Time, window time.Duration) bool {
	return !now.Before(lastReset.Add(window))
}

// addBonus прибавляет награду к бонусу, не выходя за MaxReferralBonus
func addBonus(bonus, reward int64) int64 {
	if reward > common.MaxReferralBonus-bonus {
		return common.MaxReferralBonus
	}
	return bonus + reward
}

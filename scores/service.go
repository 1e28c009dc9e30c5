// Package scores принимает результаты игр и ведет профили игроков.
package scores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"foxgem/common"
	"foxgem/referralLink"
	"foxgem/storage"

	"github.com/sirupsen/logrus"
)

// SubmitRequest результат игры от клиента
type SubmitRequest struct {
	UserID       int64
	DisplayName  string
	FirstName    string
	LastName     string
	Score        *int64 // nil - поле не передано
	ReferrerCode string
}

// ReferralOutcome итог попытки привязать реферала при сохранении результата
type ReferralOutcome struct {
	Credited bool                   `json:"credited"`
	Credit   *common.ReferralCredit `json:"credit,omitempty"`
	Code     string                 `json:"code,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// SubmitResult результат сохранения
type SubmitResult struct {
	Entry    common.ScoreEntry   `json:"entry"`
	Profile  *common.UserProfile `json:"user"`
	Referral *ReferralOutcome    `json:"referral,omitempty"`
}

// Service сохраняет результаты игр
type Service struct {
	store     storage.Store
	referrals *referralLink.ReferralService
	notifier  common.Notifier
	log       *logrus.Entry
	now       func() time.Time
}

// NewService создает сервис результатов. referrals и notifier могут быть nil.
func NewService(store storage.Store, referrals *referralLink.ReferralService, notifier common.Notifier) *Service {
	if notifier == nil {
		notifier = common.NoopNotifier{}
	}
	return &Service{
		store:     store,
		referrals: referrals,
		notifier:  notifier,
		log:       common.Component("SCORES"),
		now:       time.Now,
	}
}

// Submit записывает результат в журнал и обновляет профиль игрока.
// Ошибка привязки реферала и ошибка уведомления не отменяют сохранение.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.UserID <= 0 {
		return nil, common.ValidationError("userId обязателен и должен быть положительным")
	}
	if req.Score == nil {
		return nil, common.ValidationError("score обязателен")
	}
	if *req.Score < 0 {
		return nil, common.ValidationError("score не может быть отрицательным: %d", *req.Score)
	}
	if *req.Score > common.MaxScore {
		return nil, common.ValidationError("score не может превышать %d: %d", common.MaxScore, *req.Score)
	}

	entry := common.ScoreEntry{
		ID:         common.GenerateEntryID(),
		TelegramID: req.UserID,
		Score:      *req.Score,
		CreatedAt:  s.now().UTC(),
	}

	previousBest := int64(-1)
	if existing, err := s.store.GetProfile(ctx, req.UserID); err == nil {
		previousBest = existing.BestScore
	}

	profile, err := s.store.RecordScore(ctx, profileUpdate(req), entry)
	if err != nil {
		s.log.Errorf("Ошибка сохранения результата пользователя %d: %v", req.UserID, err)
		return nil, common.StoreError("ошибка сохранения результата", err)
	}
	common.ScoresSubmitted.Inc()

	s.log.WithFields(logrus.Fields{
		"user":         req.UserID,
		"score":        entry.Score,
		"best_score":   profile.BestScore,
		"games_played": profile.GamesPlayed,
	}).Info("Результат сохранен")

	result := &SubmitResult{Entry: entry, Profile: profile}

	if code := strings.TrimSpace(req.ReferrerCode); code != "" && profile.InvitedBy == 0 {
		result.Referral = s.attributeReferral(ctx, code, profile)
	}

	s.notifier.Dispatch(req.UserID, scoreMessage(entry.Score, profile.BestScore, entry.Score > previousBest && previousBest >= 0))
	return result, nil
}

func (s *Service) attributeReferral(ctx context.Context, code string, profile *common.UserProfile) *ReferralOutcome {
	if s.referrals == nil || !s.referrals.Enabled() {
		return nil
	}

	credit, err := s.referrals.AttributeReferral(ctx, code, profile.TelegramID)
	if err != nil {
		s.log.Warnf("Реферальный код %q для пользователя %d не применен: %v", code, profile.TelegramID, err)
		return &ReferralOutcome{Code: common.ErrorCode(err), Error: common.PublicMessage(err)}
	}

	profile.InvitedBy = credit.ReferrerID
	return &ReferralOutcome{Credited: true, Credit: credit}
}

// SaveUser создает профиль или обновляет отображаемые поля без записи результата
func (s *Service) SaveUser(ctx context.Context, update common.ProfileUpdate) (*common.UserProfile, error) {
	if update.TelegramID <= 0 {
		return nil, common.ValidationError("userId обязателен и должен быть положительным")
	}

	profile, err := s.store.UpsertProfile(ctx, trimUpdate(update), s.now().UTC())
	if err != nil {
		s.log.Errorf("Ошибка сохранения пользователя %d: %v", update.TelegramID, err)
		return nil, common.StoreError("ошибка сохранения пользователя", err)
	}

	s.log.Debugf("Профиль пользователя %d сохранен", update.TelegramID)
	return profile, nil
}

// GetUserStats возвращает профиль и статистику игрока.
// Для неизвестного игрока - нулевая статистика и пустой профиль.
func (s *Service) GetUserStats(ctx context.Context, telegramID int64) (*common.UserStats, error) {
	if telegramID <= 0 {
		return nil, common.ValidationError("некорректный userId: %d", telegramID)
	}

	profile, err := s.store.GetProfile(ctx, telegramID)
	if errors.Is(err, storage.ErrNotFound) {
		return &common.UserStats{}, nil
	}
	if err != nil {
		return nil, common.StoreError("ошибка получения пользователя", err)
	}

	games, err := s.store.CountScores(ctx, telegramID)
	if err != nil {
		return nil, common.StoreError("ошибка подсчета игр", err)
	}

	return &common.UserStats{
		Profile:     profile,
		BestScore:   profile.BestScore,
		GamesPlayed: games,
	}, nil
}

func profileUpdate(req SubmitRequest) common.ProfileUpdate {
	return trimUpdate(common.ProfileUpdate{
		TelegramID:  req.UserID,
		DisplayName: req.DisplayName,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
	})
}

func trimUpdate(u common.ProfileUpdate) common.ProfileUpdate {
	u.DisplayName = strings.TrimSpace(u.DisplayName)
	u.FirstName = strings.TrimSpace(u.FirstName)
	u.LastName = strings.TrimSpace(u.LastName)
	return u
}

// scoreMessage текст уведомления о сохраненном результате
func scoreMessage(score, best int64, newRecord bool) string {
	if newRecord {
		return fmt.Sprintf("🏆 <b>Новый рекорд!</b>\n\nВы набрали <b>%d</b> очков.", score)
	}
	return fmt.Sprintf("🎮 Результат сохранен: <b>%d</b> очков.\nЛучший результат: <b>%d</b>", score, best)
}

package referralLink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"foxgem/common"
	"foxgem/storage"

	"github.com/sirupsen/logrus"
)

// ReferralService сервис для работы с реферальной системой
type ReferralService struct {
	store    storage.Store
	opts     Options
	notifier common.Notifier
	log      *logrus.Entry

	now      func() time.Time
	generate func() (string, error)
}

// NewReferralService создает новый экземпляр сервиса рефералов
func NewReferralService(store storage.Store, opts Options, notifier common.Notifier) *ReferralService {
	if notifier == nil {
		notifier = common.NoopNotifier{}
	}
	return &ReferralService{
		store:    store,
		opts:     opts,
		notifier: notifier,
		log:      common.Component("REFERRAL_SERVICE"),
		now:      time.Now,
		generate: common.GenerateReferralCode,
	}
}

// Enabled сообщает, включена ли реферальная система
func (rs *ReferralService) Enabled() bool {
	return rs.opts.Enabled
}

// IssueReferralCode возвращает код пользователя, создавая его при первом обращении
func (rs *ReferralService) IssueReferralCode(ctx context.Context, telegramID int64) (string, error) {
	if telegramID <= 0 {
		return "", common.ValidationError("некорректный userId: %d", telegramID)
	}

	profile, err := rs.store.GetProfile(ctx, telegramID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", common.NotFoundError("пользователь %d не найден", telegramID)
	}
	if err != nil {
		return "", common.StoreError("ошибка получения пользователя", err)
	}

	// Если код уже есть, возвращаем его
	if profile.ReferralCode != "" {
		return profile.ReferralCode, nil
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := rs.generate()
		if err != nil {
			return "", common.StoreError("ошибка генерации реферального кода", err)
		}

		saved, err := rs.store.SetReferralCode(ctx, telegramID, code)
		switch {
		case err == nil:
			if saved == code {
				rs.log.Infof("Сгенерирован реферальный код %s для пользователя %d", code, telegramID)
			}
			return saved, nil
		case errors.Is(err, storage.ErrDuplicateCode):
			rs.log.Warnf("Код %s уже занят, попытка %d из %d", code, attempt, maxCodeAttempts)
		case errors.Is(err, storage.ErrNotFound):
			return "", common.NotFoundError("пользователь %d не найден", telegramID)
		default:
			return "", common.StoreError("ошибка сохранения реферального кода", err)
		}
	}

	return "", common.StoreError(fmt.Sprintf("не удалось выдать уникальный код за %d попыток", maxCodeAttempts), nil)
}

// AttributeReferral привязывает нового пользователя к владельцу кода и
// начисляет бонус владельцу с учетом недельного окна
func (rs *ReferralService) AttributeReferral(ctx context.Context, referrerCode string, newUserID int64) (*common.ReferralCredit, error) {
	credit, err := rs.attribute(ctx, referrerCode, newUserID)
	if err != nil {
		common.ReferralsAttributed.WithLabelValues(common.ErrorCode(err)).Inc()
		return nil, err
	}

	common.ReferralsAttributed.WithLabelValues("ok").Inc()
	if credit.WindowReset {
		common.ReferralWindowResets.Inc()
	}
	rs.notifyAdmin(credit, newUserID)
	return credit, nil
}

func (rs *ReferralService) attribute(ctx context.Context, referrerCode string, newUserID int64) (*common.ReferralCredit, error) {
	if !rs.opts.Enabled {
		return nil, common.ValidationError("реферальная система отключена")
	}
	if newUserID <= 0 {
		return nil, common.ValidationError("некорректный newUserId: %d", newUserID)
	}

	code := common.NormalizeReferralCode(referrerCode)
	if !common.IsValidReferralCode(code) {
		return nil, common.NewError(common.CodeInvalidCode, fmt.Sprintf("реферальный код %q не найден", referrerCode), nil)
	}

	referrer, err := rs.store.GetProfileByReferralCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, common.NewError(common.CodeInvalidCode, fmt.Sprintf("реферальный код %q не найден", code), nil)
	}
	if err != nil {
		return nil, common.StoreError("ошибка поиска владельца кода", err)
	}

	if referrer.TelegramID == newUserID {
		return nil, common.ValidationError("нельзя пригласить самого себя")
	}

	credit, err := rs.store.AttributeReferral(ctx, storage.ReferralAttribution{
		ReferrerID: referrer.TelegramID,
		NewUserID:  newUserID,
		Reward:     rs.opts.Reward,
		Window:     rs.opts.Window,
		Now:        rs.now(),
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, common.NotFoundError("пользователь %d не найден", newUserID)
	case errors.Is(err, storage.ErrAlreadyInvited):
		return nil, common.NewError(common.CodeAlreadyAttributed, fmt.Sprintf("пользователь %d уже приглашен", newUserID), nil)
	case err != nil:
		return nil, common.StoreError("ошибка начисления реферального бонуса", err)
	}

	rs.log.WithFields(logrus.Fields{
		"referrer":       credit.ReferrerID,
		"referred":       newUserID,
		"referral_count": credit.ReferralCount,
		"referral_bonus": credit.ReferralBonus,
		"window_reset":   credit.WindowReset,
	}).Info("Реферальный переход обработан")
	return credit, nil
}

// GetReferralLinkInfo получает информацию о реферальной ссылке пользователя
func (rs *ReferralService) GetReferralLinkInfo(ctx context.Context, telegramID int64) (*common.ReferralLinkInfo, error) {
	code, err := rs.IssueReferralCode(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	profile, err := rs.store.GetProfile(ctx, telegramID)
	if err != nil {
		return nil, common.StoreError("ошибка получения пользователя", err)
	}

	return &common.ReferralLinkInfo{
		ReferralCode:  code,
		ReferralLink:  rs.opts.LinkBaseURL + code,
		UserID:        telegramID,
		ReferralCount: profile.ReferralCount,
		ReferralBonus: profile.ReferralBonus,
	}, nil
}

// notifyAdmin уведомляет администратора о новом реферале
func (rs *ReferralService) notifyAdmin(credit *common.ReferralCredit, newUserID int64) {
	if !rs.opts.NotifyAdmin || rs.opts.AdminID == 0 {
		return
	}

	text := fmt.Sprintf("👥 <b>Новый реферал</b>\n\nПригласивший: <code>%d</code>\nНовый игрок: <code>%d</code>\nВсего приглашено: %d\nБонус за неделю: +%d",
		credit.ReferrerID, newUserID, credit.ReferralCount, credit.ReferralBonus)
	rs.notifier.Dispatch(rs.opts.AdminID, text)
}

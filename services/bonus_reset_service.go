package services

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"foxgem/common"
	"foxgem/storage"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// sweepTimeout ограничивает время одного обнуления
const sweepTimeout = time.Minute

// BonusResetService еженедельно обнуляет реферальные бонусы
type BonusResetService struct {
	store    storage.Store
	spec     string
	notifier common.Notifier
	adminID  int64
	log      *logrus.Entry
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewBonusResetService создает сервис обнуления бонусов.
// spec - расписание cron с секундами, например "0 0 0 * * 1".
func NewBonusResetService(store storage.Store, spec string, notifier common.Notifier, adminID int64) *BonusResetService {
	if notifier == nil {
		notifier = common.NoopNotifier{}
	}
	return &BonusResetService{
		store:    store,
		spec:     spec,
		notifier: notifier,
		adminID:  adminID,
		log:      common.Component("BONUS_RESET"),
		now:      time.Now,
	}
}

// Start запускает расписание
func (s *BonusResetService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Warn("Сервис уже запущен")
		return nil
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(s.spec, s.runScheduled); err != nil {
		return fmt.Errorf("некорректное расписание BONUS_RESET_CRON %q: %w", s.spec, err)
	}

	c.Start()
	s.cron = c
	s.running = true
	s.log.Infof("Запуск сервиса обнуления реферальных бонусов (расписание: %s)", s.spec)
	return nil
}

// Stop останавливает расписание и ждет завершения текущего запуска
func (s *BonusResetService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.mu.Unlock()

	ctx := c.Stop()
	<-ctx.Done()
	s.log.Info("Сервис обнуления бонусов остановлен")
}

// RunOnce обнуляет все положительные бонусы. Повторный запуск ничего не меняет.
func (s *BonusResetService) RunOnce(ctx context.Context) (int64, error) {
	affected, err := s.store.ResetBonuses(ctx, s.now().UTC())
	if err != nil {
		common.BonusSweeps.WithLabelValues("error").Inc()
		return 0, common.StoreError("ошибка обнуления реферальных бонусов", err)
	}

	common.BonusSweeps.WithLabelValues("ok").Inc()
	s.log.Infof("Реферальные бонусы обнулены у %d пользователей", affected)
	return affected, nil
}

func (s *BonusResetService) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	s.log.Info("Начало еженедельного обнуления бонусов")
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Errorf("Ошибка обнуления бонусов: %v", err)

		// Отправляем уведомление администратору об ошибке
		if s.adminID != 0 {
			s.notifier.Dispatch(s.adminID,
				"❌ <b>Ошибка обнуления реферальных бонусов</b>\n\n"+
					"<code>"+html.EscapeString(err.Error())+"</code>")
		}
	}
}

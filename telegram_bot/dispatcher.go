package telegram_bot

import (
	"context"
	"sync"
	"time"

	"foxgem/common"

	"github.com/sirupsen/logrus"
)

// Dispatcher отправляет уведомления в фоне, не задерживая ответ на запрос.
// У каждой отправки свой таймаут, ошибки только логируются.
type Dispatcher struct {
	messenger Messenger
	timeout   time.Duration
	enabled   bool
	log       *logrus.Entry

	wg sync.WaitGroup
}

// NewDispatcher создает диспетчер уведомлений
func NewDispatcher(messenger Messenger, timeout time.Duration, enabled bool) *Dispatcher {
	if messenger == nil {
		messenger = NoopMessenger{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		messenger: messenger,
		timeout:   timeout,
		enabled:   enabled,
		log:       common.Component("NOTIFICATION"),
	}
}

// Dispatch ставит уведомление в отправку и сразу возвращает управление
func (d *Dispatcher) Dispatch(chatID int64, text string) {
	if !d.enabled {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.Send(ctx, chatID, text); err != nil {
			d.log.Warn(err)
		}
	}()
}

// Send отправляет уведомление синхронно. Ошибка имеет код NOTIFICATION_FAILURE.
func (d *Dispatcher) Send(ctx context.Context, chatID int64, text string) error {
	if err := d.messenger.SendMessage(ctx, chatID, text); err != nil {
		common.NotificationsSent.WithLabelValues("error").Inc()
		return common.NewError(common.CodeNotificationFailure, "ошибка отправки уведомления пользователю", err)
	}

	common.NotificationsSent.WithLabelValues("ok").Inc()
	d.log.Debugf("Уведомление отправлено пользователю %d", chatID)
	return nil
}

// Wait ждет завершения всех начатых отправок
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

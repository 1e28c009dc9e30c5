package referralLink

import "time"

// WindowStatus состояние недельного окна реферального бонуса
type WindowStatus string

const (
	// WindowActive окно еще не истекло, бонус накапливается
	WindowActive WindowStatus = "WITHIN_WINDOW"
	// WindowExpired окно истекло, при следующем начислении бонус обнулится
	WindowExpired WindowStatus = "EXPIRED"
)

// maxCodeAttempts число попыток выдать уникальный код
const maxCodeAttempts = 5

// Options настройки реферальной системы
type Options struct {
	Enabled     bool
	Reward      int64
	Window      time.Duration
	LinkBaseURL string

	// Уведомление администратора о новых рефералах
	AdminID     int64
	NotifyAdmin bool
}

// WindowState возвращает состояние окна на момент now
func WindowState(lastReset, now time.Time, window time.Duration) WindowStatus {
	if !now.Before(lastReset.Add(window)) {
		return WindowExpired
	}
	return WindowActive
}

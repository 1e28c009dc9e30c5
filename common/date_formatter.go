package common

import (
	"fmt"
	"time"
)

// Русские названия месяцев в родительном падеже
var russianMonths = map[time.Month]string{
	time.January:   "января",
	time.February:  "февраля",
	time.March:     "марта",
	time.April:     "апреля",
	time.May:       "мая",
	time.June:      "июня",
	time.July:      "июля",
	time.August:    "августа",
	time.September: "сентября",
	time.October:   "октября",
	time.November:  "ноября",
	time.December:  "декабря",
}

// FormatRussianDate форматирует дату в русском формате.
// Пример: "13 сентября 2025". Нулевое время - "-".
func FormatRussianDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%d %s %d", t.Day(), russianMonths[t.Month()], t.Year())
}

// FormatRussianDateTime форматирует дату и время.
// Пример: "13 сентября 2025 в 15:30"
func FormatRussianDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s в %s", FormatRussianDate(t), t.Format("15:04"))
}

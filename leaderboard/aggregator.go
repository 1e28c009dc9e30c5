package leaderboard

import (
	"context"
	"fmt"
	"html"
	"sort"

	"foxgem/common"
	"foxgem/storage"

	"github.com/sirupsen/logrus"
)

// Aggregator строит таблицу лидеров в одном из двух режимов
type Aggregator struct {
	store storage.Store
	mode  string
	limit int
	log   *logrus.Entry
}

// NewAggregator создает агрегатор таблицы лидеров
func NewAggregator(store storage.Store, mode string, limit int) *Aggregator {
	if limit <= 0 {
		limit = 10
	}
	if mode != common.LeaderboardModeLedger {
		mode = common.LeaderboardModeProfile
	}
	return &Aggregator{
		store: store,
		mode:  mode,
		limit: limit,
		log:   common.Component("LEADERBOARD"),
	}
}

// Mode возвращает текущий режим
func (a *Aggregator) Mode() string {
	return a.mode
}

// Limit возвращает размер таблицы
func (a *Aggregator) Limit() int {
	return a.limit
}

// Top возвращает не более limit записей по убыванию очков.
// Пустой результат - пустой срез, не ошибка.
func (a *Aggregator) Top(ctx context.Context) ([]common.LeaderboardEntry, error) {
	var (
		entries []common.LeaderboardEntry
		err     error
	)

	switch a.mode {
	case common.LeaderboardModeLedger:
		entries, err = a.store.TopByLedger(ctx, a.limit)
	default:
		entries, err = a.store.TopByProfile(ctx, a.limit)
	}
	if err != nil {
		a.log.Errorf("Ошибка получения таблицы лидеров (%s): %v", a.mode, err)
		return nil, common.StoreError("ошибка получения таблицы лидеров", err)
	}

	ranked := Rank(entries, a.limit)
	a.log.Debugf("Таблица лидеров (%s): %d записей", a.mode, len(ranked))
	return ranked, nil
}

// Rank сортирует записи по убыванию очков, сохраняя порядок равных,
// обрезает до limit и проставляет места начиная с 1
func Rank(entries []common.LeaderboardEntry, limit int) []common.LeaderboardEntry {
	ranked := make([]common.LeaderboardEntry, len(entries))
	copy(ranked, entries)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].DisplayName = common.DisplayNameOf(ranked[i].DisplayName, ranked[i].FirstName, ranked[i].LastName, ranked[i].TelegramID)
	}
	return ranked
}

// FormatTop форматирует таблицу для сообщения в чате (HTML)
func FormatTop(entries []common.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "🏆 Таблица лидеров пока пуста. Сыграйте первым!"
	}

	text := "🏆 <b>Таблица лидеров</b>\n\n"
	for _, e := range entries {
		medal := ""
		switch e.Rank {
		case 1:
			medal = "🥇 "
		case 2:
			medal = "🥈 "
		case 3:
			medal = "🥉 "
		}
		text += fmt.Sprintf("%s%d. %s - <b>%d</b>", medal, e.Rank, html.EscapeString(e.DisplayName), e.Score)
		if e.Bonus > 0 {
			text += fmt.Sprintf(" (бонус +%d)", e.Bonus)
		}
		text += "\n"
	}
	return text
}

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"foxgem/common"
)

// MemoryStore хранилище в памяти процесса. Каждая операция выполняется под
// одной блокировкой, поэтому атомарна так же, как условный UPDATE в SQL.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[int64]*common.UserProfile
	codes    map[string]int64
	entries  []common.ScoreEntry
}

// NewMemoryStore создает пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[int64]*common.UserProfile),
		codes:    make(map[string]int64),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error    { return ctx.Err() }
func (m *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (m *MemoryStore) Close() error                      { return nil }

func (m *MemoryStore) GetProfile(ctx context.Context, telegramID int64) (*common.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[telegramID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *MemoryStore) GetProfileByReferralCode(ctx context.Context, code string) (*common.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m.profiles[id]
	return &copied, nil
}

// upsertLocked вызывается под m.mu
func (m *MemoryStore) upsertLocked(update common.ProfileUpdate, now time.Time) *common.UserProfile {
	p, ok := m.profiles[update.TelegramID]
	if !ok {
		p = &common.UserProfile{
			TelegramID:     update.TelegramID,
			JoinDate:       now,
			LastBonusReset: now,
		}
		m.profiles[update.TelegramID] = p
	}
	if update.DisplayName != "" {
		p.DisplayName = update.DisplayName
	}
	if update.FirstName != "" {
		p.FirstName = update.FirstName
	}
	if update.LastName != "" {
		p.LastName = update.LastName
	}
	p.LastPlayed = now
	p.UpdatedAt = now
	return p
}

func (m *MemoryStore) UpsertProfile(ctx context.Context, update common.ProfileUpdate, now time.Time) (*common.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *m.upsertLocked(update, now)
	return &copied, nil
}

func (m *MemoryStore) RecordScore(ctx context.Context, update common.ProfileUpdate, entry common.ScoreEntry) (*common.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, entry)
	p := m.upsertLocked(update, entry.CreatedAt)
	if entry.Score > p.BestScore {
		p.BestScore = entry.Score
	}
	p.GamesPlayed++

	copied := *p
	return &copied, nil
}

func (m *MemoryStore) SetReferralCode(ctx context.Context, telegramID int64, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[telegramID]
	if !ok {
		return "", ErrNotFound
	}
	if p.ReferralCode != "" {
		return p.ReferralCode, nil
	}
	if _, taken := m.codes[code]; taken {
		return "", ErrDuplicateCode
	}
	p.ReferralCode = code
	m.codes[code] = telegramID
	return code, nil
}

func (m *MemoryStore) AttributeReferral(ctx context.Context, a ReferralAttribution) (*common.ReferralCredit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newUser, ok := m.profiles[a.NewUserID]
	if !ok {
		return nil, ErrNotFound
	}
	if newUser.InvitedBy != 0 {
		return nil, ErrAlreadyInvited
	}
	referrer, ok := m.profiles[a.ReferrerID]
	if !ok {
		return nil, ErrNotFound
	}

	newUser.InvitedBy = a.ReferrerID
	newUser.UpdatedAt = a.Now

	credit := &common.ReferralCredit{ReferrerID: a.ReferrerID}
	if bonusWindowExpired(referrer.LastBonusReset, a.Now, a.Window) {
		referrer.ReferralBonus = 0
		referrer.LastBonusReset = a.Now
		credit.WindowReset = true
	}
	referrer.ReferralCount++
	referrer.ReferralBonus = addBonus(referrer.ReferralBonus, a.Reward)
	referrer.UpdatedAt = a.Now

	credit.ReferralCount = referrer.ReferralCount
	credit.ReferralBonus = referrer.ReferralBonus
	credit.LastBonusReset = referrer.LastBonusReset
	return credit, nil
}

func (m *MemoryStore) ResetBonuses(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected int64
	for _, p := range m.profiles {
		if p.ReferralBonus > 0 {
			p.ReferralBonus = 0
			p.LastBonusReset = now
			affected++
		}
	}
	return affected, nil
}

func (m *MemoryStore) TopByProfile(ctx context.Context, limit int) ([]common.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []common.LeaderboardEntry
	for _, p := range m.profiles {
		if p.GamesPlayed == 0 && p.ReferralBonus == 0 {
			continue
		}
		entries = append(entries, common.LeaderboardEntry{
			TelegramID:  p.TelegramID,
			DisplayName: p.DisplayName,
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			Score:       p.RankingScore(),
			BestScore:   p.BestScore,
			Bonus:       p.ReferralBonus,
			AchievedAt:  p.JoinDate,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.AchievedAt.Equal(b.AchievedAt) {
			return a.AchievedAt.Before(b.AchievedAt)
		}
		return a.TelegramID < b.TelegramID
	})
	return truncate(entries, limit), nil
}

func (m *MemoryStore) TopByLedger(ctx context.Context, limit int) ([]common.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Журнал упорядочен по поступлению, поэтому строгое сравнение оставляет
	// самую раннюю запись с лучшим результатом.
	best := make(map[int64]common.ScoreEntry)
	var order []int64
	for _, e := range m.entries {
		cur, ok := best[e.TelegramID]
		if !ok {
			order = append(order, e.TelegramID)
		}
		if !ok || e.Score > cur.Score {
			best[e.TelegramID] = e
		}
	}

	entries := make([]common.LeaderboardEntry, 0, len(order))
	for _, id := range order {
		e := best[id]
		row := common.LeaderboardEntry{
			TelegramID: id,
			Score:      e.Score,
			BestScore:  e.Score,
			AchievedAt: e.CreatedAt,
		}
		if p, ok := m.profiles[id]; ok {
			row.DisplayName = p.DisplayName
			row.FirstName = p.FirstName
			row.LastName = p.LastName
		}
		entries = append(entries, row)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].AchievedAt.Before(entries[j].AchievedAt)
	})
	return truncate(entries, limit), nil
}

func (m *MemoryStore) CountScores(ctx context.Context, telegramID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, e := range m.entries {
		if e.TelegramID == telegramID {
			n++
		}
	}
	return n, nil
}

func truncate(entries []common.LeaderboardEntry, limit int) []common.LeaderboardEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

package common

import "time"

// Верхние границы очков. Сумма MaxScore + MaxReferralBonus
// помещается в int64 и точно представима в float64.
const (
	MaxScore         int64 = 1_000_000_000_000
	MaxReferralBonus int64 = 1_000_000_000_000
)

// UserProfile представляет профиль игрока
type UserProfile struct {
	TelegramID     int64     `json:"userId"`
	DisplayName    string    `json:"displayName"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	JoinDate       time.Time `json:"joinDate"`
	ReferralCode   string    `json:"referralCode,omitempty"`
	InvitedBy      int64     `json:"invitedBy,omitempty"` // 0 - не приглашен
	ReferralCount  int64     `json:"referralCount"`
	ReferralBonus  int64     `json:"referralBonus"`
	LastBonusReset time.Time `json:"lastBonusReset"`
	BestScore      int64     `json:"bestScore"`
	GamesPlayed    int64     `json:"gamesPlayed"`
	LastPlayed     time.Time `json:"lastPlayed"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// RankingScore возвращает очки для таблицы лидеров в режиме профиля
func (p *UserProfile) RankingScore() int64 {
	return p.BestScore + p.ReferralBonus
}

// ProfileUpdate содержит отображаемые поля профиля (last-write-wins).
// Пустые строки не затирают сохраненные значения.
type ProfileUpdate struct {
	TelegramID  int64
	DisplayName string
	FirstName   string
	LastName    string
}

// ScoreEntry запись журнала очков
type ScoreEntry struct {
	ID         string    `json:"id"`
	TelegramID int64     `json:"userId"`
	Score      int64     `json:"score"`
	CreatedAt  time.Time `json:"timestamp"`
}

// LeaderboardEntry строка таблицы лидеров
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	TelegramID  int64     `json:"userId"`
	DisplayName string    `json:"displayName"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Score       int64     `json:"score"`
	BestScore   int64     `json:"bestScore"`
	Bonus       int64     `json:"referralBonus"`
	AchievedAt  time.Time `json:"-"` // порядок поступления для разрешения ничьих
}

// ReferralCredit результат начисления реферального бонуса пригласившему
type ReferralCredit struct {
	ReferrerID     int64     `json:"referrerId"`
	ReferralCount  int64     `json:"referralCount"`
	ReferralBonus  int64     `json:"referralBonus"`
	LastBonusReset time.Time `json:"lastBonusReset"`
	WindowReset    bool      `json:"windowReset"`
}

// UserStats статистика игрока для /api/user
type UserStats struct {
	Profile     *UserProfile `json:"profile"`
	BestScore   int64        `json:"bestScore"`
	GamesPlayed int64        `json:"gamesPlayed"`
}

// ReferralLinkInfo информация о реферальной ссылке
type ReferralLinkInfo struct {
	ReferralCode  string `json:"referralCode"`
	ReferralLink  string `json:"referralLink"`
	UserID        int64  `json:"userId"`
	ReferralCount int64  `json:"referralCount"`
	ReferralBonus int64  `json:"referralBonus"`
}

// Notifier отправляет сообщение в чат без ожидания результата
type Notifier interface {
	Dispatch(chatID int64, text string)
}

// NoopNotifier ничего не отправляет (уведомления отключены)
type NoopNotifier struct{}

func (NoopNotifier) Dispatch(chatID int64, text string) {}

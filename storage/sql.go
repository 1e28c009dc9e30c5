package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"foxgem/common"
)

// sqlTimeLayout фиксированной ширины, чтобы строки в SQLite сравнивались как время
const sqlTimeLayout = "2006-01-02T15:04:05.000000Z"

// dialect различия между PostgreSQL и SQLite
type dialect struct {
	name            string
	schema          []string
	greatest        string // функция максимума двух значений
	least           string // функция минимума двух значений
	numberedParams  bool   // $N -> ?N
	textTimestamps  bool   // время передается строкой sqlTimeLayout
	isUniqueViolate func(err error) bool
}

// SQLStore реализация Store поверх database/sql
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	log     func(format string, args ...interface{})
}

const profileColumns = `telegram_id, display_name, first_name, last_name, join_date,
	referral_code, invited_by, referral_count, referral_bonus, last_bonus_reset,
	best_score, games_played, last_played, updated_at`

var dollarParam = regexp.MustCompile(`\$(\d+)`)

func newSQLStore(db *sql.DB, d dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: d,
		log:     common.Component("STORAGE_" + d.name).Debugf,
	}
}

// q приводит плейсхолдеры к синтаксису драйвера
func (s *SQLStore) q(query string) string {
	if s.dialect.numberedParams {
		return dollarParam.ReplaceAllString(query, "?$1")
	}
	return query
}

// ts приводит время к виду, в котором оно хранится
func (s *SQLStore) ts(t time.Time) interface{} {
	t = t.UTC().Truncate(time.Microsecond)
	if s.dialect.textTimestamps {
		return t.Format(sqlTimeLayout)
	}
	return t
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate создает таблицы и индексы, если их нет
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ошибка миграции схемы (%s): %w", s.dialect.name, err)
		}
	}
	s.log("схема базы данных актуальна")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*common.UserProfile, error) {
	var p common.UserProfile
	var referralCode sql.NullString
	var invitedBy sql.NullInt64
	var joinDate, lastBonusReset, lastPlayed, updatedAt dbTime

	err := row.Scan(
		&p.TelegramID, &p.DisplayName, &p.FirstName, &p.LastName, &joinDate,
		&referralCode, &invitedBy, &p.ReferralCount, &p.ReferralBonus, &lastBonusReset,
		&p.BestScore, &p.GamesPlayed, &lastPlayed, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Обработка NULL значений
	if referralCode.Valid {
		p.ReferralCode = referralCode.String
	}
	if invitedBy.Valid {
		p.InvitedBy = invitedBy.Int64
	}
	p.JoinDate = joinDate.Time
	p.LastBonusReset = lastBonusReset.Time
	p.LastPlayed = lastPlayed.Time
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}

func (s *SQLStore) GetProfile(ctx context.Context, telegramID int64) (*common.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM users WHERE telegram_id = $1`

	p, err := scanProfile(s.db.QueryRowContext(ctx, s.q(query), telegramID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователя %d: %w", telegramID, err)
	}
	return p, nil
}

func (s *SQLStore) GetProfileByReferralCode(ctx context.Context, code string) (*common.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM users WHERE referral_code = $1`

	p, err := scanProfile(s.db.QueryRowContext(ctx, s.q(query), code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска пользователя по коду %s: %w", code, err)
	}
	return p, nil
}

// upsertQuery создает пользователя или обновляет отображаемые поля.
// join_date, referral_code и счетчики при обновлении не трогаются.
func (s *SQLStore) upsertQuery(withScore bool) string {
	bestScore := `users.best_score`
	gamesPlayed := `users.games_played`
	if withScore {
		bestScore = fmt.Sprintf(`%s(users.best_score, EXCLUDED.best_score)`, s.dialect.greatest)
		gamesPlayed = `users.games_played + 1`
	}

	return s.q(`
		INSERT INTO users (telegram_id, display_name, first_name, last_name, join_date,
		                   last_bonus_reset, last_played, updated_at, best_score, games_played)
		VALUES ($1, $2, $3, $4, $5, $5, $5, $5, $6, $7)
		ON CONFLICT (telegram_id) DO UPDATE SET
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE users.display_name END,
			first_name = CASE WHEN EXCLUDED.first_name <> '' THEN EXCLUDED.first_name ELSE users.first_name END,
			last_name = CASE WHEN EXCLUDED.last_name <> '' THEN EXCLUDED.last_name ELSE users.last_name END,
			best_score = ` + bestScore + `,
			games_played = ` + gamesPlayed + `,
			last_played = EXCLUDED.last_played,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + profileColumns)
}

func (s *SQLStore) UpsertProfile(ctx context.Context, update common.ProfileUpdate, now time.Time) (*common.UserProfile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, s.upsertQuery(false),
		update.TelegramID, update.DisplayName, update.FirstName, update.LastName, s.ts(now), 0, 0))
	if err != nil {
		return nil, fmt.Errorf("ошибка UPSERT пользователя %d: %w", update.TelegramID, err)
	}
	return p, nil
}

// RecordScore добавляет запись журнала и обновляет профиль в одной транзакции
func (s *SQLStore) RecordScore(ctx context.Context, update common.ProfileUpdate, entry common.ScoreEntry) (*common.UserProfile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	p, err := scanProfile(tx.QueryRowContext(ctx, s.upsertQuery(true),
		update.TelegramID, update.DisplayName, update.FirstName, update.LastName,
		s.ts(entry.CreatedAt), entry.Score, 1))
	if err != nil {
		return nil, fmt.Errorf("ошибка UPSERT пользователя %d: %w", update.TelegramID, err)
	}

	insert := `INSERT INTO score_entries (id, telegram_id, score, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, s.q(insert), entry.ID, entry.TelegramID, entry.Score, s.ts(entry.CreatedAt)); err != nil {
		return nil, fmt.Errorf("ошибка записи результата: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return p, nil
}

func (s *SQLStore) SetReferralCode(ctx context.Context, telegramID int64, code string) (string, error) {
	update := `UPDATE users SET referral_code = $2, updated_at = $3 WHERE telegram_id = $1 AND referral_code IS NULL`
	res, err := s.db.ExecContext(ctx, s.q(update), telegramID, code, s.ts(time.Now()))
	if err != nil {
		if s.dialect.isUniqueViolate(err) {
			return "", ErrDuplicateCode
		}
		return "", fmt.Errorf("ошибка сохранения реферального кода: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("ошибка получения числа обновленных строк: %w", err)
	}
	if affected == 1 {
		return code, nil
	}

	// Код уже был задан (в том числе параллельным запросом) или профиля нет
	var existing sql.NullString
	err = s.db.QueryRowContext(ctx, s.q(`SELECT referral_code FROM users WHERE telegram_id = $1`), telegramID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("ошибка проверки существующего кода: %w", err)
	}
	if !existing.Valid || existing.String == "" {
		return "", fmt.Errorf("реферальный код пользователя %d не сохранен", telegramID)
	}
	return existing.String, nil
}

// AttributeReferral указывает пригласившего и начисляет бонус в одной транзакции
func (s *SQLStore) AttributeReferral(ctx context.Context, a ReferralAttribution) (*common.ReferralCredit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	now := a.Now.UTC().Truncate(time.Microsecond)

	invite := `UPDATE users SET invited_by = $2, updated_at = $3 WHERE telegram_id = $1 AND invited_by IS NULL`
	res, err := tx.ExecContext(ctx, s.q(invite), a.NewUserID, a.ReferrerID, s.ts(now))
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения пригласившего: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения числа обновленных строк: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := tx.QueryRowContext(ctx, s.q(`SELECT EXISTS(SELECT 1 FROM users WHERE telegram_id = $1)`), a.NewUserID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("ошибка проверки пользователя %d: %w", a.NewUserID, err)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadyInvited
	}

	// Сброс истекшего окна; затронутая строка - признак сброса
	reset := `
		UPDATE users SET referral_bonus = 0, last_bonus_reset = $3, updated_at = $3
		WHERE telegram_id = $1 AND last_bonus_reset <= $2`
	res, err = tx.ExecContext(ctx, s.q(reset), a.ReferrerID, s.ts(now.Add(-a.Window)), s.ts(now))
	if err != nil {
		return nil, fmt.Errorf("ошибка сброса окна бонуса: %w", err)
	}
	resetRows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения числа обновленных строк: %w", err)
	}

	credit := fmt.Sprintf(`
		UPDATE users SET
			referral_bonus = %s(referral_bonus + $2, $3),
			referral_count = referral_count + 1,
			updated_at = $4
		WHERE telegram_id = $1
		RETURNING referral_count, referral_bonus, last_bonus_reset`, s.dialect.least)

	var result common.ReferralCredit
	var lastReset dbTime
	err = tx.QueryRowContext(ctx, s.q(credit), a.ReferrerID, a.Reward, common.MaxReferralBonus, s.ts(now)).
		Scan(&result.ReferralCount, &result.ReferralBonus, &lastReset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка начисления реферального бонуса: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	result.ReferrerID = a.ReferrerID
	result.LastBonusReset = lastReset.Time
	result.WindowReset = resetRows == 1
	return &result, nil
}

func (s *SQLStore) ResetBonuses(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE users SET referral_bonus = 0, last_bonus_reset = $1, updated_at = $1 WHERE referral_bonus > 0`
	res, err := s.db.ExecContext(ctx, s.q(query), s.ts(now))
	if err != nil {
		return 0, fmt.Errorf("ошибка обнуления реферальных бонусов: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ошибка получения числа обновленных строк: %w", err)
	}
	return affected, nil
}

func (s *SQLStore) TopByProfile(ctx context.Context, limit int) ([]common.LeaderboardEntry, error) {
	query := `
		SELECT telegram_id, display_name, first_name, last_name,
		       best_score + referral_bonus, best_score, referral_bonus, join_date
		FROM users
		WHERE games_played > 0 OR referral_bonus > 0
		ORDER BY best_score + referral_bonus DESC, join_date ASC, telegram_id ASC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, s.q(query), limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения таблицы лидеров: %w", err)
	}
	defer rows.Close()

	entries := []common.LeaderboardEntry{}
	for rows.Next() {
		var e common.LeaderboardEntry
		var achieved dbTime
		if err := rows.Scan(&e.TelegramID, &e.DisplayName, &e.FirstName, &e.LastName,
			&e.Score, &e.BestScore, &e.Bonus, &achieved); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки таблицы лидеров: %w", err)
		}
		e.AchievedAt = achieved.Time
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения таблицы лидеров: %w", err)
	}
	return entries, nil
}

func (s *SQLStore) TopByLedger(ctx context.Context, limit int) ([]common.LeaderboardEntry, error) {
	// Одна строка на игрока: его лучший результат, при равенстве - самый ранний
	query := `
		SELECT s.telegram_id, u.display_name, u.first_name, u.last_name, s.score, s.created_at
		FROM (
			SELECT telegram_id, score, created_at, id,
			       ROW_NUMBER() OVER (PARTITION BY telegram_id ORDER BY score DESC, created_at ASC, id ASC) AS rn
			FROM score_entries
		) s
		JOIN users u ON u.telegram_id = s.telegram_id
		WHERE s.rn = 1
		ORDER BY s.score DESC, s.created_at ASC, s.id ASC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, s.q(query), limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения таблицы лидеров по журналу: %w", err)
	}
	defer rows.Close()

	entries := []common.LeaderboardEntry{}
	for rows.Next() {
		var e common.LeaderboardEntry
		var achieved dbTime
		if err := rows.Scan(&e.TelegramID, &e.DisplayName, &e.FirstName, &e.LastName, &e.Score, &achieved); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки таблицы лидеров: %w", err)
		}
		e.BestScore = e.Score
		e.AchievedAt = achieved.Time
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения таблицы лидеров: %w", err)
	}
	return entries, nil
}

func (s *SQLStore) CountScores(ctx context.Context, telegramID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM score_entries WHERE telegram_id = $1`), telegramID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета игр пользователя %d: %w", telegramID, err)
	}
	return n, nil
}

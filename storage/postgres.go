package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		telegram_id      BIGINT PRIMARY KEY,
		display_name     TEXT NOT NULL DEFAULT '',
		first_name       TEXT NOT NULL DEFAULT '',
		last_name        TEXT NOT NULL DEFAULT '',
		join_date        TIMESTAMPTZ NOT NULL,
		referral_code    VARCHAR(16) UNIQUE,
		invited_by       BIGINT,
		referral_count   BIGINT NOT NULL DEFAULT 0 CHECK (referral_count >= 0),
		referral_bonus   BIGINT NOT NULL DEFAULT 0 CHECK (referral_bonus >= 0),
		last_bonus_reset TIMESTAMPTZ NOT NULL,
		best_score       BIGINT NOT NULL DEFAULT 0 CHECK (best_score >= 0),
		games_played     BIGINT NOT NULL DEFAULT 0,
		last_played      TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS score_entries (
		id          TEXT PRIMARY KEY,
		telegram_id BIGINT NOT NULL,
		score       BIGINT NOT NULL CHECK (score >= 0),
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_score_entries_telegram_id ON score_entries(telegram_id)`,
	`CREATE INDEX IF NOT EXISTS idx_users_ranking ON users((best_score + referral_bonus) DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_users_referral_bonus ON users(referral_bonus) WHERE referral_bonus > 0`,
}

var postgresDialect = dialect{
	name:     "POSTGRES",
	schema:   postgresSchema,
	greatest: "GREATEST",
	least:    "LEAST",
	isUniqueViolate: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

// OpenPostgres подключается к PostgreSQL и настраивает пул соединений
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	// Проверяем соединение
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка проверки соединения с PostgreSQL: %w", err)
	}

	// Настройки пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, postgresDialect), nil
}

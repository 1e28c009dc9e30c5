package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		telegram_id      INTEGER PRIMARY KEY,
		display_name     TEXT NOT NULL DEFAULT '',
		first_name       TEXT NOT NULL DEFAULT '',
		last_name        TEXT NOT NULL DEFAULT '',
		join_date        TEXT NOT NULL,
		referral_code    TEXT UNIQUE,
		invited_by       INTEGER,
		referral_count   INTEGER NOT NULL DEFAULT 0 CHECK (referral_count >= 0),
		referral_bonus   INTEGER NOT NULL DEFAULT 0 CHECK (referral_bonus >= 0),
		last_bonus_reset TEXT NOT NULL,
		best_score       INTEGER NOT NULL DEFAULT 0 CHECK (best_score >= 0),
		games_played     INTEGER NOT NULL DEFAULT 0,
		last_played      TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS score_entries (
		id          TEXT PRIMARY KEY,
		telegram_id INTEGER NOT NULL,
		score       INTEGER NOT NULL CHECK (score >= 0),
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_score_entries_telegram_id ON score_entries(telegram_id)`,
	`CREATE INDEX IF NOT EXISTS idx_users_best_score ON users(best_score)`,
}

var sqliteDialect = dialect{
	name:           "SQLITE",
	schema:         sqliteSchema,
	greatest:       "MAX",
	least:          "MIN",
	numberedParams: true,
	textTimestamps: true,
	isUniqueViolate: func(err error) bool {
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

// OpenSQLite открывает файл базы SQLite (локальный запуск и тесты)
func OpenSQLite(path string) (*SQLStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия SQLite %s: %w", path, err)
	}

	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка проверки соединения с SQLite: %w", err)
	}

	return newSQLStore(db, sqliteDialect), nil
}

package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const (
	TableNotes      = "notes"
	TableCards      = "cards"
	TableReviewLogs = "review_logs"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS notes (
		id BIGINT PRIMARY KEY,
		last_modified BIGINT NOT NULL DEFAULT 0,
		fields TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS cards (
		id BIGINT PRIMARY KEY,
		note_id BIGINT NOT NULL,
		due BIGINT NOT NULL DEFAULT 0,
		practice_state INTEGER NOT NULL DEFAULT 1,
		misc_state INTEGER NOT NULL DEFAULT 0,
		e_factor DOUBLE NOT NULL DEFAULT 2.5,
		interval_days INTEGER NOT NULL DEFAULT 1,
		reviews INTEGER NOT NULL DEFAULT 0,
		lapses INTEGER NOT NULL DEFAULT 0,
		last_modified BIGINT NOT NULL DEFAULT 0,
		data BLOB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_state_due ON cards (practice_state, due)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_note ON cards (note_id)`,
	`CREATE TABLE IF NOT EXISTS review_logs (
		id BIGINT PRIMARY KEY,
		card_id BIGINT NOT NULL,
		grade INTEGER NOT NULL,
		prev_due BIGINT NOT NULL,
		prev_state INTEGER NOT NULL,
		prev_interval INTEGER NOT NULL,
		prev_e_factor DOUBLE NOT NULL,
		new_due BIGINT NOT NULL,
		new_state INTEGER NOT NULL,
		new_interval INTEGER NOT NULL,
		new_e_factor DOUBLE NOT NULL,
		eval_seconds DOUBLE NOT NULL
	)`,
}

var mysqlSchema = []string{
	"CREATE TABLE IF NOT EXISTS notes (" +
		"id BIGINT PRIMARY KEY, " +
		"last_modified BIGINT NOT NULL DEFAULT 0, " +
		"fields TEXT NOT NULL" +
		")",
	"CREATE TABLE IF NOT EXISTS cards (" +
		"id BIGINT PRIMARY KEY, " +
		"note_id BIGINT NOT NULL, " +
		"due BIGINT NOT NULL DEFAULT 0, " +
		"practice_state INT NOT NULL DEFAULT 1, " +
		"misc_state INT NOT NULL DEFAULT 0, " +
		"e_factor DOUBLE NOT NULL DEFAULT 2.5, " +
		"interval_days INT NOT NULL DEFAULT 1, " +
		"reviews INT NOT NULL DEFAULT 0, " +
		"lapses INT NOT NULL DEFAULT 0, " +
		"last_modified BIGINT NOT NULL DEFAULT 0, " +
		"data LONGBLOB, " +
		"INDEX idx_cards_state_due (practice_state, due), " +
		"INDEX idx_cards_note (note_id)" +
		")",
	"CREATE TABLE IF NOT EXISTS review_logs (" +
		"id BIGINT PRIMARY KEY, " +
		"card_id BIGINT NOT NULL, " +
		"grade INT NOT NULL, " +
		"prev_due BIGINT NOT NULL, " +
		"prev_state INT NOT NULL, " +
		"prev_interval INT NOT NULL, " +
		"prev_e_factor DOUBLE NOT NULL, " +
		"new_due BIGINT NOT NULL, " +
		"new_state INT NOT NULL, " +
		"new_interval INT NOT NULL, " +
		"new_e_factor DOUBLE NOT NULL, " +
		"eval_seconds DOUBLE NOT NULL" +
		")",
}

// Migrate creates the tables used by the review engine.
// It is idempotent and can be run multiple times safely.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	var schema []string
	switch db.DriverName() {
	case DriverMySQL:
		schema = mysqlSchema
	case DriverSQLite:
		schema = sqliteSchema
	default:
		return fmt.Errorf("no schema for driver %q", db.DriverName())
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

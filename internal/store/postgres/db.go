package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the chat schema on PostgreSQL.
// users, doctors and patients are owned by the profile module; they are
// created here only so that a fresh database can serve the chat core.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id          TEXT         PRIMARY KEY,
			first_name  VARCHAR(100) NOT NULL,
			last_name   VARCHAR(100) NOT NULL,
			role        VARCHAR(20)  NOT NULL,
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS doctors (
			id       TEXT PRIMARY KEY,
			user_id  TEXT NOT NULL UNIQUE REFERENCES users(id)
		)`,

		`CREATE TABLE IF NOT EXISTS patients (
			id       TEXT PRIMARY KEY,
			user_id  TEXT NOT NULL UNIQUE REFERENCES users(id)
		)`,

		`CREATE TABLE IF NOT EXISTS doctor_patient_connections (
			id                    TEXT         PRIMARY KEY,
			doctor_id             TEXT         NOT NULL REFERENCES doctors(id),
			patient_id            TEXT         NOT NULL REFERENCES patients(id),
			status                VARCHAR(20)  NOT NULL DEFAULT 'ACTIVE',
			unread_count          INTEGER      NOT NULL DEFAULT 0,
			last_message_at       TIMESTAMPTZ,
			last_message_preview  VARCHAR(200),
			last_activity_at      TIMESTAMPTZ,
			created_at            TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS chats (
			id                    TEXT         PRIMARY KEY,
			connection_id         TEXT         NOT NULL UNIQUE REFERENCES doctor_patient_connections(id),
			last_message_at       TIMESTAMPTZ,
			last_message_preview  VARCHAR(200),
			created_at            TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id            TEXT         PRIMARY KEY,
			chat_id       TEXT         NOT NULL REFERENCES chats(id),
			sender_id     TEXT         NOT NULL,
			sender_name   VARCHAR(201) NOT NULL DEFAULT '',
			sender_role   VARCHAR(20)  NOT NULL DEFAULT '',
			content       TEXT         NOT NULL,
			message_type  VARCHAR(20)  NOT NULL DEFAULT 'TEXT',
			is_read       BOOLEAN      NOT NULL DEFAULT FALSE,
			read_at       TIMESTAMPTZ,
			is_deleted    BOOLEAN      NOT NULL DEFAULT FALSE,
			deleted_at    TIMESTAMPTZ,
			created_at    TIMESTAMPTZ  NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id          TEXT         PRIMARY KEY,
			user_id     TEXT         NOT NULL,
			kind        VARCHAR(50)  NOT NULL,
			title       VARCHAR(255) NOT NULL,
			body        TEXT         NOT NULL,
			metadata    JSONB        NOT NULL DEFAULT '{}'::jsonb,
			is_read     BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_connections_doctor ON doctor_patient_connections(doctor_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_connections_patient ON doctor_patient_connections(patient_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_unread ON messages(chat_id, is_read) WHERE is_deleted = FALSE`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

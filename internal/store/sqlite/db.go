package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN. The pool is pinned to a
// single connection so that ":memory:" databases and PRAGMAs are shared.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate creates the chat schema. Timestamps are stored as INTEGER unix
// microseconds so that keyset comparisons order exactly.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			first_name VARCHAR(100) NOT NULL,
			last_name VARCHAR(100) NOT NULL,
			role VARCHAR(20) NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS doctors (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS patients (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS doctor_patient_connections (
			id TEXT PRIMARY KEY,
			doctor_id TEXT NOT NULL,
			patient_id TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
			unread_count INTEGER NOT NULL DEFAULT 0,
			last_message_at INTEGER DEFAULT NULL,
			last_message_preview VARCHAR(200) DEFAULT NULL,
			last_activity_at INTEGER DEFAULT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (doctor_id) REFERENCES doctors(id),
			FOREIGN KEY (patient_id) REFERENCES patients(id)
		);`,
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			connection_id TEXT NOT NULL UNIQUE,
			last_message_at INTEGER DEFAULT NULL,
			last_message_preview VARCHAR(200) DEFAULT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (connection_id) REFERENCES doctor_patient_connections(id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_name VARCHAR(201) NOT NULL DEFAULT '',
			sender_role VARCHAR(20) NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			message_type VARCHAR(20) NOT NULL DEFAULT 'TEXT',
			is_read BOOLEAN NOT NULL DEFAULT 0,
			read_at INTEGER DEFAULT NULL,
			is_deleted BOOLEAN NOT NULL DEFAULT 0,
			deleted_at INTEGER DEFAULT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (chat_id) REFERENCES chats(id)
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			kind VARCHAR(50) NOT NULL,
			title VARCHAR(255) NOT NULL,
			body TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			is_read BOOLEAN NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_connections_doctor ON doctor_patient_connections(doctor_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_connections_patient ON doctor_patient_connections(patient_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func toMicrosPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMicro()
	return &v
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func fromMicrosPtr(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := fromMicros(*v)
	return &t
}

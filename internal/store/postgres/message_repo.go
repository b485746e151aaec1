package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"medchat/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `
	id, chat_id, sender_id, sender_name, sender_role, content, message_type,
	is_read, read_at, is_deleted, deleted_at, created_at
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, m *domain.Message) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, m.ID, m.ChatID, m.SenderID, m.SenderName, m.SenderRole, m.Content, m.MessageType,
		m.IsRead, m.ReadAt, m.IsDeleted, m.DeletedAt, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	return insertMessage(ctx, r.db, m)
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) ListBefore(ctx context.Context, chatID string, before *domain.MessageCursor, limit int) ([]*domain.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if before == nil {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE chat_id = $1 AND is_deleted = FALSE
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, chatID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE chat_id = $1 AND is_deleted = FALSE
			  AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, chatID, before.CreatedAt, before.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return scanMessages(rows)
}

func (r *MessageRepo) CountBefore(ctx context.Context, chatID string, before domain.MessageCursor) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE chat_id = $1 AND is_deleted = FALSE
		  AND (created_at, id) < ($2, $3)
	`, chatID, before.CreatedAt, before.ID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages before: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) Latest(ctx context.Context, chatID string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE, read_at = $1
		WHERE id = $2 AND is_read = FALSE
	`, at, id)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *MessageRepo) MarkAllRead(ctx context.Context, chatID, readerID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE, read_at = $1
		WHERE chat_id = $2 AND sender_id <> $3 AND is_read = FALSE AND is_deleted = FALSE
	`, at, chatID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET is_deleted = TRUE, deleted_at = $1, content = $2, message_type = $3
		WHERE id = $4 AND is_deleted = FALSE
	`, at, domain.DeletedPlaceholder, domain.MessageDeleted, id)
	if err != nil {
		return false, fmt.Errorf("soft delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *MessageRepo) CountUnread(ctx context.Context, chatID, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE chat_id = $1 AND sender_id <> $2 AND is_read = FALSE AND is_deleted = FALSE
	`, chatID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) CountForChat(ctx context.Context, chatID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE chat_id = $1 AND is_deleted = FALSE
	`, chatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	if err := row.Scan(
		&m.ID, &m.ChatID, &m.SenderID, &m.SenderName, &m.SenderRole, &m.Content, &m.MessageType,
		&m.IsRead, &m.ReadAt, &m.IsDeleted, &m.DeletedAt, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()
	var res []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

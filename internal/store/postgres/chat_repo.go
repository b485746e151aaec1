package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"medchat/internal/domain"
)

type ChatRepo struct {
	db *sql.DB
}

func NewChatRepo(db *sql.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

var _ domain.ChatRepository = (*ChatRepo)(nil)

func (r *ChatRepo) GetByConnectionID(ctx context.Context, connectionID string) (*domain.Chat, error) {
	c := &domain.Chat{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, connection_id, last_message_at, last_message_preview, created_at
		FROM chats WHERE connection_id = $1
	`, connectionID).Scan(&c.ID, &c.ConnectionID, &c.LastMessageAt, &c.LastMessagePreview, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat by connection: %w", err)
	}
	return c, nil
}

// CreateWithSystemMessage returns domain.ErrConflict when the connection
// already has a chat, so a racing creator can re-read the winner.
func (r *ChatRepo) CreateWithSystemMessage(ctx context.Context, c *domain.Chat, first *domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, connection_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (connection_id) DO NOTHING
	`, c.ID, c.ConnectionID, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return domain.ErrConflict
	}

	if err := insertMessage(ctx, tx, first); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ChatRepo) GetDetails(ctx context.Context, chatID string) (*domain.ChatDetails, error) {
	d := &domain.ChatDetails{}
	var dFirst, dLast, pFirst, pLast string
	err := r.db.QueryRowContext(ctx, `
		SELECT ch.id, c.id, c.status,
		       d.id, du.id, du.first_name, du.last_name,
		       p.id, pu.id, pu.first_name, pu.last_name
		FROM chats ch
		JOIN doctor_patient_connections c ON c.id = ch.connection_id
		JOIN doctors d ON d.id = c.doctor_id
		JOIN users du ON du.id = d.user_id
		JOIN patients p ON p.id = c.patient_id
		JOIN users pu ON pu.id = p.user_id
		WHERE ch.id = $1
	`, chatID).Scan(
		&d.ChatID, &d.ConnectionID, &d.Status,
		&d.Doctor.ID, &d.Doctor.UserID, &dFirst, &dLast,
		&d.Patient.ID, &d.Patient.UserID, &pFirst, &pLast,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat details: %w", err)
	}
	d.Doctor.Name = (&domain.User{FirstName: dFirst, LastName: dLast}).FullName()
	d.Doctor.Role = domain.RoleDoctor
	d.Patient.Name = (&domain.User{FirstName: pFirst, LastName: pLast}).FullName()
	d.Patient.Role = domain.RolePatient
	return d, nil
}

func (r *ChatRepo) GetHeader(ctx context.Context, chatID string) (*domain.ChatHeader, error) {
	h := &domain.ChatHeader{}
	err := r.db.QueryRowContext(ctx, `
		SELECT ch.id, c.id, c.status, d.user_id, p.user_id
		FROM chats ch
		JOIN doctor_patient_connections c ON c.id = ch.connection_id
		JOIN doctors d ON d.id = c.doctor_id
		JOIN patients p ON p.id = c.patient_id
		WHERE ch.id = $1
	`, chatID).Scan(&h.ChatID, &h.ConnectionID, &h.Status, &h.DoctorUserID, &h.PatientUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat header: %w", err)
	}
	return h, nil
}

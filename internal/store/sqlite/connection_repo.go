package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"medchat/internal/domain"
)

type ConnectionRepo struct {
	db *sql.DB
}

func NewConnectionRepo(db *sql.DB) *ConnectionRepo {
	return &ConnectionRepo{db: db}
}

var _ domain.ConnectionRepository = (*ConnectionRepo)(nil)

const connectionSelect = `
	SELECT c.id, c.doctor_id, c.patient_id,
	       du.id, du.first_name, du.last_name,
	       pu.id, pu.first_name, pu.last_name,
	       c.status, c.unread_count, c.last_message_at, c.last_message_preview,
	       c.created_at, ch.id
	FROM doctor_patient_connections c
	JOIN doctors d ON d.id = c.doctor_id
	JOIN users du ON du.id = d.user_id
	JOIN patients p ON p.id = c.patient_id
	JOIN users pu ON pu.id = p.user_id
	LEFT JOIN chats ch ON ch.connection_id = c.id
`

func (r *ConnectionRepo) Create(ctx context.Context, c *domain.Connection) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO doctor_patient_connections (id, doctor_id, patient_id, status, unread_count, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, c.ID, c.DoctorID, c.PatientID, string(c.Status), toMicros(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

func (r *ConnectionRepo) SetStatus(ctx context.Context, id string, status domain.ConnectionStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE doctor_patient_connections SET status = ? WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("set connection status: %w", err)
	}
	return requireAffected(res)
}

func (r *ConnectionRepo) GetByID(ctx context.Context, id string) (*domain.Connection, error) {
	c, err := scanConnection(r.db.QueryRowContext(ctx, connectionSelect+` WHERE c.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return c, nil
}

func (r *ConnectionRepo) ListActiveByProfile(ctx context.Context, profileID string, role domain.Role) ([]*domain.Connection, error) {
	column, err := profileColumn(role)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, connectionSelect+`
		WHERE c.`+column+` = ? AND c.status = 'ACTIVE'
		ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var res []*domain.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *ConnectionRepo) UpdateLastMessage(ctx context.Context, connectionID string, at time.Time, preview string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE doctor_patient_connections
		SET last_message_at = ?, last_message_preview = ?, last_activity_at = ?
		WHERE id = ?
	`, toMicros(at), preview, toMicros(at), connectionID)
	if err != nil {
		return fmt.Errorf("update connection last message: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE chats SET last_message_at = ?, last_message_preview = ?
		WHERE connection_id = ?
	`, toMicros(at), preview, connectionID); err != nil {
		return fmt.Errorf("update chat last message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ConnectionRepo) IncrementUnread(ctx context.Context, connectionID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE doctor_patient_connections SET unread_count = unread_count + 1 WHERE id = ?
	`, connectionID)
	if err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	return requireAffected(res)
}

func (r *ConnectionRepo) ResetUnread(ctx context.Context, connectionID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE doctor_patient_connections SET unread_count = 0 WHERE id = ?
	`, connectionID)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return requireAffected(res)
}

func (r *ConnectionRepo) SumUnreadByProfile(ctx context.Context, profileID string, role domain.Role) (int, error) {
	column, err := profileColumn(role)
	if err != nil {
		return 0, err
	}
	var total int
	err = r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(unread_count), 0)
		FROM doctor_patient_connections
		WHERE `+column+` = ? AND status = 'ACTIVE'
	`, profileID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum unread: %w", err)
	}
	return total, nil
}

func profileColumn(role domain.Role) (string, error) {
	switch role {
	case domain.RoleDoctor:
		return "doctor_id", nil
	case domain.RolePatient:
		return "patient_id", nil
	}
	return "", domain.BadRequest("role has no connections: " + string(role))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*domain.Connection, error) {
	c := &domain.Connection{}
	var (
		dFirst, dLast, pFirst, pLast string
		lastAt                       *int64
		created                      int64
	)
	if err := row.Scan(
		&c.ID, &c.DoctorID, &c.PatientID,
		&c.DoctorUserID, &dFirst, &dLast,
		&c.PatientUserID, &pFirst, &pLast,
		&c.Status, &c.UnreadCount, &lastAt, &c.LastMessagePreview,
		&created, &c.ChatID,
	); err != nil {
		return nil, err
	}
	c.LastMessageAt = fromMicrosPtr(lastAt)
	c.CreatedAt = fromMicros(created)
	c.DoctorName = (&domain.User{FirstName: dFirst, LastName: dLast}).FullName()
	c.PatientName = (&domain.User{FirstName: pFirst, LastName: pLast}).FullName()
	return c, nil
}

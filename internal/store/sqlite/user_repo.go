package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"medchat/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.FirstName, u.LastName, string(u.Role), toMicros(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepo) CreateDoctor(ctx context.Context, id, userID string) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO doctors (id, user_id) VALUES (?, ?)`, id, userID); err != nil {
		return fmt.Errorf("create doctor: %w", err)
	}
	return nil
}

func (r *UserRepo) CreatePatient(ctx context.Context, id, userID string) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO patients (id, user_id) VALUES (?, ?)`, id, userID); err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	var created int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, role, created_at
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromMicros(created)
	return u, nil
}

func (r *UserRepo) GetProfileID(ctx context.Context, userID string, role domain.Role) (string, error) {
	var query string
	switch role {
	case domain.RoleDoctor:
		query = `SELECT id FROM doctors WHERE user_id = ?`
	case domain.RolePatient:
		query = `SELECT id FROM patients WHERE user_id = ?`
	default:
		return "", domain.NotFound("no profile for role " + string(role))
	}

	var id string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get profile id: %w", err)
	}
	return id, nil
}

// UpdateName renames a user. Message snapshots keep the old name.
func (r *UserRepo) UpdateName(ctx context.Context, id, firstName, lastName string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET first_name = ?, last_name = ? WHERE id = ?
	`, firstName, lastName, id)
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

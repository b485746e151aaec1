// Package store selects the SQL backend and bundles its repositories.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"medchat/internal/domain"
	"medchat/internal/store/postgres"
	"medchat/internal/store/sqlite"
)

// Provisioner covers the writes owned by the profile module. The chat core
// never calls them; seeding and tests do.
type Provisioner interface {
	CreateUser(ctx context.Context, u *domain.User) error
	CreateDoctor(ctx context.Context, id, userID string) error
	CreatePatient(ctx context.Context, id, userID string) error
	CreateConnection(ctx context.Context, c *domain.Connection) error
	SetConnectionStatus(ctx context.Context, id string, status domain.ConnectionStatus) error
	RenameUser(ctx context.Context, id, firstName, lastName string) error
}

// Repositories is the set of repositories backed by a single database.
type Repositories struct {
	DB            *sql.DB
	Users         domain.UserRepository
	Connections   domain.ConnectionRepository
	Chats         domain.ChatRepository
	Messages      domain.MessageRepository
	Notifications domain.NotificationRepository
	Provisioner   Provisioner

	migrate func(ctx context.Context, db *sql.DB) error
}

// Open connects to the configured backend. driver is "postgres" or "sqlite".
func Open(driver, dsn string) (*Repositories, error) {
	switch driver {
	case "postgres":
		db, err := postgres.Open(dsn)
		if err != nil {
			return nil, err
		}
		users := postgres.NewUserRepo(db)
		conns := postgres.NewConnectionRepo(db)
		return &Repositories{
			DB:            db,
			Users:         users,
			Connections:   conns,
			Chats:         postgres.NewChatRepo(db),
			Messages:      postgres.NewMessageRepo(db),
			Notifications: postgres.NewNotificationRepo(db),
			Provisioner:   provisioner{users: users, conns: conns},
			migrate:       postgres.Migrate,
		}, nil
	case "sqlite":
		db, err := sqlite.Open(dsn)
		if err != nil {
			return nil, err
		}
		users := sqlite.NewUserRepo(db)
		conns := sqlite.NewConnectionRepo(db)
		return &Repositories{
			DB:            db,
			Users:         users,
			Connections:   conns,
			Chats:         sqlite.NewChatRepo(db),
			Messages:      sqlite.NewMessageRepo(db),
			Notifications: sqlite.NewNotificationRepo(db),
			Provisioner:   provisioner{users: users, conns: conns},
			migrate:       sqlite.Migrate,
		}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

func (r *Repositories) Migrate(ctx context.Context) error {
	return r.migrate(ctx, r.DB)
}

func (r *Repositories) Close() error {
	return r.DB.Close()
}

type userWriter interface {
	Create(ctx context.Context, u *domain.User) error
	CreateDoctor(ctx context.Context, id, userID string) error
	CreatePatient(ctx context.Context, id, userID string) error
	UpdateName(ctx context.Context, id, firstName, lastName string) error
}

type connectionWriter interface {
	Create(ctx context.Context, c *domain.Connection) error
	SetStatus(ctx context.Context, id string, status domain.ConnectionStatus) error
}

type provisioner struct {
	users userWriter
	conns connectionWriter
}

func (p provisioner) CreateUser(ctx context.Context, u *domain.User) error {
	return p.users.Create(ctx, u)
}

func (p provisioner) CreateDoctor(ctx context.Context, id, userID string) error {
	return p.users.CreateDoctor(ctx, id, userID)
}

func (p provisioner) CreatePatient(ctx context.Context, id, userID string) error {
	return p.users.CreatePatient(ctx, id, userID)
}

func (p provisioner) CreateConnection(ctx context.Context, c *domain.Connection) error {
	return p.conns.Create(ctx, c)
}

func (p provisioner) SetConnectionStatus(ctx context.Context, id string, status domain.ConnectionStatus) error {
	return p.conns.SetStatus(ctx, id, status)
}

func (p provisioner) RenameUser(ctx context.Context, id, firstName, lastName string) error {
	return p.users.UpdateName(ctx, id, firstName, lastName)
}

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medchat/internal/domain"
	"medchat/internal/store"
)

func TestOpenSQLiteAndSeed(t *testing.T) {
	ctx := context.Background()
	repos, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	require.NoError(t, repos.Migrate(ctx))

	now := time.Now().UTC().Truncate(time.Microsecond)
	pair, err := store.SeedPair(ctx, repos.Provisioner,
		store.Person{FirstName: "Lisa", LastName: "Cuddy"},
		store.Person{FirstName: "John", LastName: "Smith"}, now)
	require.NoError(t, err)

	conn, err := repos.Connections.GetByID(ctx, pair.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionActive, conn.Status)
	assert.Equal(t, "Lisa Cuddy", conn.DoctorName)
	assert.Equal(t, "John Smith", conn.PatientName)
	assert.Nil(t, conn.ChatID)

	require.NoError(t, repos.Provisioner.RenameUser(ctx, pair.PatientUserID, "Johnny", "Smith"))
	u, err := repos.Users.GetByID(ctx, pair.PatientUserID)
	require.NoError(t, err)
	assert.Equal(t, "Johnny Smith", u.FullName())
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := store.Open("mysql", "whatever")
	assert.Error(t, err)
}

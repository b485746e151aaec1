package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medchat/internal/cache"
	"medchat/internal/domain"
	"medchat/internal/service"
	"medchat/internal/store"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(userID string, kind domain.NotificationKind, title, body string, metadata map[string]string) bool {
	args := m.Called(userID, kind, title, body, metadata)
	return args.Bool(0)
}

type MockPresence struct {
	mock.Mock
}

func (m *MockPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// failingCounters rejects counter and preview writes.
type failingCounters struct {
	domain.ConnectionRepository
}

func (failingCounters) IncrementUnread(context.Context, string) error {
	return errors.New("counter store unavailable")
}

func (failingCounters) UpdateLastMessage(context.Context, string, time.Time, string) error {
	return errors.New("counter store unavailable")
}

type env struct {
	repos     *store.Repositories
	pair      *store.Pair
	mr        *miniredis.Miniredis
	snapshots *service.UserSnapshots
	chats     *service.ChatService
	messages  *service.MessageService
	events    *service.ChatEvents
	presence  *MockPresence
	notifier  *MockNotifier
}

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(step)
		return cur
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, nil)
}

// newEnvWith lets a test wrap the connection repository the services use.
func newEnvWith(t *testing.T, wrap func(domain.ConnectionRepository) domain.ConnectionRepository) *env {
	t.Helper()
	ctx := context.Background()

	repos, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	require.NoError(t, repos.Migrate(ctx))

	pair, err := store.SeedPair(ctx, repos.Provisioner,
		store.Person{FirstName: "Gregory", LastName: "House"},
		store.Person{FirstName: "Jane", LastName: "Doe"}, t0)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	c := cache.New(rdb)

	log := zerolog.Nop()
	snapshots := service.NewUserSnapshots(repos.Users, c, 24*time.Hour, log)
	var connections domain.ConnectionRepository = repos.Connections
	if wrap != nil {
		connections = wrap(connections)
	}
	chats := service.NewChatService(repos.Users, connections, repos.Chats, repos.Messages,
		snapshots, c, service.ChatTTLs{Chat: 5 * time.Minute, UserChats: 30 * time.Second}, log)
	messages := service.NewMessageService(chats, repos.Messages, snapshots)
	clock := steppingClock(t0, time.Millisecond)
	chats.Clock = clock
	messages.Clock = clock

	presence := &MockPresence{}
	notifier := &MockNotifier{}

	return &env{
		repos:     repos,
		pair:      pair,
		mr:        mr,
		snapshots: snapshots,
		chats:     chats,
		messages:  messages,
		events:    service.NewChatEvents(chats, messages, presence, notifier, log),
		presence:  presence,
		notifier:  notifier,
	}
}

// chat creates the pair's chat and returns its id.
func (e *env) chat(t *testing.T) string {
	t.Helper()
	d, err := e.chats.GetOrCreateChat(context.Background(), e.pair.ConnectionID)
	require.NoError(t, err)
	return d.ChatID
}

// quietNotifications accepts any presence lookup (offline) and notification.
func (e *env) quietNotifications() {
	e.presence.On("IsOnline", mock.Anything, mock.Anything).Return(false, nil).Maybe()
	e.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true).Maybe()
}

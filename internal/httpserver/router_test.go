package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medchat/internal/cache"
	"medchat/internal/domain"
	"medchat/internal/httpserver"
	"medchat/internal/notification"
	"medchat/internal/presence"
	"medchat/internal/security"
	"medchat/internal/service"
	"medchat/internal/store"
	"medchat/internal/ws"
)

type apiEnv struct {
	handler http.Handler
	repos   *store.Repositories
	pair    *store.Pair
	tokens  *security.TokenService
	mr      *miniredis.Miniredis
}

func newAPIEnv(t *testing.T, ready func(context.Context) error) *apiEnv {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	repos, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	require.NoError(t, repos.Migrate(ctx))

	pair, err := store.SeedPair(ctx, repos.Provisioner,
		store.Person{FirstName: "Gregory", LastName: "House"},
		store.Person{FirstName: "Jane", LastName: "Doe"},
		time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	c := cache.New(rdb)

	snapshots := service.NewUserSnapshots(repos.Users, c, time.Hour, log)
	chats := service.NewChatService(repos.Users, repos.Connections, repos.Chats, repos.Messages,
		snapshots, c, service.ChatTTLs{Chat: time.Minute, UserChats: time.Second}, log)
	messages := service.NewMessageService(chats, repos.Messages, snapshots)
	dispatcher := notification.NewDispatcher(log, 1, 16, notification.NewStoreSink(repos.Notifications))
	t.Cleanup(dispatcher.Close)
	events := service.NewChatEvents(chats, messages, presence.NewTracker(rdb, time.Minute), dispatcher, log)

	hub := ws.NewHub()
	tokens := security.NewTokenService("test-secret", time.Hour)
	h := httpserver.NewRouter(httpserver.Deps{
		AppName:     "medchat",
		Tokens:      tokens,
		Events:      events,
		Broadcast:   ws.NewBroadcaster(ws.NewLocalBroker(hub), log),
		Ready:       ready,
		Connections: hub.Count,
		Log:         log,
	})
	return &apiEnv{handler: h, repos: repos, pair: pair, tokens: tokens, mr: mr}
}

func (e *apiEnv) do(t *testing.T, method, path, userID string, role domain.Role, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		token, err := e.tokens.CreateForUser(userID, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *apiEnv) patient(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	return e.do(t, method, path, e.pair.PatientUserID, domain.RolePatient, body)
}

func (e *apiEnv) doctor(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	return e.do(t, method, path, e.pair.DoctorUserID, domain.RoleDoctor, body)
}

func TestHealth(t *testing.T) {
	e := newAPIEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","connections":0}`, rec.Body.String())

	down := newAPIEnv(t, func(context.Context) error { return errors.New("db down") })
	rec = down.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	e := newAPIEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/api/chats", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, domain.CodeUnauthenticated, decodeBody[map[string]domain.Code](t, rec)["code"])

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatLifecycle(t *testing.T) {
	e := newAPIEnv(t, nil)

	rec := e.patient(t, http.MethodPost, "/api/connections/"+e.pair.ConnectionID+"/chat", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	details := decodeBody[domain.ChatDetails](t, rec)
	require.NotEmpty(t, details.ChatID)
	assert.Equal(t, "Gregory House", details.Doctor.Name)

	chatPath := "/api/chats/" + details.ChatID

	rec = e.doctor(t, http.MethodGet, chatPath, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.patient(t, http.MethodPost, chatPath+"/messages", map[string]string{"content": "  I have a fever  "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decodeBody[domain.Message](t, rec)
	assert.Equal(t, "I have a fever", sent.Content)
	assert.Equal(t, domain.RolePatient, sent.SenderRole)

	rec = e.doctor(t, http.MethodGet, "/api/chats/unread", nil)
	assert.Equal(t, 1, decodeBody[map[string]int](t, rec)["unreadCount"])
	rec = e.doctor(t, http.MethodGet, chatPath+"/unread", nil)
	assert.Equal(t, 1, decodeBody[map[string]int](t, rec)["unreadCount"])

	rec = e.doctor(t, http.MethodGet, "/api/chats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]domain.ChatListItem](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Jane Doe", list[0].Participant.Name)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, sent.ID, list[0].LastMessage.ID)

	rec = e.patient(t, http.MethodGet, chatPath+"/messages?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[domain.MessagePage](t, rec)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, sent.ID, page.Messages[0].ID)
	assert.True(t, page.HasMore, "the system message is older")

	rec = e.patient(t, http.MethodGet, chatPath+"/messages?before="+*page.NextBefore, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeBody[domain.MessagePage](t, rec)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, domain.MessageSystem, page.Messages[0].MessageType)
	assert.False(t, page.HasMore)

	rec = e.patient(t, http.MethodPost, "/api/messages/"+sent.ID+"/read", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.doctor(t, http.MethodPost, "/api/messages/"+sent.ID+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[domain.Message](t, rec).IsRead)

	rec = e.doctor(t, http.MethodPost, chatPath+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.doctor(t, http.MethodGet, "/api/chats/unread", nil)
	assert.Equal(t, 0, decodeBody[map[string]int](t, rec)["unreadCount"])

	rec = e.doctor(t, http.MethodDelete, "/api/messages/"+sent.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.patient(t, http.MethodDelete, "/api/messages/"+sent.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decodeBody[domain.Message](t, rec)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, domain.DeletedPlaceholder, deleted.Content)

	rec = e.patient(t, http.MethodDelete, "/api/messages/"+sent.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccessAndErrors(t *testing.T) {
	e := newAPIEnv(t, nil)
	rec := e.patient(t, http.MethodPost, "/api/connections/"+e.pair.ConnectionID+"/chat", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	chatPath := "/api/chats/" + decodeBody[domain.ChatDetails](t, rec).ChatID

	stranger := uuid.NewString()

	rec = e.do(t, http.MethodGet, chatPath+"/access", stranger, domain.RolePatient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[map[string]bool](t, rec)["hasAccess"])

	rec = e.patient(t, http.MethodGet, chatPath+"/access", nil)
	assert.True(t, decodeBody[map[string]bool](t, rec)["hasAccess"])

	rec = e.do(t, http.MethodGet, chatPath, stranger, domain.RolePatient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, chatPath+"/messages", stranger, domain.RolePatient, map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/connections/"+e.pair.ConnectionID+"/chat", stranger, domain.RolePatient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.patient(t, http.MethodPost, "/api/connections/"+uuid.NewString()+"/chat", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.patient(t, http.MethodPost, chatPath+"/messages", map[string]string{"content": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, chatPath+"/messages", bytes.NewBufferString("{"))
	token, err := e.tokens.CreateForUser(e.pair.PatientUserID, domain.RolePatient)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.patient(t, http.MethodGet, chatPath+"/messages?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.patient(t, http.MethodGet, chatPath+"/messages?before="+uuid.NewString(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, e.repos.Provisioner.SetConnectionStatus(context.Background(), e.pair.ConnectionID, domain.ConnectionInactive))
	rec = e.patient(t, http.MethodPost, chatPath+"/messages", map[string]string{"content": "still there?"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medchat/internal/domain"
)

func testClient(id, userID string) *Client {
	return newClient(id, userID, domain.RolePatient, nil, zerolog.Nop())
}

func drain(c *Client) []string {
	var types []string
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return types
			}
			var f Frame
			if err := json.Unmarshal(raw, &f); err == nil {
				types = append(types, f.Type)
			}
		default:
			return types
		}
	}
}

func envelope(t *testing.T, chatID, exclude, typ string) Envelope {
	t.Helper()
	frame, err := encodeFrame(typ, ChatRef{ChatID: chatID})
	require.NoError(t, err)
	return Envelope{ChatID: chatID, ExcludeUserID: exclude, Frame: frame}
}

func TestHubRoomDelivery(t *testing.T) {
	h := NewHub()
	alice := testClient("c1", "alice")
	bob := testClient("c2", "bob")
	carol := testClient("c3", "carol")
	for _, c := range []*Client{alice, bob, carol} {
		h.Register(c)
	}
	h.Join(alice, RoomName("chat-1"))
	h.Join(bob, RoomName("chat-1"))

	h.Deliver(envelope(t, "chat-1", "", EventNewMessage))
	assert.Equal(t, []string{EventNewMessage}, drain(alice))
	assert.Equal(t, []string{EventNewMessage}, drain(bob))
	assert.Empty(t, drain(carol))

	h.Deliver(envelope(t, "chat-1", "alice", EventUserTyping))
	assert.Empty(t, drain(alice))
	assert.Equal(t, []string{EventUserTyping}, drain(bob))

	h.Deliver(envelope(t, "", "bob", EventUserOnline))
	assert.Equal(t, []string{EventUserOnline}, drain(alice))
	assert.Empty(t, drain(bob))
	assert.Equal(t, []string{EventUserOnline}, drain(carol))

	h.Leave(bob, RoomName("chat-1"))
	assert.False(t, h.InRoom(bob, RoomName("chat-1")))
	h.Deliver(envelope(t, "chat-1", "", EventNewMessage))
	assert.Empty(t, drain(bob))
	assert.Equal(t, []string{EventNewMessage}, drain(alice))
}

func TestHubUnregister(t *testing.T) {
	h := NewHub()
	c := testClient("c1", "alice")
	h.Register(c)
	h.Join(c, RoomName("a"))
	h.Join(c, RoomName("b"))
	require.Equal(t, 1, h.Count())

	rooms := h.Unregister(c)
	assert.ElementsMatch(t, []string{RoomName("a"), RoomName("b")}, rooms)
	assert.Equal(t, 0, h.Count())
	assert.False(t, h.InRoom(c, RoomName("a")))

	_, ok := <-c.send
	assert.False(t, ok, "send channel is closed")
	assert.False(t, c.enqueue([]byte("late")))

	assert.Nil(t, h.Unregister(c))
	h.Join(c, RoomName("a"))
	assert.False(t, h.InRoom(c, RoomName("a")))
}

func TestClientBufferFull(t *testing.T) {
	c := testClient("c1", "alice")
	for i := 0; i < sendBuffer; i++ {
		require.True(t, c.enqueue([]byte("x")))
	}
	assert.False(t, c.enqueue([]byte("overflow")))
}

func TestLocalBroadcaster(t *testing.T) {
	h := NewHub()
	c := testClient("c1", "alice")
	h.Register(c)
	h.Join(c, RoomName("chat-1"))

	b := NewBroadcaster(NewLocalBroker(h), zerolog.Nop())
	b.ToRoom(t.Context(), "chat-1", "", EventMessageDeleted, MessageDeleted{MessageID: "m1", ChatID: "chat-1"})

	raw := <-c.send
	var f Frame
	require.NoError(t, json.Unmarshal(raw, &f))
	assert.Equal(t, EventMessageDeleted, f.Type)
	var payload MessageDeleted
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "m1", payload.MessageID)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "medchat.events.global", Subject(Envelope{}))
	assert.Equal(t, "medchat.events.room.abc", Subject(Envelope{ChatID: "abc"}))
}

func TestCheckOrigin(t *testing.T) {
	check := makeCheckOrigin([]string{"https://app.example.com "})
	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://app.example.com", true},
		{"HTTPS://APP.EXAMPLE.COM", true},
		{"https://evil.example.com", false},
		{"not a url", false},
	}
	for _, tc := range cases {
		r := httptestRequest(tc.origin)
		assert.Equal(t, tc.want, check(r), "origin %q", tc.origin)
	}
}

func httptestRequest(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer abc")
	tok, err := extractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "bearer, def")
	tok, err = extractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "def", tok)

	r = httptest.NewRequest(http.MethodGet, "/ws?token=ghi", nil)
	tok, err = extractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "ghi", tok)

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	_, err = extractToken(r)
	var authErr wsAuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.status)
}

func TestNATSBrokerDeliversReceivedEnvelopes(t *testing.T) {
	h := NewHub()
	c := testClient("c1", "alice")
	h.Register(c)
	h.Join(c, RoomName("chat-1"))
	b := &NATSBroker{hub: h, log: zerolog.Nop()}

	env := envelope(t, "chat-1", "", EventNewMessage)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	b.handle(&nats.Msg{Subject: Subject(env), Data: data})
	assert.Equal(t, []string{EventNewMessage}, drain(c))

	b.handle(&nats.Msg{Subject: Subject(env), Data: []byte("garbage")})
	assert.Empty(t, drain(c))
}

package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medchat/internal/domain"
	"medchat/internal/service"
)

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("Validation", func(t *testing.T) {
		e := newEnv(t)
		chatID := e.chat(t)

		cases := []struct {
			name    string
			chatID  string
			sender  string
			content string
			code    domain.Code
		}{
			{"Empty", chatID, e.pair.PatientUserID, "", domain.CodeBadRequest},
			{"Whitespace", chatID, e.pair.PatientUserID, " \n\t ", domain.CodeBadRequest},
			{"TooLong", chatID, e.pair.PatientUserID, strings.Repeat("a", domain.MaxMessageLength+1), domain.CodeBadRequest},
			{"UnknownChat", "missing", e.pair.PatientUserID, "hi", domain.CodeNotFound},
			{"NotParticipant", chatID, "stranger", "hi", domain.CodeForbidden},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := e.messages.SendMessage(ctx, tc.chatID, tc.sender, tc.content, domain.MessageText)
				assert.Equal(t, tc.code, domain.CodeOf(err))
			})
		}

		n, err := e.repos.Messages.CountForChat(ctx, chatID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("MaxLengthCountsCharacters", func(t *testing.T) {
		e := newEnv(t)
		chatID := e.chat(t)
		_, err := e.messages.SendMessage(ctx, chatID, e.pair.PatientUserID, strings.Repeat("é", domain.MaxMessageLength), "")
		assert.NoError(t, err)
	})

	t.Run("PersistsTrimmedWithSnapshot", func(t *testing.T) {
		e := newEnv(t)
		chatID := e.chat(t)

		m, err := e.messages.SendMessage(ctx, chatID, e.pair.PatientUserID, "  Hello  ", "")
		require.NoError(t, err)
		assert.Equal(t, "Hello", m.Content)
		assert.Equal(t, "Jane Doe", m.SenderName)
		assert.Equal(t, domain.RolePatient, m.SenderRole)
		assert.Equal(t, domain.MessageText, m.MessageType)
		assert.False(t, m.IsRead)

		got, err := e.repos.Messages.GetByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, m.CreatedAt, got.CreatedAt)
	})

	t.Run("InactiveConnectionLeavesCountUnchanged", func(t *testing.T) {
		e := newEnv(t)
		chatID := e.chat(t)
		_, err := e.messages.SendMessage(ctx, chatID, e.pair.PatientUserID, "first", "")
		require.NoError(t, err)

		// The chat header is cached by the first send; the status change must still apply.
		require.NoError(t, e.repos.Provisioner.SetConnectionStatus(ctx, e.pair.ConnectionID, domain.ConnectionInactive))

		before, err := e.repos.Messages.CountForChat(ctx, chatID)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := e.messages.SendMessage(ctx, chatID, e.pair.DoctorUserID, "still there?", "")
			assert.Equal(t, domain.CodeInvalidState, domain.CodeOf(err))
		}

		after, err := e.repos.Messages.CountForChat(ctx, chatID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestRenameDoesNotRewriteHistory(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	chatID := e.chat(t)

	old, err := e.messages.SendMessage(ctx, chatID, e.pair.PatientUserID, "before rename", "")
	require.NoError(t, err)

	require.NoError(t, e.repos.Provisioner.RenameUser(ctx, e.pair.PatientUserID, "Janet", "Doe"))
	e.snapshots.Invalidate(ctx, e.pair.PatientUserID)

	fresh, err := e.messages.SendMessage(ctx, chatID, e.pair.PatientUserID, "after rename", "")
	require.NoError(t, err)
	assert.Equal(t, "Janet Doe", fresh.SenderName)

	stored, err := e.repos.Messages.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", stored.SenderName)
}

func TestGetMessagesPagination(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	chatID := e.chat(t)

	const n = 23
	sent := map[string]bool{}
	for i := 0; i < n; i++ {
		sender := e.pair.PatientUserID
		if i%3 == 0 {
			sender = e.pair.DoctorUserID
		}
		m, err := e.messages.SendMessage(ctx, chatID, sender, fmt.Sprintf("message %d", i), "")
		require.NoError(t, err)
		sent[m.ID] = true
	}

	// Deleted messages never appear.
	var deletedID string
	for id := range sent {
		m, err := e.repos.Messages.GetByID(ctx, id)
		require.NoError(t, err)
		if m.SenderID == e.pair.PatientUserID {
			_, err := e.messages.DeleteMessage(ctx, id, e.pair.PatientUserID)
			require.NoError(t, err)
			deletedID = id
			break
		}
	}
	require.NotEmpty(t, deletedID)
	delete(sent, deletedID)

	var (
		collected []*domain.Message
		before    string
		pages     int
	)
	for {
		page, err := e.messages.GetMessages(ctx, chatID, e.pair.DoctorUserID, service.PageOptions{Limit: 5, Before: before})
		require.NoError(t, err)
		pages++
		require.LessOrEqual(t, len(page.Messages), 5)

		for i := 1; i < len(page.Messages); i++ {
			assert.False(t, page.Messages[i].CreatedAt.Before(page.Messages[i-1].CreatedAt))
		}
		if len(collected) > 0 && len(page.Messages) > 0 {
			// Each page is strictly older than the previous one.
			assert.True(t, page.Messages[len(page.Messages)-1].CreatedAt.Before(collected[0].CreatedAt))
		}
		collected = append(append([]*domain.Message{}, page.Messages...), collected...)

		if !page.HasMore {
			break
		}
		require.NotNil(t, page.NextBefore)
		require.NotNil(t, page.Cursor)
		assert.Equal(t, page.Messages[0].CreatedAt, *page.Cursor)
		before = *page.NextBefore
		require.Less(t, pages, 20)
	}

	// n-1 text messages plus the opening system message.
	assert.Len(t, collected, n)
	seen := map[string]bool{}
	for _, m := range collected {
		assert.False(t, seen[m.ID], "duplicate message %s", m.ID)
		seen[m.ID] = true
		assert.False(t, m.IsDeleted)
	}
	for id := range sent {
		assert.True(t, seen[id], "missing message %s", id)
	}
	assert.Equal(t, domain.MessageSystem, collected[0].MessageType)
}

func TestGetMessagesCursorRules(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	chatID := e.chat(t)

	_, err := e.messages.GetMessages(ctx, chatID, e.pair.PatientUserID, service.PageOptions{Before: "missing"})
	assert.Equal(t, domain.CodeBadRequest, domain.CodeOf(err))

	_, err = e.messages.GetMessages(ctx, chatID, "stranger", service.PageOptions{})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	page, err := e.messages.GetMessages(ctx, chatID, e.pair.PatientUserID, service.PageOptions{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.False(t, page.HasMore)

	// Paging past the oldest message yields an empty page.
	page, err = e.messages.GetMessages(ctx, chatID, e.pair.PatientUserID, service.PageOptions{Before: page.Messages[0].ID})
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Nil(t, page.Cursor)
	assert.False(t, page.HasMore)
}

func TestMarkAsRead(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	chatID := e.chat(t)

	m, err := e.messages.SendMessage(ctx, chatID, e.pair.PatientUserID, "results?", "")
	require.NoError(t, err)

	t.Run("SelfReadRejected", func(t *testing.T) {
		_, err := e.messages.MarkAsRead(ctx, m.ID, e.pair.PatientUserID)
		assert.Equal(t, domain.CodeBadRequest, domain.CodeOf(err))

		got, err := e.repos.Messages.GetByID(ctx, m.ID)
		require.NoError(t, err)
		assert.False(t, got.IsRead)
	})

	t.Run("OutsiderForbidden", func(t *testing.T) {
		_, err := e.messages.MarkAsRead(ctx, m.ID, "stranger")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := e.messages.MarkAsRead(ctx, "missing", e.pair.DoctorUserID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Idempotent", func(t *testing.T) {
		first, err := e.messages.MarkAsRead(ctx, m.ID, e.pair.DoctorUserID)
		require.NoError(t, err)
		require.True(t, first.IsRead)
		require.NotNil(t, first.ReadAt)

		second, err := e.messages.MarkAsRead(ctx, m.ID, e.pair.DoctorUserID)
		require.NoError(t, err)
		assert.Equal(t, *first.ReadAt, *second.ReadAt)
	})
}

func TestMarkAllAsRead(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	chatID := e.chat(t)

	for i := 0; i < 3; i++ {
		_, err := e.messages.SendMessage(ctx, chatID, e.pair.PatientUserID, "x", "")
		require.NoError(t, err)
	}
	_, err := e.messages.SendMessage(ctx, chatID, e.pair.DoctorUserID, "y", "")
	require.NoError(t, err)

	n, err := e.messages.MarkAllAsRead(ctx, chatID, e.pair.DoctorUserID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = e.messages.MarkAllAsRead(ctx, chatID, e.pair.DoctorUserID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, err = e.messages.MarkAllAsRead(ctx, chatID, "stranger")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	unread, err := e.messages.GetUnreadCount(ctx, chatID, e.pair.PatientUserID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestDeleteMessage(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	chatID := e.chat(t)

	m, err := e.messages.SendMessage(ctx, chatID, e.pair.PatientUserID, "oops", "")
	require.NoError(t, err)

	_, err = e.messages.DeleteMessage(ctx, m.ID, e.pair.DoctorUserID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	deleted, err := e.messages.DeleteMessage(ctx, m.ID, e.pair.PatientUserID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, domain.DeletedPlaceholder, deleted.Content)
	assert.Equal(t, domain.MessageDeleted, deleted.MessageType)
	require.NotNil(t, deleted.DeletedAt)

	_, err = e.messages.DeleteMessage(ctx, m.ID, e.pair.PatientUserID)
	assert.Equal(t, domain.CodeBadRequest, domain.CodeOf(err))

	again, err := e.repos.Messages.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, *deleted.DeletedAt, *again.DeletedAt)
	assert.Equal(t, domain.DeletedPlaceholder, again.Content)

	_, err = e.messages.DeleteMessage(ctx, "missing", e.pair.PatientUserID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careconnect/internal/events"
	"careconnect/internal/models"
)

// chatFixture wires a chat service over in-memory repositories with users 1
// and 2 already connected.
type chatFixture struct {
	convoRepo *fakeConvoRepo
	msgRepo   *fakeMsgRepo
	reqRepo   *fakeRequestRepo
	notifier  *captureNotifier
	chat      ChatService
	conns     ConnectionService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	reqRepo := newFakeRequestRepo()
	directory := newFakeDirectory(caregiver(1, "Ana"), caregiver(2, "Blanca"), caregiver(3, "Carla"))
	notifier := &captureNotifier{}
	conns := NewConnectionService(reqRepo, directory, notifier)

	ctx := context.Background()
	request, err := conns.Send(ctx, 1, 2, "", "", "")
	require.NoError(t, err)
	_, err = conns.Accept(ctx, 2, request.ID)
	require.NoError(t, err)

	convoRepo := newFakeConvoRepo()
	msgRepo := newFakeMsgRepo()
	return &chatFixture{
		convoRepo: convoRepo,
		msgRepo:   msgRepo,
		reqRepo:   reqRepo,
		notifier:  notifier,
		chat:      NewChatService(convoRepo, msgRepo, conns, notifier),
		conns:     conns,
	}
}

func (f *chatFixture) conversation(t *testing.T, userA, userB uint) *models.Conversation {
	t.Helper()
	conversation, _, err := f.chat.GetOrCreateConversation(context.Background(), userA, userB)
	require.NoError(t, err)
	return conversation
}

func (f *chatFixture) text(t *testing.T, senderID, conversationID uint, text string) *models.Message {
	t.Helper()
	message, err := f.chat.SendMessage(context.Background(), senderID, SendMessageInput{
		ConversationID: conversationID,
		Type:           string(models.TextMessageType),
		Text:           text,
	})
	require.NoError(t, err)
	return message
}

func TestChatService_GetOrCreateConversation(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	first, created, err := f.chat.GetOrCreateConversation(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, created)

	// Same pair in the other order resolves to the same conversation.
	second, created, err := f.chat.GetOrCreateConversation(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	_, _, err = f.chat.GetOrCreateConversation(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrSelfConversation)
}

// blindConvoRepo misses its first participant lookup, standing in for the
// window between lookup and insert when two get-or-creates race.
type blindConvoRepo struct {
	*fakeConvoRepo
	missed bool
}

func (r *blindConvoRepo) FindByParticipants(ctx context.Context, userID1, userID2 uint) (*models.Conversation, error) {
	if !r.missed {
		r.missed = true
		return nil, nil
	}
	return r.fakeConvoRepo.FindByParticipants(ctx, userID1, userID2)
}

func TestChatService_GetOrCreateConversation_CreateRace(t *testing.T) {
	ctx := context.Background()
	base := newFakeConvoRepo()
	svc := NewChatService(&blindConvoRepo{fakeConvoRepo: base}, newFakeMsgRepo(), nil, &captureNotifier{})

	winner := &models.Conversation{UserA: 1, UserB: 2}
	require.NoError(t, base.Create(ctx, winner))

	// The lookup misses, the insert hits the unique pair index, and the
	// caller still gets the winner's row instead of an error.
	conversation, created, err := svc.GetOrCreateConversation(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, conversation.ID)
}

func TestChatService_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("persists and notifies the recipient", func(t *testing.T) {
		f := newChatFixture(t)
		conversation := f.conversation(t, 1, 2)

		message := f.text(t, 1, conversation.ID, "hola")
		assert.Equal(t, uint(2), message.RecipientID)

		published := f.notifier.byType(events.NewMessage)
		require.Len(t, published, 1)
		assert.Equal(t, conversation.ID, published[0].conversationID)
		assert.Equal(t, []uint{2}, published[0].targets)

		// The conversation's snapshot tracks the newest message.
		stored, err := f.convoRepo.GetByID(ctx, conversation.ID)
		require.NoError(t, err)
		snap, err := stored.LastMessage()
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, "hola", snap.Text)
		assert.Equal(t, uint(1), snap.Sender)
	})

	t.Run("only text and image types are accepted", func(t *testing.T) {
		f := newChatFixture(t)
		conversation := f.conversation(t, 1, 2)

		for _, badType := range []string{"file", "video", "", "TEXT"} {
			_, err := f.chat.SendMessage(ctx, 1, SendMessageInput{
				ConversationID: conversation.ID,
				Type:           badType,
				Text:           "x",
			})
			assert.ErrorIs(t, err, ErrUnsupportedMessageType, "type %q", badType)
		}

		_, err := f.chat.SendMessage(ctx, 1, SendMessageInput{
			ConversationID: conversation.ID,
			Type:           string(models.ImageMessageType),
			FileURL:        "https://cdn.example.com/a.png",
		})
		assert.NoError(t, err)
	})

	t.Run("rejects empty text messages", func(t *testing.T) {
		f := newChatFixture(t)
		conversation := f.conversation(t, 1, 2)

		_, err := f.chat.SendMessage(ctx, 1, SendMessageInput{
			ConversationID: conversation.ID,
			Type:           string(models.TextMessageType),
		})
		assert.ErrorIs(t, err, ErrEmptyMessage)
	})

	t.Run("non-participants cannot send", func(t *testing.T) {
		f := newChatFixture(t)
		conversation := f.conversation(t, 1, 2)

		_, err := f.chat.SendMessage(ctx, 3, SendMessageInput{
			ConversationID: conversation.ID,
			Type:           string(models.TextMessageType),
			Text:           "intruding",
		})
		assert.ErrorIs(t, err, ErrNotParticipant)
	})

	t.Run("messaging requires an accepted connection", func(t *testing.T) {
		f := newChatFixture(t)
		conversation := f.conversation(t, 1, 2)

		require.NoError(t, f.conns.RemoveConnection(ctx, 1, 2))

		_, err := f.chat.SendMessage(ctx, 1, SendMessageInput{
			ConversationID: conversation.ID,
			Type:           string(models.TextMessageType),
			Text:           "still there?",
		})
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("reply target must live in the same conversation", func(t *testing.T) {
		f := newChatFixture(t)
		conversation := f.conversation(t, 1, 2)
		original := f.text(t, 1, conversation.ID, "first")

		reply, err := f.chat.SendMessage(ctx, 2, SendMessageInput{
			ConversationID: conversation.ID,
			Type:           string(models.TextMessageType),
			Text:           "re: first",
			ReplyToID:      &original.ID,
		})
		require.NoError(t, err)
		require.NotNil(t, reply.ReplyToID)
		assert.Equal(t, original.ID, *reply.ReplyToID)

		missing := original.ID + 100
		_, err = f.chat.SendMessage(ctx, 2, SendMessageInput{
			ConversationID: conversation.ID,
			Type:           string(models.TextMessageType),
			Text:           "re: nothing",
			ReplyToID:      &missing,
		})
		assert.ErrorIs(t, err, ErrInvalidReplyTarget)
	})

	t.Run("unknown conversation reports not found", func(t *testing.T) {
		f := newChatFixture(t)

		_, err := f.chat.SendMessage(ctx, 1, SendMessageInput{
			ConversationID: 404,
			Type:           string(models.TextMessageType),
			Text:           "echo",
		})
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func TestChatService_ListMessages(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	conversation := f.conversation(t, 1, 2)

	f.text(t, 1, conversation.ID, "one")
	f.text(t, 2, conversation.ID, "two")
	f.text(t, 1, conversation.ID, "three")

	t.Run("returns messages in insertion order", func(t *testing.T) {
		messages, err := f.chat.ListMessages(ctx, 1, conversation.ID, 0, 0)
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "one", messages[0].Text)
		assert.Equal(t, "two", messages[1].Text)
		assert.Equal(t, "three", messages[2].Text)
	})

	t.Run("respects limit and offset", func(t *testing.T) {
		messages, err := f.chat.ListMessages(ctx, 1, conversation.ID, 1, 1)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "two", messages[0].Text)
	})

	t.Run("non-participants are refused", func(t *testing.T) {
		_, err := f.chat.ListMessages(ctx, 3, conversation.ID, 0, 0)
		assert.ErrorIs(t, err, ErrNotParticipant)
	})
}

func TestChatService_MarkRead(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	conversation := f.conversation(t, 1, 2)

	f.text(t, 1, conversation.ID, "one")
	f.text(t, 1, conversation.ID, "two")
	f.text(t, 2, conversation.ID, "reply")

	// Only the two messages addressed to user 2 are marked.
	updated, err := f.chat.MarkRead(ctx, 2, conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	// Re-invocation is a no-op.
	updated, err = f.chat.MarkRead(ctx, 2, conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)

	unread, err := f.msgRepo.CountUnread(ctx, conversation.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	// User 1 still has the reply unread.
	unread, err = f.msgRepo.CountUnread(ctx, conversation.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	_, err = f.chat.MarkRead(ctx, 3, conversation.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestChatService_DeleteMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("me scope hides the message for the requester only", func(t *testing.T) {
		f := newChatFixture(t)
		conversation := f.conversation(t, 1, 2)
		message := f.text(t, 1, conversation.ID, "regret")

		outcome, err := f.chat.DeleteMessage(ctx, 2, message.ID, DeleteScopeMe)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDeleted, outcome)

		// Hidden for 2, still visible for 1.
		forTwo, err := f.chat.ListMessages(ctx, 2, conversation.ID, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, forTwo)

		forOne, err := f.chat.ListMessages(ctx, 1, conversation.ID, 0, 0)
		require.NoError(t, err)
		assert.Len(t, forOne, 1)

		// Repeating is an idempotent no-op.
		outcome, err = f.chat.DeleteMessage(ctx, 2, message.ID, DeleteScopeMe)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyAbsent, outcome)
	})

	t.Run("everyone scope is sender-only and removes the row", func(t *testing.T) {
		f := newChatFixture(t)
		conversation := f.conversation(t, 1, 2)
		message := f.text(t, 1, conversation.ID, "typo")

		_, err := f.chat.DeleteMessage(ctx, 2, message.ID, DeleteScopeEveryone)
		assert.ErrorIs(t, err, ErrNotMessageSender)

		outcome, err := f.chat.DeleteMessage(ctx, 1, message.ID, DeleteScopeEveryone)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDeleted, outcome)

		published := f.notifier.byType(events.MessageDeleted)
		require.Len(t, published, 1)
		assert.ElementsMatch(t, []uint{1, 2}, published[0].targets)

		forOne, err := f.chat.ListMessages(ctx, 1, conversation.ID, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, forOne)
	})

	t.Run("deleting an unknown message succeeds as a no-op", func(t *testing.T) {
		f := newChatFixture(t)

		outcome, err := f.chat.DeleteMessage(ctx, 1, 9999, DeleteScopeEveryone)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyAbsent, outcome)
	})

	t.Run("third parties cannot hide messages", func(t *testing.T) {
		f := newChatFixture(t)
		conversation := f.conversation(t, 1, 2)
		message := f.text(t, 1, conversation.ID, "private")

		_, err := f.chat.DeleteMessage(ctx, 3, message.ID, DeleteScopeMe)
		assert.ErrorIs(t, err, ErrNotParticipant)
	})

	t.Run("an unknown scope is rejected", func(t *testing.T) {
		f := newChatFixture(t)
		conversation := f.conversation(t, 1, 2)
		message := f.text(t, 1, conversation.ID, "x")

		_, err := f.chat.DeleteMessage(ctx, 1, message.ID, DeleteScope("all"))
		assert.ErrorIs(t, err, ErrInvalidDeleteScope)
	})
}

func TestChatService_ClearConversation(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	conversation := f.conversation(t, 1, 2)

	f.text(t, 1, conversation.ID, "one")
	f.text(t, 2, conversation.ID, "two")

	_, err := f.chat.ClearConversation(ctx, 3, conversation.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	outcome, err := f.chat.ClearConversation(ctx, 1, conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)

	messages, err := f.chat.ListMessages(ctx, 2, conversation.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)

	// The conversation record survives with its snapshot unset.
	stored, err := f.convoRepo.GetByID(ctx, conversation.ID)
	require.NoError(t, err)
	snap, err := stored.LastMessage()
	require.NoError(t, err)
	assert.Nil(t, snap)

	published := f.notifier.byType(events.ConversationCleared)
	require.Len(t, published, 1)
	assert.ElementsMatch(t, []uint{1, 2}, published[0].targets)

	// Clearing an already-empty conversation is a successful no-op.
	outcome, err = f.chat.ClearConversation(ctx, 2, conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyAbsent, outcome)
}

func TestChatService_ListConversations(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)
	conversation := f.conversation(t, 1, 2)

	f.text(t, 1, conversation.ID, "unread one")
	f.text(t, 1, conversation.ID, "unread two")

	views, err := f.chat.ListConversations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, conversation.ID, views[0].ID)
	assert.Equal(t, int64(2), views[0].UnreadCount)
	require.NotNil(t, views[0].LastMessage)
	assert.Equal(t, "unread two", views[0].LastMessage.Text)
	assert.ElementsMatch(t, []uint{1, 2}, views[0].Participants)

	// The sender has nothing unread.
	views, err = f.chat.ListConversations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(0), views[0].UnreadCount)
}

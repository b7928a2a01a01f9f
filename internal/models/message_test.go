package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_DeletionSet(t *testing.T) {
	m := &Message{SenderID: 1, RecipientID: 2, Type: TextMessageType, Text: "hola"}

	assert.False(t, m.IsDeletedFor(1))
	assert.False(t, m.IsDeletedFor(2))

	changed, err := m.MarkDeletedFor(2)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, m.IsDeletedFor(2))
	assert.False(t, m.IsDeletedFor(1))

	// Marking again does not grow the set.
	changed, err = m.MarkDeletedFor(2)
	require.NoError(t, err)
	assert.False(t, changed)

	ids, err := m.DeletedFor()
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, ids)
}

func TestConversation_CanonicalOrder(t *testing.T) {
	c := &Conversation{UserA: 9, UserB: 3}
	c.EnsureCanonicalOrder()
	assert.Equal(t, uint(3), c.UserA)
	assert.Equal(t, uint(9), c.UserB)

	assert.True(t, c.HasParticipant(3))
	assert.True(t, c.HasParticipant(9))
	assert.False(t, c.HasParticipant(4))
	assert.Equal(t, uint(9), c.OtherParticipant(3))
	assert.Equal(t, uint(0), c.OtherParticipant(4))
}

func TestConversation_LastMessageRoundTrip(t *testing.T) {
	c := &Conversation{UserA: 1, UserB: 2}

	snap, err := c.LastMessage()
	require.NoError(t, err)
	assert.Nil(t, snap)

	m := &Message{SenderID: 1, RecipientID: 2, Type: TextMessageType, Text: "latest"}
	require.NoError(t, c.SetLastMessage(m.Snapshot()))

	snap, err = c.LastMessage()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "latest", snap.Text)
	assert.Equal(t, uint(1), snap.Sender)

	// Unsetting clears the snapshot.
	require.NoError(t, c.SetLastMessage(nil))
	snap, err = c.LastMessage()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestConnectionRequestStatus(t *testing.T) {
	assert.False(t, ConnectionRequestStatusPending.IsTerminal())
	assert.True(t, ConnectionRequestStatusAccepted.IsTerminal())
	assert.True(t, ConnectionRequestStatusRejected.IsTerminal())

	r := &ConnectionRequest{SenderID: 1, RecipientID: 2}
	assert.Equal(t, uint(2), r.OtherParty(1))
	assert.Equal(t, uint(1), r.OtherParty(2))
	assert.Equal(t, uint(0), r.OtherParty(3))
	assert.True(t, r.Involves(1))
	assert.False(t, r.Involves(3))
}

func TestConnectionRequest_CanonicalPairColumns(t *testing.T) {
	// Both directions map to the same index key.
	forward := &ConnectionRequest{SenderID: 3, RecipientID: 9}
	require.NoError(t, forward.BeforeCreate(nil))
	backward := &ConnectionRequest{SenderID: 9, RecipientID: 3}
	require.NoError(t, backward.BeforeCreate(nil))

	assert.Equal(t, uint(3), forward.PairLow)
	assert.Equal(t, uint(9), forward.PairHigh)
	assert.Equal(t, forward.PairLow, backward.PairLow)
	assert.Equal(t, forward.PairHigh, backward.PairHigh)
}

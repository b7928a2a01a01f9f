package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careconnect/internal/events"
)

func newTestClient(id string, userID uint) *Client {
	return &Client{
		send:   make(chan []byte, 16),
		id:     id,
		userID: userID,
	}
}

// nextEvent reads frames from the client's send buffer until one of the given
// type arrives, skipping presence broadcasts and other noise.
func nextEvent(t *testing.T, c *Client, eventType events.EventType) events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload, ok := <-c.send:
			require.True(t, ok, "send channel closed while waiting for %s", eventType)
			var ev events.Event
			require.NoError(t, json.Unmarshal(payload, &ev))
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

// waitForOnlineUsers reads presence broadcasts until the snapshot matches.
func waitForOnlineUsers(t *testing.T, c *Client, want []uint) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev := nextEvent(t, c, events.OnlineUsers)
		var payload events.OnlineUsersPayload
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		if assert.ObjectsAreEqual(want, payload.Users) {
			return
		}
	}
	t.Fatalf("never observed online users %v", want)
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(NewMemoryPresenceRegistry())
	go hub.Run()
	return hub
}

func registerClient(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	c.hub = hub
	hub.register <- c
	// Registration is acknowledged by the presence broadcast.
	nextEvent(t, c, events.OnlineUsers)
}

func TestHub_RoomBroadcast(t *testing.T) {
	hub := startHub(t)

	alice := newTestClient("a", 1)
	bob := newTestClient("b", 2)
	registerClient(t, hub, alice)
	registerClient(t, hub, bob)

	hub.Join(alice, 42)
	hub.Join(bob, 42)

	ev, err := events.New(events.NewMessage, map[string]string{"text": "hi"})
	require.NoError(t, err)
	hub.Dispatch(42, nil, ev)

	got := nextEvent(t, alice, events.NewMessage)
	assert.Equal(t, events.NewMessage, got.Type)
	nextEvent(t, bob, events.NewMessage)
}

func TestHub_DirectDeliveryOutsideRoom(t *testing.T) {
	hub := startHub(t)

	// Alice has the thread open; Bob is online elsewhere in the app.
	alice := newTestClient("a", 1)
	bob := newTestClient("b", 2)
	registerClient(t, hub, alice)
	registerClient(t, hub, bob)
	hub.Join(alice, 42)

	ev, err := events.New(events.NewMessage, map[string]string{"text": "hi"})
	require.NoError(t, err)
	hub.Dispatch(42, []uint{2}, ev)

	nextEvent(t, alice, events.NewMessage)
	nextEvent(t, bob, events.NewMessage)
}

func TestHub_RoomMemberNotDeliveredTwice(t *testing.T) {
	hub := startHub(t)

	alice := newTestClient("a", 1)
	bob := newTestClient("b", 2)
	registerClient(t, hub, alice)
	registerClient(t, hub, bob)
	hub.Join(bob, 42)

	ev, err := events.New(events.NewMessage, map[string]string{"text": "hi"})
	require.NoError(t, err)
	// Bob is both in the room and a direct target.
	hub.Dispatch(42, []uint{2}, ev)
	nextEvent(t, bob, events.NewMessage)

	// A second dispatch flushes the pipeline; if the first one had been
	// duplicated, the duplicate would surface before this marker.
	marker, err := events.New(events.ConversationCleared, events.ConversationClearedPayload{ConversationID: 42})
	require.NoError(t, err)
	hub.Dispatch(42, nil, marker)
	got := nextEvent(t, bob, events.ConversationCleared)
	assert.Equal(t, events.ConversationCleared, got.Type)
}

func TestHub_UnregisterUpdatesPresence(t *testing.T) {
	hub := startHub(t)

	alice := newTestClient("a", 1)
	bob := newTestClient("b", 2)
	registerClient(t, hub, alice)
	registerClient(t, hub, bob)
	waitForOnlineUsers(t, alice, []uint{1, 2})

	hub.unregister <- bob

	waitForOnlineUsers(t, alice, []uint{1})
}

func TestHub_DeliverAfterDropDoesNotPanic(t *testing.T) {
	hub := startHub(t)

	// A one-slot buffer so a small burst overflows it and the hub drops the
	// client, closing its send channel.
	slow := newTestClient("slow", 1)
	slow.send = make(chan []byte, 1)
	registerClient(t, hub, slow)

	ev, err := events.New(events.NewMessage, map[string]string{"text": "hi"})
	require.NoError(t, err)
	hub.Dispatch(0, []uint{1}, ev)
	hub.Dispatch(0, []uint{1}, ev)

	// Drain until the hub has closed the channel.
	deadline := time.After(2 * time.Second)
	for open := true; open; {
		select {
		case _, ok := <-slow.send:
			open = ok
		case <-deadline:
			t.Fatal("hub never dropped the slow client")
		}
	}

	// An ack racing the drop lands here: the handle must refuse, not panic.
	assert.NotPanics(t, func() {
		assert.False(t, slow.Deliver([]byte(`{}`)))
	})
	ack, err := events.NewAck("m-1", true, "", nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		assert.False(t, slow.SendFrame(ack))
	})
}

func TestHub_TargetedDeliveryReachesEveryHandle(t *testing.T) {
	hub := startHub(t)

	// The same user on two devices.
	phone := newTestClient("phone", 1)
	laptop := newTestClient("laptop", 1)
	registerClient(t, hub, phone)
	registerClient(t, hub, laptop)

	ev, err := events.New(events.NewConnectionRequest, map[string]uint{"sender": 9})
	require.NoError(t, err)
	hub.Dispatch(0, []uint{1}, ev)

	nextEvent(t, phone, events.NewConnectionRequest)
	nextEvent(t, laptop, events.NewConnectionRequest)
}

// Package events defines the wire format shared by the websocket gateway and
// the Kafka notifications bridge: server-to-client events, client-to-server
// frames, and the routed envelope the API server publishes for the chat
// server to fan out.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a server-to-client event.
type EventType string

const (
	NewMessage                 EventType = "new_message"
	MessageDeleted             EventType = "message_deleted"
	ConversationCleared        EventType = "conversation_cleared"
	OnlineUsers                EventType = "online_users"
	NewConnectionRequest       EventType = "new_connection_request"
	ConnectionAccepted         EventType = "connection_accepted"
	ConnectionRemoved          EventType = "connection_removed"
	ConnectionRequestCancelled EventType = "connection_request_cancelled"
	AccountTerminated          EventType = "account_terminated"
)

// Event is a server-to-client frame.
type Event struct {
	Type EventType       `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// New builds an Event with the payload marshalled into Data.
func New(t EventType, payload any) (Event, error) {
	if payload == nil {
		return Event{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return Event{Type: t, Data: raw}, nil
}

// Encode serializes the event for a socket write.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Envelope wraps an Event with routing information for the notifications
// topic. The chat server delivers the event to the conversation room (when
// ConversationID is set) and directly to each target user's live handles.
type Envelope struct {
	Event          Event     `json:"event"`
	ConversationID uint      `json:"conversationId,omitempty"`
	TargetUsers    []uint    `json:"targetUsers,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// MessageDeletedPayload announces a sender-scope message removal.
type MessageDeletedPayload struct {
	MessageID      uint   `json:"messageId"`
	ConversationID uint   `json:"conversationId"`
	Scope          string `json:"scope"`
}

// ConversationClearedPayload announces a bulk message clear.
type ConversationClearedPayload struct {
	ConversationID uint `json:"conversationId"`
	ClearedBy      uint `json:"clearedBy"`
}

// OnlineUsersPayload carries the presence snapshot broadcast on every
// connect and disconnect.
type OnlineUsersPayload struct {
	Users []uint `json:"users"`
}

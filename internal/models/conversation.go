package models

import (
	"encoding/json"
	"time"
)

// Conversation is the durable container for a 2-party message thread.
// Participants are stored in canonical order (UserA < UserB) so the unordered
// pair maps to exactly one row; getOrCreate is idempotent on that key.
type Conversation struct {
	BaseModel
	UserA uint `gorm:"not null;uniqueIndex:idx_conversation_users" json:"-"`
	UserB uint `gorm:"not null;uniqueIndex:idx_conversation_users" json:"-"`

	// LastMessageRaw is a denormalized snapshot of the newest message, kept so
	// conversation list views never re-query the messages table. Last-write-wins
	// under concurrent sends; message rows stay the source of truth.
	LastMessageRaw json.RawMessage `gorm:"type:jsonb" json:"lastMessage,omitempty"`
}

// TableName specifies the table name for the Conversation model.
func (Conversation) TableName() string {
	return "conversations"
}

// LastMessageSnapshot is the shape stored in Conversation.LastMessageRaw.
type LastMessageSnapshot struct {
	Text      string      `json:"text"`
	Type      MessageType `json:"type"`
	Sender    uint        `json:"sender"`
	CreatedAt time.Time   `json:"createdAt"`
}

// EnsureCanonicalOrder swaps participants so UserA holds the smaller ID.
// Must be called before creating a Conversation record.
func (c *Conversation) EnsureCanonicalOrder() {
	if c.UserA > c.UserB {
		c.UserA, c.UserB = c.UserB, c.UserA
	}
}

// Participants returns both participant IDs.
func (c *Conversation) Participants() []uint {
	return []uint{c.UserA, c.UserB}
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID uint) bool {
	return c.UserA == userID || c.UserB == userID
}

// OtherParticipant returns the counterpart of userID, or 0 if userID is not
// a participant.
func (c *Conversation) OtherParticipant(userID uint) uint {
	switch userID {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	}
	return 0
}

// SetLastMessage stores the denormalized last-message snapshot.
func (c *Conversation) SetLastMessage(snap *LastMessageSnapshot) error {
	if snap == nil {
		c.LastMessageRaw = nil
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	c.LastMessageRaw = raw
	return nil
}

// LastMessage decodes the denormalized last-message snapshot.
// Returns nil when the conversation has no messages.
func (c *Conversation) LastMessage() (*LastMessageSnapshot, error) {
	if len(c.LastMessageRaw) == 0 {
		return nil, nil
	}
	var snap LastMessageSnapshot
	if err := json.Unmarshal(c.LastMessageRaw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ConversationView is the API representation of a conversation for a given
// viewer, with the participant pair expanded and the per-call unread count.
type ConversationView struct {
	ID           uint                 `json:"id"`
	Participants []uint               `json:"participants"`
	LastMessage  *LastMessageSnapshot `json:"lastMessage,omitempty"`
	UnreadCount  int64                `json:"unreadCount"`
	Profile      *UserProfile         `json:"profile,omitempty"` // the other participant
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

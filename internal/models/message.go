package models

import (
	"encoding/json"
	"time"
)

// MessageType defines the type of a stored chat message.
type MessageType string

const (
	TextMessageType  MessageType = "text"
	ImageMessageType MessageType = "image"
)

// Message is a chat message stored in the database.
//
// Per-user deletion is modelled by DeletedForRaw: a message is visible to a
// user iff that user is not in the set. The set only grows; the row itself is
// removed only by a sender-initiated "delete for everyone".
type Message struct {
	BaseModel
	ConversationID uint        `gorm:"index;not null" json:"conversationId"`
	SenderID       uint        `gorm:"index;not null" json:"sender"`
	RecipientID    uint        `gorm:"index;not null" json:"recipient"`
	Type           MessageType `gorm:"type:varchar(20);not null" json:"type"`
	Text           string      `gorm:"type:text" json:"text"`
	FileURL        string      `gorm:"type:varchar(512)" json:"fileUrl,omitempty"`
	FileName       string      `gorm:"type:varchar(255)" json:"fileName,omitempty"`
	FileSize       int64       `json:"fileSize,omitempty"`
	ReplyToID      *uint       `gorm:"index" json:"replyToId,omitempty"`
	ReadAt         *time.Time  `json:"readAt,omitempty"`

	DeletedForRaw json.RawMessage `gorm:"type:jsonb" json:"deletedFor,omitempty"`
}

// TableName specifies the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}

// DeletedFor decodes the per-user deletion set.
func (m *Message) DeletedFor() ([]uint, error) {
	if len(m.DeletedForRaw) == 0 {
		return nil, nil
	}
	var ids []uint
	if err := json.Unmarshal(m.DeletedForRaw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// IsDeletedFor reports whether the message is hidden from userID.
func (m *Message) IsDeletedFor(userID uint) bool {
	ids, err := m.DeletedFor()
	if err != nil {
		return false
	}
	for _, id := range ids {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkDeletedFor appends userID to the deletion set.
// Idempotent: returns false when the user was already in the set.
func (m *Message) MarkDeletedFor(userID uint) (bool, error) {
	ids, err := m.DeletedFor()
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == userID {
			return false, nil
		}
	}
	raw, err := json.Marshal(append(ids, userID))
	if err != nil {
		return false, err
	}
	m.DeletedForRaw = raw
	return true, nil
}

// Snapshot builds the denormalized last-message view of this message.
func (m *Message) Snapshot() *LastMessageSnapshot {
	return &LastMessageSnapshot{
		Text:      m.Text,
		Type:      m.Type,
		Sender:    m.SenderID,
		CreatedAt: m.CreatedAt,
	}
}

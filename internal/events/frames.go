package events

import "encoding/json"

// Client-to-server event names.
const (
	FrameJoinConversation = "join_conversation"
	FrameSendMessage      = "send_message"
	FrameDeleteMessage    = "delete_message"
)

// ClientFrame is a client-to-server frame. AckID, when present, asks the
// server to reply with an AckFrame carrying the same id.
type ClientFrame struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// JoinConversationData joins the socket to a conversation room.
type JoinConversationData struct {
	ConversationID uint `json:"conversationId"`
}

// SendMessageData mirrors the REST create-message request.
type SendMessageData struct {
	ConversationID uint   `json:"conversationId"`
	Type           string `json:"type"`
	Text           string `json:"text"`
	FileURL        string `json:"fileUrl,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	FileSize       int64  `json:"fileSize,omitempty"`
	ReplyToID      *uint  `json:"replyToId,omitempty"`
}

// DeleteMessageData mirrors the REST delete-message request.
type DeleteMessageData struct {
	MessageID uint   `json:"messageId"`
	Scope     string `json:"scope"`
}

// AckFrame is the server's reply to a ClientFrame that carried an AckID.
type AckFrame struct {
	Event string          `json:"event"` // always "ack"
	AckID string          `json:"ackId"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewAck builds an AckFrame; payload may be nil.
func NewAck(ackID string, ok bool, errMsg string, payload any) (AckFrame, error) {
	ack := AckFrame{Event: "ack", AckID: ackID, OK: ok, Error: errMsg}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return AckFrame{}, err
		}
		ack.Data = raw
	}
	return ack, nil
}

package chatserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"careconnect/internal/auth"
	"careconnect/internal/config"
	"careconnect/internal/events"
	"careconnect/internal/realtime"
	"careconnect/internal/services"
)

// WebSocketHandler authenticates incoming socket handshakes and turns client
// frames into service calls.
type WebSocketHandler struct {
	hub       *realtime.Hub
	chat      services.ChatService
	blacklist auth.TokenBlacklist
	cfg       *config.Config
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(hub *realtime.Hub, chat services.ChatService, blacklist auth.TokenBlacklist, cfg *config.Config) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, chat: chat, blacklist: blacklist, cfg: cfg}
}

// HandleWebSocket handles GET /ws?token=. The token is mandatory; there are
// no anonymous sockets.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(r.Context(), token, h.cfg.Auth.JWTSecretKey, h.blacklist)
	if err != nil {
		log.Printf("websocket handshake rejected: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	realtime.ServeConnection(h.hub, h.handleFrame, claims.UserID, w, r, h.cfg.WebSocket)
}

// handleFrame dispatches one client frame. Errors are reported back on the
// socket through the frame's ack id and never tear the connection down.
func (h *WebSocketHandler) handleFrame(ctx context.Context, client *realtime.Client, frame events.ClientFrame) {
	switch frame.Event {
	case events.FrameJoinConversation:
		h.handleJoin(ctx, client, frame)
	case events.FrameSendMessage:
		h.handleSendMessage(ctx, client, frame)
	case events.FrameDeleteMessage:
		h.handleDeleteMessage(ctx, client, frame)
	default:
		h.ack(client, frame.AckID, false, "unknown event: "+frame.Event, nil)
	}
}

func (h *WebSocketHandler) handleJoin(ctx context.Context, client *realtime.Client, frame events.ClientFrame) {
	var data events.JoinConversationData
	if err := json.Unmarshal(frame.Data, &data); err != nil || data.ConversationID == 0 {
		h.ack(client, frame.AckID, false, "invalid join payload", nil)
		return
	}

	// Joining only requires authentication; participant checks happen at the
	// data layer for mutating operations.
	h.hub.Join(client, data.ConversationID)
	h.ack(client, frame.AckID, true, "", nil)
}

func (h *WebSocketHandler) handleSendMessage(ctx context.Context, client *realtime.Client, frame events.ClientFrame) {
	var data events.SendMessageData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		h.ack(client, frame.AckID, false, "invalid message payload", nil)
		return
	}

	message, err := h.chat.SendMessage(ctx, client.UserID(), services.SendMessageInput{
		ConversationID: data.ConversationID,
		Type:           data.Type,
		Text:           data.Text,
		FileURL:        data.FileURL,
		FileName:       data.FileName,
		FileSize:       data.FileSize,
		ReplyToID:      data.ReplyToID,
	})
	if err != nil {
		h.ack(client, frame.AckID, false, err.Error(), nil)
		return
	}
	h.ack(client, frame.AckID, true, "", message)
}

func (h *WebSocketHandler) handleDeleteMessage(ctx context.Context, client *realtime.Client, frame events.ClientFrame) {
	var data events.DeleteMessageData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		h.ack(client, frame.AckID, false, "invalid delete payload", nil)
		return
	}

	scope := services.DeleteScope(data.Scope)
	if scope == "" {
		scope = services.DeleteScopeMe
	}

	if _, err := h.chat.DeleteMessage(ctx, client.UserID(), data.MessageID, scope); err != nil {
		h.ack(client, frame.AckID, false, err.Error(), nil)
		return
	}
	h.ack(client, frame.AckID, true, "", nil)
}

func (h *WebSocketHandler) ack(client *realtime.Client, ackID string, ok bool, errMsg string, payload any) {
	if ackID == "" {
		return
	}
	ack, err := events.NewAck(ackID, ok, errMsg, payload)
	if err != nil {
		log.Printf("failed to build ack %s: %v", ackID, err)
		return
	}
	if !client.SendFrame(ack) {
		log.Printf("dropping ack %s for user %d: send buffer full", ackID, client.UserID())
	}
}

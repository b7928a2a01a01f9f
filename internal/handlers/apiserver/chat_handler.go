package apiserver

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"careconnect/internal/middleware"
	"careconnect/internal/models"
	"careconnect/internal/services"
)

const defaultMessagePageSize = 50

// ChatHandler handles HTTP requests for conversations and message history.
type ChatHandler struct {
	chat      services.ChatService
	directory services.Directory
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chat services.ChatService, directory services.Directory) *ChatHandler {
	return &ChatHandler{chat: chat, directory: directory}
}

// CreateConversationPayload is the JSON body for POST /conversation.
type CreateConversationPayload struct {
	UserID uint `json:"userId"`
}

// CreateConversationHandler handles POST /conversation. Creating the same
// conversation twice returns the existing one.
func (h *ChatHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}

	var payload CreateConversationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.UserID == 0 {
		writeJSONError(w, "missing user id (userId)", http.StatusBadRequest)
		return
	}

	conversation, created, err := h.chat.GetOrCreateConversation(r.Context(), userID, payload.UserID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to create conversation")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, conversation)
}

// ListConversationsHandler handles GET /conversations. Each entry carries the
// counterpart's directory profile so the client can render the list without a
// lookup per row.
func (h *ChatHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}

	views, err := h.chat.ListConversations(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list conversations")
		return
	}

	otherIDs := make([]uint, 0, len(views))
	for _, v := range views {
		for _, p := range v.Participants {
			if p != userID {
				otherIDs = append(otherIDs, p)
			}
		}
	}
	profiles, err := h.directory.LookupMany(r.Context(), otherIDs)
	if err != nil {
		// Profiles are decoration; the list is still useful without them.
		log.Printf("failed to enrich conversations for user %d: %v", userID, err)
		profiles = map[uint]*models.UserProfile{}
	}
	for i := range views {
		for _, p := range views[i].Participants {
			if p != userID {
				views[i].Profile = profiles[p]
			}
		}
	}

	writeJSONResponse(w, http.StatusOK, views)
}

// ListMessagesHandler handles GET /messages/{conversationID}?limit=&offset=.
func (h *ChatHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		writeJSONError(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	limit := queryInt(r, "limit", defaultMessagePageSize)
	offset := queryInt(r, "offset", 0)

	messages, err := h.chat.ListMessages(r.Context(), userID, conversationID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list messages")
		return
	}
	writeJSONResponse(w, http.StatusOK, messages)
}

// SendMessagePayload is the JSON body for POST /messages.
type SendMessagePayload struct {
	ConversationID uint   `json:"conversationId"`
	Type           string `json:"type"`
	Text           string `json:"text"`
	FileURL        string `json:"fileUrl"`
	FileName       string `json:"fileName"`
	FileSize       int64  `json:"fileSize"`
	ReplyToID      *uint  `json:"replyToId"`
}

// SendMessageHandler handles POST /messages.
func (h *ChatHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}

	var payload SendMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.ConversationID == 0 {
		writeJSONError(w, "missing conversation id (conversationId)", http.StatusBadRequest)
		return
	}

	message, err := h.chat.SendMessage(r.Context(), userID, services.SendMessageInput{
		ConversationID: payload.ConversationID,
		Type:           payload.Type,
		Text:           payload.Text,
		FileURL:        payload.FileURL,
		FileName:       payload.FileName,
		FileSize:       payload.FileSize,
		ReplyToID:      payload.ReplyToID,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "failed to send message")
		return
	}
	writeJSONResponse(w, http.StatusCreated, message)
}

// MarkReadPayload is the JSON body for POST /messages/read.
type MarkReadPayload struct {
	ConversationID uint `json:"conversationId"`
}

// MarkReadHandler handles POST /messages/read.
func (h *ChatHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}

	var payload MarkReadPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.ConversationID == 0 {
		writeJSONError(w, "missing conversation id (conversationId)", http.StatusBadRequest)
		return
	}

	updated, err := h.chat.MarkRead(r.Context(), userID, payload.ConversationID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to mark messages read")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int64{"updated": updated})
}

// DeleteMessageHandler handles DELETE /messages/{messageID}?scope=me|everyone.
// A missing or malformed message id is treated as already deleted.
func (h *ChatHandler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}

	scope := services.DeleteScope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = services.DeleteScopeMe
	}

	messageID, err := pathID(r, "messageID")
	if err != nil {
		// Deleting something unaddressable is the same as deleting something
		// already gone.
		writeJSONResponse(w, http.StatusOK, map[string]string{"message": "message deleted"})
		return
	}

	if _, err := h.chat.DeleteMessage(r.Context(), userID, messageID, scope); err != nil {
		h.writeServiceError(w, r, err, "failed to delete message")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "message deleted"})
}

// ClearConversationHandler handles DELETE /conversations/{conversationID}/clear.
func (h *ChatHandler) ClearConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		writeJSONError(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	if _, err := h.chat.ClearConversation(r.Context(), userID, conversationID); err != nil {
		h.writeServiceError(w, r, err, "failed to clear conversation")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "conversation cleared"})
}

func (h *ChatHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, internalMsg string) {
	status := statusForServiceError(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %s: %v", r.Method, r.URL.Path, internalMsg, err)
		writeJSONError(w, internalMsg, status)
		return
	}
	writeJSONError(w, err.Error(), status)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

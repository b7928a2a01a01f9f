package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"careconnect/internal/middleware"
	"careconnect/internal/services"
)

// ConnectionHandler handles HTTP requests for the connection-request
// lifecycle.
type ConnectionHandler struct {
	connections services.ConnectionService
}

// NewConnectionHandler creates a new ConnectionHandler.
func NewConnectionHandler(cs services.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{connections: cs}
}

// SendRequestPayload is the JSON body for POST /request and
// POST /request-with-message.
type SendRequestPayload struct {
	RecipientID    uint   `json:"recipientId"`
	Message        string `json:"message"`
	InitialMessage string `json:"initialMessage"`
	ServiceName    string `json:"serviceName"`
}

// SendRequestHandler handles POST /request and POST /request-with-message.
func (h *ConnectionHandler) SendRequestHandler(w http.ResponseWriter, r *http.Request) {
	senderID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}

	var payload SendRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.RecipientID == 0 {
		writeJSONError(w, "missing recipient id (recipientId)", http.StatusBadRequest)
		return
	}

	request, err := h.connections.Send(r.Context(), senderID, payload.RecipientID,
		payload.Message, payload.InitialMessage, payload.ServiceName)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to send connection request")
		return
	}
	writeJSONResponse(w, http.StatusCreated, request)
}

// AcceptRequestHandler handles PUT /accept/{requestID}.
func (h *ConnectionHandler) AcceptRequestHandler(w http.ResponseWriter, r *http.Request) {
	actorID, requestID, ok := h.actorAndRequestID(w, r)
	if !ok {
		return
	}
	request, err := h.connections.Accept(r.Context(), actorID, requestID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to accept connection request")
		return
	}
	writeJSONResponse(w, http.StatusOK, request)
}

// RejectRequestHandler handles PUT /reject/{requestID}.
func (h *ConnectionHandler) RejectRequestHandler(w http.ResponseWriter, r *http.Request) {
	actorID, requestID, ok := h.actorAndRequestID(w, r)
	if !ok {
		return
	}
	if err := h.connections.Reject(r.Context(), actorID, requestID); err != nil {
		h.writeServiceError(w, r, err, "failed to reject connection request")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "connection request rejected"})
}

// CancelRequestHandler handles DELETE /cancel/{requestID}.
func (h *ConnectionHandler) CancelRequestHandler(w http.ResponseWriter, r *http.Request) {
	actorID, requestID, ok := h.actorAndRequestID(w, r)
	if !ok {
		return
	}
	if err := h.connections.Cancel(r.Context(), actorID, requestID); err != nil {
		h.writeServiceError(w, r, err, "failed to cancel connection request")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "connection request cancelled"})
}

// DeleteRequestHandler handles DELETE /delete/{requestID}.
func (h *ConnectionHandler) DeleteRequestHandler(w http.ResponseWriter, r *http.Request) {
	actorID, requestID, ok := h.actorAndRequestID(w, r)
	if !ok {
		return
	}
	if err := h.connections.Delete(r.Context(), actorID, requestID); err != nil {
		h.writeServiceError(w, r, err, "failed to delete connection request")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "connection request deleted"})
}

// ListPendingHandler handles GET /pending.
func (h *ConnectionHandler) ListPendingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}
	requests, err := h.connections.ListPending(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list pending requests")
		return
	}
	writeJSONResponse(w, http.StatusOK, requests)
}

// ListSentHandler handles GET /sent.
func (h *ConnectionHandler) ListSentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}
	requests, err := h.connections.ListSent(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list sent requests")
		return
	}
	writeJSONResponse(w, http.StatusOK, requests)
}

// ListConnectedHandler handles GET /connected.
func (h *ConnectionHandler) ListConnectedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}
	profiles, err := h.connections.ListConnected(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to list connections")
		return
	}
	writeJSONResponse(w, http.StatusOK, profiles)
}

// RemoveConnectionHandler handles DELETE /remove-connection/{userID}.
func (h *ConnectionHandler) RemoveConnectionHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}
	otherID, err := pathID(r, "userID")
	if err != nil {
		writeJSONError(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if err := h.connections.RemoveConnection(r.Context(), actorID, otherID); err != nil {
		h.writeServiceError(w, r, err, "failed to remove connection")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "connection removed"})
}

// SearchHandler handles GET /search?query=.
func (h *ConnectionHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return
	}
	query := r.URL.Query().Get("query")
	if query == "" {
		writeJSONError(w, "missing query parameter", http.StatusBadRequest)
		return
	}
	profiles, err := h.connections.Search(r.Context(), userID, query)
	if err != nil {
		h.writeServiceError(w, r, err, "search failed")
		return
	}
	writeJSONResponse(w, http.StatusOK, profiles)
}

func (h *ConnectionHandler) actorAndRequestID(w http.ResponseWriter, r *http.Request) (uint, uint, bool) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "missing user id in context", http.StatusUnauthorized)
		return 0, 0, false
	}
	requestID, err := pathID(r, "requestID")
	if err != nil {
		writeJSONError(w, "invalid connection request id", http.StatusBadRequest)
		return 0, 0, false
	}
	return actorID, requestID, true
}

func (h *ConnectionHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, internalMsg string) {
	status := statusForServiceError(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %s: %v", r.Method, r.URL.Path, internalMsg, err)
		writeJSONError(w, internalMsg, status)
		return
	}
	writeJSONError(w, err.Error(), status)
}

// pathID parses a numeric mux path variable.
func pathID(r *http.Request, name string) (uint, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// statusForServiceError maps core service sentinels onto the HTTP taxonomy.
func statusForServiceError(err error) int {
	switch {
	case errors.Is(err, services.ErrConnectionRequestNotFound),
		errors.Is(err, services.ErrConversationNotFound),
		errors.Is(err, services.ErrRecipientNotFound),
		errors.Is(err, services.ErrConnectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotRecipientOfRequest),
		errors.Is(err, services.ErrNotSenderOfRequest),
		errors.Is(err, services.ErrNotPartyToRequest),
		errors.Is(err, services.ErrNotParticipant),
		errors.Is(err, services.ErrNotMessageSender),
		errors.Is(err, services.ErrNotConnected):
		return http.StatusForbidden
	case errors.Is(err, services.ErrSelfConnection),
		errors.Is(err, services.ErrSelfConversation),
		errors.Is(err, services.ErrConnectionRequestExists),
		errors.Is(err, services.ErrRequestNotPending),
		errors.Is(err, services.ErrRequestStillPending),
		errors.Is(err, services.ErrUnsupportedMessageType),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrInvalidDeleteScope),
		errors.Is(err, services.ErrInvalidReplyTarget):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already out; nothing sensible left to write.
			return
		}
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, ErrorResponse{Error: message})
}

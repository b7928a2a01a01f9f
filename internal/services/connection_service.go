package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"careconnect/internal/events"
	"careconnect/internal/models"
	"careconnect/internal/storage"
)

// ConnectionService governs the connection-request lifecycle that gates
// discovery and messaging between two users.
type ConnectionService interface {
	Send(ctx context.Context, senderID, recipientID uint, message, initialMessage, serviceName string) (*models.ConnectionRequest, error)
	Accept(ctx context.Context, actorID, requestID uint) (*models.ConnectionRequest, error)
	Reject(ctx context.Context, actorID, requestID uint) error
	Cancel(ctx context.Context, actorID, requestID uint) error
	Delete(ctx context.Context, actorID, requestID uint) error
	RemoveConnection(ctx context.Context, actorID, otherUserID uint) error
	ListPending(ctx context.Context, userID uint) ([]*models.ConnectionRequestWithProfile, error)
	ListSent(ctx context.Context, userID uint) ([]*models.ConnectionRequestWithProfile, error)
	ListConnected(ctx context.Context, userID uint) ([]*models.UserProfile, error)
	Search(ctx context.Context, userID uint, query string) ([]models.UserProfile, error)
	// AreConnected reports whether an accepted connection exists between the
	// pair. Consumed by the chat service to gate message exchange.
	AreConnected(ctx context.Context, userID1, userID2 uint) (bool, error)
}

type connectionService struct {
	requestRepo storage.ConnectionRequestRepository
	directory   Directory
	notifier    Notifier
}

// NewConnectionService creates a new ConnectionService instance.
func NewConnectionService(requestRepo storage.ConnectionRequestRepository, directory Directory, notifier Notifier) ConnectionService {
	return &connectionService{
		requestRepo: requestRepo,
		directory:   directory,
		notifier:    notifier,
	}
}

// Send creates a new pending request from sender to recipient. A pending or
// accepted request between the pair is a conflict; a rejected one is replaced.
func (s *connectionService) Send(ctx context.Context, senderID, recipientID uint, message, initialMessage, serviceName string) (*models.ConnectionRequest, error) {
	if senderID == recipientID {
		return nil, ErrSelfConnection
	}

	recipient, err := s.directory.Lookup(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up recipient %d: %w", recipientID, err)
	}
	if recipient == nil {
		return nil, ErrRecipientNotFound
	}

	active, err := s.requestRepo.FindActiveBetween(ctx, senderID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing requests between %d and %d: %w", senderID, recipientID, err)
	}
	if active != nil {
		return nil, ErrConnectionRequestExists
	}

	// Rejected requests are replaced, never accumulated.
	if err := s.requestRepo.DeleteRejectedBetween(ctx, senderID, recipientID); err != nil {
		return nil, fmt.Errorf("failed to clear rejected requests between %d and %d: %w", senderID, recipientID, err)
	}

	request := &models.ConnectionRequest{
		SenderID:       senderID,
		RecipientID:    recipientID,
		Status:         models.ConnectionRequestStatusPending,
		Message:        message,
		InitialMessage: initialMessage,
		ServiceName:    serviceName,
	}
	if err := s.requestRepo.Create(ctx, request); err != nil {
		// The unique pair index catches sends racing past the lookup above.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConnectionRequestExists
		}
		return nil, fmt.Errorf("failed to create connection request: %w", err)
	}

	s.notify(ctx, events.NewConnectionRequest, 0, []uint{recipientID}, request)
	return request, nil
}

// Accept transitions a pending request to accepted. Only the recipient may
// accept; every other non-accepted request between the pair is purged so no
// duplicate pending state survives.
func (s *connectionService) Accept(ctx context.Context, actorID, requestID uint) (*models.ConnectionRequest, error) {
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.RecipientID != actorID {
		return nil, ErrNotRecipientOfRequest
	}
	if request.Status != models.ConnectionRequestStatusPending {
		return nil, ErrRequestNotPending
	}

	if err := s.requestRepo.UpdateStatus(ctx, requestID, models.ConnectionRequestStatusAccepted); err != nil {
		return nil, fmt.Errorf("failed to accept connection request %d: %w", requestID, err)
	}
	request.Status = models.ConnectionRequestStatusAccepted

	if err := s.requestRepo.DeleteOthersBetween(ctx, request.SenderID, request.RecipientID, requestID); err != nil {
		// The accept itself stands; stale duplicates are display noise, not state.
		log.Printf("Failed to purge duplicate requests between %d and %d: %v", request.SenderID, request.RecipientID, err)
	}

	s.notify(ctx, events.ConnectionAccepted, 0, []uint{request.SenderID, request.RecipientID}, request)
	return request, nil
}

// Reject transitions a pending request to rejected. Only the recipient may
// reject.
func (s *connectionService) Reject(ctx context.Context, actorID, requestID uint) error {
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.RecipientID != actorID {
		return ErrNotRecipientOfRequest
	}
	if request.Status != models.ConnectionRequestStatusPending {
		return ErrRequestNotPending
	}

	if err := s.requestRepo.UpdateStatus(ctx, requestID, models.ConnectionRequestStatusRejected); err != nil {
		return fmt.Errorf("failed to reject connection request %d: %w", requestID, err)
	}
	return nil
}

// Cancel hard-deletes a still-pending request. Only the sender may cancel.
func (s *connectionService) Cancel(ctx context.Context, actorID, requestID uint) error {
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.SenderID != actorID {
		return ErrNotSenderOfRequest
	}
	if request.Status != models.ConnectionRequestStatusPending {
		return ErrRequestNotPending
	}

	if err := s.requestRepo.Delete(ctx, requestID); err != nil {
		return fmt.Errorf("failed to cancel connection request %d: %w", requestID, err)
	}

	s.notify(ctx, events.ConnectionRequestCancelled, 0, []uint{request.RecipientID}, request)
	return nil
}

// Delete removes a terminal request for display cleanup. Either party may
// delete; a pending request cannot be deleted this way.
func (s *connectionService) Delete(ctx context.Context, actorID, requestID uint) error {
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !request.Involves(actorID) {
		return ErrNotPartyToRequest
	}
	if !request.Status.IsTerminal() {
		return ErrRequestStillPending
	}

	if err := s.requestRepo.Delete(ctx, requestID); err != nil {
		return fmt.Errorf("failed to delete connection request %d: %w", requestID, err)
	}
	return nil
}

// RemoveConnection severs an accepted connection between the actor and
// another user and notifies the counterpart.
func (s *connectionService) RemoveConnection(ctx context.Context, actorID, otherUserID uint) error {
	removed, err := s.requestRepo.DeleteAcceptedBetween(ctx, actorID, otherUserID)
	if err != nil {
		return fmt.Errorf("failed to remove connection between %d and %d: %w", actorID, otherUserID, err)
	}
	if removed == 0 {
		return ErrConnectionNotFound
	}

	s.notify(ctx, events.ConnectionRemoved, 0, []uint{otherUserID}, map[string]uint{"userId": actorID})
	return nil
}

// ListPending returns the pending requests addressed to the user, enriched
// with the sender's directory profile.
func (s *connectionService) ListPending(ctx context.Context, userID uint) ([]*models.ConnectionRequestWithProfile, error) {
	requests, err := s.requestRepo.ListPendingForRecipient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests for user %d: %w", userID, err)
	}
	return s.enrich(ctx, requests, func(r *models.ConnectionRequest) uint { return r.SenderID })
}

// ListSent returns the pending requests the user has sent, enriched with the
// recipient's directory profile.
func (s *connectionService) ListSent(ctx context.Context, userID uint) ([]*models.ConnectionRequestWithProfile, error) {
	requests, err := s.requestRepo.ListPendingFromSender(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent requests for user %d: %w", userID, err)
	}
	return s.enrich(ctx, requests, func(r *models.ConnectionRequest) uint { return r.RecipientID })
}

// ListConnected derives the connected-user set by scanning accepted requests
// where the user is either side, returning the other party de-duplicated.
func (s *connectionService) ListConnected(ctx context.Context, userID uint) ([]*models.UserProfile, error) {
	requests, err := s.requestRepo.ListAcceptedInvolving(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections for user %d: %w", userID, err)
	}

	seen := make(map[uint]bool, len(requests))
	var otherIDs []uint
	for i := range requests {
		other := requests[i].OtherParty(userID)
		if other == 0 || seen[other] {
			continue
		}
		seen[other] = true
		otherIDs = append(otherIDs, other)
	}
	if len(otherIDs) == 0 {
		return []*models.UserProfile{}, nil
	}

	profiles, err := s.directory.LookupMany(ctx, otherIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to look up connected profiles for user %d: %w", userID, err)
	}

	result := make([]*models.UserProfile, 0, len(otherIDs))
	for _, id := range otherIDs {
		if p, ok := profiles[id]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

// Search delegates candidate lookup to the directory.
func (s *connectionService) Search(ctx context.Context, userID uint, query string) ([]models.UserProfile, error) {
	return s.directory.Search(ctx, query, userID, 20)
}

// AreConnected reports whether the pair has an accepted connection.
func (s *connectionService) AreConnected(ctx context.Context, userID1, userID2 uint) (bool, error) {
	active, err := s.requestRepo.FindActiveBetween(ctx, userID1, userID2)
	if err != nil {
		return false, err
	}
	return active != nil && active.Status == models.ConnectionRequestStatusAccepted, nil
}

func (s *connectionService) getRequest(ctx context.Context, requestID uint) (*models.ConnectionRequest, error) {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionRequestNotFound
		}
		return nil, fmt.Errorf("failed to retrieve connection request %d: %w", requestID, err)
	}
	return request, nil
}

func (s *connectionService) enrich(ctx context.Context, requests []models.ConnectionRequest, party func(*models.ConnectionRequest) uint) ([]*models.ConnectionRequestWithProfile, error) {
	result := make([]*models.ConnectionRequestWithProfile, 0, len(requests))
	if len(requests) == 0 {
		return result, nil
	}

	ids := make([]uint, 0, len(requests))
	for i := range requests {
		ids = append(ids, party(&requests[i]))
	}
	profiles, err := s.directory.LookupMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up request profiles: %w", err)
	}

	for i := range requests {
		result = append(result, &models.ConnectionRequestWithProfile{
			ConnectionRequest: requests[i],
			Profile:           profiles[party(&requests[i])],
		})
	}
	return result, nil
}

// notify publishes a realtime event. Best-effort: failures are logged and
// never fail the durable operation that triggered them.
func (s *connectionService) notify(ctx context.Context, t events.EventType, conversationID uint, targets []uint, payload any) {
	ev, err := events.New(t, payload)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", t, err)
		return
	}
	if err := s.notifier.Notify(ctx, conversationID, targets, ev); err != nil {
		log.Printf("Failed to publish %s event for users %v: %v", t, targets, err)
	}
}

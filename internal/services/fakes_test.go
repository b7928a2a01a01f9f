package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"careconnect/internal/events"
	"careconnect/internal/models"
)

// fakeRequestRepo is an in-memory ConnectionRequestRepository.
type fakeRequestRepo struct {
	mu       sync.Mutex
	nextID   uint
	requests map[uint]*models.ConnectionRequest
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[uint]*models.ConnectionRequest)}
}

func (r *fakeRequestRepo) Create(_ context.Context, request *models.ConnectionRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Mirror the partial unique index on the canonical pair: at most one
	// non-rejected row per pair, and rejected rows stay outside the index.
	if request.Status != models.ConnectionRequestStatusRejected {
		for _, existing := range r.requests {
			if samePair(existing, request.SenderID, request.RecipientID) &&
				existing.Status != models.ConnectionRequestStatusRejected {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	r.insert(request)
	return nil
}

// put inserts bypassing the unique-pair guard, the way a row predating the
// index would exist.
func (r *fakeRequestRepo) put(request *models.ConnectionRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(request)
}

func (r *fakeRequestRepo) insert(request *models.ConnectionRequest) {
	r.nextID++
	request.ID = r.nextID
	request.CreatedAt = time.Now()
	cp := *request
	r.requests[request.ID] = &cp
}

func (r *fakeRequestRepo) GetByID(_ context.Context, requestID uint) (*models.ConnectionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[requestID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *request
	return &cp, nil
}

func samePair(request *models.ConnectionRequest, userID1, userID2 uint) bool {
	return (request.SenderID == userID1 && request.RecipientID == userID2) ||
		(request.SenderID == userID2 && request.RecipientID == userID1)
}

func (r *fakeRequestRepo) FindActiveBetween(_ context.Context, userID1, userID2 uint) (*models.ConnectionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, request := range r.requests {
		if !samePair(request, userID1, userID2) {
			continue
		}
		if request.Status == models.ConnectionRequestStatusPending || request.Status == models.ConnectionRequestStatusAccepted {
			cp := *request
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRequestRepo) DeleteRejectedBetween(_ context.Context, userID1, userID2 uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, request := range r.requests {
		if samePair(request, userID1, userID2) && request.Status == models.ConnectionRequestStatusRejected {
			delete(r.requests, id)
		}
	}
	return nil
}

func (r *fakeRequestRepo) DeleteOthersBetween(_ context.Context, userID1, userID2 uint, keepID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, request := range r.requests {
		if id == keepID || !samePair(request, userID1, userID2) {
			continue
		}
		if request.Status != models.ConnectionRequestStatusAccepted {
			delete(r.requests, id)
		}
	}
	return nil
}

func (r *fakeRequestRepo) DeleteAcceptedBetween(_ context.Context, userID1, userID2 uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, request := range r.requests {
		if samePair(request, userID1, userID2) && request.Status == models.ConnectionRequestStatusAccepted {
			delete(r.requests, id)
			removed++
		}
	}
	return removed, nil
}

func (r *fakeRequestRepo) UpdateStatus(_ context.Context, requestID uint, status models.ConnectionRequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if request, ok := r.requests[requestID]; ok {
		request.Status = status
	}
	return nil
}

func (r *fakeRequestRepo) Delete(_ context.Context, requestID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, requestID)
	return nil
}

func (r *fakeRequestRepo) ListPendingForRecipient(_ context.Context, recipientID uint) ([]models.ConnectionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.ConnectionRequest
	for _, request := range r.requests {
		if request.RecipientID == recipientID && request.Status == models.ConnectionRequestStatusPending {
			result = append(result, *request)
		}
	}
	return result, nil
}

func (r *fakeRequestRepo) ListPendingFromSender(_ context.Context, senderID uint) ([]models.ConnectionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.ConnectionRequest
	for _, request := range r.requests {
		if request.SenderID == senderID && request.Status == models.ConnectionRequestStatusPending {
			result = append(result, *request)
		}
	}
	return result, nil
}

func (r *fakeRequestRepo) ListAcceptedInvolving(_ context.Context, userID uint) ([]models.ConnectionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.ConnectionRequest
	for _, request := range r.requests {
		if request.Involves(userID) && request.Status == models.ConnectionRequestStatusAccepted {
			result = append(result, *request)
		}
	}
	return result, nil
}

func (r *fakeRequestRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// fakeDirectory is an in-memory Directory.
type fakeDirectory struct {
	profiles map[uint]*models.UserProfile
}

func newFakeDirectory(profiles ...models.UserProfile) *fakeDirectory {
	d := &fakeDirectory{profiles: make(map[uint]*models.UserProfile)}
	for i := range profiles {
		d.profiles[profiles[i].ID] = &profiles[i]
	}
	return d
}

func (d *fakeDirectory) Lookup(_ context.Context, userID uint) (*models.UserProfile, error) {
	return d.profiles[userID], nil
}

func (d *fakeDirectory) LookupMany(_ context.Context, userIDs []uint) (map[uint]*models.UserProfile, error) {
	result := make(map[uint]*models.UserProfile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := d.profiles[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (d *fakeDirectory) Search(_ context.Context, query string, excludeUserID uint, limit int) ([]models.UserProfile, error) {
	var result []models.UserProfile
	for _, p := range d.profiles {
		if p.ID == excludeUserID {
			continue
		}
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(query)) {
			result = append(result, *p)
		}
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// captureNotifier records every published event.
type captureNotifier struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	conversationID uint
	targets        []uint
	event          events.Event
}

func (n *captureNotifier) Notify(_ context.Context, conversationID uint, targets []uint, ev events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, capturedEvent{conversationID: conversationID, targets: targets, event: ev})
	return nil
}

func (n *captureNotifier) byType(t events.EventType) []capturedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var result []capturedEvent
	for _, e := range n.events {
		if e.event.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// fakeConvoRepo is an in-memory ConversationRepository.
type fakeConvoRepo struct {
	mu            sync.Mutex
	nextID        uint
	conversations map[uint]*models.Conversation
}

func newFakeConvoRepo() *fakeConvoRepo {
	return &fakeConvoRepo{conversations: make(map[uint]*models.Conversation)}
}

func (r *fakeConvoRepo) Create(_ context.Context, conversation *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation.EnsureCanonicalOrder()
	for _, c := range r.conversations {
		if c.UserA == conversation.UserA && c.UserB == conversation.UserB {
			return gorm.ErrDuplicatedKey
		}
	}
	r.nextID++
	conversation.ID = r.nextID
	conversation.CreatedAt = time.Now()
	conversation.UpdatedAt = conversation.CreatedAt
	cp := *conversation
	r.conversations[conversation.ID] = &cp
	return nil
}

func (r *fakeConvoRepo) GetByID(_ context.Context, id uint) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.conversations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *conversation
	return &cp, nil
}

func (r *fakeConvoRepo) FindByParticipants(_ context.Context, userID1, userID2 uint) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if userID1 > userID2 {
		userID1, userID2 = userID2, userID1
	}
	for _, c := range r.conversations {
		if c.UserA == userID1 && c.UserB == userID2 {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeConvoRepo) ListForUser(_ context.Context, userID uint) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.Conversation
	for _, c := range r.conversations {
		if c.HasParticipant(userID) {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (r *fakeConvoRepo) SetLastMessage(_ context.Context, conversationID uint, snap *models.LastMessageSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.conversations[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	return conversation.SetLastMessage(snap)
}

// fakeMsgRepo is an in-memory MessageRepository preserving insertion order.
type fakeMsgRepo struct {
	mu       sync.Mutex
	nextID   uint
	order    []uint
	messages map[uint]*models.Message
}

func newFakeMsgRepo() *fakeMsgRepo {
	return &fakeMsgRepo{messages: make(map[uint]*models.Message)}
}

func (r *fakeMsgRepo) Create(_ context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	message.ID = r.nextID
	message.CreatedAt = time.Now()
	cp := *message
	r.messages[message.ID] = &cp
	r.order = append(r.order, message.ID)
	return nil
}

func (r *fakeMsgRepo) GetByID(_ context.Context, id uint) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	message, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *message
	return &cp, nil
}

func (r *fakeMsgRepo) ListByConversation(_ context.Context, conversationID uint, limit, offset int) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.Message
	skipped := 0
	for _, id := range r.order {
		message, ok := r.messages[id]
		if !ok || message.ConversationID != conversationID {
			continue
		}
		if offset > 0 && skipped < offset {
			skipped++
			continue
		}
		result = append(result, *message)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (r *fakeMsgRepo) CountUnread(_ context.Context, conversationID, userID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, message := range r.messages {
		if message.ConversationID == conversationID && message.RecipientID == userID && message.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *fakeMsgRepo) MarkRead(_ context.Context, conversationID, userID uint, readAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for _, message := range r.messages {
		if message.ConversationID == conversationID && message.RecipientID == userID && message.ReadAt == nil {
			at := readAt
			message.ReadAt = &at
			updated++
		}
	}
	return updated, nil
}

func (r *fakeMsgRepo) UpdateDeletedFor(_ context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.messages[message.ID]; ok {
		stored.DeletedForRaw = message.DeletedForRaw
	}
	return nil
}

func (r *fakeMsgRepo) Delete(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, id)
	return nil
}

func (r *fakeMsgRepo) DeleteByConversation(_ context.Context, conversationID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, message := range r.messages {
		if message.ConversationID == conversationID {
			delete(r.messages, id)
			removed++
		}
	}
	return removed, nil
}

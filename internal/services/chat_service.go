package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"careconnect/internal/events"
	"careconnect/internal/models"
	"careconnect/internal/storage"
)

// AllowedMessageTypes is the single allow-list applied on both the REST and
// the realtime path.
var AllowedMessageTypes = map[models.MessageType]bool{
	models.TextMessageType:  true,
	models.ImageMessageType: true,
}

// DeleteScope selects the breadth of a message deletion.
type DeleteScope string

const (
	DeleteScopeMe       DeleteScope = "me"       // hide for the requester only
	DeleteScopeEveryone DeleteScope = "everyone" // remove for all participants (sender-only)
)

// DeleteOutcome distinguishes an actual deletion from a no-op on something
// already gone. Both map to a successful response at the API boundary;
// deletion is idempotent by design.
type DeleteOutcome int

const (
	OutcomeDeleted DeleteOutcome = iota
	OutcomeAlreadyAbsent
)

// SendMessageInput carries a message to be created, from either transport.
type SendMessageInput struct {
	ConversationID uint
	Type           string
	Text           string
	FileURL        string
	FileName       string
	FileSize       int64
	ReplyToID      *uint
}

// ChatService is the single message/conversation service consumed by both the
// REST handlers and the realtime gateway.
type ChatService interface {
	// GetOrCreateConversation returns the conversation for the pair, creating
	// it lazily on first use. The bool reports whether it was created.
	GetOrCreateConversation(ctx context.Context, userID, otherUserID uint) (*models.Conversation, bool, error)
	ListConversations(ctx context.Context, userID uint) ([]models.ConversationView, error)
	ListMessages(ctx context.Context, userID, conversationID uint, limit, offset int) ([]models.Message, error)
	SendMessage(ctx context.Context, senderID uint, in SendMessageInput) (*models.Message, error)
	// MarkRead stamps readAt on every unread message addressed to the user in
	// the conversation. Idempotent; returns the number of messages updated.
	MarkRead(ctx context.Context, userID, conversationID uint) (int64, error)
	DeleteMessage(ctx context.Context, requesterID, messageID uint, scope DeleteScope) (DeleteOutcome, error)
	ClearConversation(ctx context.Context, requesterID, conversationID uint) (DeleteOutcome, error)
}

type chatService struct {
	convoRepo   storage.ConversationRepository
	msgRepo     storage.MessageRepository
	connections ConnectionService
	notifier    Notifier
}

// NewChatService creates a new ChatService instance.
func NewChatService(convoRepo storage.ConversationRepository, msgRepo storage.MessageRepository, connections ConnectionService, notifier Notifier) ChatService {
	return &chatService{
		convoRepo:   convoRepo,
		msgRepo:     msgRepo,
		connections: connections,
		notifier:    notifier,
	}
}

// GetOrCreateConversation is idempotent on the unordered user pair: repeated
// calls return the same conversation id.
func (s *chatService) GetOrCreateConversation(ctx context.Context, userID, otherUserID uint) (*models.Conversation, bool, error) {
	if userID == otherUserID {
		return nil, false, ErrSelfConversation
	}

	conversation, err := s.convoRepo.FindByParticipants(ctx, userID, otherUserID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up conversation for %d and %d: %w", userID, otherUserID, err)
	}
	if conversation != nil {
		return conversation, false, nil
	}

	conversation = &models.Conversation{UserA: userID, UserB: otherUserID}
	if err := s.convoRepo.Create(ctx, conversation); err != nil {
		// Losing a create race is not an error; the winner's row is the
		// conversation for the pair.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := s.convoRepo.FindByParticipants(ctx, userID, otherUserID)
			if findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create conversation for %d and %d: %w", userID, otherUserID, err)
	}
	return conversation, true, nil
}

// ListConversations returns every conversation the user participates in,
// annotated with an unread count computed per call and the counterpart's
// directory profile left to the handler layer.
func (s *chatService) ListConversations(ctx context.Context, userID uint) ([]models.ConversationView, error) {
	conversations, err := s.convoRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for user %d: %w", userID, err)
	}

	views := make([]models.ConversationView, 0, len(conversations))
	for i := range conversations {
		c := &conversations[i]
		unread, err := s.msgRepo.CountUnread(ctx, c.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to count unread messages in conversation %d: %w", c.ID, err)
		}
		last, err := c.LastMessage()
		if err != nil {
			log.Printf("Skipping malformed lastMessage snapshot in conversation %d: %v", c.ID, err)
		}
		views = append(views, models.ConversationView{
			ID:           c.ID,
			Participants: c.Participants(),
			LastMessage:  last,
			UnreadCount:  unread,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	return views, nil
}

// ListMessages returns the conversation's messages in server-insertion order,
// filtered down to those visible to the requesting user.
func (s *chatService) ListMessages(ctx context.Context, userID, conversationID uint, limit, offset int) ([]models.Message, error) {
	conversation, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}

	messages, err := s.msgRepo.ListByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages in conversation %d: %w", conversationID, err)
	}

	visible := make([]models.Message, 0, len(messages))
	for i := range messages {
		if messages[i].IsDeletedFor(userID) {
			continue
		}
		visible = append(visible, messages[i])
	}
	return visible, nil
}

// SendMessage validates, persists, updates the conversation's lastMessage
// snapshot, and emits the new_message event. Both transports funnel through
// here.
func (s *chatService) SendMessage(ctx context.Context, senderID uint, in SendMessageInput) (*models.Message, error) {
	msgType := models.MessageType(in.Type)
	if !AllowedMessageTypes[msgType] {
		return nil, ErrUnsupportedMessageType
	}
	if msgType == models.TextMessageType && in.Text == "" {
		return nil, ErrEmptyMessage
	}

	conversation, err := s.getConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}
	recipientID := conversation.OtherParticipant(senderID)

	connected, err := s.connections.AreConnected(ctx, senderID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to check connection between %d and %d: %w", senderID, recipientID, err)
	}
	if !connected {
		return nil, ErrNotConnected
	}

	if in.ReplyToID != nil {
		target, err := s.msgRepo.GetByID(ctx, *in.ReplyToID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up replied-to message %d: %w", *in.ReplyToID, err)
		}
		if target == nil || target.ConversationID != in.ConversationID {
			return nil, ErrInvalidReplyTarget
		}
	}

	message := &models.Message{
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Type:           msgType,
		Text:           in.Text,
		FileURL:        in.FileURL,
		FileName:       in.FileName,
		FileSize:       in.FileSize,
		ReplyToID:      in.ReplyToID,
	}
	if err := s.msgRepo.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to persist message in conversation %d: %w", in.ConversationID, err)
	}

	// Last-write-wins display hint; message rows stay the source of truth.
	if err := s.convoRepo.SetLastMessage(ctx, in.ConversationID, message.Snapshot()); err != nil {
		log.Printf("Failed to update lastMessage snapshot for conversation %d: %v", in.ConversationID, err)
	}

	s.notify(ctx, events.NewMessage, in.ConversationID, []uint{recipientID}, message)
	return message, nil
}

// MarkRead is a bulk conditional update, safe to call concurrently and
// repeatedly.
func (s *chatService) MarkRead(ctx context.Context, userID, conversationID uint) (int64, error) {
	conversation, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conversation.HasParticipant(userID) {
		return 0, ErrNotParticipant
	}

	updated, err := s.msgRepo.MarkRead(ctx, conversationID, userID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark conversation %d read for user %d: %w", conversationID, userID, err)
	}
	return updated, nil
}

// DeleteMessage applies the requested scope. Unknown or already-removed
// messages are a successful no-op, not an error.
func (s *chatService) DeleteMessage(ctx context.Context, requesterID, messageID uint, scope DeleteScope) (DeleteOutcome, error) {
	if scope != DeleteScopeMe && scope != DeleteScopeEveryone {
		return OutcomeAlreadyAbsent, ErrInvalidDeleteScope
	}

	message, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return OutcomeAlreadyAbsent, fmt.Errorf("failed to look up message %d: %w", messageID, err)
	}
	if message == nil {
		return OutcomeAlreadyAbsent, nil
	}

	switch scope {
	case DeleteScopeMe:
		if message.SenderID != requesterID && message.RecipientID != requesterID {
			return OutcomeAlreadyAbsent, ErrNotParticipant
		}
		changed, err := message.MarkDeletedFor(requesterID)
		if err != nil {
			return OutcomeAlreadyAbsent, fmt.Errorf("failed to mark message %d deleted for user %d: %w", messageID, requesterID, err)
		}
		if !changed {
			return OutcomeAlreadyAbsent, nil
		}
		if err := s.msgRepo.UpdateDeletedFor(ctx, message); err != nil {
			return OutcomeAlreadyAbsent, fmt.Errorf("failed to persist deletion set of message %d: %w", messageID, err)
		}
		return OutcomeDeleted, nil

	default: // DeleteScopeEveryone
		if message.SenderID != requesterID {
			return OutcomeAlreadyAbsent, ErrNotMessageSender
		}
		if err := s.msgRepo.Delete(ctx, messageID); err != nil {
			return OutcomeAlreadyAbsent, fmt.Errorf("failed to delete message %d: %w", messageID, err)
		}
		s.notify(ctx, events.MessageDeleted, message.ConversationID,
			[]uint{message.SenderID, message.RecipientID},
			events.MessageDeletedPayload{
				MessageID:      messageID,
				ConversationID: message.ConversationID,
				Scope:          string(DeleteScopeEveryone),
			})
		return OutcomeDeleted, nil
	}
}

// ClearConversation deletes every message in the conversation and unsets the
// lastMessage snapshot. The conversation record itself persists. The clear
// event goes to the room and directly to both participants, covering devices
// that have not opened that specific thread.
func (s *chatService) ClearConversation(ctx context.Context, requesterID, conversationID uint) (DeleteOutcome, error) {
	conversation, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}
	if !conversation.HasParticipant(requesterID) {
		return OutcomeAlreadyAbsent, ErrNotParticipant
	}

	removed, err := s.msgRepo.DeleteByConversation(ctx, conversationID)
	if err != nil {
		return OutcomeAlreadyAbsent, fmt.Errorf("failed to clear conversation %d: %w", conversationID, err)
	}
	if err := s.convoRepo.SetLastMessage(ctx, conversationID, nil); err != nil {
		log.Printf("Failed to unset lastMessage snapshot for conversation %d: %v", conversationID, err)
	}

	s.notify(ctx, events.ConversationCleared, conversationID, conversation.Participants(),
		events.ConversationClearedPayload{ConversationID: conversationID, ClearedBy: requesterID})

	if removed == 0 {
		return OutcomeAlreadyAbsent, nil
	}
	return OutcomeDeleted, nil
}

func (s *chatService) getConversation(ctx context.Context, conversationID uint) (*models.Conversation, error) {
	conversation, err := s.convoRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to retrieve conversation %d: %w", conversationID, err)
	}
	return conversation, nil
}

func (s *chatService) notify(ctx context.Context, t events.EventType, conversationID uint, targets []uint, payload any) {
	ev, err := events.New(t, payload)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", t, err)
		return
	}
	if err := s.notifier.Notify(ctx, conversationID, targets, ev); err != nil {
		log.Printf("Failed to publish %s event for conversation %d: %v", t, conversationID, err)
	}
}

package storage

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"careconnect/internal/models"
)

// ConversationRepository defines the interface for conversation data
// operations.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, id uint) (*models.Conversation, error)
	// FindByParticipants looks up the conversation for an unordered user pair.
	// Returns nil when none exists.
	FindByParticipants(ctx context.Context, userID1, userID2 uint) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID uint) ([]models.Conversation, error)
	// SetLastMessage overwrites the denormalized last-message snapshot.
	// A nil snapshot unsets it.
	SetLastMessage(ctx context.Context, conversationID uint, snap *models.LastMessageSnapshot) error
}

type gormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository creates a GORM-backed ConversationRepository.
func NewGormConversationRepository(db *gorm.DB) ConversationRepository {
	return &gormConversationRepository{db: db}
}

func (r *gormConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	conversation.EnsureCanonicalOrder()
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *gormConversationRepository) GetByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).First(&conversation, id).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *gormConversationRepository) FindByParticipants(ctx context.Context, userID1, userID2 uint) (*models.Conversation, error) {
	if userID1 > userID2 {
		userID1, userID2 = userID2, userID1
	}
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Where("user_a = ? AND user_b = ?", userID1, userID2).
		First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversation, nil
}

func (r *gormConversationRepository) ListForUser(ctx context.Context, userID uint) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Order("updated_at DESC").
		Find(&conversations).Error
	return conversations, err
}

func (r *gormConversationRepository) SetLastMessage(ctx context.Context, conversationID uint, snap *models.LastMessageSnapshot) error {
	var raw any
	if snap != nil {
		encoded, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		raw = json.RawMessage(encoded)
	}
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_message_raw", raw).Error
}

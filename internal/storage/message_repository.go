package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"careconnect/internal/models"
)

// MessageRepository defines the interface for message data operations.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	// GetByID returns nil (not an error) when the message does not exist, so
	// idempotent delete paths can tell absence apart from failure.
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	// ListByConversation returns messages in insertion order (oldest first).
	ListByConversation(ctx context.Context, conversationID uint, limit, offset int) ([]models.Message, error)
	// CountUnread counts messages in the conversation addressed to userID that
	// have not been read yet.
	CountUnread(ctx context.Context, conversationID, userID uint) (int64, error)
	// MarkRead stamps readAt on every unread message addressed to userID in the
	// conversation. Returns the number of rows updated; re-invocation is a no-op.
	MarkRead(ctx context.Context, conversationID, userID uint, readAt time.Time) (int64, error)
	// UpdateDeletedFor persists the per-user deletion set of a message.
	UpdateDeletedFor(ctx context.Context, message *models.Message) error
	Delete(ctx context.Context, id uint) error
	// DeleteByConversation removes every message in the conversation and
	// returns how many rows went away.
	DeleteByConversation(ctx context.Context, conversationID uint) (int64, error)
}

type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a GORM-backed MessageRepository.
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

func (r *gormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *gormMessageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).First(&message, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

func (r *gormMessageRepository) ListByConversation(ctx context.Context, conversationID uint, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC") // server receive-time order

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Find(&messages).Error
	return messages, err
}

func (r *gormMessageRepository) CountUnread(ctx context.Context, conversationID, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND recipient_id = ? AND read_at IS NULL", conversationID, userID).
		Count(&count).Error
	return count, err
}

func (r *gormMessageRepository) MarkRead(ctx context.Context, conversationID, userID uint, readAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND recipient_id = ? AND read_at IS NULL", conversationID, userID).
		Update("read_at", readAt)
	return res.RowsAffected, res.Error
}

func (r *gormMessageRepository) UpdateDeletedFor(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", message.ID).
		Update("deleted_for_raw", message.DeletedForRaw).Error
}

func (r *gormMessageRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Message{}, id).Error
}

func (r *gormMessageRepository) DeleteByConversation(ctx context.Context, conversationID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&models.Message{})
	return res.RowsAffected, res.Error
}

package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"careconnect/internal/models"
)

// ConnectionRequestRepository defines the interface for connection request
// data operations.
type ConnectionRequestRepository interface {
	Create(ctx context.Context, request *models.ConnectionRequest) error
	GetByID(ctx context.Context, requestID uint) (*models.ConnectionRequest, error)
	// FindActiveBetween looks up the pending or accepted request between two
	// users, in either direction. Returns nil when none exists.
	FindActiveBetween(ctx context.Context, userID1, userID2 uint) (*models.ConnectionRequest, error)
	// DeleteRejectedBetween removes any rejected requests between the pair so a
	// fresh request replaces them instead of accumulating.
	DeleteRejectedBetween(ctx context.Context, userID1, userID2 uint) error
	// DeleteOthersBetween removes every request between the pair that is not
	// keepID and not accepted. Used on accept to purge duplicate pending state.
	DeleteOthersBetween(ctx context.Context, userID1, userID2 uint, keepID uint) error
	// DeleteAcceptedBetween removes the accepted request(s) between the pair.
	DeleteAcceptedBetween(ctx context.Context, userID1, userID2 uint) (int64, error)
	UpdateStatus(ctx context.Context, requestID uint, status models.ConnectionRequestStatus) error
	Delete(ctx context.Context, requestID uint) error
	ListPendingForRecipient(ctx context.Context, recipientID uint) ([]models.ConnectionRequest, error)
	ListPendingFromSender(ctx context.Context, senderID uint) ([]models.ConnectionRequest, error)
	ListAcceptedInvolving(ctx context.Context, userID uint) ([]models.ConnectionRequest, error)
}

type gormConnectionRequestRepository struct {
	db *gorm.DB
}

// NewGormConnectionRequestRepository creates a GORM-backed
// ConnectionRequestRepository.
func NewGormConnectionRequestRepository(db *gorm.DB) ConnectionRequestRepository {
	return &gormConnectionRequestRepository{db: db}
}

func (r *gormConnectionRequestRepository) Create(ctx context.Context, request *models.ConnectionRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *gormConnectionRequestRepository) GetByID(ctx context.Context, requestID uint) (*models.ConnectionRequest, error) {
	var request models.ConnectionRequest
	if err := r.db.WithContext(ctx).First(&request, requestID).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func pairScope(db *gorm.DB, userID1, userID2 uint) *gorm.DB {
	return db.Where(
		"(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
		userID1, userID2, userID2, userID1,
	)
}

func (r *gormConnectionRequestRepository) FindActiveBetween(ctx context.Context, userID1, userID2 uint) (*models.ConnectionRequest, error) {
	var request models.ConnectionRequest
	err := pairScope(r.db.WithContext(ctx), userID1, userID2).
		Where("status IN ?", []models.ConnectionRequestStatus{
			models.ConnectionRequestStatusPending,
			models.ConnectionRequestStatusAccepted,
		}).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // no active request is not an error here
		}
		return nil, err
	}
	return &request, nil
}

func (r *gormConnectionRequestRepository) DeleteRejectedBetween(ctx context.Context, userID1, userID2 uint) error {
	return pairScope(r.db.WithContext(ctx), userID1, userID2).
		Where("status = ?", models.ConnectionRequestStatusRejected).
		Delete(&models.ConnectionRequest{}).Error
}

func (r *gormConnectionRequestRepository) DeleteOthersBetween(ctx context.Context, userID1, userID2 uint, keepID uint) error {
	return pairScope(r.db.WithContext(ctx), userID1, userID2).
		Where("id <> ?", keepID).
		Where("status <> ?", models.ConnectionRequestStatusAccepted).
		Delete(&models.ConnectionRequest{}).Error
}

func (r *gormConnectionRequestRepository) DeleteAcceptedBetween(ctx context.Context, userID1, userID2 uint) (int64, error) {
	res := pairScope(r.db.WithContext(ctx), userID1, userID2).
		Where("status = ?", models.ConnectionRequestStatusAccepted).
		Delete(&models.ConnectionRequest{})
	return res.RowsAffected, res.Error
}

func (r *gormConnectionRequestRepository) UpdateStatus(ctx context.Context, requestID uint, status models.ConnectionRequestStatus) error {
	return r.db.WithContext(ctx).Model(&models.ConnectionRequest{}).
		Where("id = ?", requestID).
		Update("status", status).Error
}

func (r *gormConnectionRequestRepository) Delete(ctx context.Context, requestID uint) error {
	return r.db.WithContext(ctx).Delete(&models.ConnectionRequest{}, requestID).Error
}

func (r *gormConnectionRequestRepository) ListPendingForRecipient(ctx context.Context, recipientID uint) ([]models.ConnectionRequest, error) {
	var requests []models.ConnectionRequest
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND status = ?", recipientID, models.ConnectionRequestStatusPending).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

func (r *gormConnectionRequestRepository) ListPendingFromSender(ctx context.Context, senderID uint) ([]models.ConnectionRequest, error) {
	var requests []models.ConnectionRequest
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND status = ?", senderID, models.ConnectionRequestStatusPending).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

func (r *gormConnectionRequestRepository) ListAcceptedInvolving(ctx context.Context, userID uint) ([]models.ConnectionRequest, error) {
	var requests []models.ConnectionRequest
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? OR recipient_id = ?) AND status = ?",
			userID, userID, models.ConnectionRequestStatusAccepted).
		Find(&requests).Error
	return requests, err
}

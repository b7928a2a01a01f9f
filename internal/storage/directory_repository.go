package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"careconnect/internal/models"
)

// GormDirectory resolves user IDs to public profiles by reading the
// marketplace users table. It implements services.Directory; the table itself
// belongs to the identity/profile system and is never written here.
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory creates a directory backed by the shared database.
func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// Lookup resolves a single user. Returns nil when the user does not exist.
func (d *GormDirectory) Lookup(ctx context.Context, userID uint) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := d.db.WithContext(ctx).First(&profile, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// LookupMany resolves a batch of users, keyed by ID. Missing IDs are simply
// absent from the result.
func (d *GormDirectory) LookupMany(ctx context.Context, userIDs []uint) (map[uint]*models.UserProfile, error) {
	result := make(map[uint]*models.UserProfile, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	var profiles []models.UserProfile
	if err := d.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for i := range profiles {
		result[profiles[i].ID] = &profiles[i]
	}
	return result, nil
}

// Search finds connection candidates by name, excluding the searching user.
func (d *GormDirectory) Search(ctx context.Context, query string, excludeUserID uint, limit int) ([]models.UserProfile, error) {
	if limit <= 0 {
		limit = 20
	}
	var profiles []models.UserProfile
	err := d.db.WithContext(ctx).
		Where("name ILIKE ?", "%"+query+"%").
		Where("id <> ?", excludeUserID).
		Limit(limit).
		Find(&profiles).Error
	return profiles, err
}

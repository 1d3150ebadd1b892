package storage

import (
	"tg-sentinel/internal/models"

	"gorm.io/gorm"
)

// ProfileRepository handles database operations for UserSecurityProfile
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// MigrateTable ensures the UserSecurityProfile table exists
func (r *ProfileRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.UserSecurityProfile{})
}

// Get fetches the profile for a (tenant, actor) pair, nil if none exists yet.
func (r *ProfileRepository) Get(tenantID, actorID int64) (*models.UserSecurityProfile, error) {
	var profile models.UserSecurityProfile
	result := r.db.Where("tenant_id = ? AND actor_id = ?", tenantID, actorID).First(&profile)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &profile, nil
}

// Save upserts the profile.
func (r *ProfileRepository) Save(profile *models.UserSecurityProfile) error {
	return r.db.Save(profile).Error
}

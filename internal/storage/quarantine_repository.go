package storage

import (
	"time"

	"tg-sentinel/internal/models"

	"gorm.io/gorm"
)

// QuarantineRepository handles database operations for QuarantineRecord
type QuarantineRepository struct {
	db *gorm.DB
}

// NewQuarantineRepository creates a new QuarantineRepository
func NewQuarantineRepository(db *gorm.DB) *QuarantineRepository {
	return &QuarantineRepository{db: db}
}

// MigrateTable ensures the QuarantineRecord table exists
func (r *QuarantineRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.QuarantineRecord{})
}

// Create inserts a new quarantine episode
func (r *QuarantineRepository) Create(record *models.QuarantineRecord) error {
	return r.db.Create(record).Error
}

// ActiveByActor returns the unreleased record for a user, nil if none.
func (r *QuarantineRepository) ActiveByActor(tenantID, actorID int64) (*models.QuarantineRecord, error) {
	var record models.QuarantineRecord
	result := r.db.Where("tenant_id = ? AND actor_id = ? AND released = ?", tenantID, actorID, false).
		Order("started_at DESC").
		First(&record)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &record, nil
}

// MarkReleased flips the record to released.
func (r *QuarantineRepository) MarkReleased(episodeID, releasedBy string, at time.Time) error {
	return r.db.Model(&models.QuarantineRecord{}).
		Where("episode_id = ? AND released = ?", episodeID, false).
		Updates(map[string]interface{}{
			"released":    true,
			"released_at": at,
			"released_by": releasedBy,
		}).Error
}

// Due returns all unreleased records whose scheduled release time has passed.
// The release scheduler polls this on a ticker so pending releases survive
// process restarts.
func (r *QuarantineRepository) Due(now time.Time) ([]*models.QuarantineRecord, error) {
	var records []*models.QuarantineRecord
	result := r.db.Where("released = ? AND scheduled_release_at <= ?", false, now).
		Find(&records)
	return records, result.Error
}

package storage

import (
	"time"

	"tg-sentinel/internal/models"

	"gorm.io/gorm"
)

// EventRepository handles database operations for ViolationEvent rows
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// MigrateTable ensures the ViolationEvent table exists
func (r *EventRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.ViolationEvent{})
}

// Insert writes a new event row. Rows are write-once; callers never update
// them through this repository except for the moderator verdict.
func (r *EventRepository) Insert(event *models.ViolationEvent) error {
	return r.db.Create(event).Error
}

// MaxSeq returns the highest assigned sequence number for a tenant, 0 if none.
func (r *EventRepository) MaxSeq(tenantID int64) (int64, error) {
	var seq int64
	err := r.db.Model(&models.ViolationEvent{}).
		Where("tenant_id = ?", tenantID).
		Select("COALESCE(MAX(seq_no), 0)").
		Scan(&seq).Error
	return seq, err
}

// Sequences returns every assigned sequence number for a tenant in order,
// used to audit the log for gaps.
func (r *EventRepository) Sequences(tenantID int64) ([]int64, error) {
	var seqs []int64
	err := r.db.Model(&models.ViolationEvent{}).
		Where("tenant_id = ?", tenantID).
		Order("seq_no ASC").
		Pluck("seq_no", &seqs).Error
	return seqs, err
}

// ByHash looks up a single event by its event hash.
func (r *EventRepository) ByHash(eventHash string) (*models.ViolationEvent, error) {
	var event models.ViolationEvent
	result := r.db.Where("event_hash = ?", eventHash).First(&event)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &event, nil
}

// ByActor returns the most recent events for a user, newest first.
func (r *EventRepository) ByActor(tenantID, actorID int64, limit int) ([]*models.ViolationEvent, error) {
	var events []*models.ViolationEvent
	result := r.db.Where("tenant_id = ? AND actor_id = ?", tenantID, actorID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events)
	return events, result.Error
}

// ByTenantSince returns tenant events created after the given time, newest first.
func (r *EventRepository) ByTenantSince(tenantID int64, since time.Time, limit int) ([]*models.ViolationEvent, error) {
	var events []*models.ViolationEvent
	result := r.db.Where("tenant_id = ? AND created_at > ?", tenantID, since).
		Order("created_at DESC").
		Limit(limit).
		Find(&events)
	return events, result.Error
}

// UpdateVerdict records the moderator verdict on an existing event. This is
// the only permitted mutation of a logged event.
func (r *EventRepository) UpdateVerdict(eventHash string, verdict models.Verdict) error {
	result := r.db.Model(&models.ViolationEvent{}).
		Where("event_hash = ?", eventHash).
		Update("moderator_verdict", verdict)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

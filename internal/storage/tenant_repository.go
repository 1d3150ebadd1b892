package storage

import (
	"time"

	"tg-sentinel/internal/models"

	"gorm.io/gorm"
)

// TenantRepository handles database operations for tenant settings and
// lockdown state
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new TenantRepository
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// MigrateTables ensures the tenant tables exist
func (r *TenantRepository) MigrateTables() error {
	if err := r.db.AutoMigrate(&models.TenantSettings{}); err != nil {
		return err
	}
	return r.db.AutoMigrate(&models.TenantLockdown{})
}

// GetSettings fetches the settings row for a tenant, nil if none.
func (r *TenantRepository) GetSettings(tenantID int64) (*models.TenantSettings, error) {
	var settings models.TenantSettings
	result := r.db.Where("tenant_id = ?", tenantID).First(&settings)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &settings, nil
}

// SaveSettings upserts the settings row.
func (r *TenantRepository) SaveSettings(settings *models.TenantSettings) error {
	return r.db.Save(settings).Error
}

// CreateLockdown inserts a new lockdown row.
func (r *TenantRepository) CreateLockdown(lockdown *models.TenantLockdown) error {
	return r.db.Create(lockdown).Error
}

// ActiveLockdown returns the active lockdown for a tenant, nil if none.
func (r *TenantRepository) ActiveLockdown(tenantID int64) (*models.TenantLockdown, error) {
	var lockdown models.TenantLockdown
	result := r.db.Where("tenant_id = ? AND active = ?", tenantID, true).First(&lockdown)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &lockdown, nil
}

// ActiveLockdowns returns every active lockdown, used to restore state at startup.
func (r *TenantRepository) ActiveLockdowns() ([]*models.TenantLockdown, error) {
	var lockdowns []*models.TenantLockdown
	result := r.db.Where("active = ?", true).Find(&lockdowns)
	return lockdowns, result.Error
}

// LiftLockdown deactivates the active lockdown for a tenant.
func (r *TenantRepository) LiftLockdown(tenantID int64, liftedBy string, at time.Time) error {
	return r.db.Model(&models.TenantLockdown{}).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Updates(map[string]interface{}{
			"active":    false,
			"lifted_at": at,
			"lifted_by": liftedBy,
		}).Error
}

package models

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// TenantSettings holds the per-tenant overrides of the moderation defaults.
// Mutated only through the audited /configure command.
type TenantSettings struct {
	ID       uint  `gorm:"primaryKey;autoIncrement"`
	TenantID int64 `gorm:"uniqueIndex;not null"`

	TenantName string `gorm:"size:255"`
	AdminID    int64

	ActivationThreshold    float64       `gorm:"default:0"`
	ZeroToleranceThreshold float64       `gorm:"default:0"`
	QuarantineDuration     time.Duration `gorm:"default:0"`
	TimeoutDuration        time.Duration `gorm:"default:0"`
	LockdownThreshold      int64         `gorm:"default:0"`

	// Risk weight overrides; zero means "use the global default".
	WeightConfidence float64 `gorm:"default:0"`
	WeightAccountAge float64 `gorm:"default:0"`
	WeightRole       float64 `gorm:"default:0"`
	WeightHistory    float64 `gorm:"default:0"`
	WeightContext    float64 `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Set applies a single /configure key=value update. Unknown keys are rejected
// so typos do not silently succeed.
func (s *TenantSettings) Set(key, value string) error {
	switch key {
	case "activation_threshold", "zero_tolerance_threshold",
		"weight_confidence", "weight_account_age", "weight_role",
		"weight_history", "weight_context":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float for %s: %w", key, err)
		}
		switch key {
		case "activation_threshold":
			s.ActivationThreshold = f
		case "zero_tolerance_threshold":
			s.ZeroToleranceThreshold = f
		case "weight_confidence":
			s.WeightConfidence = f
		case "weight_account_age":
			s.WeightAccountAge = f
		case "weight_role":
			s.WeightRole = f
		case "weight_history":
			s.WeightHistory = f
		case "weight_context":
			s.WeightContext = f
		}
	case "quarantine_duration", "timeout_duration":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		if key == "quarantine_duration" {
			s.QuarantineDuration = d
		} else {
			s.TimeoutDuration = d
		}
	case "lockdown_threshold":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		s.LockdownThreshold = n
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}
	return nil
}

// TenantLockdown is the persisted lockdown state for a tenant. Lockdowns do
// not auto-expire, the row stays active until an explicit unlock.
type TenantLockdown struct {
	ID       uint  `gorm:"primaryKey;autoIncrement"`
	TenantID int64 `gorm:"index;not null"`

	Reason    string `gorm:"type:text"`
	Active    bool   `gorm:"index;default:true"`
	TrippedAt time.Time
	TrippedBy string `gorm:"size:64"`

	// Snapshot of the tenant-wide default grants at trip time, restored on
	// unlock.
	SavedGrants GrantMap `gorm:"serializer:json"`

	LiftedAt time.Time
	LiftedBy string `gorm:"size:64"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantSettingsManager caches tenant settings in memory.
type TenantSettingsManager struct {
	settings map[int64]*TenantSettings
	mu       sync.RWMutex
}

func NewTenantSettingsManager() *TenantSettingsManager {
	return &TenantSettingsManager{
		settings: make(map[int64]*TenantSettings),
	}
}

func (m *TenantSettingsManager) Get(tenantID int64) *TenantSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[tenantID]
}

func (m *TenantSettingsManager) Put(s *TenantSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.TenantID] = s
}

func (m *TenantSettingsManager) Remove(tenantID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, tenantID)
}

package models

import "time"

// QuarantineRecord captures one quarantine episode: the snapshot of the grants
// a user held when quarantined, and when they are due back. A new record is
// created per episode, records are never reused.
type QuarantineRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	EpisodeID string `gorm:"uniqueIndex;size:36;not null"`
	TenantID  int64  `gorm:"index:idx_quarantine_tenant_actor;not null"`
	ActorID   int64  `gorm:"index:idx_quarantine_tenant_actor;not null"`

	// Snapshot of the removable grants held at quarantine time, restored on
	// release.
	OriginalGrants GrantMap `gorm:"serializer:json"`

	Reason string `gorm:"type:text"`

	StartedAt          time.Time
	ScheduledReleaseAt time.Time `gorm:"index"`

	Released   bool `gorm:"default:false"`
	ReleasedAt time.Time
	ReleasedBy string `gorm:"size:64"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// GrantMap is a JSON-serialized snapshot of named grants to held/not-held.
type GrantMap map[string]bool

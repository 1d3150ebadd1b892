package models

import (
	"sort"
	"time"
)

// RollingWindow is how long warnings stay countable for the escalation ladder.
const RollingWindow = 24 * time.Hour

// Punishment is one applied action with its expiry, kept as history on the profile.
type Punishment struct {
	Action    Action    `json:"action"`
	AppliedAt time.Time `json:"applied_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// UserSecurityProfile tracks one user's standing inside one tenant.
// Created lazily on the first observed event; never hard-deleted, the rolling
// warning window is pruned instead to bound growth.
type UserSecurityProfile struct {
	ID       uint  `gorm:"primaryKey;autoIncrement"`
	TenantID int64 `gorm:"uniqueIndex:idx_profile_tenant_actor;not null"`
	ActorID  int64 `gorm:"uniqueIndex:idx_profile_tenant_actor;not null"`

	TrustScore float64 `gorm:"default:0.5"`

	// Ordered warning timestamps; entries older than RollingWindow are pruned
	// before every count.
	RollingWarnings TimeList `gorm:"serializer:json"`

	PunishmentHistory []Punishment `gorm:"serializer:json"`

	// The platform does not expose account creation dates, so account age is
	// approximated by when the engine first saw the user. New-to-the-engine
	// accounts score riskier, which preserves the young-account semantics.
	FirstSeenAt time.Time

	// Role count beyond the default member role at last observation.
	RoleCount int

	Banned bool `gorm:"default:false"`

	ViolationCounts CountMap `gorm:"serializer:json"`
	TotalViolations int64    `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimeList is a JSON-serialized timestamp slice column.
type TimeList []time.Time

// CountMap is a JSON-serialized per-violation-type counter column.
type CountMap map[string]int64

// AccountAgeDays returns the approximated account age at the given time.
func (p *UserSecurityProfile) AccountAgeDays(now time.Time) int {
	if p.FirstSeenAt.IsZero() {
		return 0
	}
	return int(now.Sub(p.FirstSeenAt).Hours() / 24)
}

// PruneWarnings discards rolling warnings older than the 24h window.
func (p *UserSecurityProfile) PruneWarnings(now time.Time) {
	cutoff := now.Add(-RollingWindow)
	kept := p.RollingWarnings[:0]
	for _, ts := range p.RollingWarnings {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	p.RollingWarnings = kept
}

// AddWarning appends a warning timestamp, keeping the list ordered.
func (p *UserSecurityProfile) AddWarning(now time.Time) {
	p.RollingWarnings = append(p.RollingWarnings, now)
	sort.Slice(p.RollingWarnings, func(i, j int) bool {
		return p.RollingWarnings[i].Before(p.RollingWarnings[j])
	})
}

// WarningCount prunes and returns the in-window warning count.
func (p *UserSecurityProfile) WarningCount(now time.Time) int {
	p.PruneWarnings(now)
	return len(p.RollingWarnings)
}

// AdjustTrust moves the trust score by delta, clamped to [0,1].
func (p *UserSecurityProfile) AdjustTrust(delta float64) {
	p.TrustScore += delta
	if p.TrustScore < 0 {
		p.TrustScore = 0
	}
	if p.TrustScore > 1 {
		p.TrustScore = 1
	}
}

// RecordViolation bumps the per-type and total counters.
func (p *UserSecurityProfile) RecordViolation(t ViolationType) {
	if p.ViolationCounts == nil {
		p.ViolationCounts = make(CountMap)
	}
	p.ViolationCounts[string(t)]++
	p.TotalViolations++
}

// RecordPunishment appends to the punishment history.
func (p *UserSecurityProfile) RecordPunishment(action Action, now time.Time, expiry time.Time) {
	p.PunishmentHistory = append(p.PunishmentHistory, Punishment{
		Action:    action,
		AppliedAt: now,
		ExpiresAt: expiry,
	})
}

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ViolationType categorizes the abuse detected in a message.
type ViolationType string

const (
	ViolationScam          ViolationType = "scam"
	ViolationSpam          ViolationType = "spam"
	ViolationMalware       ViolationType = "malware"
	ViolationHarassment    ViolationType = "harassment"
	ViolationPhishing      ViolationType = "phishing"
	ViolationRaid          ViolationType = "raid"
	ViolationNSFW          ViolationType = "nsfw"
	ViolationImpersonation ViolationType = "impersonation"
	ViolationNone          ViolationType = "none"
)

// Action is the punishment decided by the escalation policy.
type Action string

const (
	ActionNone       Action = "none"
	ActionWarn       Action = "warn"
	ActionTimeout    Action = "timeout"
	ActionQuarantine Action = "quarantine"
	ActionBan        Action = "ban"
	ActionLockdown   Action = "lockdown"
)

// Verdict is the tri-state moderator review outcome.
type Verdict string

const (
	VerdictUnset     Verdict = ""
	VerdictConfirmed Verdict = "confirmed"
	VerdictRejected  Verdict = "rejected"
)

// ViolationEvent is the forensic record of a single moderation decision.
// It doubles as the forensic log entry: rows are write-once, carry a strictly
// monotonic per-tenant sequence number, and are only ever updated to record a
// moderator verdict.
type ViolationEvent struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	EventHash string `gorm:"uniqueIndex;size:64;not null"`
	SeqNo     int64  `gorm:"uniqueIndex:idx_tenant_seq;not null"`
	TenantID  int64  `gorm:"uniqueIndex:idx_tenant_seq;index:idx_tenant_actor_time,priority:1;not null"`
	ActorID   int64  `gorm:"index:idx_tenant_actor_time,priority:2;not null"`
	ChannelID int64
	SourceRef string `gorm:"size:64"`

	Type       ViolationType `gorm:"size:16;not null"`
	Severity   int           `gorm:"not null"`
	Confidence float64       `gorm:"not null"`
	RiskScore  float64       `gorm:"not null"`

	ActionTaken   Action `gorm:"size:16;not null"`
	ActionApplied bool   `gorm:"default:false"`
	ActionError   string `gorm:"type:text"`

	// Matched signature IDs, kept so moderator verdicts can be fed back into
	// the signature weights.
	MatchedSignatures StringList `gorm:"serializer:json"`

	ContentHash string `gorm:"index;size:64;not null"`
	// Raw content is retained under access control so the hash alone can be
	// used for lookups without re-exposing it.
	RawContent string `gorm:"type:text"`

	ModeratorVerdict Verdict `gorm:"size:16;default:''"`

	CreatedAt time.Time `gorm:"index:idx_tenant_actor_time,priority:3"`
}

// StringList is a JSON-serialized string slice column.
type StringList []string

// Critical reports whether the event counts toward the emergency lockdown window.
func (e *ViolationEvent) Critical() bool {
	return e.Severity >= 4
}

// HashContent computes the one-way digest stored as content_hash.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// EventHashFor derives the unique event hash from the content digest, the
// involved parties and the observation time.
func EventHashFor(tenantID, actorID int64, contentHash string, at time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d:%s:%d", tenantID, actorID, contentHash, at.UnixNano())))
	return hex.EncodeToString(sum[:])
}

// Package quarantine executes and reverses the remove-privileges side effect:
// it snapshots a user's grants, strips them, and schedules automatic
// restoration. Completion is reported outward through a callback consumed by
// the forensic logger, never back into the escalation policy.
package quarantine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tg-sentinel/internal/config"
	"tg-sentinel/internal/logger"
	"tg-sentinel/internal/models"
	"tg-sentinel/internal/platform"
	"tg-sentinel/internal/ratelimit"
)

// Store is the persistence surface the manager needs.
type Store interface {
	Create(record *models.QuarantineRecord) error
	ActiveByActor(tenantID, actorID int64) (*models.QuarantineRecord, error)
	MarkReleased(episodeID, releasedBy string, at time.Time) error
	Due(now time.Time) ([]*models.QuarantineRecord, error)
}

// GrantOutcome is the per-grant result of a release.
type GrantOutcome struct {
	Grant  platform.Grant
	Status string // restored | skipped | failed
	Detail string
}

// ReleaseReport breaks a release down per grant instead of a single boolean.
type ReleaseReport struct {
	EpisodeID       string
	AlreadyReleased bool
	Restored        []GrantOutcome
	Skipped         []GrantOutcome
	Failed          []GrantOutcome
	Elapsed         time.Duration
}

// ReleaseFunc observes completed releases (scheduled or manual).
type ReleaseFunc func(record *models.QuarantineRecord, report *ReleaseReport)

// Manager owns the QuarantineRecord lifecycle. Only this package creates or
// mutates quarantine records.
type Manager struct {
	gateway platform.Gateway
	store   Store
	limiter *ratelimit.ActionLimiter
	retry   config.RetryConfig

	defaultDuration time.Duration
	maxDuration     time.Duration

	onRelease ReleaseFunc
}

func NewManager(gateway platform.Gateway, store Store, limiter *ratelimit.ActionLimiter, mod config.ModerationConfig) *Manager {
	return &Manager{
		gateway:         gateway,
		store:           store,
		limiter:         limiter,
		retry:           mod.Retry,
		defaultDuration: mod.QuarantineDuration,
		maxDuration:     mod.QuarantineMax,
	}
}

// OnRelease registers the completion observer.
func (m *Manager) OnRelease(fn ReleaseFunc) {
	m.onRelease = fn
}

// Enter quarantines a user: snapshots their current grants, strips them all,
// and schedules the release. The parallel timed restriction doubles as a
// platform-side safety net should the release scheduler be down. If the user
// is already quarantined the existing episode is returned unchanged.
func (m *Manager) Enter(ctx context.Context, tenantID, actorID int64, duration time.Duration, reason string) (*models.QuarantineRecord, error) {
	if duration <= 0 {
		duration = m.defaultDuration
	}
	if duration > m.maxDuration {
		duration = m.maxDuration
	}

	if existing, err := m.store.ActiveByActor(tenantID, actorID); err != nil {
		return nil, fmt.Errorf("checking active quarantine: %w", err)
	} else if existing != nil {
		logger.Infof("actor %d in tenant %d is already quarantined (episode %s)", actorID, tenantID, existing.EpisodeID)
		return existing, nil
	}

	snapshot, err := m.gateway.MemberGrants(ctx, tenantID, actorID)
	if err != nil {
		return nil, fmt.Errorf("snapshotting grants: %w", err)
	}

	if err := m.limiter.Wait(ctx, ratelimit.CategoryRoleEdit, tenantID); err != nil {
		return nil, err
	}
	now := time.Now()
	releaseAt := now.Add(duration)
	err = platform.Retry(ctx, m.retry, "quarantine restrict", func() error {
		return m.gateway.RestrictMember(ctx, tenantID, actorID, platform.NoGrants(), releaseAt)
	})
	if err != nil {
		return nil, err
	}

	grantMap := make(models.GrantMap, len(snapshot))
	for grant, held := range snapshot {
		grantMap[string(grant)] = held
	}
	record := &models.QuarantineRecord{
		EpisodeID:          uuid.NewString(),
		TenantID:           tenantID,
		ActorID:            actorID,
		OriginalGrants:     grantMap,
		Reason:             reason,
		StartedAt:          now,
		ScheduledReleaseAt: releaseAt,
	}
	if err := m.store.Create(record); err != nil {
		return nil, fmt.Errorf("persisting quarantine record: %w", err)
	}

	logger.Infof("quarantined actor %d in tenant %d for %v (episode %s): %s",
		actorID, tenantID, duration, record.EpisodeID, reason)
	return record, nil
}

// Release restores the snapshotted grants. Grants the tenant has since
// revoked group-wide, and grants outside the engine's authority, are skipped
// and reported rather than silently dropped. Releasing an already-released
// episode is a no-op reported as such.
func (m *Manager) Release(ctx context.Context, tenantID, actorID int64, releasedBy string) (*ReleaseReport, error) {
	record, err := m.store.ActiveByActor(tenantID, actorID)
	if err != nil {
		return nil, fmt.Errorf("loading quarantine record: %w", err)
	}
	if record == nil {
		return &ReleaseReport{AlreadyReleased: true}, nil
	}

	report := &ReleaseReport{EpisodeID: record.EpisodeID}

	chatGrants, err := m.gateway.ChatGrants(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("reading tenant default grants: %w", err)
	}

	restore := platform.NoGrants()
	for _, grant := range platform.AllGrants {
		if !record.OriginalGrants[string(grant)] {
			continue
		}
		if !chatGrants[grant] {
			report.Skipped = append(report.Skipped, GrantOutcome{
				Grant:  grant,
				Status: "skipped",
				Detail: "revoked tenant-wide since quarantine",
			})
			continue
		}
		restore[grant] = true
	}

	if err := m.limiter.Wait(ctx, ratelimit.CategoryRoleEdit, tenantID); err != nil {
		return nil, err
	}
	err = platform.Retry(ctx, m.retry, "quarantine release", func() error {
		return m.gateway.RestrictMember(ctx, tenantID, actorID, restore, time.Time{})
	})
	for _, grant := range restore.Held() {
		outcome := GrantOutcome{Grant: grant, Status: "restored"}
		if err != nil {
			outcome.Status = "failed"
			outcome.Detail = err.Error()
			report.Failed = append(report.Failed, outcome)
			continue
		}
		report.Restored = append(report.Restored, outcome)
	}
	if err != nil {
		logger.Warningf("quarantine release for actor %d in tenant %d partially failed: %v", actorID, tenantID, err)
	}

	now := time.Now()
	if err := m.store.MarkReleased(record.EpisodeID, releasedBy, now); err != nil {
		return nil, fmt.Errorf("marking record released: %w", err)
	}
	record.Released = true
	record.ReleasedAt = now
	record.ReleasedBy = releasedBy
	report.Elapsed = now.Sub(record.StartedAt)

	logger.Infof("released actor %d in tenant %d after %v: %d restored, %d skipped, %d failed",
		actorID, tenantID, report.Elapsed, len(report.Restored), len(report.Skipped), len(report.Failed))

	if m.onRelease != nil {
		m.onRelease(record, report)
	}
	return report, nil
}

package quarantine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-sentinel/internal/config"
	"tg-sentinel/internal/models"
	"tg-sentinel/internal/platform"
	"tg-sentinel/internal/ratelimit"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu      sync.Mutex
	records []*models.QuarantineRecord
}

func (s *memStore) Create(record *models.QuarantineRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *memStore) ActiveByActor(tenantID, actorID int64) (*models.QuarantineRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.TenantID == tenantID && r.ActorID == actorID && !r.Released {
			return r, nil
		}
	}
	return nil, nil
}

func (s *memStore) MarkReleased(episodeID, releasedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.EpisodeID == episodeID && !r.Released {
			r.Released = true
			r.ReleasedAt = at
			r.ReleasedBy = releasedBy
		}
	}
	return nil
}

func (s *memStore) Due(now time.Time) ([]*models.QuarantineRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.QuarantineRecord
	for _, r := range s.records {
		if !r.Released && !r.ScheduledReleaseAt.After(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

func testModConfig() config.ModerationConfig {
	return config.ModerationConfig{
		QuarantineDuration: 24 * time.Hour,
		QuarantineMax:      28 * 24 * time.Hour,
		RateLimits:         config.RateLimitConfig{RoleEdit: 6000},
		Retry:              config.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond},
	}
}

func newTestManager() (*Manager, *platform.FakeGateway, *memStore) {
	gw := platform.NewFakeGateway()
	store := &memStore{}
	mod := testModConfig()
	m := NewManager(gw, store, ratelimit.NewActionLimiter(mod.RateLimits), mod)
	return m, gw, store
}

func TestEnterSnapshotsAndStrips(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m, gw, store := newTestManager()

	grants := platform.NoGrants()
	grants[platform.GrantSendMessages] = true
	grants[platform.GrantSendPhotos] = true
	gw.SetMemberGrants(-100, 7, grants)

	record, err := m.Enter(ctx, -100, 7, 0, "escalation")
	require.NoError(t, err)
	assert.NotEmpty(record.EpisodeID)
	assert.True(record.OriginalGrants[string(platform.GrantSendMessages)])
	assert.True(record.OriginalGrants[string(platform.GrantSendPhotos)])
	assert.False(record.OriginalGrants[string(platform.GrantSendPolls)])

	// grants were stripped on the platform, with a parallel timed restriction
	require.Len(t, gw.Restricts, 1)
	assert.Equal(platform.NoGrants(), gw.Restricts[0].Grants)
	assert.False(gw.Restricts[0].Until.IsZero())

	// default duration applied
	assert.WithinDuration(time.Now().Add(24*time.Hour), record.ScheduledReleaseAt, time.Minute)

	// re-entering while active returns the same episode
	again, err := m.Enter(ctx, -100, 7, 0, "duplicate")
	require.NoError(t, err)
	assert.Equal(record.EpisodeID, again.EpisodeID)
	assert.Len(store.records, 1)
}

func TestEnterCapsDuration(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()

	record, err := m.Enter(ctx, -100, 8, 90*24*time.Hour, "manual")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(28*24*time.Hour), record.ScheduledReleaseAt, time.Minute)
}

func TestEnterRefusesAdmins(t *testing.T) {
	ctx := context.Background()
	m, gw, _ := newTestManager()
	gw.SetAdmin(-100, 9)

	_, err := m.Enter(ctx, -100, 9, 0, "manual")
	assert.Error(t, err)
	assert.True(t, platform.IsAuthority(err))
}

func TestReleaseRestoresAndReportsSkipped(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m, gw, _ := newTestManager()

	// user holds 4 grants at quarantine time
	grants := platform.NoGrants()
	for _, g := range []platform.Grant{
		platform.GrantSendMessages, platform.GrantSendPhotos,
		platform.GrantSendPolls, platform.GrantInviteUsers,
	} {
		grants[g] = true
	}
	gw.SetMemberGrants(-100, 7, grants)

	_, err := m.Enter(ctx, -100, 7, time.Hour, "escalation")
	require.NoError(t, err)

	// an admin has since revoked two of them tenant-wide
	defaults := platform.NoGrants()
	defaults[platform.GrantSendMessages] = true
	defaults[platform.GrantSendPhotos] = true
	gw.SetChatDefaults(-100, defaults)

	report, err := m.Release(ctx, -100, 7, "moderator")
	require.NoError(t, err)
	assert.False(report.AlreadyReleased)
	assert.Len(report.Restored, 2)
	assert.Len(report.Skipped, 2)
	assert.Empty(report.Failed)

	restored, err := gw.MemberGrants(ctx, -100, 7)
	require.NoError(t, err)
	assert.True(restored[platform.GrantSendMessages])
	assert.True(restored[platform.GrantSendPhotos])
	assert.False(restored[platform.GrantSendPolls])
	assert.False(restored[platform.GrantInviteUsers])
}

func TestReleaseIsIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m, gw, _ := newTestManager()

	grants := platform.NoGrants()
	grants[platform.GrantSendMessages] = true
	gw.SetMemberGrants(-100, 7, grants)

	_, err := m.Enter(ctx, -100, 7, time.Hour, "escalation")
	require.NoError(t, err)

	first, err := m.Release(ctx, -100, 7, "moderator")
	require.NoError(t, err)
	assert.False(first.AlreadyReleased)

	second, err := m.Release(ctx, -100, 7, "moderator")
	require.NoError(t, err)
	assert.True(second.AlreadyReleased)
	assert.Empty(second.Restored)
}

func TestNewEpisodePerQuarantine(t *testing.T) {
	ctx := context.Background()
	m, gw, store := newTestManager()

	grants := platform.NoGrants()
	grants[platform.GrantSendMessages] = true
	gw.SetMemberGrants(-100, 7, grants)

	first, err := m.Enter(ctx, -100, 7, time.Hour, "one")
	require.NoError(t, err)
	_, err = m.Release(ctx, -100, 7, "moderator")
	require.NoError(t, err)

	gw.SetMemberGrants(-100, 7, grants)
	second, err := m.Enter(ctx, -100, 7, time.Hour, "two")
	require.NoError(t, err)

	assert.NotEqual(t, first.EpisodeID, second.EpisodeID)
	assert.Len(t, store.records, 2)
}

func TestScheduledReleaseObserved(t *testing.T) {
	ctx := context.Background()
	m, gw, _ := newTestManager()

	grants := platform.NoGrants()
	grants[platform.GrantSendMessages] = true
	gw.SetMemberGrants(-100, 7, grants)

	var observed []*ReleaseReport
	m.OnRelease(func(_ *models.QuarantineRecord, report *ReleaseReport) {
		observed = append(observed, report)
	})

	record, err := m.Enter(ctx, -100, 7, time.Hour, "escalation")
	require.NoError(t, err)
	// force the deadline into the past and run one scheduler pass
	record.ScheduledReleaseAt = time.Now().Add(-time.Minute)
	m.releaseDue(ctx)

	require.Len(t, observed, 1)
	assert.Equal(t, record.EpisodeID, observed[0].EpisodeID)
}

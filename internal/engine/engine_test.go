package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-sentinel/internal/classifier"
	"tg-sentinel/internal/config"
	"tg-sentinel/internal/countstore"
	"tg-sentinel/internal/forensics"
	"tg-sentinel/internal/lockdown"
	"tg-sentinel/internal/models"
	"tg-sentinel/internal/platform"
	"tg-sentinel/internal/quarantine"
	"tg-sentinel/internal/ratelimit"
	"tg-sentinel/internal/risk"
)

type memEvents struct {
	mu     sync.Mutex
	events []*models.ViolationEvent
}

func (s *memEvents) Insert(event *models.ViolationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *event
	s.events = append(s.events, &clone)
	return nil
}

func (s *memEvents) MaxSeq(tenantID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for _, e := range s.events {
		if e.TenantID == tenantID && e.SeqNo > max {
			max = e.SeqNo
		}
	}
	return max, nil
}

func (s *memEvents) Sequences(tenantID int64) ([]int64, error) { return nil, nil }

func (s *memEvents) ByHash(eventHash string) (*models.ViolationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.EventHash == eventHash {
			return e, nil
		}
	}
	return nil, nil
}

func (s *memEvents) ByActor(tenantID, actorID int64, limit int) ([]*models.ViolationEvent, error) {
	return nil, nil
}

func (s *memEvents) ByTenantSince(tenantID int64, since time.Time, limit int) ([]*models.ViolationEvent, error) {
	return nil, nil
}

func (s *memEvents) UpdateVerdict(eventHash string, verdict models.Verdict) error { return nil }

func (s *memEvents) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *memEvents) last() *models.ViolationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]*models.UserSecurityProfile
}

func (s *memProfiles) Get(tenantID, actorID int64) (*models.UserSecurityProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[fmt.Sprintf("%d/%d", tenantID, actorID)], nil
}

func (s *memProfiles) Save(profile *models.UserSecurityProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profiles == nil {
		s.profiles = make(map[string]*models.UserSecurityProfile)
	}
	s.profiles[fmt.Sprintf("%d/%d", profile.TenantID, profile.ActorID)] = profile
	return nil
}

type memQuarantine struct {
	mu      sync.Mutex
	records []*models.QuarantineRecord
}

func (s *memQuarantine) Create(record *models.QuarantineRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *memQuarantine) ActiveByActor(tenantID, actorID int64) (*models.QuarantineRecord, error) {
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

func (s *memQuarantine) MarkReleased(episodeID, releasedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.EpisodeID == episodeID {
			r.Released = true
		}
	}
	return nil
}

func (s *memQuarantine) Due(now time.Time) ([]*models.QuarantineRecord, error) { return nil, nil }

type memLockdowns struct {
	mu        sync.Mutex
	lockdowns []*models.TenantLockdown
}

func (s *memLockdowns) CreateLockdown(ld *models.TenantLockdown) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockdowns = append(s.lockdowns, ld)
	return nil
}

func (s *memLockdowns) ActiveLockdown(tenantID int64) (*models.TenantLockdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ld := range s.lockdowns {
		if ld.TenantID == tenantID && ld.Active {
			return ld, nil
		}
	}
	return nil, nil
}

func (s *memLockdowns) ActiveLockdowns() ([]*models.TenantLockdown, error) { return nil, nil }

func (s *memLockdowns) LiftLockdown(tenantID int64, liftedBy string, at time.Time) error {
	return nil
}

func testModConfig() config.ModerationConfig {
	return config.ModerationConfig{
		Weights:                config.RiskWeights{Confidence: 0.45, AccountAge: 0.15, Role: 0.10, History: 0.20, Context: 0.10},
		YoungAccountDays:       7,
		ActivationThreshold:    0.35,
		ZeroToleranceThreshold: 0.85,
		TimeoutDuration:        time.Hour,
		QuarantineDuration:     24 * time.Hour,
		QuarantineMax:          28 * 24 * time.Hour,
		SimilarityThreshold:    0.30,
		VerdictStep:            0.05,
		Lockdown:               config.LockdownConfig{Threshold: 3, Window: time.Minute},
		// generous budgets so tests never block on pacing
		RateLimits: config.RateLimitConfig{Delete: 60000, Timeout: 60000, Ban: 60000, RoleEdit: 60000, Message: 60000},
		Retry:      config.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond},
	}
}

type testRig struct {
	engine *Engine
	gw     *platform.FakeGateway
	events *memEvents
	counts *countstore.MemCountStore
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	cfg := testModConfig()
	gw := platform.NewFakeGateway()
	events := &memEvents{}
	counts := countstore.NewMemCountStore()
	limiter := ratelimit.NewActionLimiter(cfg.RateLimits)
	eng := New(cfg, Deps{
		Signatures:   classifier.DefaultSignatureStore(cfg.ActivationThreshold),
		Scorer:       risk.NewScorer(cfg),
		Profiles:     models.NewProfileManager(),
		ProfileStore: &memProfiles{},
		Settings:     models.NewTenantSettingsManager(),
		Forensics:    forensics.NewLogger(events),
		Quarantine:   quarantine.NewManager(gw, &memQuarantine{}, limiter, cfg),
		Lockdown:     lockdown.NewController(&memLockdowns{}, gw, cfg.Lockdown.Threshold, cfg.Lockdown.Window),
		Gateway:      gw,
		Limiter:      limiter,
		Counts:       counts,
	})
	return &testRig{engine: eng, gw: gw, events: events, counts: counts}
}

func message(tenantID, actorID int64, content string) Message {
	return Message{
		TenantID:  tenantID,
		ActorID:   actorID,
		ChannelID: tenantID,
		MessageID: int(actorID),
		Content:   content,
	}
}

func TestCleanMessageLeavesNoTrace(t *testing.T) {
	rig := newTestRig(t)

	result, err := rig.engine.ProcessMessage(context.Background(), message(100, 1, "what time is the community call tomorrow"))
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, rig.events.count())
	assert.Empty(t, rig.gw.Deleted)
}

func TestZeroToleranceScamBansOnFirstEvent(t *testing.T) {
	rig := newTestRig(t)

	result, err := rig.engine.ProcessMessage(context.Background(), message(100, 1, "free crypto giveaway, claim yours today"))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, models.ActionBan, result.Decision.Action)
	assert.True(t, result.Decision.ZeroTolerance)
	assert.True(t, rig.gw.IsBanned(100, 1))

	require.Equal(t, 1, rig.events.count())
	event := rig.events.last()
	assert.Equal(t, models.ViolationScam, event.Type)
	assert.True(t, event.ActionApplied)
	assert.Equal(t, int64(1), event.SeqNo)
	assert.Len(t, rig.gw.Deleted, 1)
}

func TestSpamEscalatesThroughLadder(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	var actions []models.Action
	for i := 0; i < 3; i++ {
		result, err := rig.engine.ProcessMessage(ctx, message(100, 1, "buy followers here cheap today"))
		require.NoError(t, err)
		require.NotNil(t, result)
		actions = append(actions, result.Decision.Action)
	}

	assert.Equal(t, []models.Action{models.ActionWarn, models.ActionWarn, models.ActionTimeout}, actions)
	require.Len(t, rig.gw.Restricts, 1)
	assert.Empty(t, rig.gw.Restricts[0].Grants.Held())
	assert.Equal(t, 3, rig.events.count())
}

func TestActionFailureIsRecordedNotDropped(t *testing.T) {
	rig := newTestRig(t)
	rig.gw.Err = &platform.AuthorityError{Op: "ban member", Err: fmt.Errorf("not enough rights")}

	result, err := rig.engine.ProcessMessage(context.Background(), message(100, 1, "free crypto giveaway, claim yours today"))
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Equal(t, 1, rig.events.count())
	event := rig.events.last()
	assert.Equal(t, models.ActionBan, event.ActionTaken)
	assert.False(t, event.ActionApplied)
	assert.Contains(t, event.ActionError, "not enough rights")
}

func TestBannedUserEventsStayRecorded(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	first, err := rig.engine.ProcessMessage(ctx, message(100, 1, "free crypto giveaway, claim yours today"))
	require.NoError(t, err)
	assert.Equal(t, models.ActionBan, first.Decision.Action)

	second, err := rig.engine.ProcessMessage(ctx, message(100, 1, "free crypto giveaway, claim again"))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, models.ActionNone, second.Decision.Action)
	assert.True(t, second.Decision.Terminal)

	assert.Equal(t, 2, rig.events.count())
	assert.Equal(t, int64(2), rig.events.last().SeqNo)
}

func TestCriticalBurstTripsLockdown(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	var tripped int
	for actor := int64(1); actor <= 3; actor++ {
		result, err := rig.engine.ProcessMessage(ctx, message(100, actor, "free crypto giveaway, claim yours today"))
		require.NoError(t, err)
		require.NotNil(t, result)
		if result.LockdownTripped {
			tripped++
		}
	}

	assert.Equal(t, 1, tripped)
	grants, err := rig.gw.ChatGrants(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, grants.Held())
}

func TestTenantOverrideRaisesActivation(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.settings.Put(&models.TenantSettings{TenantID: 100, ActivationThreshold: 0.60})

	// Spam at 0.45 confidence clears the global threshold but not this
	// tenant's override.
	result, err := rig.engine.ProcessMessage(context.Background(), message(100, 1, "buy followers here cheap today"))
	require.NoError(t, err)
	assert.Nil(t, result)

	other, err := rig.engine.ProcessMessage(context.Background(), message(200, 1, "buy followers here cheap today"))
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.Equal(t, models.ActionWarn, other.Decision.Action)
}

func TestViolationCountersAccumulate(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := rig.engine.ProcessMessage(ctx, message(100, 1, "buy followers here cheap today"))
		require.NoError(t, err)
	}
	_, err := rig.engine.ProcessMessage(ctx, message(100, 2, "buy followers here cheap today"))
	require.NoError(t, err)

	tenantTotal, err := rig.counts.GetCount(ctx, countstore.NameViolations, countstore.TenantKey(100), countstore.PeriodTotal)
	require.NoError(t, err)
	assert.Equal(t, 3, tenantTotal)

	actorTotal, err := rig.counts.GetCount(ctx, countstore.NameViolations, countstore.ActorKey(100, 1), countstore.PeriodTotal)
	require.NoError(t, err)
	assert.Equal(t, 2, actorTotal)

	tenantHour, err := rig.counts.GetCount(ctx, countstore.NameViolations, countstore.TenantKey(100), countstore.PeriodHour)
	require.NoError(t, err)
	assert.Equal(t, 3, tenantHour)
}

func TestAdminStatusSeedsRoleCount(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	rig.gw.SetAdmin(100, 9)

	_, err := rig.engine.ProcessMessage(ctx, message(100, 9, "buy followers here cheap today"))
	require.NoError(t, err)
	_, err = rig.engine.ProcessMessage(ctx, message(100, 10, "buy followers here cheap today"))
	require.NoError(t, err)

	admin := rig.engine.profiles.Get(100, 9)
	require.NotNil(t, admin)
	assert.Equal(t, 1, admin.RoleCount)

	member := rig.engine.profiles.Get(100, 10)
	require.NotNil(t, member)
	assert.Equal(t, 0, member.RoleCount)
}

func TestTrustDecaysWithViolations(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.engine.ProcessMessage(ctx, message(100, 1, "buy followers here cheap today"))
	require.NoError(t, err)
	spammer := rig.engine.profiles.Get(100, 1)
	require.NotNil(t, spammer)
	assert.InDelta(t, 0.40, spammer.TrustScore, 0.001)

	_, err = rig.engine.ProcessMessage(ctx, message(100, 2, "free crypto giveaway, claim yours today"))
	require.NoError(t, err)
	scammer := rig.engine.profiles.Get(100, 2)
	require.NotNil(t, scammer)
	assert.InDelta(t, 0.25, scammer.TrustScore, 0.001)
}

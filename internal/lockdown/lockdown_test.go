package lockdown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-sentinel/internal/models"
	"tg-sentinel/internal/platform"
)

type memLockdownStore struct {
	mu        sync.Mutex
	lockdowns []*models.TenantLockdown
}

func (s *memLockdownStore) CreateLockdown(lockdown *models.TenantLockdown) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *lockdown
	s.lockdowns = append(s.lockdowns, &clone)
	return nil
}

func (s *memLockdownStore) ActiveLockdown(tenantID int64) (*models.TenantLockdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ld := range s.lockdowns {
		if ld.TenantID == tenantID && ld.Active {
			clone := *ld
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *memLockdownStore) ActiveLockdowns() ([]*models.TenantLockdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TenantLockdown
	for _, ld := range s.lockdowns {
		if ld.Active {
			clone := *ld
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memLockdownStore) LiftLockdown(tenantID int64, liftedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ld := range s.lockdowns {
		if ld.TenantID == tenantID && ld.Active {
			ld.Active = false
			ld.LiftedBy = liftedBy
			ld.LiftedAt = at
		}
	}
	return nil
}

func (s *memLockdownStore) count(tenantID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ld := range s.lockdowns {
		if ld.TenantID == tenantID {
			n++
		}
	}
	return n
}

func criticalEvent(tenantID, actorID int64) *models.ViolationEvent {
	return &models.ViolationEvent{
		TenantID: tenantID,
		ActorID:  actorID,
		Type:     models.ViolationScam,
		Severity: 5,
	}
}

func TestCriticalBurstTripsExactlyOnce(t *testing.T) {
	store := &memLockdownStore{}
	gw := platform.NewFakeGateway()
	ctrl := NewController(store, gw, 3, time.Minute)
	ctx := context.Background()

	var tripped int
	for i := 0; i < 4; i++ {
		hit, err := ctrl.Observe(ctx, criticalEvent(100, int64(i+1)))
		require.NoError(t, err)
		if hit {
			tripped++
		}
	}

	assert.Equal(t, 1, tripped)
	assert.True(t, ctrl.Active(100))
	assert.Equal(t, 1, store.count(100))

	grants, err := gw.ChatGrants(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, grants.Held())
}

func TestPerTenantThresholdOverride(t *testing.T) {
	store := &memLockdownStore{}
	gw := platform.NewFakeGateway()
	ctrl := NewController(store, gw, 5, time.Minute)
	ctrl.SetThresholdSource(func(tenantID int64) int64 {
		if tenantID == 100 {
			return 2
		}
		return 0
	})
	ctx := context.Background()

	// tenant 100 trips on its overridden threshold of 2
	hit, err := ctrl.Observe(ctx, criticalEvent(100, 1))
	require.NoError(t, err)
	assert.False(t, hit)
	hit, err = ctrl.Observe(ctx, criticalEvent(100, 2))
	require.NoError(t, err)
	assert.True(t, hit)

	// tenant 200 still runs on the global threshold of 5
	for i := 0; i < 4; i++ {
		hit, err = ctrl.Observe(ctx, criticalEvent(200, int64(i+1)))
		require.NoError(t, err)
		assert.False(t, hit)
	}
	hit, err = ctrl.Observe(ctx, criticalEvent(200, 5))
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestNonCriticalEventsNeverTrip(t *testing.T) {
	store := &memLockdownStore{}
	gw := platform.NewFakeGateway()
	ctrl := NewController(store, gw, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		event := criticalEvent(100, int64(i+1))
		event.Type = models.ViolationSpam
		event.Severity = 2
		hit, err := ctrl.Observe(ctx, event)
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.False(t, ctrl.Active(100))
}

func TestTenantsAreIndependent(t *testing.T) {
	store := &memLockdownStore{}
	gw := platform.NewFakeGateway()
	ctrl := NewController(store, gw, 3, time.Minute)
	ctx := context.Background()

	// Two critical events in each of two tenants stay below the threshold.
	for tenant := int64(100); tenant <= 200; tenant += 100 {
		for i := 0; i < 2; i++ {
			hit, err := ctrl.Observe(ctx, criticalEvent(tenant, int64(i+1)))
			require.NoError(t, err)
			assert.False(t, hit)
		}
	}
	assert.False(t, ctrl.Active(100))
	assert.False(t, ctrl.Active(200))
}

func TestUnlockRestoresSavedGrants(t *testing.T) {
	store := &memLockdownStore{}
	gw := platform.NewFakeGateway()
	ctrl := NewController(store, gw, 3, time.Minute)
	ctx := context.Background()

	saved := platform.NoGrants()
	saved[platform.GrantSendMessages] = true
	saved[platform.GrantSendPhotos] = true
	gw.SetChatDefaults(100, saved)

	require.NoError(t, ctrl.Lock(ctx, 100, "owner"))
	assert.True(t, ctrl.Active(100))

	locked, err := gw.ChatGrants(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, locked.Held())

	require.NoError(t, ctrl.Unlock(ctx, 100, "owner"))
	assert.False(t, ctrl.Active(100))

	restored, err := gw.ChatGrants(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []platform.Grant{platform.GrantSendMessages, platform.GrantSendPhotos}, restored.Held())
}

func TestDoubleLockAndUnlockRejected(t *testing.T) {
	store := &memLockdownStore{}
	gw := platform.NewFakeGateway()
	ctrl := NewController(store, gw, 3, time.Minute)
	ctx := context.Background()

	require.NoError(t, ctrl.Lock(ctx, 100, "owner"))
	assert.Error(t, ctrl.Lock(ctx, 100, "owner"))

	require.NoError(t, ctrl.Unlock(ctx, 100, "owner"))
	assert.Error(t, ctrl.Unlock(ctx, 100, "owner"))
}

func TestRestoreRehydratesActiveLockdowns(t *testing.T) {
	store := &memLockdownStore{}
	require.NoError(t, store.CreateLockdown(&models.TenantLockdown{
		TenantID:  100,
		Active:    true,
		TrippedAt: time.Now().Add(-time.Hour),
		TrippedBy: TriggerAuto,
	}))

	ctrl := NewController(store, platform.NewFakeGateway(), 3, time.Minute)
	require.NoError(t, ctrl.Restore())
	assert.True(t, ctrl.Active(100))
	assert.False(t, ctrl.Active(200))
}

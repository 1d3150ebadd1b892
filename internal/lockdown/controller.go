// Package lockdown implements the tenant-wide emergency brake. A burst of
// critical violations trips it automatically; admins can also trip and lift it
// by hand. A tripped tenant stays locked until an explicit unlock, including
// across restarts.
package lockdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"tg-sentinel/internal/logger"
	"tg-sentinel/internal/models"
	"tg-sentinel/internal/platform"
)

// TriggerAuto marks lockdowns tripped by the critical-event burst detector.
const TriggerAuto = "auto"

// Store is the persistence surface for lockdown state.
type Store interface {
	CreateLockdown(lockdown *models.TenantLockdown) error
	ActiveLockdown(tenantID int64) (*models.TenantLockdown, error)
	ActiveLockdowns() ([]*models.TenantLockdown, error)
	LiftLockdown(tenantID int64, liftedBy string, at time.Time) error
}

type tenantState struct {
	limiter   *slidingwindow.Limiter
	threshold int64
	active    bool
}

// Controller watches the stream of critical events per tenant and revokes the
// tenant-wide default grants when a burst exceeds the configured threshold.
type Controller struct {
	store   Store
	gateway platform.Gateway

	threshold int64
	window    time.Duration

	// thresholdFor resolves a per-tenant threshold override; zero or a nil
	// func falls back to the global threshold.
	thresholdFor func(tenantID int64) int64

	mu      sync.Mutex
	tenants map[int64]*tenantState
}

func NewController(store Store, gateway platform.Gateway, threshold int64, window time.Duration) *Controller {
	return &Controller{
		store:     store,
		gateway:   gateway,
		threshold: threshold,
		window:    window,
		tenants:   make(map[int64]*tenantState),
	}
}

// Restore reloads active lockdowns from storage so a restart cannot silently
// reopen a locked tenant.
func (c *Controller) Restore() error {
	lockdowns, err := c.store.ActiveLockdowns()
	if err != nil {
		return fmt.Errorf("loading active lockdowns: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ld := range lockdowns {
		c.state(ld.TenantID).active = true
		logger.Infof("restored active lockdown for tenant %d (tripped %s by %s)",
			ld.TenantID, ld.TrippedAt.Format(time.RFC3339), ld.TrippedBy)
	}
	return nil
}

// SetThresholdSource registers the per-tenant threshold override lookup.
// Must be called before the first Observe.
func (c *Controller) SetThresholdSource(fn func(tenantID int64) int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thresholdFor = fn
}

// caller must hold c.mu
func (c *Controller) effectiveThreshold(tenantID int64) int64 {
	if c.thresholdFor != nil {
		if t := c.thresholdFor(tenantID); t > 0 {
			return t
		}
	}
	return c.threshold
}

// caller must hold c.mu
func (c *Controller) state(tenantID int64) *tenantState {
	threshold := c.effectiveThreshold(tenantID)
	st, ok := c.tenants[tenantID]
	if ok && st.threshold == threshold {
		return st
	}
	// first sight of the tenant, or its threshold override changed: build a
	// fresh window. The limiter admits threshold-1 events per window, so the
	// event that reaches the threshold is the one that trips.
	lim, _ := slidingwindow.NewLimiter(c.window, threshold-1, func() (slidingwindow.Window, slidingwindow.StopFunc) {
		return slidingwindow.NewLocalWindow()
	})
	if !ok {
		st = &tenantState{}
		c.tenants[tenantID] = st
	}
	st.limiter = lim
	st.threshold = threshold
	return st
}

// Active reports whether a tenant is currently locked down.
func (c *Controller) Active(tenantID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state(tenantID).active
}

// Observe feeds one violation event into the burst detector. Non-critical
// events are ignored. Returns true when this event tripped a new lockdown.
func (c *Controller) Observe(ctx context.Context, event *models.ViolationEvent) (bool, error) {
	if !event.Critical() {
		return false, nil
	}
	c.mu.Lock()
	st := c.state(event.TenantID)
	if st.active || st.limiter.Allow() {
		c.mu.Unlock()
		return false, nil
	}
	st.active = true
	threshold := st.threshold
	c.mu.Unlock()

	reason := fmt.Sprintf("critical event burst: %d severe violations within %s", threshold, c.window)
	if err := c.trip(ctx, event.TenantID, reason, TriggerAuto); err != nil {
		c.mu.Lock()
		st.active = false
		c.mu.Unlock()
		return false, err
	}
	return true, nil
}

// Lock trips a lockdown on explicit admin request.
func (c *Controller) Lock(ctx context.Context, tenantID int64, requestedBy string) error {
	c.mu.Lock()
	st := c.state(tenantID)
	if st.active {
		c.mu.Unlock()
		return fmt.Errorf("tenant %d is already locked down", tenantID)
	}
	st.active = true
	c.mu.Unlock()

	if err := c.trip(ctx, tenantID, "manual lockdown", requestedBy); err != nil {
		c.mu.Lock()
		st.active = false
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Controller) trip(ctx context.Context, tenantID int64, reason, trippedBy string) error {
	saved, err := c.gateway.ChatGrants(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("snapshotting tenant %d grants: %w", tenantID, err)
	}
	if err := c.gateway.SetChatGrants(ctx, tenantID, platform.NoGrants()); err != nil {
		return fmt.Errorf("revoking tenant %d grants: %w", tenantID, err)
	}

	lockdown := &models.TenantLockdown{
		TenantID:    tenantID,
		Reason:      reason,
		Active:      true,
		TrippedAt:   time.Now(),
		TrippedBy:   trippedBy,
		SavedGrants: grantsToMap(saved),
	}
	if err := c.store.CreateLockdown(lockdown); err != nil {
		return fmt.Errorf("persisting lockdown for tenant %d: %w", tenantID, err)
	}
	logger.Warningf("tenant %d locked down by %s: %s", tenantID, trippedBy, reason)
	return nil
}

// Unlock lifts an active lockdown and restores the grant set saved at trip
// time. Unlocking a tenant that is not locked is an error so the caller can
// tell the admin nothing happened.
func (c *Controller) Unlock(ctx context.Context, tenantID int64, liftedBy string) error {
	active, err := c.store.ActiveLockdown(tenantID)
	if err != nil {
		return fmt.Errorf("loading lockdown for tenant %d: %w", tenantID, err)
	}
	if active == nil {
		return fmt.Errorf("tenant %d is not locked down", tenantID)
	}

	restored := mapToGrants(active.SavedGrants)
	if err := c.gateway.SetChatGrants(ctx, tenantID, restored); err != nil {
		return fmt.Errorf("restoring tenant %d grants: %w", tenantID, err)
	}
	if err := c.store.LiftLockdown(tenantID, liftedBy, time.Now()); err != nil {
		return fmt.Errorf("lifting lockdown for tenant %d: %w", tenantID, err)
	}

	c.mu.Lock()
	c.state(tenantID).active = false
	c.mu.Unlock()

	logger.Infof("tenant %d lockdown lifted by %s", tenantID, liftedBy)
	return nil
}

func grantsToMap(set platform.GrantSet) models.GrantMap {
	out := make(models.GrantMap, len(set))
	for grant, held := range set {
		out[string(grant)] = held
	}
	return out
}

func mapToGrants(m models.GrantMap) platform.GrantSet {
	out := make(platform.GrantSet, len(m))
	for name, held := range m {
		out[platform.Grant(name)] = held
	}
	return out
}

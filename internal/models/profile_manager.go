package models

import "sync"

type profileKey struct {
	TenantID int64
	ActorID  int64
}

// ProfileManager is the in-memory cache of security profiles. Besides caching
// it hands out a per-(tenant, actor) lock so each user's rolling window is
// updated by one goroutine at a time while different users proceed in parallel.
type ProfileManager struct {
	profiles map[profileKey]*UserSecurityProfile
	locks    map[profileKey]*sync.Mutex
	mu       sync.Mutex
}

func NewProfileManager() *ProfileManager {
	return &ProfileManager{
		profiles: make(map[profileKey]*UserSecurityProfile),
		locks:    make(map[profileKey]*sync.Mutex),
	}
}

// Lock acquires the per-user lock and returns the unlock function.
func (m *ProfileManager) Lock(tenantID, actorID int64) func() {
	key := profileKey{TenantID: tenantID, ActorID: actorID}
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// Get returns the cached profile, or nil. Callers mutating the profile must
// hold the per-user lock.
func (m *ProfileManager) Get(tenantID, actorID int64) *UserSecurityProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[profileKey{TenantID: tenantID, ActorID: actorID}]
}

// Put caches a profile.
func (m *ProfileManager) Put(p *UserSecurityProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profileKey{TenantID: p.TenantID, ActorID: p.ActorID}] = p
}

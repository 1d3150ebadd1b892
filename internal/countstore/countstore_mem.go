package countstore

import (
	"context"
	"sync"
	"time"
)

// MemCountStore is the in-process implementation, suitable for single-node
// deployments and tests.
type MemCountStore struct {
	counts map[string]int
	mu     sync.RWMutex
}

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		counts: make(map[string]int),
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[periodBucket(name, val, period, time.Now())], nil
}

func (s *MemCountStore) Increment(ctx context.Context, name, val string) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		s.counts[periodBucket(name, val, p, now)]++
	}
	return nil
}

package quarantine

import (
	"context"
	"time"

	"tg-sentinel/internal/logger"
)

// schedulerInterval is how often pending releases are polled. Deadlines live
// in the database, not in process memory, so restarts never lose a release.
const schedulerInterval = 30 * time.Second

// StartScheduler runs the durable release loop until the context is canceled.
func (m *Manager) StartScheduler(ctx context.Context) {
	go func() {
		logger.Infof("quarantine release scheduler started (interval %v)", schedulerInterval)
		ticker := time.NewTicker(schedulerInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Infof("quarantine release scheduler stopped")
				return
			case <-ticker.C:
				m.releaseDue(ctx)
			}
		}
	}()
}

func (m *Manager) releaseDue(ctx context.Context) {
	due, err := m.store.Due(time.Now())
	if err != nil {
		logger.Warningf("querying due quarantine releases: %v", err)
		return
	}
	for _, record := range due {
		if _, err := m.Release(ctx, record.TenantID, record.ActorID, "scheduler"); err != nil {
			logger.Warningf("scheduled release for actor %d in tenant %d failed: %v",
				record.ActorID, record.TenantID, err)
		}
	}
}

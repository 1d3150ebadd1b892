// Package ratelimit throttles outbound platform-mutating calls per action
// category and affected channel, so the engine stays inside host-platform
// quotas. Callers block on their own event's budget; unrelated events are
// never held up because each runs on its own goroutine.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"tg-sentinel/internal/config"
)

// Category names one outbound action budget.
type Category string

const (
	CategoryDelete   Category = "delete"
	CategoryTimeout  Category = "timeout"
	CategoryBan      Category = "ban"
	CategoryRoleEdit Category = "role-edit"
	CategoryMessage  Category = "message"
)

type limiterKey struct {
	Category  Category
	ChannelID int64
}

// ActionLimiter hands out a token-bucket limiter per (category, channel).
type ActionLimiter struct {
	limiters map[limiterKey]*rate.Limiter
	perMin   map[Category]float64
	mu       sync.RWMutex
}

// NewActionLimiter builds a limiter from per-minute budgets.
func NewActionLimiter(cfg config.RateLimitConfig) *ActionLimiter {
	return &ActionLimiter{
		limiters: make(map[limiterKey]*rate.Limiter),
		perMin: map[Category]float64{
			CategoryDelete:   cfg.Delete,
			CategoryTimeout:  cfg.Timeout,
			CategoryBan:      cfg.Ban,
			CategoryRoleEdit: cfg.RoleEdit,
			CategoryMessage:  cfg.Message,
		},
	}
}

func (l *ActionLimiter) getLimiter(key limiterKey) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limiters[key]; ok {
		return lim
	}
	perMin := l.perMin[key.Category]
	if perMin <= 0 {
		perMin = 10
	}
	// burst of 1 keeps actions evenly paced rather than front-loaded
	lim = rate.NewLimiter(rate.Limit(perMin/60.0), 1)
	l.limiters[key] = lim
	return lim
}

// Wait blocks until the action's bucket has a token or the context expires.
func (l *ActionLimiter) Wait(ctx context.Context, category Category, channelID int64) error {
	return l.getLimiter(limiterKey{Category: category, ChannelID: channelID}).Wait(ctx)
}

// Allow reports whether a token is immediately available, consuming it if so.
func (l *ActionLimiter) Allow(category Category, channelID int64) bool {
	return l.getLimiter(limiterKey{Category: category, ChannelID: channelID}).Allow()
}

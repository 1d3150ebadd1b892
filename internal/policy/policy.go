// Package policy maps a user's rolling violation count and the current
// classification onto a concrete punishment. The ladder decays naturally: the
// 24h window is pruned before every count, so a quiet user drifts back toward
// warnings over time.
package policy

import (
	"time"

	"tg-sentinel/internal/models"
)

// Decision is the policy output for one violation event.
type Decision struct {
	Action        models.Action
	ZeroTolerance bool
	WarningCount  int
	// Terminal is set when the user is already banned and the event is
	// recorded without a new action.
	Terminal bool
}

// Policy is the escalation state machine. It owns all transitions of
// UserSecurityProfile; callers hold the per-user lock while evaluating.
type Policy struct {
	// ZeroToleranceThreshold is the confidence at or above which categorically
	// severe violations bypass the ladder entirely.
	ZeroToleranceThreshold float64

	zeroTolerance map[models.ViolationType]bool
}

// New builds a policy with the stock zero-tolerance categories.
func New(zeroToleranceThreshold float64) *Policy {
	return &Policy{
		ZeroToleranceThreshold: zeroToleranceThreshold,
		zeroTolerance: map[models.ViolationType]bool{
			models.ViolationScam:    true,
			models.ViolationMalware: true,
		},
	}
}

// ActionForCount is the graduated ladder over the in-window warning count.
func ActionForCount(count int) models.Action {
	switch {
	case count <= 2:
		return models.ActionWarn
	case count <= 4:
		return models.ActionTimeout
	case count <= 6:
		return models.ActionQuarantine
	default:
		return models.ActionBan
	}
}

// Evaluate applies one violation to the profile and returns the action.
// The caller must hold the user's lock; now is explicit for determinism.
func (p *Policy) Evaluate(profile *models.UserSecurityProfile, violationType models.ViolationType, confidence float64, now time.Time) Decision {
	// Ban is terminal: profile remains, further events are recorded but
	// produce no new action since the user is already removed.
	if profile.Banned {
		return Decision{Action: models.ActionNone, Terminal: true, WarningCount: profile.WarningCount(now)}
	}

	if violationType == models.ViolationNone {
		return Decision{Action: models.ActionNone, WarningCount: profile.WarningCount(now)}
	}

	profile.RecordViolation(violationType)

	// Zero-tolerance override: categorically severe violations at high
	// confidence skip the ladder regardless of prior count.
	if p.zeroTolerance[violationType] && confidence >= p.ZeroToleranceThreshold {
		profile.AddWarning(now)
		profile.Banned = true
		return Decision{
			Action:        models.ActionBan,
			ZeroTolerance: true,
			WarningCount:  profile.WarningCount(now),
		}
	}

	profile.AddWarning(now)
	count := profile.WarningCount(now)
	action := ActionForCount(count)
	if action == models.ActionBan {
		profile.Banned = true
	}
	return Decision{Action: action, WarningCount: count}
}

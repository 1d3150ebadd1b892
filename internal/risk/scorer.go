// Package risk combines classifier confidence with the acting user's profile
// into a single score in [0,1]. Scoring is deterministic: the evaluation time
// is an explicit input, never read from the clock.
package risk

import (
	"tg-sentinel/internal/config"
)

// Inputs are the profile-derived facts the scorer consumes.
type Inputs struct {
	AccountAgeDays int
	RoleCount      int
	Violations24h  int
	ViolationsEver int64
	DirectMessage  bool
}

// Scorer computes risk scores from a weight set. Weights come from
// configuration with optional per-tenant overrides.
type Scorer struct {
	Weights          config.RiskWeights
	YoungAccountDays int
}

// NewScorer builds a scorer from the moderation config.
func NewScorer(mod config.ModerationConfig) *Scorer {
	return &Scorer{
		Weights:          mod.Weights,
		YoungAccountDays: mod.YoungAccountDays,
	}
}

// WithWeights returns a copy of the scorer using the given weight overrides,
// for per-tenant scoring.
func (s *Scorer) WithWeights(w config.RiskWeights) *Scorer {
	return &Scorer{Weights: w, YoungAccountDays: s.YoungAccountDays}
}

// Score returns clamp(w1*confidence + w2*age + w3*role + w4*history +
// w5*context, 0, 1).
func (s *Scorer) Score(confidence float64, in Inputs) float64 {
	score := s.Weights.Confidence*confidence +
		s.Weights.AccountAge*s.accountAgeFactor(in.AccountAgeDays) +
		s.Weights.Role*roleFactor(in.RoleCount) +
		s.Weights.History*historyFactor(in.Violations24h, in.ViolationsEver) +
		s.Weights.Context*contextFactor(in.DirectMessage)
	return clamp(score)
}

// accountAgeFactor is 1.0 for brand-new accounts and falls linearly to 0 at
// the young-account threshold.
func (s *Scorer) accountAgeFactor(ageDays int) float64 {
	if s.YoungAccountDays <= 0 || ageDays >= s.YoungAccountDays {
		return 0
	}
	return 1.0 - float64(ageDays)/float64(s.YoungAccountDays)
}

// roleFactor penalizes users holding no privilege roles beyond the default.
func roleFactor(roleCount int) float64 {
	if roleCount <= 0 {
		return 1.0
	}
	return 0
}

// historyFactor grows with recent and all-time violations on a capped
// multiplier curve: each recent violation weighs far more than an old one.
func historyFactor(recent int, ever int64) float64 {
	f := 0.25*float64(recent) + 0.05*float64(ever)
	if f > 1.0 {
		return 1.0
	}
	return f
}

// contextFactor adds weight to direct-message events, where scams typically
// target individuals away from moderator eyes.
func contextFactor(directMessage bool) float64 {
	if directMessage {
		return 1.0
	}
	return 0.3
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tg-sentinel/internal/config"
)

func testScorer() *Scorer {
	return &Scorer{
		Weights: config.RiskWeights{
			Confidence: 0.45,
			AccountAge: 0.15,
			Role:       0.10,
			History:    0.20,
			Context:    0.10,
		},
		YoungAccountDays: 7,
	}
}

func TestScoreDeterministic(t *testing.T) {
	assert := assert.New(t)
	s := testScorer()
	in := Inputs{AccountAgeDays: 2, RoleCount: 0, Violations24h: 1, ViolationsEver: 3}

	first := s.Score(0.8, in)
	for i := 0; i < 10; i++ {
		assert.Equal(first, s.Score(0.8, in))
	}
}

func TestScoreBounds(t *testing.T) {
	assert := assert.New(t)
	s := testScorer()

	low := s.Score(0, Inputs{AccountAgeDays: 365, RoleCount: 3})
	high := s.Score(1.0, Inputs{AccountAgeDays: 0, RoleCount: 0, Violations24h: 10, ViolationsEver: 50, DirectMessage: true})
	assert.GreaterOrEqual(low, 0.0)
	assert.LessOrEqual(high, 1.0)
	assert.Less(low, high)
}

func TestYoungAccountScoresHigher(t *testing.T) {
	assert := assert.New(t)
	s := testScorer()

	fresh := s.Score(0.5, Inputs{AccountAgeDays: 0, RoleCount: 1})
	tenured := s.Score(0.5, Inputs{AccountAgeDays: 400, RoleCount: 1})
	assert.Greater(fresh, tenured)
}

func TestHistoryFactorMonotonic(t *testing.T) {
	assert := assert.New(t)
	s := testScorer()

	prev := -1.0
	for recent := 0; recent <= 8; recent++ {
		score := s.Score(0.5, Inputs{AccountAgeDays: 30, RoleCount: 1, Violations24h: recent})
		assert.GreaterOrEqual(score, prev)
		prev = score
	}
}

func TestDirectMessageAddsRisk(t *testing.T) {
	assert := assert.New(t)
	s := testScorer()

	public := s.Score(0.5, Inputs{AccountAgeDays: 30, RoleCount: 1})
	dm := s.Score(0.5, Inputs{AccountAgeDays: 30, RoleCount: 1, DirectMessage: true})
	assert.Greater(dm, public)
}

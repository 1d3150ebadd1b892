package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tg-sentinel/internal/models"
)

func newProfile() *models.UserSecurityProfile {
	return &models.UserSecurityProfile{
		TenantID:    -100200300,
		ActorID:     42,
		FirstSeenAt: time.Now().Add(-365 * 24 * time.Hour),
	}
}

func TestLadderProgression(t *testing.T) {
	assert := assert.New(t)
	p := New(0.85)
	profile := newProfile()
	now := time.Now()

	// two low-severity spam warnings stay at WARN
	d1 := p.Evaluate(profile, models.ViolationSpam, 0.4, now)
	d2 := p.Evaluate(profile, models.ViolationSpam, 0.4, now.Add(time.Minute))
	assert.Equal(models.ActionWarn, d1.Action)
	assert.Equal(models.ActionWarn, d2.Action)

	// the third inside the window transitions to TIMEOUT
	d3 := p.Evaluate(profile, models.ViolationSpam, 0.4, now.Add(2*time.Minute))
	assert.Equal(models.ActionTimeout, d3.Action)
	assert.Equal(3, d3.WarningCount)

	d4 := p.Evaluate(profile, models.ViolationSpam, 0.4, now.Add(3*time.Minute))
	assert.Equal(models.ActionTimeout, d4.Action)

	d5 := p.Evaluate(profile, models.ViolationSpam, 0.4, now.Add(4*time.Minute))
	assert.Equal(models.ActionQuarantine, d5.Action)

	d6 := p.Evaluate(profile, models.ViolationSpam, 0.4, now.Add(5*time.Minute))
	assert.Equal(models.ActionQuarantine, d6.Action)

	d7 := p.Evaluate(profile, models.ViolationSpam, 0.4, now.Add(6*time.Minute))
	assert.Equal(models.ActionBan, d7.Action)
	assert.True(profile.Banned)
}

func TestRollingWindowDecay(t *testing.T) {
	assert := assert.New(t)
	p := New(0.85)
	profile := newProfile()
	now := time.Now()

	// four warnings put the user at TIMEOUT
	for i := 0; i < 4; i++ {
		p.Evaluate(profile, models.ViolationSpam, 0.4, now.Add(time.Duration(i)*time.Minute))
	}

	// 25 hours later the window has fully aged out: back to WARN
	later := now.Add(25 * time.Hour)
	d := p.Evaluate(profile, models.ViolationSpam, 0.4, later)
	assert.Equal(models.ActionWarn, d.Action)
	assert.Equal(1, d.WarningCount)
}

func TestWindowNeverCountsStaleEntries(t *testing.T) {
	assert := assert.New(t)
	profile := newProfile()
	now := time.Now()

	profile.AddWarning(now.Add(-30 * time.Hour))
	profile.AddWarning(now.Add(-25 * time.Hour))
	profile.AddWarning(now.Add(-time.Hour))

	assert.Equal(1, profile.WarningCount(now))
}

func TestZeroToleranceOverride(t *testing.T) {
	assert := assert.New(t)
	p := New(0.85)
	now := time.Now()

	// a first-ever scam event at high confidence bans immediately
	for _, vt := range []models.ViolationType{models.ViolationScam, models.ViolationMalware} {
		profile := newProfile()
		d := p.Evaluate(profile, vt, 0.9, now)
		assert.Equal(models.ActionBan, d.Action, "type %s", vt)
		assert.True(d.ZeroTolerance)
		assert.True(profile.Banned)
	}

	// below the threshold the ladder applies
	profile := newProfile()
	d := p.Evaluate(profile, models.ViolationScam, 0.5, now)
	assert.Equal(models.ActionWarn, d.Action)
	assert.False(d.ZeroTolerance)
}

func TestZeroToleranceMonotonicOverPriorCount(t *testing.T) {
	assert := assert.New(t)
	p := New(0.85)
	now := time.Now()

	// regardless of how many prior warnings exist, high-confidence scam bans
	for priors := 0; priors <= 8; priors++ {
		profile := newProfile()
		for i := 0; i < priors && !profile.Banned; i++ {
			p.Evaluate(profile, models.ViolationSpam, 0.4, now.Add(time.Duration(i)*time.Second))
		}
		if profile.Banned {
			continue
		}
		d := p.Evaluate(profile, models.ViolationScam, 0.95, now.Add(time.Minute))
		assert.Equal(models.ActionBan, d.Action)
	}
}

func TestBanIsTerminal(t *testing.T) {
	assert := assert.New(t)
	p := New(0.85)
	profile := newProfile()
	now := time.Now()

	p.Evaluate(profile, models.ViolationScam, 0.95, now)
	assert.True(profile.Banned)

	d := p.Evaluate(profile, models.ViolationSpam, 0.4, now.Add(time.Minute))
	assert.Equal(models.ActionNone, d.Action)
	assert.True(d.Terminal)
}

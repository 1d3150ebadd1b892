// Package engine wires the moderation pipeline: classify, score, decide,
// apply, record. Each inbound message runs the pipeline on its own goroutine;
// the only cross-event serialization points are the per-user profile lock and
// the per-tenant forensic sequence.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"tg-sentinel/internal/classifier"
	"tg-sentinel/internal/config"
	"tg-sentinel/internal/countstore"
	"tg-sentinel/internal/forensics"
	"tg-sentinel/internal/lockdown"
	"tg-sentinel/internal/logger"
	"tg-sentinel/internal/models"
	"tg-sentinel/internal/platform"
	"tg-sentinel/internal/policy"
	"tg-sentinel/internal/quarantine"
	"tg-sentinel/internal/ratelimit"
	"tg-sentinel/internal/risk"
)

// Message is one inbound content event, already stripped of transport detail.
type Message struct {
	TenantID      int64
	ActorID       int64
	ChannelID     int64
	MessageID     int
	Content       string
	DirectMessage bool
	SourceRef     string
	At            time.Time
}

// Result reports what the pipeline did with one message.
type Result struct {
	Event          *models.ViolationEvent
	Decision       policy.Decision
	Classification classifier.Classification
	// NoticeID is the warning notice posted to the channel, 0 if none.
	NoticeID int
	// LockdownTripped is set when this event pushed the tenant over the
	// critical-event threshold.
	LockdownTripped bool
}

// ProfileStore persists user security profiles.
type ProfileStore interface {
	Get(tenantID, actorID int64) (*models.UserSecurityProfile, error)
	Save(profile *models.UserSecurityProfile) error
}

// SettingsStore loads per-tenant setting overrides.
type SettingsStore interface {
	GetSettings(tenantID int64) (*models.TenantSettings, error)
}

// Engine is the moderation pipeline.
type Engine struct {
	cfg config.ModerationConfig

	signatures *classifier.SignatureStore
	scorer     *risk.Scorer

	profiles      *models.ProfileManager
	profileStore  ProfileStore
	settings      *models.TenantSettingsManager
	settingsStore SettingsStore

	forensics  *forensics.Logger
	quarantine *quarantine.Manager
	lockdown   *lockdown.Controller
	gateway    platform.Gateway
	limiter    *ratelimit.ActionLimiter
	counts     countstore.CountStore
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Signatures    *classifier.SignatureStore
	Scorer        *risk.Scorer
	Profiles      *models.ProfileManager
	ProfileStore  ProfileStore
	Settings      *models.TenantSettingsManager
	SettingsStore SettingsStore
	Forensics     *forensics.Logger
	Quarantine    *quarantine.Manager
	Lockdown      *lockdown.Controller
	Gateway       platform.Gateway
	Limiter       *ratelimit.ActionLimiter
	Counts        countstore.CountStore
}

func New(cfg config.ModerationConfig, deps Deps) *Engine {
	return &Engine{
		cfg:           cfg,
		signatures:    deps.Signatures,
		scorer:        deps.Scorer,
		profiles:      deps.Profiles,
		profileStore:  deps.ProfileStore,
		settings:      deps.Settings,
		settingsStore: deps.SettingsStore,
		forensics:     deps.Forensics,
		quarantine:    deps.Quarantine,
		lockdown:      deps.Lockdown,
		gateway:       deps.Gateway,
		limiter:       deps.Limiter,
		counts:        deps.Counts,
	}
}

// effective is the moderation config after per-tenant overrides.
type effective struct {
	activation         float64
	zeroTolerance      float64
	timeoutDuration    time.Duration
	quarantineDuration time.Duration
	weights            config.RiskWeights
}

func (e *Engine) effectiveFor(tenantID int64) effective {
	eff := effective{
		activation:         e.cfg.ActivationThreshold,
		zeroTolerance:      e.cfg.ZeroToleranceThreshold,
		timeoutDuration:    e.cfg.TimeoutDuration,
		quarantineDuration: e.cfg.QuarantineDuration,
		weights:            e.cfg.Weights,
	}
	settings := e.tenantSettings(tenantID)
	if settings == nil {
		return eff
	}
	if settings.ActivationThreshold > 0 {
		eff.activation = settings.ActivationThreshold
	}
	if settings.ZeroToleranceThreshold > 0 {
		eff.zeroTolerance = settings.ZeroToleranceThreshold
	}
	if settings.TimeoutDuration > 0 {
		eff.timeoutDuration = settings.TimeoutDuration
	}
	if settings.QuarantineDuration > 0 {
		eff.quarantineDuration = settings.QuarantineDuration
	}
	if settings.WeightConfidence > 0 {
		eff.weights.Confidence = settings.WeightConfidence
	}
	if settings.WeightAccountAge > 0 {
		eff.weights.AccountAge = settings.WeightAccountAge
	}
	if settings.WeightRole > 0 {
		eff.weights.Role = settings.WeightRole
	}
	if settings.WeightHistory > 0 {
		eff.weights.History = settings.WeightHistory
	}
	if settings.WeightContext > 0 {
		eff.weights.Context = settings.WeightContext
	}
	return eff
}

func (e *Engine) tenantSettings(tenantID int64) *models.TenantSettings {
	if cached := e.settings.Get(tenantID); cached != nil {
		return cached
	}
	if e.settingsStore == nil {
		return nil
	}
	settings, err := e.settingsStore.GetSettings(tenantID)
	if err != nil {
		logger.Warningf("loading settings for tenant %d: %v", tenantID, err)
		return nil
	}
	if settings != nil {
		e.settings.Put(settings)
	}
	return settings
}

// classify runs the signature store under a recover guard. A classifier
// malfunction degrades the event to a none result instead of killing the
// pipeline.
func (e *Engine) classify(content string, cctx classifier.Context) (result classifier.Classification) {
	defer func() {
		if r := recover(); r != nil {
			pipelinePanics.Inc()
			logger.Errorf("classifier panic, degrading to none: %v\n%s", r, debug.Stack())
			result = classifier.Classification{Type: models.ViolationNone}
		}
	}()
	return e.signatures.Classify(content, cctx)
}

// ProcessMessage runs the full pipeline for one message. A nil result means
// the message is clean and nothing was recorded.
func (e *Engine) ProcessMessage(ctx context.Context, msg Message) (result *Result, err error) {
	started := time.Now()
	defer func() {
		processDuration.Observe(time.Since(started).Seconds())
		if r := recover(); r != nil {
			pipelinePanics.Inc()
			logger.Errorf("pipeline panic for tenant %d actor %d: %v\n%s", msg.TenantID, msg.ActorID, r, debug.Stack())
			result, err = nil, fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	now := msg.At
	if now.IsZero() {
		now = time.Now()
	}
	eff := e.effectiveFor(msg.TenantID)

	classification := e.classify(msg.Content, classifier.Context{DirectMessage: msg.DirectMessage})
	if classification.None() || classification.Confidence < eff.activation {
		return nil, nil
	}

	unlock := e.profiles.Lock(msg.TenantID, msg.ActorID)
	profile, err := e.loadProfile(ctx, msg.TenantID, msg.ActorID, now)
	if err != nil {
		unlock()
		return nil, err
	}

	riskScore := e.scorer.WithWeights(eff.weights).Score(classification.Confidence, risk.Inputs{
		AccountAgeDays: profile.AccountAgeDays(now),
		RoleCount:      profile.RoleCount,
		Violations24h:  profile.WarningCount(now),
		ViolationsEver: profile.TotalViolations,
		DirectMessage:  msg.DirectMessage,
	})

	decision := policy.New(eff.zeroTolerance).Evaluate(profile, classification.Type, classification.Confidence, now)
	// trust decays with each violation, faster for severe ones
	profile.AdjustTrust(-0.05 * float64(classification.Severity))

	contentHash := models.HashContent(msg.Content)
	event := &models.ViolationEvent{
		EventHash:         models.EventHashFor(msg.TenantID, msg.ActorID, contentHash, now),
		TenantID:          msg.TenantID,
		ActorID:           msg.ActorID,
		ChannelID:         msg.ChannelID,
		SourceRef:         msg.SourceRef,
		Type:              classification.Type,
		Severity:          classification.Severity,
		Confidence:        classification.Confidence,
		RiskScore:         riskScore,
		ActionTaken:       decision.Action,
		MatchedSignatures: classification.Matched,
		ContentHash:       contentHash,
		RawContent:        msg.Content,
		CreatedAt:         now,
	}

	res := &Result{Event: event, Decision: decision, Classification: classification}
	e.applyAction(ctx, msg, event, decision, eff, res)

	if event.ActionApplied && decision.Action != models.ActionNone {
		expiry := time.Time{}
		switch decision.Action {
		case models.ActionTimeout:
			expiry = now.Add(eff.timeoutDuration)
		case models.ActionQuarantine:
			expiry = now.Add(eff.quarantineDuration)
		}
		profile.RecordPunishment(decision.Action, now, expiry)
	}
	if saveErr := e.saveProfile(profile); saveErr != nil {
		logger.Errorf("saving profile for tenant %d actor %d: %v", msg.TenantID, msg.ActorID, saveErr)
	}
	unlock()

	// The forensic entry is written for every violation event, whatever the
	// action outcome was.
	if recErr := e.forensics.Record(ctx, event); recErr != nil {
		logger.Errorf("recording forensic entry %s: %v", event.EventHash, recErr)
		return res, recErr
	}

	e.bumpCounters(ctx, event)
	eventsProcessed.WithLabelValues(string(event.Type), string(decision.Action)).Inc()

	tripped, ldErr := e.lockdown.Observe(ctx, event)
	if ldErr != nil {
		logger.Errorf("lockdown observe for tenant %d: %v", msg.TenantID, ldErr)
	}
	if tripped {
		lockdownsTripped.Inc()
		res.LockdownTripped = true
	}
	return res, nil
}

// loadProfile returns the cached profile, falling back to storage, creating a
// fresh one on first contact. Caller holds the per-user lock.
func (e *Engine) loadProfile(ctx context.Context, tenantID, actorID int64, now time.Time) (*models.UserSecurityProfile, error) {
	if profile := e.profiles.Get(tenantID, actorID); profile != nil {
		return profile, nil
	}
	profile, err := e.profileStore.Get(tenantID, actorID)
	if err != nil {
		return nil, fmt.Errorf("loading profile for tenant %d actor %d: %w", tenantID, actorID, err)
	}
	if profile == nil {
		profile = &models.UserSecurityProfile{
			TenantID:    tenantID,
			ActorID:     actorID,
			TrustScore:  0.5,
			FirstSeenAt: now,
		}
		// The platform exposes no role list, so privilege roles are
		// approximated by chat admin status at first contact.
		if isAdmin, adminErr := e.gateway.IsAdmin(ctx, tenantID, actorID); adminErr != nil {
			logger.Warningf("resolving admin status for tenant %d actor %d: %v", tenantID, actorID, adminErr)
		} else if isAdmin {
			profile.RoleCount = 1
		}
	}
	e.profiles.Put(profile)
	return profile, nil
}

func (e *Engine) saveProfile(profile *models.UserSecurityProfile) error {
	e.profiles.Put(profile)
	return e.profileStore.Save(profile)
}

// applyAction enforces the decision through the gateway. Failures are folded
// into the event rather than returned: the forensic record must state what
// actually happened.
func (e *Engine) applyAction(ctx context.Context, msg Message, event *models.ViolationEvent, decision policy.Decision, eff effective, res *Result) {
	// The offending message is removed for every violation, independent of
	// the punishment level.
	if msg.MessageID != 0 {
		if err := e.deleteMessage(ctx, msg); err != nil {
			logger.Warningf("deleting message %d in tenant %d: %v", msg.MessageID, msg.TenantID, err)
		}
	}

	var err error
	switch decision.Action {
	case models.ActionNone:
		event.ActionApplied = true
		return
	case models.ActionWarn:
		res.NoticeID, err = e.warn(ctx, msg, decision)
	case models.ActionTimeout:
		err = e.timeout(ctx, msg, eff.timeoutDuration)
	case models.ActionQuarantine:
		_, err = e.quarantine.Enter(ctx, msg.TenantID, msg.ActorID, eff.quarantineDuration,
			fmt.Sprintf("escalation at %d warnings for %s", decision.WarningCount, event.Type))
	case models.ActionBan:
		err = e.ban(ctx, msg)
	}

	if err != nil {
		event.ActionApplied = false
		event.ActionError = err.Error()
		actionFailures.WithLabelValues(string(decision.Action), errorKind(err)).Inc()
		logger.Errorf("applying %s to actor %d in tenant %d: %v", decision.Action, msg.ActorID, msg.TenantID, err)
		return
	}
	event.ActionApplied = true
}

func (e *Engine) deleteMessage(ctx context.Context, msg Message) error {
	if err := e.limiter.Wait(ctx, ratelimit.CategoryDelete, msg.ChannelID); err != nil {
		return err
	}
	return platform.Retry(ctx, e.cfg.Retry, "delete message", func() error {
		return e.gateway.DeleteMessage(ctx, msg.TenantID, msg.MessageID)
	})
}

func (e *Engine) warn(ctx context.Context, msg Message, decision policy.Decision) (int, error) {
	if err := e.limiter.Wait(ctx, ratelimit.CategoryMessage, msg.ChannelID); err != nil {
		return 0, err
	}
	notice := fmt.Sprintf("⚠️ <a href=\"tg://user?id=%d\">User</a>, your message was removed. Warning %d of 2 before restrictions apply.",
		msg.ActorID, decision.WarningCount)
	var noticeID int
	err := platform.Retry(ctx, e.cfg.Retry, "send warning", func() error {
		var sendErr error
		noticeID, sendErr = e.gateway.SendMessage(ctx, msg.TenantID, notice)
		return sendErr
	})
	return noticeID, err
}

func (e *Engine) timeout(ctx context.Context, msg Message, duration time.Duration) error {
	if err := e.limiter.Wait(ctx, ratelimit.CategoryTimeout, msg.ChannelID); err != nil {
		return err
	}
	until := time.Now().Add(duration)
	return platform.Retry(ctx, e.cfg.Retry, "timeout member", func() error {
		return e.gateway.RestrictMember(ctx, msg.TenantID, msg.ActorID, platform.NoGrants(), until)
	})
}

func (e *Engine) ban(ctx context.Context, msg Message) error {
	if err := e.limiter.Wait(ctx, ratelimit.CategoryBan, msg.ChannelID); err != nil {
		return err
	}
	return platform.Retry(ctx, e.cfg.Retry, "ban member", func() error {
		return e.gateway.BanMember(ctx, msg.TenantID, msg.ActorID)
	})
}

func (e *Engine) bumpCounters(ctx context.Context, event *models.ViolationEvent) {
	keys := [][2]string{
		{countstore.NameViolations, countstore.TenantKey(event.TenantID)},
		{countstore.NameViolations, countstore.ActorKey(event.TenantID, event.ActorID)},
		{countstore.NameActions, string(event.ActionTaken)},
	}
	for _, k := range keys {
		if err := e.counts.Increment(ctx, k[0], k[1]); err != nil {
			logger.Warningf("incrementing counter %s/%s: %v", k[0], k[1], err)
		}
	}
}

func errorKind(err error) string {
	switch {
	case platform.IsAuthority(err):
		return "authority"
	case platform.IsTransient(err):
		return "transient"
	default:
		return "other"
	}
}

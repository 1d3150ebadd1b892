// Package service owns the wiring: repositories, the moderation engine and
// its collaborators are initialized here once and shared by the handlers.
package service

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"

	"tg-sentinel/internal/classifier"
	"tg-sentinel/internal/config"
	"tg-sentinel/internal/countstore"
	"tg-sentinel/internal/engine"
	"tg-sentinel/internal/feedback"
	"tg-sentinel/internal/forensics"
	"tg-sentinel/internal/lockdown"
	"tg-sentinel/internal/logger"
	"tg-sentinel/internal/models"
	"tg-sentinel/internal/platform"
	"tg-sentinel/internal/quarantine"
	"tg-sentinel/internal/ratelimit"
	"tg-sentinel/internal/risk"
	"tg-sentinel/internal/storage"
)

var (
	globalConfig *config.Config

	profileManager  = models.NewProfileManager()
	settingsManager = models.NewTenantSettingsManager()

	eventRepository      *storage.EventRepository
	profileRepository    *storage.ProfileRepository
	quarantineRepository *storage.QuarantineRepository
	tenantRepository     *storage.TenantRepository

	// Shared singletons consumed by the handlers.
	Gateway    platform.Gateway
	Signatures *classifier.SignatureStore
	Limiter    *ratelimit.ActionLimiter
	Counts     countstore.CountStore
	Forensics  *forensics.Logger
	Quarantine *quarantine.Manager
	Lockdown   *lockdown.Controller
	Reviewer   *feedback.Reviewer
	Engine     *engine.Engine
)

// Initialize stores the configuration for later wiring.
func Initialize(cfg *config.Config) {
	globalConfig = cfg
}

// InitRepositories creates the repositories and migrates their tables. The
// engine cannot run without durable storage, so a missing database is fatal
// here rather than silently degraded.
func InitRepositories() error {
	if storage.DB == nil {
		return fmt.Errorf("database connection is required, enable it in the configuration")
	}

	eventRepository = storage.NewEventRepository(storage.DB)
	if err := eventRepository.MigrateTable(); err != nil {
		return fmt.Errorf("migrating violation events table: %w", err)
	}
	profileRepository = storage.NewProfileRepository(storage.DB)
	if err := profileRepository.MigrateTable(); err != nil {
		return fmt.Errorf("migrating security profiles table: %w", err)
	}
	quarantineRepository = storage.NewQuarantineRepository(storage.DB)
	if err := quarantineRepository.MigrateTable(); err != nil {
		return fmt.Errorf("migrating quarantine records table: %w", err)
	}
	tenantRepository = storage.NewTenantRepository(storage.DB)
	if err := tenantRepository.MigrateTables(); err != nil {
		return fmt.Errorf("migrating tenant tables: %w", err)
	}
	return nil
}

// InitEngine wires the moderation pipeline around the bot connection. Must be
// called after InitRepositories.
func InitEngine(ctx context.Context, bot *telego.Bot) error {
	cfg := globalConfig
	mod := cfg.Moderation

	Gateway = platform.NewTelegramGateway(bot)
	Signatures = classifier.DefaultSignatureStore(mod.ActivationThreshold)
	Limiter = ratelimit.NewActionLimiter(mod.RateLimits)

	if cfg.Redis.Enabled {
		counts, err := countstore.NewRedisCountStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connecting redis countstore: %w", err)
		}
		Counts = counts
		logger.Infof("using redis countstore at %s", cfg.Redis.Addr)
	} else {
		Counts = countstore.NewMemCountStore()
	}

	var mirrors []forensics.Mirror
	if cfg.Bot.Audit.ChatID != 0 {
		mirrors = append(mirrors, forensics.NewChatMirror(Gateway, cfg.Bot.Audit.ChatID))
	}
	if cfg.Bot.Audit.WebhookURL != "" {
		mirrors = append(mirrors, forensics.NewWebhookMirror(cfg.Bot.Audit.WebhookURL))
	}
	Forensics = forensics.NewLogger(eventRepository, mirrors...)

	Quarantine = quarantine.NewManager(Gateway, quarantineRepository, Limiter, mod)
	Quarantine.OnRelease(func(record *models.QuarantineRecord, report *quarantine.ReleaseReport) {
		summary := fmt.Sprintf("🔓 Quarantine episode <code>%s</code> for actor <code>%d</code> in tenant <code>%d</code> released by %s: %d restored, %d skipped, %d failed",
			record.EpisodeID, record.ActorID, record.TenantID, record.ReleasedBy,
			len(report.Restored), len(report.Skipped), len(report.Failed))
		logger.Infof("%s", summary)
		if cfg.Bot.Audit.ChatID != 0 {
			if _, err := Gateway.SendMessage(ctx, cfg.Bot.Audit.ChatID, summary); err != nil {
				logger.Warningf("posting release summary to audit chat: %v", err)
			}
		}
	})

	Lockdown = lockdown.NewController(tenantRepository, Gateway, mod.Lockdown.Threshold, mod.Lockdown.Window)
	Lockdown.SetThresholdSource(func(tenantID int64) int64 {
		settings, err := TenantSettings(tenantID)
		if err != nil || settings == nil {
			return 0
		}
		return settings.LockdownThreshold
	})
	if err := Lockdown.Restore(); err != nil {
		return fmt.Errorf("restoring lockdown state: %w", err)
	}

	Reviewer = feedback.NewReviewer(eventRepository, Signatures, mod.VerdictStep, mod.SimilarityThreshold)

	Engine = engine.New(mod, engine.Deps{
		Signatures:    Signatures,
		Scorer:        risk.NewScorer(mod),
		Profiles:      profileManager,
		ProfileStore:  profileRepository,
		Settings:      settingsManager,
		SettingsStore: tenantRepository,
		Forensics:     Forensics,
		Quarantine:    Quarantine,
		Lockdown:      Lockdown,
		Gateway:       Gateway,
		Limiter:       Limiter,
		Counts:        Counts,
	})

	Quarantine.StartScheduler(ctx)
	return nil
}

// TenantSettings returns the cached settings row for a tenant, loading and
// caching it on first access. A nil return means the tenant runs on defaults.
func TenantSettings(tenantID int64) (*models.TenantSettings, error) {
	if cached := settingsManager.Get(tenantID); cached != nil {
		return cached, nil
	}
	settings, err := tenantRepository.GetSettings(tenantID)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		settingsManager.Put(settings)
	}
	return settings, nil
}

// SaveTenantSettings persists and re-caches a settings row.
func SaveTenantSettings(settings *models.TenantSettings) error {
	if err := tenantRepository.SaveSettings(settings); err != nil {
		return err
	}
	settingsManager.Put(settings)
	return nil
}

// TenantViolationCounts reads the rolling violation tallies for a tenant.
func TenantViolationCounts(ctx context.Context, tenantID int64) (hour, day, total int, err error) {
	key := countstore.TenantKey(tenantID)
	if hour, err = Counts.GetCount(ctx, countstore.NameViolations, key, countstore.PeriodHour); err != nil {
		return 0, 0, 0, err
	}
	if day, err = Counts.GetCount(ctx, countstore.NameViolations, key, countstore.PeriodDay); err != nil {
		return 0, 0, 0, err
	}
	if total, err = Counts.GetCount(ctx, countstore.NameViolations, key, countstore.PeriodTotal); err != nil {
		return 0, 0, 0, err
	}
	return hour, day, total, nil
}

// ProfileFor returns a user's security profile, nil if the engine has never
// seen them.
func ProfileFor(tenantID, actorID int64) (*models.UserSecurityProfile, error) {
	if cached := profileManager.Get(tenantID, actorID); cached != nil {
		return cached, nil
	}
	return profileRepository.Get(tenantID, actorID)
}


package handler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-sentinel/internal/logger"
	"tg-sentinel/internal/models"
	"tg-sentinel/internal/service"
)

// handleCommand dispatches bot commands. Returns handled=true when the
// message was a command, whether or not it succeeded.
func handleCommand(ctx *th.Context, bot *telego.Bot, message telego.Message) (bool, error) {
	if message.From == nil || !strings.HasPrefix(message.Text, "/") {
		return false, nil
	}

	fields := strings.Fields(message.Text)
	command := strings.TrimSuffix(fields[0], "@"+botUsername(ctx, bot))
	args := fields[1:]

	switch command {
	case "/help", "/start":
		return true, sendHelpMessage(ctx, bot, message)
	case "/status":
		return true, handleStatusCommand(ctx, bot, message)
	case "/profile":
		return true, handleProfileCommand(ctx, bot, message, args)
	case "/events":
		return true, handleEventsCommand(ctx, bot, message, args)
	case "/verify":
		return true, handleVerifyCommand(ctx, bot, message)
	case "/configure":
		return true, handleConfigureCommand(ctx, bot, message, args)
	case "/quarantine":
		return true, handleQuarantineCommand(ctx, bot, message, args)
	case "/release":
		return true, handleReleaseCommand(ctx, bot, message, args)
	case "/lockdown":
		return true, handleLockdownCommand(ctx, bot, message)
	case "/unlock":
		return true, handleUnlockCommand(ctx, bot, message)
	}
	return false, nil
}

var cachedBotUsername string

func botUsername(ctx *th.Context, bot *telego.Bot) string {
	if cachedBotUsername != "" {
		return cachedBotUsername
	}
	botUser, err := bot.GetMe(ctx.Context())
	if err != nil {
		logger.Warningf("getting bot username: %v", err)
		return ""
	}
	cachedBotUsername = botUser.Username
	return cachedBotUsername
}

func reply(ctx *th.Context, bot *telego.Bot, chatID int64, text string) error {
	_, err := bot.SendMessage(ctx.Context(), &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		Text:      text,
		ParseMode: "HTML",
	})
	return err
}

// requireAdmin answers with an error message unless the sender administers
// the chat. Command mutations are admin-only.
func requireAdmin(ctx *th.Context, bot *telego.Bot, message telego.Message) bool {
	isAdmin, err := service.Gateway.IsAdmin(ctx.Context(), message.Chat.ID, message.From.ID)
	if err != nil {
		logger.Warningf("admin check for user %d in chat %d: %v", message.From.ID, message.Chat.ID, err)
		return false
	}
	if !isAdmin {
		_ = reply(ctx, bot, message.Chat.ID, "This command is restricted to group administrators.")
		return false
	}
	return true
}

// requireOwner gates the emergency controls to the single configured bot
// owner. Group administrators do not qualify: lockdown freezes the whole
// tenant and must stay in one pair of hands.
func requireOwner(ctx *th.Context, bot *telego.Bot, message telego.Message) bool {
	if isOwner(message.From.ID) {
		return true
	}
	_ = reply(ctx, bot, message.Chat.ID, "This command is restricted to the bot owner.")
	return false
}

func isOwner(fromID int64) bool {
	return globalConfig != nil && globalConfig.Bot.OwnerID != 0 && fromID == globalConfig.Bot.OwnerID
}

// targetActor resolves the user a command acts on: the replied-to message's
// sender, or an explicit numeric ID argument.
func targetActor(message telego.Message, args []string) (int64, error) {
	if message.ReplyToMessage != nil && message.ReplyToMessage.From != nil {
		return message.ReplyToMessage.From.ID, nil
	}
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid user ID: %s", args[0])
		}
		return id, nil
	}
	return 0, fmt.Errorf("reply to the user's message or pass a user ID")
}

func sendHelpMessage(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	helpText := "<b>Sentinel moderation bot</b>\n\n" +
		"Watches group messages for scams, spam, malware and harassment, " +
		"escalating repeat offenders from warnings to bans.\n\n" +
		"<b>Commands</b>\n" +
		"/status - processing statistics\n" +
		"/profile - security profile of a user (reply or ID)\n" +
		"/events - recent moderation events in this group\n" +
		"/verify - audit the forensic log for gaps\n" +
		"/configure key value - override a moderation setting (admins)\n" +
		"/quarantine - quarantine a user (admins, reply or ID)\n" +
		"/release - release a quarantined user (admins, reply or ID)\n" +
		"/lockdown - suspend all posting in this group (admins)\n" +
		"/unlock - lift an active lockdown (admins)\n\n" +
		"Forward a suspicious direct message to me in private chat to check it."
	return reply(ctx, bot, message.Chat.ID, helpText)
}

func handleStatusCommand(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	stats := GetProcessingStats()
	text := fmt.Sprintf("<b>Status</b>\nUptime: %ds\nMessages processed: %d\nCallback queries: %d\nErrors: %d\nGoroutines: %d\nMemory: %d MB",
		stats["uptime_seconds"], stats["total_messages"], stats["total_callback_queries"],
		stats["total_errors"], stats["goroutines"], stats["memory_usage_mb"])
	if message.Chat.ID < 0 {
		hour, day, total, err := service.TenantViolationCounts(ctx.Context(), message.Chat.ID)
		if err != nil {
			logger.Warningf("reading violation counts for tenant %d: %v", message.Chat.ID, err)
		} else {
			text += fmt.Sprintf("\nViolations here: %d this hour, %d today, %d all time", hour, day, total)
		}
		if service.Lockdown.Active(message.Chat.ID) {
			text += "\n\n🚨 This group is under emergency lockdown."
		}
	}
	return reply(ctx, bot, message.Chat.ID, text)
}

func handleProfileCommand(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if !requireAdmin(ctx, bot, message) {
		return nil
	}
	actorID, err := targetActor(message, args)
	if err != nil {
		return reply(ctx, bot, message.Chat.ID, err.Error())
	}

	profile, err := service.ProfileFor(message.Chat.ID, actorID)
	if err != nil {
		logger.Warningf("loading profile for %d/%d: %v", message.Chat.ID, actorID, err)
		return reply(ctx, bot, message.Chat.ID, "Failed to load the profile.")
	}
	if profile == nil {
		return reply(ctx, bot, message.Chat.ID, "No security profile: this user has never triggered the engine.")
	}

	now := time.Now()
	text := fmt.Sprintf("<b>Security profile</b> for <code>%d</code>\n"+
		"First seen: %s\nTrust score: %.2f\nWarnings in window: %d\nTotal violations: %d\nBanned: %v",
		actorID, profile.FirstSeenAt.Format("2006-01-02"), profile.TrustScore, profile.WarningCount(now),
		profile.TotalViolations, profile.Banned)
	for violationType, count := range profile.ViolationCounts {
		text += fmt.Sprintf("\n  %s: %d", violationType, count)
	}
	return reply(ctx, bot, message.Chat.ID, text)
}

func handleEventsCommand(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if !requireAdmin(ctx, bot, message) {
		return nil
	}
	hours := 24
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			hours = n
		}
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	events, err := service.Forensics.ListForTenant(message.Chat.ID, since, 20)
	if err != nil {
		logger.Warningf("listing events for tenant %d: %v", message.Chat.ID, err)
		return reply(ctx, bot, message.Chat.ID, "Failed to load events.")
	}
	if len(events) == 0 {
		return reply(ctx, bot, message.Chat.ID, fmt.Sprintf("No moderation events in the last %dh.", hours))
	}

	text := fmt.Sprintf("<b>Moderation events</b> (last %dh)", hours)
	for _, event := range events {
		text += fmt.Sprintf("\n#%d %s: %s → %s (actor <code>%d</code>)",
			event.SeqNo, event.CreatedAt.Format("15:04"), event.Type, event.ActionTaken, event.ActorID)
	}
	return reply(ctx, bot, message.Chat.ID, text)
}

func handleVerifyCommand(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	if !requireAdmin(ctx, bot, message) {
		return nil
	}
	if err := service.Forensics.VerifySequence(message.Chat.ID); err != nil {
		logger.Errorf("forensic verification failed for tenant %d: %v", message.Chat.ID, err)
		return reply(ctx, bot, message.Chat.ID, fmt.Sprintf("❌ Forensic log verification FAILED: %v\nFlag this group for manual audit.", err))
	}
	return reply(ctx, bot, message.Chat.ID, "✅ Forensic log verified: sequence is complete.")
}

func handleConfigureCommand(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if !requireAdmin(ctx, bot, message) {
		return nil
	}
	if len(args) != 2 {
		return reply(ctx, bot, message.Chat.ID,
			"Usage: /configure key value\nKeys: activation_threshold, zero_tolerance_threshold, "+
				"weight_confidence, weight_account_age, weight_role, weight_history, weight_context, "+
				"quarantine_duration, timeout_duration, lockdown_threshold")
	}

	settings, err := service.TenantSettings(message.Chat.ID)
	if err != nil {
		logger.Warningf("loading settings for tenant %d: %v", message.Chat.ID, err)
		return reply(ctx, bot, message.Chat.ID, "Failed to load settings.")
	}
	if settings == nil {
		settings = &models.TenantSettings{
			TenantID:   message.Chat.ID,
			TenantName: message.Chat.Title,
			AdminID:    message.From.ID,
		}
	}

	if err := settings.Set(args[0], args[1]); err != nil {
		return reply(ctx, bot, message.Chat.ID, fmt.Sprintf("Rejected: %v", err))
	}
	if err := service.SaveTenantSettings(settings); err != nil {
		logger.Errorf("saving settings for tenant %d: %v", message.Chat.ID, err)
		return reply(ctx, bot, message.Chat.ID, "Failed to save settings.")
	}

	logger.Infof("tenant %d setting %s changed to %s by %d", message.Chat.ID, args[0], args[1], message.From.ID)
	return reply(ctx, bot, message.Chat.ID, fmt.Sprintf("✅ <code>%s</code> set to <code>%s</code> for this group.", args[0], args[1]))
}

func handleQuarantineCommand(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if !requireAdmin(ctx, bot, message) {
		return nil
	}
	actorID, err := targetActor(message, args)
	if err != nil {
		return reply(ctx, bot, message.Chat.ID, err.Error())
	}

	record, err := service.Quarantine.Enter(ctx.Context(), message.Chat.ID, actorID, 0,
		fmt.Sprintf("manual quarantine by admin %d", message.From.ID))
	if err != nil {
		logger.Warningf("manual quarantine of %d in tenant %d: %v", actorID, message.Chat.ID, err)
		return reply(ctx, bot, message.Chat.ID, fmt.Sprintf("Quarantine failed: %v", err))
	}
	return reply(ctx, bot, message.Chat.ID,
		fmt.Sprintf("🔒 User quarantined until %s (episode <code>%s</code>).",
			record.ScheduledReleaseAt.Format("2006-01-02 15:04 MST"), record.EpisodeID))
}

func handleReleaseCommand(ctx *th.Context, bot *telego.Bot, message telego.Message, args []string) error {
	if !requireAdmin(ctx, bot, message) {
		return nil
	}
	actorID, err := targetActor(message, args)
	if err != nil {
		return reply(ctx, bot, message.Chat.ID, err.Error())
	}

	report, err := service.Quarantine.Release(ctx.Context(), message.Chat.ID, actorID,
		fmt.Sprintf("admin:%d", message.From.ID))
	if err != nil {
		logger.Warningf("manual release of %d in tenant %d: %v", actorID, message.Chat.ID, err)
		return reply(ctx, bot, message.Chat.ID, fmt.Sprintf("Release failed: %v", err))
	}
	if report.AlreadyReleased {
		return reply(ctx, bot, message.Chat.ID, "That user is not quarantined.")
	}

	text := fmt.Sprintf("🔓 Released: %d grants restored", len(report.Restored))
	if len(report.Skipped) > 0 {
		text += fmt.Sprintf(", %d skipped (revoked group-wide since quarantine)", len(report.Skipped))
	}
	if len(report.Failed) > 0 {
		text += fmt.Sprintf(", %d failed", len(report.Failed))
	}
	return reply(ctx, bot, message.Chat.ID, text+".")
}

func handleLockdownCommand(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	if !requireOwner(ctx, bot, message) {
		return nil
	}
	if err := service.Lockdown.Lock(ctx.Context(), message.Chat.ID, fmt.Sprintf("admin:%d", message.From.ID)); err != nil {
		return reply(ctx, bot, message.Chat.ID, fmt.Sprintf("Lockdown failed: %v", err))
	}
	return reply(ctx, bot, message.Chat.ID, "🚨 <b>Lockdown active.</b> Posting is suspended until /unlock.")
}

func handleUnlockCommand(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	if !requireOwner(ctx, bot, message) {
		return nil
	}
	if err := service.Lockdown.Unlock(ctx.Context(), message.Chat.ID, fmt.Sprintf("admin:%d", message.From.ID)); err != nil {
		return reply(ctx, bot, message.Chat.ID, fmt.Sprintf("Unlock failed: %v", err))
	}
	return reply(ctx, bot, message.Chat.ID, "✅ Lockdown lifted, group permissions restored.")
}

package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-sentinel/internal/classifier"
	"tg-sentinel/internal/engine"
	"tg-sentinel/internal/logger"
	"tg-sentinel/internal/models"
	"tg-sentinel/internal/service"
)

const noticeCleanupDelay = 3 * time.Minute

// handleIncomingMessage routes a message into the moderation pipeline.
func handleIncomingMessage(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	// Skip if no sender information or sender is a bot
	if message.From == nil || message.From.IsBot {
		return nil
	}

	if message.Chat.Type == "private" {
		return handlePrivateMessage(ctx, bot, message)
	}

	content := message.Text
	if content == "" {
		content = message.Caption
	}
	if content == "" {
		return nil
	}

	msg := engine.Message{
		TenantID:  message.Chat.ID,
		ActorID:   message.From.ID,
		ChannelID: message.Chat.ID,
		MessageID: message.MessageID,
		Content:   content,
		SourceRef: fmt.Sprintf("%d:%d", message.Chat.ID, message.MessageID),
		At:        time.Unix(message.Date, 0),
	}

	// The pipeline runs on its own goroutine so one tenant's rate-limit wait
	// never holds up another tenant's events.
	incrementCounter(&totalMessagesProcessed)
	messageProcessingSemaphore <- struct{}{}
	go func() {
		defer func() { <-messageProcessingSemaphore }()
		processMessage(bot, msg)
	}()

	return nil
}

func processMessage(bot *telego.Bot, msg engine.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := service.Engine.ProcessMessage(ctx, msg)
	if err != nil {
		incrementCounter(&totalErrors)
		logger.Errorf("processing message %s: %v", msg.SourceRef, err)
		return
	}
	if result == nil {
		return
	}

	logger.Infof("violation %s by actor %d in tenant %d: %s (confidence %.2f, risk %.2f)",
		result.Event.Type, msg.ActorID, msg.TenantID, result.Decision.Action,
		result.Event.Confidence, result.Event.RiskScore)

	if result.NoticeID != 0 {
		scheduleNoticeCleanup(bot, msg.TenantID, result.NoticeID)
	}
	if result.LockdownTripped {
		notifyLockdown(ctx, bot, msg.TenantID)
	}
	sendVerdictPrompt(ctx, bot, result.Event)
}

// scheduleNoticeCleanup deletes a warning notice after the cleanup delay so
// the group does not fill up with moderation chatter.
func scheduleNoticeCleanup(bot *telego.Bot, chatID int64, messageID int) {
	go func() {
		time.Sleep(noticeCleanupDelay)
		err := bot.DeleteMessage(context.Background(), &telego.DeleteMessageParams{
			ChatID:    telego.ChatID{ID: chatID},
			MessageID: messageID,
		})
		if err != nil {
			logger.Debugf("cleaning up notice %d in chat %d: %v", messageID, chatID, err)
		}
	}()
}

// sendVerdictPrompt posts the confirm/reject review buttons to the audit chat.
func sendVerdictPrompt(ctx context.Context, bot *telego.Bot, event *models.ViolationEvent) {
	if globalConfig == nil || globalConfig.Bot.Audit.ChatID == 0 {
		return
	}

	markup := &telego.InlineKeyboardMarkup{
		InlineKeyboard: [][]telego.InlineKeyboardButton{
			{
				telego.InlineKeyboardButton{
					Text:         "✅ Confirm",
					CallbackData: fmt.Sprintf("verdict:%s:1", event.EventHash),
				},
				telego.InlineKeyboardButton{
					Text:         "❌ Reject",
					CallbackData: fmt.Sprintf("verdict:%s:0", event.EventHash),
				},
			},
		},
	}

	text := fmt.Sprintf("Review event #%d in tenant <code>%d</code>\nType: <b>%s</b>, action: <b>%s</b>\n<code>%s</code>",
		event.SeqNo, event.TenantID, event.Type, event.ActionTaken, event.EventHash)

	_, err := bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:      telego.ChatID{ID: globalConfig.Bot.Audit.ChatID},
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: markup,
	})
	if err != nil {
		logger.Warningf("sending verdict prompt for event %s: %v", event.EventHash, err)
	}
}

func notifyLockdown(ctx context.Context, bot *telego.Bot, tenantID int64) {
	_, err := bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: tenantID},
		Text:      "🚨 <b>Emergency lockdown active.</b> Posting is suspended until an administrator runs /unlock.",
		ParseMode: "HTML",
	})
	if err != nil {
		logger.Warningf("announcing lockdown in tenant %d: %v", tenantID, err)
	}
}

// handlePrivateMessage lets users forward suspicious direct messages to the
// bot for an on-the-spot assessment.
func handlePrivateMessage(ctx *th.Context, bot *telego.Bot, message telego.Message) error {
	content := message.Text
	if content == "" {
		content = message.Caption
	}
	if content == "" {
		return nil
	}

	classification := service.Signatures.Classify(content, classifier.Context{DirectMessage: true})
	var reply string
	if classification.None() {
		reply = "No known violation signatures matched this message."
	} else {
		reply = fmt.Sprintf("⚠️ This looks like <b>%s</b> (severity %d, confidence %.0f%%). Do not follow its instructions.",
			classification.Type, classification.Severity, classification.Confidence*100)
	}

	_, err := bot.SendMessage(ctx.Context(), &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: message.Chat.ID},
		Text:      reply,
		ParseMode: "HTML",
	})
	return err
}

package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-sentinel/internal/logger"
	"tg-sentinel/internal/models"
	"tg-sentinel/internal/service"
)

// HandleCallbackQuery processes callback queries from inline keyboards
func HandleCallbackQuery(ctx *th.Context, bot *telego.Bot, query telego.CallbackQuery) error {
	if query.Data == "" {
		return nil
	}

	incrementCounter(&totalCallbackQueries)
	logger.Infof("Received callback query: %s", query.Data)

	if strings.HasPrefix(query.Data, "verdict:") {
		return handleVerdictCallback(ctx, bot, query)
	}
	return nil
}

// handleVerdictCallback applies a moderator's confirm/reject decision from
// the review buttons. Data format: verdict:<event hash>:<1|0>.
func handleVerdictCallback(ctx *th.Context, bot *telego.Bot, query telego.CallbackQuery) error {
	parts := strings.Split(query.Data, ":")
	if len(parts) != 3 {
		logger.Warningf("Invalid callback data in verdict callback: %s", query.Data)
		return nil
	}
	eventHash, confirmed := parts[1], parts[2] == "1"

	event, err := service.Reviewer.ApplyVerdict(ctx.Context(), eventHash, confirmed)
	if err != nil {
		logger.Warningf("applying verdict for event %s: %v", eventHash, err)
		return bot.AnswerCallbackQuery(ctx.Context(), &telego.AnswerCallbackQueryParams{
			CallbackQueryID: query.ID,
			Text:            "Failed to apply the verdict.",
			ShowAlert:       true,
		})
	}

	answer := "Verdict recorded: confirmed."
	if !confirmed {
		answer = "Verdict recorded: rejected, signature weights lowered."
	}

	// Surface similar recent events so a wave of near-identical content can be
	// reviewed in one sweep.
	similar, err := service.Reviewer.SimilarEvents(ctx.Context(), event, time.Now().Add(-24*time.Hour))
	if err != nil {
		logger.Warningf("similarity scan for event %s: %v", eventHash, err)
	} else if len(similar) > 0 {
		answer += fmt.Sprintf(" %d similar events in the last 24h.", len(similar))
	}

	if err := bot.AnswerCallbackQuery(ctx.Context(), &telego.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
		Text:            answer,
	}); err != nil {
		return err
	}

	// Strip the buttons so the prompt cannot be acted on twice, and attach
	// the related incidents to the prompt's chat for review.
	if query.Message != nil {
		if accessibleMsg, ok := query.Message.(*telego.Message); ok {
			_, err := bot.EditMessageReplyMarkup(ctx.Context(), &telego.EditMessageReplyMarkupParams{
				ChatID:      telego.ChatID{ID: accessibleMsg.Chat.ID},
				MessageID:   accessibleMsg.MessageID,
				ReplyMarkup: nil,
			})
			if err != nil {
				logger.Debugf("clearing verdict buttons: %v", err)
			}
			if len(similar) > 0 {
				if _, err := service.Gateway.SendMessage(ctx.Context(), accessibleMsg.Chat.ID, formatSimilarEvents(similar)); err != nil {
					logger.Warningf("posting related incidents for event %s: %v", eventHash, err)
				}
			}
		}
	}
	return nil
}

// similarListLimit caps the related-incidents block so the message stays
// readable during a flood.
const similarListLimit = 10

func formatSimilarEvents(events []*models.ViolationEvent) string {
	var b strings.Builder
	b.WriteString("<b>Related incidents in the last 24h</b>")
	limit := len(events)
	if limit > similarListLimit {
		limit = similarListLimit
	}
	for _, ev := range events[:limit] {
		fmt.Fprintf(&b, "\n<code>%s</code> actor <code>%d</code> %s %s",
			ev.EventHash, ev.ActorID, ev.Type, ev.CreatedAt.Format("15:04"))
	}
	if len(events) > limit {
		fmt.Fprintf(&b, "\nand %d more", len(events)-limit)
	}
	return b.String()
}

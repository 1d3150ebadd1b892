package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
)

// TelegramGateway is the telego-backed Gateway implementation.
type TelegramGateway struct {
	bot *telego.Bot
}

func NewTelegramGateway(bot *telego.Bot) *TelegramGateway {
	return &TelegramGateway{bot: bot}
}

// wrapErr maps telego failures onto the engine error taxonomy.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) {
		desc := strings.ToLower(apiErr.Description)
		switch {
		case apiErr.ErrorCode == 429:
			retryAfter := 0
			if apiErr.Parameters != nil {
				retryAfter = apiErr.Parameters.RetryAfter
			}
			return &TransientError{Op: op, RetryAfter: retryAfter, Err: err}
		case apiErr.ErrorCode >= 500:
			return &TransientError{Op: op, Err: err}
		case apiErr.ErrorCode == 403,
			strings.Contains(desc, "not enough rights"),
			strings.Contains(desc, "chat_admin_required"),
			strings.Contains(desc, "user is an administrator"):
			return &AuthorityError{Op: op, Err: err}
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	// non-API failures are network-level and worth retrying
	return &TransientError{Op: op, Err: err}
}

func boolVal(p *bool) bool {
	return p != nil && *p
}

func permissionsToGrants(p telego.ChatPermissions) GrantSet {
	return GrantSet{
		GrantSendMessages:       boolVal(p.CanSendMessages),
		GrantSendAudios:         boolVal(p.CanSendAudios),
		GrantSendDocuments:      boolVal(p.CanSendDocuments),
		GrantSendPhotos:         boolVal(p.CanSendPhotos),
		GrantSendVideos:         boolVal(p.CanSendVideos),
		GrantSendVideoNotes:     boolVal(p.CanSendVideoNotes),
		GrantSendVoiceNotes:     boolVal(p.CanSendVoiceNotes),
		GrantSendPolls:          boolVal(p.CanSendPolls),
		GrantSendOtherMessages:  boolVal(p.CanSendOtherMessages),
		GrantAddWebPagePreviews: boolVal(p.CanAddWebPagePreviews),
		GrantChangeInfo:         boolVal(p.CanChangeInfo),
		GrantInviteUsers:        boolVal(p.CanInviteUsers),
		GrantPinMessages:        boolVal(p.CanPinMessages),
		GrantManageTopics:       boolVal(p.CanManageTopics),
	}
}

func grantsToPermissions(g GrantSet) telego.ChatPermissions {
	val := func(grant Grant) *bool {
		v := g[grant]
		return &v
	}
	return telego.ChatPermissions{
		CanSendMessages:       val(GrantSendMessages),
		CanSendAudios:         val(GrantSendAudios),
		CanSendDocuments:      val(GrantSendDocuments),
		CanSendPhotos:         val(GrantSendPhotos),
		CanSendVideos:         val(GrantSendVideos),
		CanSendVideoNotes:     val(GrantSendVideoNotes),
		CanSendVoiceNotes:     val(GrantSendVoiceNotes),
		CanSendPolls:          val(GrantSendPolls),
		CanSendOtherMessages:  val(GrantSendOtherMessages),
		CanAddWebPagePreviews: val(GrantAddWebPagePreviews),
		CanChangeInfo:         val(GrantChangeInfo),
		CanInviteUsers:        val(GrantInviteUsers),
		CanPinMessages:        val(GrantPinMessages),
		CanManageTopics:       val(GrantManageTopics),
	}
}

func (g *TelegramGateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	err := g.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: messageID,
	})
	return wrapErr("delete message", err)
}

func (g *TelegramGateway) RestrictMember(ctx context.Context, chatID, actorID int64, grants GrantSet, until time.Time) error {
	var untilDate int64
	if !until.IsZero() {
		untilDate = until.Unix()
	}
	err := g.bot.RestrictChatMember(ctx, &telego.RestrictChatMemberParams{
		ChatID:      telego.ChatID{ID: chatID},
		UserID:      actorID,
		Permissions: grantsToPermissions(grants),
		UntilDate:   untilDate,
	})
	return wrapErr("restrict member", err)
}

func (g *TelegramGateway) MemberGrants(ctx context.Context, chatID, actorID int64) (GrantSet, error) {
	member, err := g.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: actorID,
	})
	if err != nil {
		return nil, wrapErr("get member grants", err)
	}

	switch member.MemberStatus() {
	case telego.MemberStatusCreator, telego.MemberStatusAdministrator:
		// administrator privileges are outside the engine's authority
		return nil, &AuthorityError{Op: "get member grants", Err: fmt.Errorf("actor %d is an administrator", actorID)}
	case telego.MemberStatusRestricted:
		restricted, ok := member.(*telego.ChatMemberRestricted)
		if !ok {
			return nil, fmt.Errorf("get member grants: unexpected restricted member type")
		}
		return GrantSet{
			GrantSendMessages:       restricted.CanSendMessages,
			GrantSendAudios:         restricted.CanSendAudios,
			GrantSendDocuments:      restricted.CanSendDocuments,
			GrantSendPhotos:         restricted.CanSendPhotos,
			GrantSendVideos:         restricted.CanSendVideos,
			GrantSendVideoNotes:     restricted.CanSendVideoNotes,
			GrantSendVoiceNotes:     restricted.CanSendVoiceNotes,
			GrantSendPolls:          restricted.CanSendPolls,
			GrantSendOtherMessages:  restricted.CanSendOtherMessages,
			GrantAddWebPagePreviews: restricted.CanAddWebPagePreviews,
			GrantChangeInfo:         restricted.CanChangeInfo,
			GrantInviteUsers:        restricted.CanInviteUsers,
			GrantPinMessages:        restricted.CanPinMessages,
			GrantManageTopics:       restricted.CanManageTopics,
		}, nil
	default:
		// regular members hold the chat default grants
		return g.ChatGrants(ctx, chatID)
	}
}

func (g *TelegramGateway) ChatGrants(ctx context.Context, chatID int64) (GrantSet, error) {
	chat, err := g.bot.GetChat(ctx, &telego.GetChatParams{
		ChatID: telego.ChatID{ID: chatID},
	})
	if err != nil {
		return nil, wrapErr("get chat grants", err)
	}
	if chat.Permissions == nil {
		return NoGrants(), nil
	}
	return permissionsToGrants(*chat.Permissions), nil
}

func (g *TelegramGateway) SetChatGrants(ctx context.Context, chatID int64, grants GrantSet) error {
	err := g.bot.SetChatPermissions(ctx, &telego.SetChatPermissionsParams{
		ChatID:      telego.ChatID{ID: chatID},
		Permissions: grantsToPermissions(grants),
	})
	return wrapErr("set chat grants", err)
}

func (g *TelegramGateway) BanMember(ctx context.Context, chatID, actorID int64) error {
	err := g.bot.BanChatMember(ctx, &telego.BanChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: actorID,
	})
	return wrapErr("ban member", err)
}

func (g *TelegramGateway) SendMessage(ctx context.Context, chatID int64, html string) (int, error) {
	msg, err := g.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		Text:      html,
		ParseMode: "HTML",
	})
	if err != nil {
		return 0, wrapErr("send message", err)
	}
	return msg.MessageID, nil
}

func (g *TelegramGateway) IsAdmin(ctx context.Context, chatID, actorID int64) (bool, error) {
	member, err := g.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: actorID,
	})
	if err != nil {
		return false, wrapErr("get chat member", err)
	}
	status := member.MemberStatus()
	return status == telego.MemberStatusCreator || status == telego.MemberStatusAdministrator, nil
}

// Package platform abstracts the host chat platform's privilege-mutation
// surface behind a small interface, so the engine core stays testable against
// a fake and the telego binding stays in one file.
package platform

import (
	"context"
	"time"
)

// Grant names one removable member privilege.
type Grant string

const (
	GrantSendMessages       Grant = "send_messages"
	GrantSendAudios         Grant = "send_audios"
	GrantSendDocuments      Grant = "send_documents"
	GrantSendPhotos         Grant = "send_photos"
	GrantSendVideos         Grant = "send_videos"
	GrantSendVideoNotes     Grant = "send_video_notes"
	GrantSendVoiceNotes     Grant = "send_voice_notes"
	GrantSendPolls          Grant = "send_polls"
	GrantSendOtherMessages  Grant = "send_other_messages"
	GrantAddWebPagePreviews Grant = "add_web_page_previews"
	GrantChangeInfo         Grant = "change_info"
	GrantInviteUsers        Grant = "invite_users"
	GrantPinMessages        Grant = "pin_messages"
	GrantManageTopics       Grant = "manage_topics"
)

// AllGrants lists every grant the engine can manage, in a stable order.
var AllGrants = []Grant{
	GrantSendMessages,
	GrantSendAudios,
	GrantSendDocuments,
	GrantSendPhotos,
	GrantSendVideos,
	GrantSendVideoNotes,
	GrantSendVoiceNotes,
	GrantSendPolls,
	GrantSendOtherMessages,
	GrantAddWebPagePreviews,
	GrantChangeInfo,
	GrantInviteUsers,
	GrantPinMessages,
	GrantManageTopics,
}

// GrantSet maps grants to held/not-held.
type GrantSet map[Grant]bool

// NoGrants returns a set with every grant revoked.
func NoGrants() GrantSet {
	set := make(GrantSet, len(AllGrants))
	for _, g := range AllGrants {
		set[g] = false
	}
	return set
}

// Held returns the grants currently held, in stable order.
func (s GrantSet) Held() []Grant {
	var held []Grant
	for _, g := range AllGrants {
		if s[g] {
			held = append(held, g)
		}
	}
	return held
}

// Gateway is the platform command surface consumed by the engine.
type Gateway interface {
	// DeleteMessage removes offending content.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	// RestrictMember applies a grant set to a member. A zero until time means
	// the restriction does not expire on its own.
	RestrictMember(ctx context.Context, chatID, actorID int64, grants GrantSet, until time.Time) error

	// MemberGrants snapshots the grants a member currently holds.
	MemberGrants(ctx context.Context, chatID, actorID int64) (GrantSet, error)

	// ChatGrants returns the tenant-wide default grant set.
	ChatGrants(ctx context.Context, chatID int64) (GrantSet, error)

	// SetChatGrants replaces the tenant-wide default grant set (lockdown path).
	SetChatGrants(ctx context.Context, chatID int64, grants GrantSet) error

	// BanMember permanently removes a member.
	BanMember(ctx context.Context, chatID, actorID int64) error

	// SendMessage posts an HTML-formatted message and returns its message ID.
	SendMessage(ctx context.Context, chatID int64, html string) (int, error)

	// IsAdmin reports whether the actor is an administrator of the chat.
	IsAdmin(ctx context.Context, chatID, actorID int64) (bool, error)
}

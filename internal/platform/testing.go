package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memberKey identifies a member inside a chat.
type memberKey struct {
	ChatID  int64
	ActorID int64
}

// RestrictCall records one RestrictMember invocation.
type RestrictCall struct {
	ChatID  int64
	ActorID int64
	Grants  GrantSet
	Until   time.Time
}

// SentMessage records one SendMessage invocation.
type SentMessage struct {
	ChatID int64
	HTML   string
}

// FakeGateway is an in-memory Gateway for tests.
type FakeGateway struct {
	mu sync.Mutex

	members      map[memberKey]GrantSet
	chatDefaults map[int64]GrantSet
	banned       map[memberKey]bool
	admins       map[memberKey]bool

	Deleted   []int
	Restricts []RestrictCall
	Messages  []SentMessage

	// Err, when set, is returned by every mutating call.
	Err error

	nextMessageID int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		members:      make(map[memberKey]GrantSet),
		chatDefaults: make(map[int64]GrantSet),
		banned:       make(map[memberKey]bool),
		admins:       make(map[memberKey]bool),
	}
}

// SetMemberGrants seeds a member's grant set.
func (f *FakeGateway) SetMemberGrants(chatID, actorID int64, grants GrantSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[memberKey{chatID, actorID}] = cloneGrants(grants)
}

// SetChatDefaults seeds a chat's default grant set.
func (f *FakeGateway) SetChatDefaults(chatID int64, grants GrantSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatDefaults[chatID] = cloneGrants(grants)
}

// SetAdmin marks an actor as a chat administrator.
func (f *FakeGateway) SetAdmin(chatID, actorID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admins[memberKey{chatID, actorID}] = true
}

// IsBanned reports whether BanMember was applied.
func (f *FakeGateway) IsBanned(chatID, actorID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.banned[memberKey{chatID, actorID}]
}

func cloneGrants(grants GrantSet) GrantSet {
	out := make(GrantSet, len(grants))
	for g, held := range grants {
		out[g] = held
	}
	return out
}

func (f *FakeGateway) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Deleted = append(f.Deleted, messageID)
	return nil
}

func (f *FakeGateway) RestrictMember(ctx context.Context, chatID, actorID int64, grants GrantSet, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.members[memberKey{chatID, actorID}] = cloneGrants(grants)
	f.Restricts = append(f.Restricts, RestrictCall{ChatID: chatID, ActorID: actorID, Grants: cloneGrants(grants), Until: until})
	return nil
}

func (f *FakeGateway) MemberGrants(ctx context.Context, chatID, actorID int64) (GrantSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := memberKey{chatID, actorID}
	if f.admins[key] {
		return nil, &AuthorityError{Op: "get member grants", Err: fmt.Errorf("actor %d is an administrator", actorID)}
	}
	if grants, ok := f.members[key]; ok {
		return cloneGrants(grants), nil
	}
	if defaults, ok := f.chatDefaults[chatID]; ok {
		return cloneGrants(defaults), nil
	}
	// unseeded members hold everything, mirroring a fully-open group
	all := make(GrantSet, len(AllGrants))
	for _, g := range AllGrants {
		all[g] = true
	}
	return all, nil
}

func (f *FakeGateway) ChatGrants(ctx context.Context, chatID int64) (GrantSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if defaults, ok := f.chatDefaults[chatID]; ok {
		return cloneGrants(defaults), nil
	}
	all := make(GrantSet, len(AllGrants))
	for _, g := range AllGrants {
		all[g] = true
	}
	return all, nil
}

func (f *FakeGateway) SetChatGrants(ctx context.Context, chatID int64, grants GrantSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.chatDefaults[chatID] = cloneGrants(grants)
	return nil
}

func (f *FakeGateway) BanMember(ctx context.Context, chatID, actorID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.banned[memberKey{chatID, actorID}] = true
	return nil
}

func (f *FakeGateway) SendMessage(ctx context.Context, chatID int64, html string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	f.Messages = append(f.Messages, SentMessage{ChatID: chatID, HTML: html})
	f.nextMessageID++
	return f.nextMessageID, nil
}

func (f *FakeGateway) IsAdmin(ctx context.Context, chatID, actorID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admins[memberKey{chatID, actorID}], nil
}

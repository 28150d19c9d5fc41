// Package store defines the data-access facade the validation core reads
// users, rooms, channels, ACLs, bans and roles through. The core never talks
// to storage directly: everything goes through the Facade interface, and
// every "not found" condition surfaces as a domain sentinel error that the
// callers map to a validation failure.
package store

import (
	"context"
	"time"

	"github.com/torocatala/dino/acl"
)

// BanScope identifies where a ban applies.
type BanScope string

// Recognized ban scopes. Any other scope is a recoverable configuration
// error at the call boundary, not a panic.
const (
	ScopeGlobal  BanScope = "global"
	ScopeChannel BanScope = "channel"
	ScopeRoom    BanScope = "room"
)

// BanStatus holds the ban expiry timestamps for one user, one field per
// scope. An empty string means no ban in that scope.
type BanStatus struct {
	Global  string `json:"global"`
	Channel string `json:"channel"`
	Room    string `json:"room"`
}

// IsBanned reports whether any scope carries an active ban.
func (b BanStatus) IsBanned() bool {
	return b.Global != "" || b.Channel != "" || b.Room != ""
}

// Facade is the full data-access contract consumed by the validation core,
// the gateway and the post-dispatch hooks.
type Facade interface {
	// Entity lookups. All return a not-found sentinel for unknown ids.
	GetUserName(ctx context.Context, userID string) (string, error)
	GetRoomName(ctx context.Context, roomID string) (string, error)
	GetChannelName(ctx context.Context, channelID string) (string, error)
	GetChannelForRoom(ctx context.Context, roomID string) (string, error)

	// Existence and membership.
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	RoomExists(ctx context.Context, channelID, roomID string) (bool, error)
	RoomContains(ctx context.Context, roomID, userID string) (bool, error)
	IsRoomPrivate(ctx context.Context, roomID string) (bool, error)

	// Privilege predicates used by the rule engine's bypass chain.
	IsOwner(ctx context.Context, roomID, userID string) (bool, error)
	IsAdmin(ctx context.Context, channelID, userID string) (bool, error)
	IsOwnerChannel(ctx context.Context, channelID, userID string) (bool, error)
	IsSuperUser(ctx context.Context, userID string) (bool, error)

	// Persisted rules, in declaration order.
	GetACLs(ctx context.Context, roomID string) ([]acl.Rule, error)
	GetACLsChannel(ctx context.Context, channelID string) ([]acl.Rule, error)

	// Bans.
	BanUser(ctx context.Context, scope BanScope, targetID, userID string, duration time.Duration) error
	RemoveBan(ctx context.Context, scope BanScope, targetID, userID string) error
	GetUserBanStatus(ctx context.Context, roomID, userID string) (BanStatus, error)

	// Role management.
	SetAdmin(ctx context.Context, channelID, userID string) error
	RemoveAdmin(ctx context.Context, channelID, userID string) error
	SetOwner(ctx context.Context, roomID, userID string) error
	RemoveOwner(ctx context.Context, roomID, userID string) error
	SetOwnerChannel(ctx context.Context, channelID, userID string) error
	RemoveOwnerChannel(ctx context.Context, channelID, userID string) error
	SetModerator(ctx context.Context, roomID, userID string) error
	RemoveModerator(ctx context.Context, roomID, userID string) error

	// Room membership changes driven by the hooks.
	JoinRoom(ctx context.Context, roomID, userID string) error
	LeaveRoom(ctx context.Context, roomID, userID string) error
	KickUser(ctx context.Context, roomID, userID string) error
}

// ValidScope reports whether a ban scope is one of the recognized values.
func ValidScope(scope BanScope) bool {
	switch scope {
	case ScopeGlobal, ScopeChannel, ScopeRoom:
		return true
	default:
		return false
	}
}

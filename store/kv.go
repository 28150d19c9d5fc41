package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/torocatala/dino/acl"
	"github.com/torocatala/dino/errors"
	"github.com/torocatala/dino/natsclient"
)

// Bucket names for the KV-backed store.
const (
	BucketUsers    = "dino_users"
	BucketRooms    = "dino_rooms"
	BucketChannels = "dino_channels"
	BucketBans     = "dino_bans"
	BucketRoles    = "dino_roles"
)

// userRecord is the persisted shape of a user.
type userRecord struct {
	Name string `json:"name"`
}

// roomRecord is the persisted shape of a room. ACLs keep declaration order.
type roomRecord struct {
	Name       string     `json:"name"`
	ChannelID  string     `json:"channel_id"`
	Private    bool       `json:"private,omitempty"`
	Members    []string   `json:"members,omitempty"`
	Owners     []string   `json:"owners,omitempty"`
	Moderators []string   `json:"moderators,omitempty"`
	ACLs       []acl.Rule `json:"acls,omitempty"`
}

// channelRecord is the persisted shape of a channel.
type channelRecord struct {
	Name   string     `json:"name"`
	Owners []string   `json:"owners,omitempty"`
	Admins []string   `json:"admins,omitempty"`
	ACLs   []acl.Rule `json:"acls,omitempty"`
}

// KV is a Facade backed by NATS JetStream key-value buckets. Reads are
// synchronous external calls with no retry built in; retry policy, if any,
// belongs here and not in the validation core.
type KV struct {
	users    *natsclient.KVStore
	rooms    *natsclient.KVStore
	channels *natsclient.KVStore
	bans     *natsclient.KVStore
	roles    *natsclient.KVStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewKV opens (creating when absent) all buckets on the given client.
func NewKV(ctx context.Context, client *natsclient.Client, logger *slog.Logger) (*KV, error) {
	kv := &KV{logger: logger, now: time.Now}

	buckets := []struct {
		name  string
		store **natsclient.KVStore
	}{
		{BucketUsers, &kv.users},
		{BucketRooms, &kv.rooms},
		{BucketChannels, &kv.channels},
		{BucketBans, &kv.bans},
		{BucketRoles, &kv.roles},
	}
	for _, b := range buckets {
		bucket, err := client.EnsureKeyValue(ctx, b.name)
		if err != nil {
			return nil, errors.Wrap(err, "KVStore", "NewKV", "open bucket "+b.name)
		}
		*b.store = client.NewKVStore(bucket)
	}

	return kv, nil
}

func (kv *KV) getRoom(ctx context.Context, roomID string) (*roomRecord, error) {
	data, err := kv.rooms.Get(ctx, roomID)
	if err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return nil, errors.ErrNoSuchRoom
		}
		return nil, err
	}
	var room roomRecord
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, errors.WrapInvalid(err, "KVStore", "getRoom", "decode room record")
	}
	return &room, nil
}

func (kv *KV) putRoom(ctx context.Context, roomID string, room *roomRecord) error {
	data, err := json.Marshal(room)
	if err != nil {
		return errors.WrapInvalid(err, "KVStore", "putRoom", "encode room record")
	}
	return kv.rooms.Put(ctx, roomID, data)
}

func (kv *KV) getChannel(ctx context.Context, channelID string) (*channelRecord, error) {
	data, err := kv.channels.Get(ctx, channelID)
	if err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return nil, errors.ErrNoSuchChannel
		}
		return nil, err
	}
	var channel channelRecord
	if err := json.Unmarshal(data, &channel); err != nil {
		return nil, errors.WrapInvalid(err, "KVStore", "getChannel", "decode channel record")
	}
	return &channel, nil
}

func (kv *KV) putChannel(ctx context.Context, channelID string, channel *channelRecord) error {
	data, err := json.Marshal(channel)
	if err != nil {
		return errors.WrapInvalid(err, "KVStore", "putChannel", "encode channel record")
	}
	return kv.channels.Put(ctx, channelID, data)
}

// CreateUser persists a user record.
func (kv *KV) CreateUser(ctx context.Context, userID, name string) error {
	data, err := json.Marshal(userRecord{Name: name})
	if err != nil {
		return errors.WrapInvalid(err, "KVStore", "CreateUser", "encode user record")
	}
	return kv.users.Put(ctx, userID, data)
}

// CreateRoom persists a room record inside a channel.
func (kv *KV) CreateRoom(ctx context.Context, roomID, name, channelID string, private bool) error {
	if _, err := kv.getChannel(ctx, channelID); err != nil {
		return err
	}
	if _, err := kv.getRoom(ctx, roomID); err == nil {
		return errors.ErrRoomExists
	}
	return kv.putRoom(ctx, roomID, &roomRecord{
		Name:      name,
		ChannelID: channelID,
		Private:   private,
	})
}

// CreateChannel persists a channel record.
func (kv *KV) CreateChannel(ctx context.Context, channelID, name string) error {
	return kv.putChannel(ctx, channelID, &channelRecord{Name: name})
}

// SetRoomACLs replaces the persisted rules for a room.
func (kv *KV) SetRoomACLs(ctx context.Context, roomID string, rules []acl.Rule) error {
	room, err := kv.getRoom(ctx, roomID)
	if err != nil {
		return err
	}
	room.ACLs = rules
	return kv.putRoom(ctx, roomID, room)
}

// SetChannelACLs replaces the persisted rules for a channel.
func (kv *KV) SetChannelACLs(ctx context.Context, channelID string, rules []acl.Rule) error {
	channel, err := kv.getChannel(ctx, channelID)
	if err != nil {
		return err
	}
	channel.ACLs = rules
	return kv.putChannel(ctx, channelID, channel)
}

// GetUserName implements Facade.
func (kv *KV) GetUserName(ctx context.Context, userID string) (string, error) {
	data, err := kv.users.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return "", errors.ErrNoSuchUser
		}
		return "", err
	}
	var user userRecord
	if err := json.Unmarshal(data, &user); err != nil {
		return "", errors.WrapInvalid(err, "KVStore", "GetUserName", "decode user record")
	}
	return user.Name, nil
}

// GetRoomName implements Facade.
func (kv *KV) GetRoomName(ctx context.Context, roomID string) (string, error) {
	room, err := kv.getRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	return room.Name, nil
}

// GetChannelName implements Facade.
func (kv *KV) GetChannelName(ctx context.Context, channelID string) (string, error) {
	channel, err := kv.getChannel(ctx, channelID)
	if err != nil {
		return "", err
	}
	return channel.Name, nil
}

// GetChannelForRoom implements Facade.
func (kv *KV) GetChannelForRoom(ctx context.Context, roomID string) (string, error) {
	room, err := kv.getRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	return room.ChannelID, nil
}

// ChannelExists implements Facade.
func (kv *KV) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	_, err := kv.getChannel(ctx, channelID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNoSuchChannel) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RoomExists implements Facade.
func (kv *KV) RoomExists(ctx context.Context, channelID, roomID string) (bool, error) {
	room, err := kv.getRoom(ctx, roomID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNoSuchRoom) {
			return false, nil
		}
		return false, err
	}
	return room.ChannelID == channelID, nil
}

// RoomContains implements Facade.
func (kv *KV) RoomContains(ctx context.Context, roomID, userID string) (bool, error) {
	room, err := kv.getRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	return containsString(room.Members, userID), nil
}

// IsRoomPrivate implements Facade.
func (kv *KV) IsRoomPrivate(ctx context.Context, roomID string) (bool, error) {
	room, err := kv.getRoom(ctx, roomID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNoSuchRoom) {
			return false, nil
		}
		return false, err
	}
	return room.Private, nil
}

// IsOwner implements Facade.
func (kv *KV) IsOwner(ctx context.Context, roomID, userID string) (bool, error) {
	room, err := kv.getRoom(ctx, roomID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNoSuchRoom) {
			return false, nil
		}
		return false, err
	}
	return containsString(room.Owners, userID), nil
}

// IsAdmin implements Facade.
func (kv *KV) IsAdmin(ctx context.Context, channelID, userID string) (bool, error) {
	channel, err := kv.getChannel(ctx, channelID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNoSuchChannel) {
			return false, nil
		}
		return false, err
	}
	return containsString(channel.Admins, userID), nil
}

// IsOwnerChannel implements Facade.
func (kv *KV) IsOwnerChannel(ctx context.Context, channelID, userID string) (bool, error) {
	channel, err := kv.getChannel(ctx, channelID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNoSuchChannel) {
			return false, nil
		}
		return false, err
	}
	return containsString(channel.Owners, userID), nil
}

// IsSuperUser implements Facade.
func (kv *KV) IsSuperUser(ctx context.Context, userID string) (bool, error) {
	_, err := kv.roles.Get(ctx, "super."+userID)
	if err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SetSuperUser marks a user as a global super user.
func (kv *KV) SetSuperUser(ctx context.Context, userID string) error {
	return kv.roles.Put(ctx, "super."+userID, []byte("1"))
}

// GetACLs implements Facade.
func (kv *KV) GetACLs(ctx context.Context, roomID string) ([]acl.Rule, error) {
	room, err := kv.getRoom(ctx, roomID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNoSuchRoom) {
			return nil, nil
		}
		return nil, err
	}
	return room.ACLs, nil
}

// GetACLsChannel implements Facade.
func (kv *KV) GetACLsChannel(ctx context.Context, channelID string) ([]acl.Rule, error) {
	channel, err := kv.getChannel(ctx, channelID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNoSuchChannel) {
			return nil, nil
		}
		return nil, err
	}
	return channel.ACLs, nil
}

func banKey(scope BanScope, targetID, userID string) string {
	if scope == ScopeGlobal {
		return fmt.Sprintf("global.%s", userID)
	}
	return fmt.Sprintf("%s.%s.%s", scope, targetID, userID)
}

// BanUser implements Facade.
func (kv *KV) BanUser(
	ctx context.Context, scope BanScope, targetID, userID string, duration time.Duration,
) error {
	if !ValidScope(scope) {
		return errors.ErrUnknownBanScope
	}
	expiry := kv.now().Add(duration).UTC().Format(time.RFC3339)
	return kv.bans.Put(ctx, banKey(scope, targetID, userID), []byte(expiry))
}

// RemoveBan implements Facade.
func (kv *KV) RemoveBan(ctx context.Context, scope BanScope, targetID, userID string) error {
	if !ValidScope(scope) {
		return errors.ErrUnknownBanScope
	}
	return kv.bans.Delete(ctx, banKey(scope, targetID, userID))
}

// banExpiry returns the expiry for a ban key when the ban is still active.
func (kv *KV) banExpiry(ctx context.Context, key string) (string, error) {
	data, err := kv.bans.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	expiry, err := time.Parse(time.RFC3339, string(data))
	if err != nil || !expiry.After(kv.now()) {
		return "", nil
	}
	return string(data), nil
}

// GetUserBanStatus implements Facade.
func (kv *KV) GetUserBanStatus(ctx context.Context, roomID, userID string) (BanStatus, error) {
	var banStatus BanStatus
	var err error

	if banStatus.Global, err = kv.banExpiry(ctx, banKey(ScopeGlobal, "", userID)); err != nil {
		return banStatus, err
	}
	if banStatus.Room, err = kv.banExpiry(ctx, banKey(ScopeRoom, roomID, userID)); err != nil {
		return banStatus, err
	}

	channelID, err := kv.GetChannelForRoom(ctx, roomID)
	if err != nil {
		if errors.IsNotFound(err) {
			return banStatus, nil
		}
		return banStatus, err
	}
	banStatus.Channel, err = kv.banExpiry(ctx, banKey(ScopeChannel, channelID, userID))
	return banStatus, err
}

// SetAdmin implements Facade.
func (kv *KV) SetAdmin(ctx context.Context, channelID, userID string) error {
	return kv.updateChannel(ctx, channelID, func(c *channelRecord) {
		c.Admins = addString(c.Admins, userID)
	})
}

// RemoveAdmin implements Facade.
func (kv *KV) RemoveAdmin(ctx context.Context, channelID, userID string) error {
	return kv.updateChannel(ctx, channelID, func(c *channelRecord) {
		c.Admins = removeString(c.Admins, userID)
	})
}

// SetOwner implements Facade.
func (kv *KV) SetOwner(ctx context.Context, roomID, userID string) error {
	return kv.updateRoom(ctx, roomID, func(r *roomRecord) {
		r.Owners = addString(r.Owners, userID)
	})
}

// RemoveOwner implements Facade.
func (kv *KV) RemoveOwner(ctx context.Context, roomID, userID string) error {
	return kv.updateRoom(ctx, roomID, func(r *roomRecord) {
		r.Owners = removeString(r.Owners, userID)
	})
}

// SetOwnerChannel implements Facade.
func (kv *KV) SetOwnerChannel(ctx context.Context, channelID, userID string) error {
	return kv.updateChannel(ctx, channelID, func(c *channelRecord) {
		c.Owners = addString(c.Owners, userID)
	})
}

// RemoveOwnerChannel implements Facade.
func (kv *KV) RemoveOwnerChannel(ctx context.Context, channelID, userID string) error {
	return kv.updateChannel(ctx, channelID, func(c *channelRecord) {
		c.Owners = removeString(c.Owners, userID)
	})
}

// SetModerator implements Facade.
func (kv *KV) SetModerator(ctx context.Context, roomID, userID string) error {
	return kv.updateRoom(ctx, roomID, func(r *roomRecord) {
		r.Moderators = addString(r.Moderators, userID)
	})
}

// RemoveModerator implements Facade.
func (kv *KV) RemoveModerator(ctx context.Context, roomID, userID string) error {
	return kv.updateRoom(ctx, roomID, func(r *roomRecord) {
		r.Moderators = removeString(r.Moderators, userID)
	})
}

// JoinRoom implements Facade.
func (kv *KV) JoinRoom(ctx context.Context, roomID, userID string) error {
	return kv.updateRoom(ctx, roomID, func(r *roomRecord) {
		r.Members = addString(r.Members, userID)
	})
}

// LeaveRoom implements Facade.
func (kv *KV) LeaveRoom(ctx context.Context, roomID, userID string) error {
	return kv.updateRoom(ctx, roomID, func(r *roomRecord) {
		r.Members = removeString(r.Members, userID)
	})
}

// KickUser implements Facade.
func (kv *KV) KickUser(ctx context.Context, roomID, userID string) error {
	return kv.LeaveRoom(ctx, roomID, userID)
}

func (kv *KV) updateRoom(ctx context.Context, roomID string, mutate func(*roomRecord)) error {
	room, err := kv.getRoom(ctx, roomID)
	if err != nil {
		return err
	}
	mutate(room)
	return kv.putRoom(ctx, roomID, room)
}

func (kv *KV) updateChannel(ctx context.Context, channelID string, mutate func(*channelRecord)) error {
	channel, err := kv.getChannel(ctx, channelID)
	if err != nil {
		return err
	}
	mutate(channel)
	return kv.putChannel(ctx, channelID, channel)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func addString(list []string, s string) []string {
	if containsString(list, s) {
		return list
	}
	return append(list, s)
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}

package store

import (
	"context"
	"sync"
	"time"

	"github.com/torocatala/dino/acl"
	"github.com/torocatala/dino/errors"
)

// memoryRoom is the in-memory record for one room.
type memoryRoom struct {
	name       string
	channelID  string
	private    bool
	members    map[string]struct{}
	owners     map[string]struct{}
	moderators map[string]struct{}
	acls       []acl.Rule
	roomBans   map[string]time.Time // userID -> expiry
}

// memoryChannel is the in-memory record for one channel.
type memoryChannel struct {
	name    string
	owners  map[string]struct{}
	admins  map[string]struct{}
	acls    []acl.Rule
	bans    map[string]time.Time
}

// Memory is an in-memory Facade. It backs development mode and the test
// suites; production deployments use the KV-backed store.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]string // userID -> name
	rooms      map[string]*memoryRoom
	channels   map[string]*memoryChannel
	superUsers map[string]struct{}
	globalBans map[string]time.Time
	now        func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:      map[string]string{},
		rooms:      map[string]*memoryRoom{},
		channels:   map[string]*memoryChannel{},
		superUsers: map[string]struct{}{},
		globalBans: map[string]time.Time{},
		now:        time.Now,
	}
}

// AddUser registers a user.
func (m *Memory) AddUser(userID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = name
}

// AddChannel registers a channel.
func (m *Memory) AddChannel(channelID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channelID] = &memoryChannel{
		name:   name,
		owners: map[string]struct{}{},
		admins: map[string]struct{}{},
		bans:   map[string]time.Time{},
	}
}

// AddRoom registers a room inside a channel.
func (m *Memory) AddRoom(roomID, name, channelID string, private bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[roomID] = &memoryRoom{
		name:       name,
		channelID:  channelID,
		private:    private,
		members:    map[string]struct{}{},
		owners:     map[string]struct{}{},
		moderators: map[string]struct{}{},
		roomBans:   map[string]time.Time{},
	}
}

// CreateRoom registers a room inside a channel, failing when the channel is
// unknown or the room id is taken.
func (m *Memory) CreateRoom(_ context.Context, roomID, name, channelID string, private bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[channelID]; !ok {
		return errors.ErrNoSuchChannel
	}
	if _, ok := m.rooms[roomID]; ok {
		return errors.ErrRoomExists
	}
	m.rooms[roomID] = &memoryRoom{
		name:       name,
		channelID:  channelID,
		private:    private,
		members:    map[string]struct{}{},
		owners:     map[string]struct{}{},
		moderators: map[string]struct{}{},
		roomBans:   map[string]time.Time{},
	}
	return nil
}

// SetRoomACLs replaces the persisted rules for a room.
func (m *Memory) SetRoomACLs(roomID string, rules []acl.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[roomID]; ok {
		room.acls = rules
	}
}

// SetChannelACLs replaces the persisted rules for a channel.
func (m *Memory) SetChannelACLs(channelID string, rules []acl.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if channel, ok := m.channels[channelID]; ok {
		channel.acls = rules
	}
}

// SetSuperUser marks a user as a global super user.
func (m *Memory) SetSuperUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.superUsers[userID] = struct{}{}
}

func (m *Memory) room(roomID string) (*memoryRoom, error) {
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, errors.ErrNoSuchRoom
	}
	return room, nil
}

func (m *Memory) channel(channelID string) (*memoryChannel, error) {
	channel, ok := m.channels[channelID]
	if !ok {
		return nil, errors.ErrNoSuchChannel
	}
	return channel, nil
}

// GetUserName implements Facade.
func (m *Memory) GetUserName(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.users[userID]
	if !ok {
		return "", errors.ErrNoSuchUser
	}
	return name, nil
}

// GetRoomName implements Facade.
func (m *Memory) GetRoomName(_ context.Context, roomID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, err := m.room(roomID)
	if err != nil {
		return "", err
	}
	return room.name, nil
}

// GetChannelName implements Facade.
func (m *Memory) GetChannelName(_ context.Context, channelID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, err := m.channel(channelID)
	if err != nil {
		return "", err
	}
	return channel.name, nil
}

// GetChannelForRoom implements Facade.
func (m *Memory) GetChannelForRoom(_ context.Context, roomID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, err := m.room(roomID)
	if err != nil {
		return "", err
	}
	return room.channelID, nil
}

// ChannelExists implements Facade.
func (m *Memory) ChannelExists(_ context.Context, channelID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.channels[channelID]
	return ok, nil
}

// RoomExists implements Facade.
func (m *Memory) RoomExists(_ context.Context, channelID, roomID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return false, nil
	}
	return room.channelID == channelID, nil
}

// RoomContains implements Facade.
func (m *Memory) RoomContains(_ context.Context, roomID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, err := m.room(roomID)
	if err != nil {
		return false, err
	}
	_, ok := room.members[userID]
	return ok, nil
}

// IsRoomPrivate implements Facade.
func (m *Memory) IsRoomPrivate(_ context.Context, roomID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return false, nil
	}
	return room.private, nil
}

// IsOwner implements Facade.
func (m *Memory) IsOwner(_ context.Context, roomID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return false, nil
	}
	_, owner := room.owners[userID]
	return owner, nil
}

// IsAdmin implements Facade.
func (m *Memory) IsAdmin(_ context.Context, channelID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[channelID]
	if !ok {
		return false, nil
	}
	_, admin := channel.admins[userID]
	return admin, nil
}

// IsOwnerChannel implements Facade.
func (m *Memory) IsOwnerChannel(_ context.Context, channelID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[channelID]
	if !ok {
		return false, nil
	}
	_, owner := channel.owners[userID]
	return owner, nil
}

// IsSuperUser implements Facade.
func (m *Memory) IsSuperUser(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.superUsers[userID]
	return ok, nil
}

// GetACLs implements Facade.
func (m *Memory) GetACLs(_ context.Context, roomID string) ([]acl.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, nil
	}
	return append([]acl.Rule(nil), room.acls...), nil
}

// GetACLsChannel implements Facade.
func (m *Memory) GetACLsChannel(_ context.Context, channelID string) ([]acl.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[channelID]
	if !ok {
		return nil, nil
	}
	return append([]acl.Rule(nil), channel.acls...), nil
}

// BanUser implements Facade.
func (m *Memory) BanUser(
	_ context.Context, scope BanScope, targetID, userID string, duration time.Duration,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry := m.now().Add(duration)
	switch scope {
	case ScopeGlobal:
		m.globalBans[userID] = expiry
	case ScopeChannel:
		channel, err := m.channel(targetID)
		if err != nil {
			return err
		}
		channel.bans[userID] = expiry
	case ScopeRoom:
		room, err := m.room(targetID)
		if err != nil {
			return err
		}
		room.roomBans[userID] = expiry
	default:
		return errors.ErrUnknownBanScope
	}
	return nil
}

// RemoveBan implements Facade.
func (m *Memory) RemoveBan(_ context.Context, scope BanScope, targetID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch scope {
	case ScopeGlobal:
		delete(m.globalBans, userID)
	case ScopeChannel:
		channel, err := m.channel(targetID)
		if err != nil {
			return err
		}
		delete(channel.bans, userID)
	case ScopeRoom:
		room, err := m.room(targetID)
		if err != nil {
			return err
		}
		delete(room.roomBans, userID)
	default:
		return errors.ErrUnknownBanScope
	}
	return nil
}

// GetUserBanStatus implements Facade. Expired bans read as not banned.
func (m *Memory) GetUserBanStatus(_ context.Context, roomID, userID string) (BanStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var banStatus BanStatus
	now := m.now()

	if expiry, ok := m.globalBans[userID]; ok && expiry.After(now) {
		banStatus.Global = expiry.UTC().Format(time.RFC3339)
	}

	room, ok := m.rooms[roomID]
	if !ok {
		return banStatus, nil
	}
	if expiry, ok := room.roomBans[userID]; ok && expiry.After(now) {
		banStatus.Room = expiry.UTC().Format(time.RFC3339)
	}
	if channel, ok := m.channels[room.channelID]; ok {
		if expiry, ok := channel.bans[userID]; ok && expiry.After(now) {
			banStatus.Channel = expiry.UTC().Format(time.RFC3339)
		}
	}

	return banStatus, nil
}

// SetAdmin implements Facade.
func (m *Memory) SetAdmin(_ context.Context, channelID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	channel, err := m.channel(channelID)
	if err != nil {
		return err
	}
	channel.admins[userID] = struct{}{}
	return nil
}

// RemoveAdmin implements Facade.
func (m *Memory) RemoveAdmin(_ context.Context, channelID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	channel, err := m.channel(channelID)
	if err != nil {
		return err
	}
	delete(channel.admins, userID)
	return nil
}

// SetOwner implements Facade.
func (m *Memory) SetOwner(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, err := m.room(roomID)
	if err != nil {
		return err
	}
	room.owners[userID] = struct{}{}
	return nil
}

// RemoveOwner implements Facade.
func (m *Memory) RemoveOwner(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, err := m.room(roomID)
	if err != nil {
		return err
	}
	delete(room.owners, userID)
	return nil
}

// SetOwnerChannel implements Facade.
func (m *Memory) SetOwnerChannel(_ context.Context, channelID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	channel, err := m.channel(channelID)
	if err != nil {
		return err
	}
	channel.owners[userID] = struct{}{}
	return nil
}

// RemoveOwnerChannel implements Facade.
func (m *Memory) RemoveOwnerChannel(_ context.Context, channelID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	channel, err := m.channel(channelID)
	if err != nil {
		return err
	}
	delete(channel.owners, userID)
	return nil
}

// SetModerator implements Facade.
func (m *Memory) SetModerator(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, err := m.room(roomID)
	if err != nil {
		return err
	}
	room.moderators[userID] = struct{}{}
	return nil
}

// RemoveModerator implements Facade.
func (m *Memory) RemoveModerator(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, err := m.room(roomID)
	if err != nil {
		return err
	}
	delete(room.moderators, userID)
	return nil
}

// JoinRoom implements Facade.
func (m *Memory) JoinRoom(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, err := m.room(roomID)
	if err != nil {
		return err
	}
	room.members[userID] = struct{}{}
	return nil
}

// LeaveRoom implements Facade.
func (m *Memory) LeaveRoom(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, err := m.room(roomID)
	if err != nil {
		return err
	}
	delete(room.members, userID)
	return nil
}

// KickUser implements Facade. Kicking is leaving, initiated by someone else.
func (m *Memory) KickUser(ctx context.Context, roomID, userID string) error {
	return m.LeaveRoom(ctx, roomID, userID)
}

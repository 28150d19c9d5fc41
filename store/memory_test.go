package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torocatala/dino/acl"
	"github.com/torocatala/dino/errors"
)

func newPopulatedMemory() *Memory {
	m := NewMemory()
	m.AddUser("1234", "batman")
	m.AddChannel("8765", "Shanghai")
	m.AddRoom("4567", "cos", "8765", false)
	return m
}

func TestMemoryLookups(t *testing.T) {
	m := newPopulatedMemory()
	ctx := context.Background()

	name, err := m.GetUserName(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, "batman", name)

	name, err = m.GetRoomName(ctx, "4567")
	require.NoError(t, err)
	assert.Equal(t, "cos", name)

	name, err = m.GetChannelName(ctx, "8765")
	require.NoError(t, err)
	assert.Equal(t, "Shanghai", name)

	channelID, err := m.GetChannelForRoom(ctx, "4567")
	require.NoError(t, err)
	assert.Equal(t, "8765", channelID)
}

func TestMemoryMissingEntities(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.GetUserName(ctx, "9999")
	assert.ErrorIs(t, err, errors.ErrNoSuchUser)

	_, err = m.GetRoomName(ctx, "9999")
	assert.ErrorIs(t, err, errors.ErrNoSuchRoom)

	_, err = m.GetChannelName(ctx, "9999")
	assert.ErrorIs(t, err, errors.ErrNoSuchChannel)

	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryExistence(t *testing.T) {
	m := newPopulatedMemory()
	ctx := context.Background()

	exists, err := m.ChannelExists(ctx, "8765")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = m.RoomExists(ctx, "8765", "4567")
	require.NoError(t, err)
	assert.True(t, exists)

	// Room exists but under a different channel.
	exists, err = m.RoomExists(ctx, "0001", "4567")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = m.RoomExists(ctx, "8765", "0002")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryMembership(t *testing.T) {
	m := newPopulatedMemory()
	ctx := context.Background()

	in, err := m.RoomContains(ctx, "4567", "1234")
	require.NoError(t, err)
	assert.False(t, in)

	require.NoError(t, m.JoinRoom(ctx, "4567", "1234"))
	in, err = m.RoomContains(ctx, "4567", "1234")
	require.NoError(t, err)
	assert.True(t, in)

	require.NoError(t, m.KickUser(ctx, "4567", "1234"))
	in, err = m.RoomContains(ctx, "4567", "1234")
	require.NoError(t, err)
	assert.False(t, in)

	assert.ErrorIs(t, m.JoinRoom(ctx, "0002", "1234"), errors.ErrNoSuchRoom)
}

func TestMemoryRoles(t *testing.T) {
	m := newPopulatedMemory()
	ctx := context.Background()

	for _, role := range []struct {
		name   string
		set    func() error
		remove func() error
		check  func() (bool, error)
	}{
		{
			name:   "room owner",
			set:    func() error { return m.SetOwner(ctx, "4567", "1234") },
			remove: func() error { return m.RemoveOwner(ctx, "4567", "1234") },
			check:  func() (bool, error) { return m.IsOwner(ctx, "4567", "1234") },
		},
		{
			name:   "channel admin",
			set:    func() error { return m.SetAdmin(ctx, "8765", "1234") },
			remove: func() error { return m.RemoveAdmin(ctx, "8765", "1234") },
			check:  func() (bool, error) { return m.IsAdmin(ctx, "8765", "1234") },
		},
		{
			name:   "channel owner",
			set:    func() error { return m.SetOwnerChannel(ctx, "8765", "1234") },
			remove: func() error { return m.RemoveOwnerChannel(ctx, "8765", "1234") },
			check:  func() (bool, error) { return m.IsOwnerChannel(ctx, "8765", "1234") },
		},
	} {
		t.Run(role.name, func(t *testing.T) {
			has, err := role.check()
			require.NoError(t, err)
			assert.False(t, has)

			require.NoError(t, role.set())
			has, err = role.check()
			require.NoError(t, err)
			assert.True(t, has)

			require.NoError(t, role.remove())
			has, err = role.check()
			require.NoError(t, err)
			assert.False(t, has)
		})
	}
}

func TestMemorySuperUser(t *testing.T) {
	m := newPopulatedMemory()
	ctx := context.Background()

	super, err := m.IsSuperUser(ctx, "1234")
	require.NoError(t, err)
	assert.False(t, super)

	m.SetSuperUser("1234")
	super, err = m.IsSuperUser(ctx, "1234")
	require.NoError(t, err)
	assert.True(t, super)
}

func TestMemoryACLs(t *testing.T) {
	m := newPopulatedMemory()
	ctx := context.Background()

	rules, err := m.GetACLs(ctx, "4567")
	require.NoError(t, err)
	assert.Empty(t, rules)

	want := []acl.Rule{{Key: "age", Value: "18:"}, {Key: "gender", Value: "m,f"}}
	m.SetRoomACLs("4567", want)
	rules, err = m.GetACLs(ctx, "4567")
	require.NoError(t, err)
	assert.Equal(t, want, rules)

	m.SetChannelACLs("8765", []acl.Rule{{Key: "membership", Value: "1,2"}})
	rules, err = m.GetACLsChannel(ctx, "8765")
	require.NoError(t, err)
	assert.Equal(t, []acl.Rule{{Key: "membership", Value: "1,2"}}, rules)

	// Unknown targets read as no rules, not as errors.
	rules, err = m.GetACLs(ctx, "0002")
	require.NoError(t, err)
	assert.Nil(t, rules)
}

func TestMemoryBans(t *testing.T) {
	m := newPopulatedMemory()
	ctx := context.Background()
	base := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	require.NoError(t, m.BanUser(ctx, ScopeGlobal, "", "1234", time.Hour))
	require.NoError(t, m.BanUser(ctx, ScopeChannel, "8765", "1234", 2*time.Hour))
	require.NoError(t, m.BanUser(ctx, ScopeRoom, "4567", "1234", 30*time.Minute))

	banStatus, err := m.GetUserBanStatus(ctx, "4567", "1234")
	require.NoError(t, err)
	assert.True(t, banStatus.IsBanned())
	assert.Equal(t, "2020-01-01T13:00:00Z", banStatus.Global)
	assert.Equal(t, "2020-01-01T14:00:00Z", banStatus.Channel)
	assert.Equal(t, "2020-01-01T12:30:00Z", banStatus.Room)

	require.NoError(t, m.RemoveBan(ctx, ScopeGlobal, "", "1234"))
	require.NoError(t, m.RemoveBan(ctx, ScopeChannel, "8765", "1234"))
	banStatus, err = m.GetUserBanStatus(ctx, "4567", "1234")
	require.NoError(t, err)
	assert.True(t, banStatus.IsBanned())
	assert.Empty(t, banStatus.Global)
	assert.Empty(t, banStatus.Channel)

	require.NoError(t, m.RemoveBan(ctx, ScopeRoom, "4567", "1234"))
	banStatus, err = m.GetUserBanStatus(ctx, "4567", "1234")
	require.NoError(t, err)
	assert.False(t, banStatus.IsBanned())
}

func TestMemoryBanExpiry(t *testing.T) {
	m := newPopulatedMemory()
	ctx := context.Background()
	base := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	require.NoError(t, m.BanUser(ctx, ScopeRoom, "4567", "1234", time.Minute))

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	banStatus, err := m.GetUserBanStatus(ctx, "4567", "1234")
	require.NoError(t, err)
	assert.False(t, banStatus.IsBanned())
}

func TestMemoryUnknownBanScope(t *testing.T) {
	m := newPopulatedMemory()
	ctx := context.Background()

	err := m.BanUser(ctx, BanScope("galaxy"), "4567", "1234", time.Hour)
	assert.ErrorIs(t, err, errors.ErrUnknownBanScope)

	err = m.RemoveBan(ctx, BanScope("galaxy"), "4567", "1234")
	assert.ErrorIs(t, err, errors.ErrUnknownBanScope)
}

func TestMemoryPrivateRoom(t *testing.T) {
	m := NewMemory()
	m.AddChannel("8765", "Shanghai")
	m.AddRoom("7777", "hideout", "8765", true)
	ctx := context.Background()

	private, err := m.IsRoomPrivate(ctx, "7777")
	require.NoError(t, err)
	assert.True(t, private)

	private, err = m.IsRoomPrivate(ctx, "0002")
	require.NoError(t, err)
	assert.False(t, private)
}

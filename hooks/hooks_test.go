package hooks

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torocatala/dino/activity"
	"github.com/torocatala/dino/publisher"
	"github.com/torocatala/dino/status"
	"github.com/torocatala/dino/store"
)

func newHandlers(t *testing.T) (*Handlers, *store.Memory, *publisher.Recorder) {
	t.Helper()

	m := store.NewMemory()
	m.AddUser("1234", "batman")
	m.AddUser("4321", "robin")
	m.AddChannel("8765", "Shanghai")
	m.AddRoom("4567", "cos", "8765", false)

	rec := &publisher.Recorder{}
	return New(m, m, rec, slog.Default()), m, rec
}

func TestOnJoin(t *testing.T) {
	h, m, rec := newHandlers(t)
	ctx := context.Background()

	act := &activity.Activity{
		Verb:   "join",
		Actor:  &activity.Actor{ID: "1234"},
		Target: &activity.Target{ID: "4567"},
	}
	code, _ := h.OnJoin(ctx, nil, act, nil)
	require.Equal(t, status.OK, code)

	in, err := m.RoomContains(ctx, "4567", "1234")
	require.NoError(t, err)
	assert.True(t, in)
	require.NotNil(t, rec.Last())
	assert.Equal(t, "join", rec.Last().Verb)
}

func TestOnJoinUnknownRoom(t *testing.T) {
	h, _, rec := newHandlers(t)

	act := &activity.Activity{
		Verb:   "join",
		Actor:  &activity.Actor{ID: "1234"},
		Target: &activity.Target{ID: "0000"},
	}
	code, _ := h.OnJoin(context.Background(), nil, act, nil)
	assert.Equal(t, status.NoSuchRoom, code)
	assert.Nil(t, rec.Last())
}

func TestOnMessagePublishesExternally(t *testing.T) {
	h, _, rec := newHandlers(t)

	act := &activity.Activity{
		Verb:   "message",
		Actor:  &activity.Actor{ID: "1234"},
		Object: &activity.Object{Content: activity.B64Encode("hello")},
		Target: &activity.Target{ID: "4567"},
	}
	code, _ := h.OnMessage(context.Background(), nil, act, nil)
	require.Equal(t, status.OK, code)
	require.Len(t, rec.Events, 1)
	assert.True(t, rec.External[0])
}

func TestOnKick(t *testing.T) {
	h, m, rec := newHandlers(t)
	ctx := context.Background()
	require.NoError(t, m.JoinRoom(ctx, "4567", "4321"))

	act := &activity.Activity{
		Verb:   "kick",
		Actor:  &activity.Actor{ID: "1234"},
		Object: &activity.Object{ID: "4321"},
		Target: &activity.Target{ID: "4567"},
	}
	code, _ := h.OnKick(ctx, nil, act, nil)
	require.Equal(t, status.OK, code)

	in, err := m.RoomContains(ctx, "4567", "4321")
	require.NoError(t, err)
	assert.False(t, in)

	require.NotNil(t, rec.Last())
	assert.Equal(t, "kick", rec.Last().Verb)
	assert.Equal(t, "4321", rec.Last().Object.ID)
	assert.True(t, rec.External[0])
}

func TestOnBanRoomScope(t *testing.T) {
	h, m, _ := newHandlers(t)
	ctx := context.Background()

	act := &activity.Activity{
		Verb:   "ban",
		Actor:  &activity.Actor{ID: "1234"},
		Object: &activity.Object{ID: "4321", Summary: "12h"},
		Target: &activity.Target{ID: "4567"},
	}
	code, _ := h.OnBan(ctx, nil, act, nil)
	require.Equal(t, status.OK, code)

	banStatus, err := m.GetUserBanStatus(ctx, "4567", "4321")
	require.NoError(t, err)
	assert.NotEmpty(t, banStatus.Room)
	assert.Empty(t, banStatus.Global)
}

func TestOnBanGlobalScope(t *testing.T) {
	h, m, _ := newHandlers(t)
	ctx := context.Background()

	act := &activity.Activity{
		Verb:   "ban",
		Actor:  &activity.Actor{ID: "1234"},
		Object: &activity.Object{ID: "4321", Summary: "7d"},
	}
	code, _ := h.OnBan(ctx, nil, act, nil)
	require.Equal(t, status.OK, code)

	banStatus, err := m.GetUserBanStatus(ctx, "4567", "4321")
	require.NoError(t, err)
	assert.NotEmpty(t, banStatus.Global)
}

func TestOnCreate(t *testing.T) {
	h, m, rec := newHandlers(t)
	ctx := context.Background()

	act := &activity.Activity{
		Verb:   "create",
		Actor:  &activity.Actor{ID: "1234"},
		Object: &activity.Object{URL: "8765"},
		Target: &activity.Target{DisplayName: activity.B64Encode("new room")},
	}
	code, roomID := h.OnCreate(ctx, nil, act, nil)
	require.Equal(t, status.OK, code)
	require.NotEmpty(t, roomID)

	name, err := m.GetRoomName(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, "new room", name)

	// Creator owns the new room.
	owner, err := m.IsOwner(ctx, roomID, "1234")
	require.NoError(t, err)
	assert.True(t, owner)

	require.NotNil(t, rec.Last())
	assert.Equal(t, roomID, rec.Last().TargetID())
}

func TestOnCreateDuplicateRoomID(t *testing.T) {
	h, _, _ := newHandlers(t)

	act := &activity.Activity{
		Verb:   "create",
		Actor:  &activity.Actor{ID: "1234"},
		Object: &activity.Object{URL: "8765"},
		Target: &activity.Target{
			ID:          "4567",
			DisplayName: activity.B64Encode("cos again"),
		},
	}
	code, _ := h.OnCreate(context.Background(), nil, act, nil)
	assert.Equal(t, status.RoomAlreadyExists, code)
}

func TestPublishStartup(t *testing.T) {
	h, _, rec := newHandlers(t)

	h.PublishStartup(context.Background(), "production")
	require.Len(t, rec.Events, 1)
	assert.Equal(t, "restart", rec.Last().Verb)
	assert.Equal(t, "production", rec.Last().Object.Content)
	assert.True(t, rec.External[0])
}

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torocatala/dino/acl"
	"github.com/torocatala/dino/activity"
	"github.com/torocatala/dino/session"
	"github.com/torocatala/dino/status"
	"github.com/torocatala/dino/store"
)

const (
	testChannelID      = "8765"
	testOtherChannelID = "8888"
	testRoomID         = "4567"
	testOtherRoomID    = "5555"
	testPrivateRoomID  = "9999"
	testUserID         = "1234"
)

func newRequestValidator(t *testing.T) (*RequestValidator, *store.Memory) {
	t.Helper()

	m := store.NewMemory()
	m.AddUser(testUserID, "batman")
	m.AddChannel(testChannelID, "Shanghai")
	m.AddChannel(testOtherChannelID, "Beijing")
	m.AddRoom(testRoomID, "cos", testChannelID, false)
	m.AddRoom(testOtherRoomID, "play", testChannelID, false)
	m.AddRoom("6666", "far away", testOtherChannelID, false)
	m.AddRoom(testPrivateRoomID, "hideout", testChannelID, true)
	require.NoError(t, m.JoinRoom(context.Background(), testRoomID, testUserID))

	engine := acl.NewEngine(m, acl.NewRegistry(), testLogger())
	return NewRequestValidator(m, engine, testLogger()), m
}

func messageAct(mutate func(act *activity.Activity)) *activity.Activity {
	act := &activity.Activity{
		Verb:  "message",
		Actor: &activity.Actor{ID: testUserID},
		Object: &activity.Object{
			URL:     testChannelID,
			Content: activity.B64Encode("this is the message"),
		},
		Target: &activity.Target{
			ID:         testRoomID,
			ObjectType: activity.ObjectTypeRoom,
		},
	}
	if mutate != nil {
		mutate(act)
	}
	return act
}

func TestOnMessage(t *testing.T) {
	v, _ := newRequestValidator(t)

	code, msg := v.OnMessage(context.Background(), messageAct(nil), testSession())
	assert.Equal(t, status.OK, code, msg)
}

func TestOnMessageStructure(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(act *activity.Activity)
		want   status.Code
	}{
		{
			name:   "no room id",
			mutate: func(act *activity.Activity) { act.Target.ID = "" },
			want:   status.MissingTargetID,
		},
		{
			name:   "no channel id",
			mutate: func(act *activity.Activity) { act.Object.URL = "" },
			want:   status.MissingObjectURL,
		},
		{
			name:   "channel does not exist",
			mutate: func(act *activity.Activity) { act.Object.URL = "0000" },
			want:   status.NoSuchChannel,
		},
		{
			name: "room does not exist",
			mutate: func(act *activity.Activity) {
				act.Target.ID = "0000"
			},
			want: status.NoSuchRoom,
		},
		{
			name:   "wrong target type",
			mutate: func(act *activity.Activity) { act.Target.ObjectType = "foo" },
			want:   status.InvalidTargetType,
		},
		{
			name:   "no content",
			mutate: func(act *activity.Activity) { act.Object.Content = "" },
			want:   status.MissingObjectContent,
		},
		{
			name:   "content not base64",
			mutate: func(act *activity.Activity) { act.Object.Content = "this is not base64" },
			want:   status.NotBase64,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := newRequestValidator(t)
			code, _ := v.OnMessage(context.Background(), messageAct(tt.mutate), testSession())
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestOnMessagePrivateTargetType(t *testing.T) {
	v, _ := newRequestValidator(t)

	// Private target type against a private room is fine; membership is not
	// required for private delivery.
	act := messageAct(func(act *activity.Activity) {
		act.Target.ID = testPrivateRoomID
		act.Target.ObjectType = activity.ObjectTypePrivate
	})
	code, msg := v.OnMessage(context.Background(), act, testSession())
	assert.Equal(t, status.OK, code, msg)

	// Private target type against a public room is not.
	act = messageAct(func(act *activity.Activity) {
		act.Target.ObjectType = activity.ObjectTypePrivate
	})
	code, _ = v.OnMessage(context.Background(), act, testSession())
	assert.Equal(t, status.InvalidTargetType, code)
}

func TestOnMessageNotInRoom(t *testing.T) {
	v, m := newRequestValidator(t)
	require.NoError(t, m.LeaveRoom(context.Background(), testRoomID, testUserID))

	code, _ := v.OnMessage(context.Background(), messageAct(nil), testSession())
	assert.Equal(t, status.UserNotInRoom, code)
}

func TestOnMessageBanned(t *testing.T) {
	v, m := newRequestValidator(t)
	require.NoError(t, m.BanUser(context.Background(), store.ScopeRoom, testRoomID, testUserID, time.Hour))

	code, _ := v.OnMessage(context.Background(), messageAct(nil), testSession())
	assert.Equal(t, status.UserIsBanned, code)
}

func TestOnMessageCrossRoomSameChannel(t *testing.T) {
	v, m := newRequestValidator(t)
	require.NoError(t, m.JoinRoom(context.Background(), testOtherRoomID, testUserID))

	act := messageAct(func(act *activity.Activity) {
		act.Actor.URL = testRoomID
		act.Target.ID = testOtherRoomID
		act.Provider = &activity.Provider{URL: testChannelID}
	})
	code, msg := v.OnMessage(context.Background(), act, testSession())
	assert.Equal(t, status.OK, code, msg)
}

func TestOnMessageCrossRoomDifferentChannel(t *testing.T) {
	v, m := newRequestValidator(t)
	require.NoError(t, m.JoinRoom(context.Background(), "6666", testUserID))

	act := messageAct(func(act *activity.Activity) {
		act.Actor.URL = testRoomID
		act.Target.ID = "6666"
		act.Object.URL = testOtherChannelID
		act.Provider = &activity.Provider{URL: testChannelID}
	})
	code, msg := v.OnMessage(context.Background(), act, testSession())
	assert.Equal(t, status.ValidationError, code)
	assert.Contains(t, msg, "different channels")
}

func TestOnMessageCrossRoomNotInOriginRoom(t *testing.T) {
	v, m := newRequestValidator(t)
	require.NoError(t, m.JoinRoom(context.Background(), testOtherRoomID, testUserID))
	require.NoError(t, m.LeaveRoom(context.Background(), testRoomID, testUserID))

	act := messageAct(func(act *activity.Activity) {
		act.Actor.URL = testRoomID
		act.Target.ID = testOtherRoomID
		act.Provider = &activity.Provider{URL: testChannelID}
	})
	code, _ := v.OnMessage(context.Background(), act, testSession())
	assert.Equal(t, status.UserNotInRoom, code)
}

func TestOnMessageACLRejected(t *testing.T) {
	v, m := newRequestValidator(t)
	m.SetRoomACLs(testRoomID, []acl.Rule{{Key: "gender", Value: "f"}})

	sess := session.New(map[string]string{
		session.KeyUserID:   testUserID,
		session.KeyUserName: "batman",
		session.KeyGender:   "m",
	})
	code, msg := v.OnMessage(context.Background(), messageAct(nil), sess)
	assert.Equal(t, status.NotAllowed, code)
	assert.Contains(t, msg, "gender")
}

func TestOnJoin(t *testing.T) {
	v, m := newRequestValidator(t)
	ctx := context.Background()

	act := &activity.Activity{
		Verb:   "join",
		Actor:  &activity.Actor{ID: testUserID},
		Target: &activity.Target{ID: testRoomID},
	}
	code, msg := v.OnJoin(ctx, act, testSession())
	assert.Equal(t, status.OK, code, msg)

	act.Target.ID = ""
	code, _ = v.OnJoin(ctx, act, testSession())
	assert.Equal(t, status.MissingTargetID, code)

	act.Target.ID = "0000"
	code, _ = v.OnJoin(ctx, act, testSession())
	assert.Equal(t, status.NoSuchRoom, code)

	act.Target.ID = testRoomID
	require.NoError(t, m.BanUser(ctx, store.ScopeGlobal, "", testUserID, time.Hour))
	code, _ = v.OnJoin(ctx, act, testSession())
	assert.Equal(t, status.UserIsBanned, code)
}

func TestOnKick(t *testing.T) {
	v, m := newRequestValidator(t)
	ctx := context.Background()
	m.AddUser("4321", "robin")

	act := &activity.Activity{
		Verb:   "kick",
		Actor:  &activity.Actor{ID: testUserID},
		Object: &activity.Object{ID: "4321"},
		Target: &activity.Target{ID: testRoomID},
	}
	code, msg := v.OnKick(ctx, act, testSession())
	assert.Equal(t, status.OK, code, msg)

	act.Object.ID = ""
	code, _ = v.OnKick(ctx, act, testSession())
	assert.Equal(t, status.MissingObjectID, code)

	act.Object.ID = "0000"
	code, _ = v.OnKick(ctx, act, testSession())
	assert.Equal(t, status.NoSuchUser, code)
}

func TestOnBan(t *testing.T) {
	v, m := newRequestValidator(t)
	ctx := context.Background()
	m.AddUser("4321", "robin")

	act := &activity.Activity{
		Verb:   "ban",
		Actor:  &activity.Actor{ID: testUserID},
		Object: &activity.Object{ID: "4321", Summary: "5m"},
		Target: &activity.Target{ID: testRoomID},
	}
	code, msg := v.OnBan(ctx, act, testSession())
	assert.Equal(t, status.OK, code, msg)

	act.Object.Summary = "forever"
	code, _ = v.OnBan(ctx, act, testSession())
	assert.Equal(t, status.InvalidBanDuration, code)

	act.Object.Summary = "5m"
	act.Object.ID = "0000"
	code, _ = v.OnBan(ctx, act, testSession())
	assert.Equal(t, status.NoSuchUser, code)
}

func TestOnBanGlobalRequiresSuperUser(t *testing.T) {
	v, m := newRequestValidator(t)
	ctx := context.Background()
	m.AddUser("4321", "robin")

	act := &activity.Activity{
		Verb:   "ban",
		Actor:  &activity.Actor{ID: testUserID},
		Object: &activity.Object{ID: "4321", Summary: "12h"},
	}
	code, _ := v.OnBan(ctx, act, testSession())
	assert.Equal(t, status.NotAllowed, code)

	m.SetSuperUser(testUserID)
	code, msg := v.OnBan(ctx, act, testSession())
	assert.Equal(t, status.OK, code, msg)
}

func TestOnCreate(t *testing.T) {
	v, _ := newRequestValidator(t)
	ctx := context.Background()

	act := &activity.Activity{
		Verb:   "create",
		Actor:  &activity.Actor{ID: testUserID},
		Object: &activity.Object{URL: testChannelID},
		Target: &activity.Target{DisplayName: activity.B64Encode("new room")},
	}
	code, msg := v.OnCreate(ctx, act, testSession())
	assert.Equal(t, status.OK, code, msg)

	act.Target.DisplayName = "not base64!"
	code, _ = v.OnCreate(ctx, act, testSession())
	assert.Equal(t, status.NotBase64, code)

	act.Target.DisplayName = activity.B64Encode("new room")
	act.Object.URL = "0000"
	code, _ = v.OnCreate(ctx, act, testSession())
	assert.Equal(t, status.NoSuchChannel, code)

	act.Object.URL = testChannelID
	act.Target.ID = testRoomID
	code, _ = v.OnCreate(ctx, act, testSession())
	assert.Equal(t, status.RoomAlreadyExists, code)
}

func TestOnLogin(t *testing.T) {
	v, _ := newRequestValidator(t)
	ctx := context.Background()

	act := &activity.Activity{
		Verb: "login",
		Actor: &activity.Actor{
			ID:          testUserID,
			DisplayName: activity.B64Encode("batman"),
		},
	}
	code, msg := v.OnLogin(ctx, act, session.New(nil))
	assert.Equal(t, status.OK, code, msg)

	act.Actor.ID = ""
	code, _ = v.OnLogin(ctx, act, session.New(nil))
	assert.Equal(t, status.MissingActorID, code)

	act.Actor.ID = testUserID
	act.Actor.DisplayName = ""
	code, _ = v.OnLogin(ctx, act, session.New(nil))
	assert.Equal(t, status.ValidationError, code)
}

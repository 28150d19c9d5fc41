// Package hooks holds the business handlers dispatched by the pipeline after
// validation passes. Handlers mutate the store and fan events out through the
// publisher; they do not re-validate what the pipeline already checked.
package hooks

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/torocatala/dino/activity"
	"github.com/torocatala/dino/errors"
	"github.com/torocatala/dino/pipeline"
	"github.com/torocatala/dino/publisher"
	"github.com/torocatala/dino/session"
	"github.com/torocatala/dino/status"
	"github.com/torocatala/dino/store"
)

// RoomCreator is the slice of the store that can create rooms. Both store
// implementations satisfy it.
type RoomCreator interface {
	CreateRoom(ctx context.Context, roomID, name, channelID string, private bool) error
}

// Handlers implements the business side of every registered event.
type Handlers struct {
	store   store.Facade
	creator RoomCreator
	pub     publisher.Publisher
	logger  *slog.Logger
	newID   func() string
}

// New creates the handler set.
func New(facade store.Facade, creator RoomCreator, pub publisher.Publisher, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:   facade,
		creator: creator,
		pub:     pub,
		logger:  logger,
		newID:   func() string { return uuid.NewString() },
	}
}

// OnJoin adds the actor to the target room and announces the join.
func (h *Handlers) OnJoin(
	ctx context.Context, _ map[string]any, act *activity.Activity, _ *session.Context,
) (status.Code, string) {
	roomID := act.TargetID()
	userID := act.ActorID()

	if err := h.store.JoinRoom(ctx, roomID, userID); err != nil {
		if errors.IsNotFound(err) {
			return status.NoSuchRoom, fmt.Sprintf("room %q does not exist", roomID)
		}
		return status.UnknownError, err.Error()
	}

	if err := h.pub.Publish(ctx, act, false); err != nil {
		h.logger.Warn("could not publish join event", "room_id", roomID, "error", err)
	}
	return status.OK, ""
}

// OnMessage fans the message out. Messages are mirrored to the external queue
// for integration consumers.
func (h *Handlers) OnMessage(
	ctx context.Context, _ map[string]any, act *activity.Activity, _ *session.Context,
) (status.Code, string) {
	if err := h.pub.Publish(ctx, act, true); err != nil {
		return status.UnknownError, err.Error()
	}
	return status.OK, ""
}

// OnKick removes the kicked user from the room and publishes a kick activity
// so other nodes disconnect the user from the room too.
func (h *Handlers) OnKick(
	ctx context.Context, _ map[string]any, act *activity.Activity, _ *session.Context,
) (status.Code, string) {
	roomID := act.TargetID()
	kickedID := act.Object.ID

	if err := h.store.KickUser(ctx, roomID, kickedID); err != nil {
		if errors.IsNotFound(err) {
			return status.NoSuchRoom, fmt.Sprintf("room %q does not exist", roomID)
		}
		return status.UnknownError, err.Error()
	}

	kickAct := &activity.Activity{
		ID:        act.ID,
		Published: act.Published,
		Verb:      "kick",
		Actor:     &activity.Actor{ID: act.ActorID()},
		Object:    &activity.Object{ID: kickedID},
		Target:    act.Target,
	}
	if err := h.pub.Publish(ctx, kickAct, true); err != nil {
		h.logger.Warn("could not publish kick event", "room_id", roomID, "error", err)
	}
	return status.OK, ""
}

// OnBan records the ban in the store and publishes it. The scope follows the
// target: no target means a global ban, a channel object type means channel
// scope, anything else room scope.
func (h *Handlers) OnBan(
	ctx context.Context, _ map[string]any, act *activity.Activity, _ *session.Context,
) (status.Code, string) {
	bannedID := act.Object.ID
	duration, err := pipeline.ParseBanDuration(act.Object.Summary)
	if err != nil {
		return status.InvalidBanDuration, err.Error()
	}

	scope := store.ScopeRoom
	targetID := act.TargetID()
	switch {
	case targetID == "":
		scope = store.ScopeGlobal
	case act.Target.ObjectType == activity.ObjectTypeChannel:
		scope = store.ScopeChannel
	}

	if err := h.store.BanUser(ctx, scope, targetID, bannedID, duration); err != nil {
		if errors.IsNotFound(err) {
			return status.NoSuchRoom, fmt.Sprintf("ban target %q does not exist", targetID)
		}
		return status.UnknownError, err.Error()
	}

	if err := h.pub.Publish(ctx, act, true); err != nil {
		h.logger.Warn("could not publish ban event", "banned_id", bannedID, "error", err)
	}
	return status.OK, ""
}

// OnCreate creates the room with a server-assigned id and announces it. The
// new room id is returned as the outcome message.
func (h *Handlers) OnCreate(
	ctx context.Context, _ map[string]any, act *activity.Activity, _ *session.Context,
) (status.Code, string) {
	roomName, err := activity.B64Decode(act.Target.DisplayName)
	if err != nil {
		return status.NotBase64, "room name is not base64 encoded"
	}

	roomID := act.TargetID()
	if roomID == "" {
		roomID = h.newID()
	}
	channelID := act.ObjectURL()
	private := act.Object != nil && act.Object.ObjectType == activity.ObjectTypePrivate

	if err := h.creator.CreateRoom(ctx, roomID, roomName, channelID, private); err != nil {
		switch {
		case stderrors.Is(err, errors.ErrRoomExists):
			return status.RoomAlreadyExists, fmt.Sprintf("room %q already exists", roomID)
		case errors.IsNotFound(err):
			return status.NoSuchChannel, fmt.Sprintf("channel %q does not exist", channelID)
		}
		return status.UnknownError, err.Error()
	}

	if err := h.store.SetOwner(ctx, roomID, act.ActorID()); err != nil {
		h.logger.Warn("could not set room owner",
			"room_id", roomID,
			"user_id", act.ActorID(),
			"error", err)
	}

	created := &activity.Activity{
		ID:        act.ID,
		Published: act.Published,
		Verb:      "create",
		Actor:     &activity.Actor{ID: act.ActorID()},
		Object:    &activity.Object{URL: channelID},
		Target: &activity.Target{
			ID:          roomID,
			DisplayName: act.Target.DisplayName,
		},
	}
	if err := h.pub.Publish(ctx, created, false); err != nil {
		h.logger.Warn("could not publish create event", "room_id", roomID, "error", err)
	}
	return status.OK, roomID
}

// OnLogin accepts the login. Session population is the gateway's job; by the
// time the handler runs the envelope has already been validated.
func (h *Handlers) OnLogin(
	_ context.Context, _ map[string]any, _ *activity.Activity, _ *session.Context,
) (status.Code, string) {
	return status.OK, ""
}

// PublishStartup announces a server restart on the external queue so
// integration consumers can resynchronize their online state.
func (h *Handlers) PublishStartup(ctx context.Context, environment string) {
	restart := &activity.Activity{
		ID:     h.newID(),
		Verb:   "restart",
		Actor:  &activity.Actor{ID: "0"},
		Object: &activity.Object{Content: environment},
	}
	if err := h.pub.Publish(ctx, restart, true); err != nil {
		h.logger.Warn("could not publish restart event", "error", err)
	}
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/torocatala/dino/acl"
	"github.com/torocatala/dino/activity"
	"github.com/torocatala/dino/errors"
	"github.com/torocatala/dino/session"
	"github.com/torocatala/dino/status"
	"github.com/torocatala/dino/store"
)

// Event kind names. All but login double as the ACL action the request
// validators evaluate against.
const (
	ActionLogin   = "login"
	ActionMessage = "message"
	ActionJoin    = "join"
	ActionKick    = "kick"
	ActionBan     = "ban"
	ActionCreate  = "create"
)

var banDurationPattern = regexp.MustCompile(`^(\d+)([dhms])$`)

// ParseBanDuration converts a ban duration expression such as "5m", "12h" or
// "7d" into a duration.
func ParseBanDuration(expr string) (time.Duration, error) {
	match := banDurationPattern.FindStringSubmatch(expr)
	if match == nil {
		return 0, errors.WrapInvalid(
			fmt.Errorf("invalid ban duration %q", expr),
			"RequestValidator", "ParseBanDuration", "parse duration expression")
	}

	amount, err := strconv.Atoi(match[1])
	if err != nil || amount <= 0 {
		return 0, errors.WrapInvalid(
			fmt.Errorf("invalid ban duration amount %q", match[1]),
			"RequestValidator", "ParseBanDuration", "parse duration amount")
	}

	switch match[2] {
	case "d":
		return time.Duration(amount) * 24 * time.Hour, nil
	case "h":
		return time.Duration(amount) * time.Hour, nil
	case "m":
		return time.Duration(amount) * time.Minute, nil
	default:
		return time.Duration(amount) * time.Second, nil
	}
}

// RequestValidator holds the per-event validators. Each returns OK when the
// event may proceed, or a specific status code with a message naming what
// failed.
type RequestValidator struct {
	store  store.Facade
	engine *acl.Engine
	logger *slog.Logger
}

// NewRequestValidator creates the validator set over the facade and engine.
func NewRequestValidator(facade store.Facade, engine *acl.Engine, logger *slog.Logger) *RequestValidator {
	return &RequestValidator{
		store:  facade,
		engine: engine,
		logger: logger,
	}
}

// OnMessage validates a message event: target room and owning channel exist,
// the actor is in the room, cross-room delivery stays within one channel, the
// actor is not banned, the content is base64, and the room's ACLs allow it.
func (v *RequestValidator) OnMessage(
	ctx context.Context, act *activity.Activity, sess *session.Context,
) (status.Code, string) {
	roomID := act.TargetID()
	if roomID == "" {
		return status.MissingTargetID, "no room id on event"
	}

	channelID := act.ObjectURL()
	if channelID == "" {
		return status.MissingObjectURL, "no channel id on event"
	}

	exists, err := v.store.ChannelExists(ctx, channelID)
	if err != nil || !exists {
		return status.NoSuchChannel, fmt.Sprintf("channel %q does not exist", channelID)
	}

	targetType := ""
	if act.Target != nil {
		targetType = act.Target.ObjectType
	}
	switch targetType {
	case activity.ObjectTypeRoom:
		exists, err := v.store.RoomExists(ctx, channelID, roomID)
		if err != nil || !exists {
			return status.NoSuchRoom,
				fmt.Sprintf("room %q does not exist in channel %q", roomID, channelID)
		}
	case activity.ObjectTypePrivate:
		private, err := v.store.IsRoomPrivate(ctx, roomID)
		if err != nil {
			return status.NoSuchRoom, fmt.Sprintf("room %q does not exist", roomID)
		}
		if !private {
			return status.InvalidTargetType,
				fmt.Sprintf("room %q is not private but target type is %q", roomID, targetType)
		}
	default:
		return status.InvalidTargetType,
			fmt.Sprintf("invalid target type %q, must be one of [room, private]", targetType)
	}

	userID := act.ActorID()

	// actor.url names the origin room for cross-room delivery.
	originRoomID := ""
	if act.Actor != nil {
		originRoomID = act.Actor.URL
	}
	if originRoomID != "" && originRoomID != roomID {
		if code, msg := v.checkCrossRoom(ctx, act, originRoomID, channelID, userID); code != status.OK {
			return code, msg
		}
	}

	if targetType == activity.ObjectTypeRoom {
		inRoom, err := v.store.RoomContains(ctx, roomID, userID)
		if err != nil || !inRoom {
			return status.UserNotInRoom,
				fmt.Sprintf("user %q is not in room %q", userID, roomID)
		}
	}

	banStatus, err := v.store.GetUserBanStatus(ctx, roomID, userID)
	if err != nil {
		return status.ValidationError, fmt.Sprintf("could not get ban status: %v", err)
	}
	if banStatus.IsBanned() {
		return status.UserIsBanned, fmt.Sprintf("user %q is banned", userID)
	}

	content := ""
	if act.Object != nil {
		content = act.Object.Content
	}
	if content == "" {
		return status.MissingObjectContent, "no message content on event"
	}
	if !activity.IsBase64(content) {
		return status.NotBase64, "message content is not base64 encoded"
	}

	if allowed, msg := v.engine.Evaluate(ctx, act, ActionMessage, sess); !allowed {
		return status.NotAllowed, msg
	}
	return status.OK, ""
}

// checkCrossRoom verifies a message sent from one room into another: the
// origin room must exist, the actor must still be in it, and both rooms must
// share a channel (provider.url carries the origin channel).
func (v *RequestValidator) checkCrossRoom(
	ctx context.Context,
	act *activity.Activity,
	originRoomID, channelID, userID string,
) (status.Code, string) {
	originChannelID := act.ProviderURL()
	if originChannelID == "" {
		return status.ValidationError, "no origin channel id on cross-room event"
	}
	if originChannelID != channelID {
		return status.ValidationError,
			fmt.Sprintf("can not send messages between rooms in different channels (%q, %q)",
				originChannelID, channelID)
	}

	exists, err := v.store.RoomExists(ctx, originChannelID, originRoomID)
	if err != nil || !exists {
		return status.NoSuchRoom,
			fmt.Sprintf("origin room %q does not exist", originRoomID)
	}

	inOrigin, err := v.store.RoomContains(ctx, originRoomID, userID)
	if err != nil || !inOrigin {
		return status.UserNotInRoom,
			fmt.Sprintf("user %q is not in origin room %q", userID, originRoomID)
	}
	return status.OK, ""
}

// OnJoin validates a join event.
func (v *RequestValidator) OnJoin(
	ctx context.Context, act *activity.Activity, sess *session.Context,
) (status.Code, string) {
	roomID := act.TargetID()
	if roomID == "" {
		return status.MissingTargetID, "no room id on event"
	}

	if _, err := v.store.GetRoomName(ctx, roomID); err != nil {
		return status.NoSuchRoom, fmt.Sprintf("room %q does not exist", roomID)
	}

	userID := act.ActorID()
	banStatus, err := v.store.GetUserBanStatus(ctx, roomID, userID)
	if err != nil {
		return status.ValidationError, fmt.Sprintf("could not get ban status: %v", err)
	}
	if banStatus.IsBanned() {
		return status.UserIsBanned, fmt.Sprintf("user %q is banned", userID)
	}

	if allowed, msg := v.engine.Evaluate(ctx, act, ActionJoin, sess); !allowed {
		return status.NotAllowed, msg
	}
	return status.OK, ""
}

// OnKick validates a kick event: object.id names the user to remove.
func (v *RequestValidator) OnKick(
	ctx context.Context, act *activity.Activity, sess *session.Context,
) (status.Code, string) {
	roomID := act.TargetID()
	if roomID == "" {
		return status.MissingTargetID, "no room id on event"
	}

	kickedID := ""
	if act.Object != nil {
		kickedID = act.Object.ID
	}
	if kickedID == "" {
		return status.MissingObjectID, "no user id to kick on event"
	}

	if _, err := v.store.GetRoomName(ctx, roomID); err != nil {
		return status.NoSuchRoom, fmt.Sprintf("room %q does not exist", roomID)
	}

	if _, err := v.store.GetUserName(ctx, kickedID); err != nil {
		return status.NoSuchUser, fmt.Sprintf("no user found for id %q", kickedID)
	}

	if allowed, msg := v.engine.Evaluate(ctx, act, ActionKick, sess); !allowed {
		return status.NotAllowed, msg
	}
	return status.OK, ""
}

// OnBan validates a ban event: object.id names the user, object.summary the
// duration, target the scope. An empty target means a global ban, which only
// super users may issue.
func (v *RequestValidator) OnBan(
	ctx context.Context, act *activity.Activity, sess *session.Context,
) (status.Code, string) {
	bannedID := ""
	duration := ""
	if act.Object != nil {
		bannedID = act.Object.ID
		duration = act.Object.Summary
	}
	if bannedID == "" {
		return status.MissingObjectID, "no user id to ban on event"
	}
	if duration == "" {
		return status.InvalidBanDuration, "no ban duration on event"
	}
	if _, err := ParseBanDuration(duration); err != nil {
		return status.InvalidBanDuration,
			fmt.Sprintf("invalid ban duration %q, must be an amount and one of [d, h, m, s]", duration)
	}

	if _, err := v.store.GetUserName(ctx, bannedID); err != nil {
		return status.NoSuchUser, fmt.Sprintf("no user found for id %q", bannedID)
	}

	roomID := act.TargetID()
	if roomID == "" {
		// Global ban: no room to evaluate rules against, super user only.
		superUser, err := v.store.IsSuperUser(ctx, act.ActorID())
		if err != nil || !superUser {
			return status.NotAllowed, "only super users can issue global bans"
		}
		return status.OK, ""
	}

	if _, err := v.store.GetRoomName(ctx, roomID); err != nil {
		return status.NoSuchRoom, fmt.Sprintf("room %q does not exist", roomID)
	}

	if allowed, msg := v.engine.Evaluate(ctx, act, ActionBan, sess); !allowed {
		return status.NotAllowed, msg
	}
	return status.OK, ""
}

// OnCreate validates a room creation event: channel-scoped, so only the
// channel rules and the channel-level bypass chain apply.
func (v *RequestValidator) OnCreate(
	ctx context.Context, act *activity.Activity, sess *session.Context,
) (status.Code, string) {
	roomName := ""
	if act.Target != nil {
		roomName = act.Target.DisplayName
	}
	if roomName == "" {
		return status.MissingTargetDisplay, "no room name on event"
	}
	if !activity.IsBase64(roomName) {
		return status.NotBase64, "room name is not base64 encoded"
	}

	channelID := act.ObjectURL()
	if channelID == "" {
		return status.MissingObjectURL, "no channel id on event"
	}
	exists, err := v.store.ChannelExists(ctx, channelID)
	if err != nil || !exists {
		return status.NoSuchChannel, fmt.Sprintf("channel %q does not exist", channelID)
	}

	if roomID := act.TargetID(); roomID != "" {
		taken, err := v.store.RoomExists(ctx, channelID, roomID)
		if err != nil {
			return status.ValidationError, fmt.Sprintf("could not check room id: %v", err)
		}
		if taken {
			return status.RoomAlreadyExists, fmt.Sprintf("room %q already exists", roomID)
		}
	}

	if allowed, msg := v.engine.EvaluateChannel(ctx, act, ActionCreate, sess); !allowed {
		return status.NotAllowed, msg
	}
	return status.OK, ""
}

// OnLogin validates a login event. Login is pre-auth: identity resolution is
// skipped, so the client-supplied actor fields are checked directly.
func (v *RequestValidator) OnLogin(
	_ context.Context, act *activity.Activity, _ *session.Context,
) (status.Code, string) {
	if act.ActorID() == "" {
		return status.MissingActorID, "no actor id on login event"
	}

	displayName := ""
	if act.Actor != nil {
		displayName = act.Actor.DisplayName
	}
	if displayName == "" {
		return status.ValidationError, "no display name on login event"
	}
	if !activity.IsBase64(displayName) {
		return status.NotBase64, "display name is not base64 encoded"
	}
	return status.OK, ""
}

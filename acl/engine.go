package acl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/torocatala/dino/activity"
	"github.com/torocatala/dino/session"
)

// Rule is one persisted (attribute key, expected value) pair on a room or
// channel. Rules are evaluated in declaration order.
type Rule struct {
	Key   string
	Value string
}

// Store is the slice of the data-access facade the engine reads from.
// "Not found" failures from any method are treated as validation failures by
// the engine, never as crashes.
type Store interface {
	GetRoomName(ctx context.Context, roomID string) (string, error)
	GetChannelForRoom(ctx context.Context, roomID string) (string, error)
	IsOwner(ctx context.Context, roomID, userID string) (bool, error)
	IsAdmin(ctx context.Context, channelID, userID string) (bool, error)
	IsOwnerChannel(ctx context.Context, channelID, userID string) (bool, error)
	IsSuperUser(ctx context.Context, userID string) (bool, error)
	GetACLs(ctx context.Context, roomID string) ([]Rule, error)
	GetACLsChannel(ctx context.Context, channelID string) ([]Rule, error)
}

// Engine evaluates whether an actor may perform an action against a room or
// channel. It is read-only and safe for concurrent use.
type Engine struct {
	store    Store
	registry *Registry
	logger   *slog.Logger
}

// NewEngine creates a rule engine backed by the given facade and registry.
func NewEngine(store Store, registry *Registry, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// bypassPredicate is one privilege check. The chain is evaluated in fixed
// priority order; the first predicate that applies skips rule evaluation
// entirely.
type bypassPredicate struct {
	name    string
	applies func(ctx context.Context) (bool, error)
}

// Evaluate checks a room-scoped action: the target room's rules followed by
// the owning channel's rules, with the full privilege bypass chain in front.
// It returns (true, "") when the action is allowed, or (false, message) with
// a message naming the offending attribute and target.
func (e *Engine) Evaluate(
	ctx context.Context,
	act *activity.Activity,
	action string,
	sess *session.Context,
) (bool, string) {
	roomID := act.TargetID()
	userID := sessionValueOr(sess, session.KeyUserID, "NOT_FOUND_IN_SESSION")
	userName := sessionValueOr(sess, session.KeyUserName, "NOT_FOUND_IN_SESSION")

	roomName, err := e.store.GetRoomName(ctx, roomID)
	if err != nil {
		return false, fmt.Sprintf("no room found for id %q: %v", roomID, err)
	}

	channelID, err := e.store.GetChannelForRoom(ctx, roomID)
	if err != nil {
		return false, fmt.Sprintf("no channel found for room %q (%s): %v", roomID, roomName, err)
	}

	// Owners can always act, then channel admins, channel owners and super
	// users. First match wins; the order is part of the contract.
	bypasses := []bypassPredicate{
		{"room owner", func(ctx context.Context) (bool, error) {
			return e.store.IsOwner(ctx, roomID, userID)
		}},
		{"channel admin", func(ctx context.Context) (bool, error) {
			return e.store.IsAdmin(ctx, channelID, userID)
		}},
		{"channel owner", func(ctx context.Context) (bool, error) {
			return e.store.IsOwnerChannel(ctx, channelID, userID)
		}},
		{"super user", func(ctx context.Context) (bool, error) {
			return e.store.IsSuperUser(ctx, userID)
		}},
	}
	if bypassed, msg := e.checkBypass(ctx, bypasses, userID, userName); bypassed || msg != "" {
		return bypassed, msg
	}

	roomRules, err := e.store.GetACLs(ctx, roomID)
	if err != nil {
		return false, fmt.Sprintf("could not get ACLs for room %q (%s): %v", roomID, roomName, err)
	}
	channelRules, err := e.store.GetACLsChannel(ctx, channelID)
	if err != nil {
		return false, fmt.Sprintf("could not get ACLs for channel %q: %v", channelID, err)
	}

	// Default-open when unconfigured: absence of rules never blocks.
	if len(roomRules) == 0 && len(channelRules) == 0 {
		return true, ""
	}

	target := fmt.Sprintf("%q (%s)", roomID, roomName)
	// Room rules are checked before channel rules; within a rule set,
	// declaration order. Evaluation short-circuits on the first failure.
	for _, rules := range [][]Rule{roomRules, channelRules} {
		if ok, msg := e.evaluateRules(rules, action, target, userID, userName, sess); !ok {
			return false, msg
		}
	}

	return true, ""
}

// EvaluateChannel checks a channel-scoped action such as channel creation:
// only the channel's own rules apply, and the room-ownership bypass is
// omitted from the chain.
func (e *Engine) EvaluateChannel(
	ctx context.Context,
	act *activity.Activity,
	action string,
	sess *session.Context,
) (bool, string) {
	channelID := act.ObjectURL()
	userID := sessionValueOr(sess, session.KeyUserID, "NOT_FOUND_IN_SESSION")
	userName := sessionValueOr(sess, session.KeyUserName, "NOT_FOUND_IN_SESSION")

	bypasses := []bypassPredicate{
		{"channel owner", func(ctx context.Context) (bool, error) {
			return e.store.IsOwnerChannel(ctx, channelID, userID)
		}},
		{"channel admin", func(ctx context.Context) (bool, error) {
			return e.store.IsAdmin(ctx, channelID, userID)
		}},
		{"super user", func(ctx context.Context) (bool, error) {
			return e.store.IsSuperUser(ctx, userID)
		}},
	}
	if bypassed, msg := e.checkBypass(ctx, bypasses, userID, userName); bypassed || msg != "" {
		return bypassed, msg
	}

	rules, err := e.store.GetACLsChannel(ctx, channelID)
	if err != nil {
		return false, fmt.Sprintf("could not get ACLs for channel %q: %v", channelID, err)
	}
	if len(rules) == 0 {
		return true, ""
	}

	target := fmt.Sprintf("channel %q", channelID)
	return e.evaluateRules(rules, action, target, userID, userName, sess)
}

// checkBypass runs the privilege chain in order. It returns (true, "") when a
// predicate applies, (false, "") when none does, and (false, message) when a
// predicate could not be checked.
func (e *Engine) checkBypass(
	ctx context.Context,
	bypasses []bypassPredicate,
	userID, userName string,
) (bool, string) {
	for _, bypass := range bypasses {
		applies, err := bypass.applies(ctx)
		if err != nil {
			return false, fmt.Sprintf(
				"could not check %s status for user %q (%s): %v",
				bypass.name, userID, userName, err)
		}
		if applies {
			e.logger.Debug("privileged actor, skipping ACL validation",
				"bypass", bypass.name,
				"user_id", userID,
				"user_name", userName)
			return true, ""
		}
	}
	return false, ""
}

// evaluateRules checks every (key, expected) pair against the session in
// order, stopping at the first failure.
func (e *Engine) evaluateRules(
	rules []Rule,
	action, target, userID, userName string,
	sess *session.Context,
) (bool, string) {
	for _, rule := range rules {
		sessionValue, present := sess.Get(rule.Key)

		if !present {
			msg := fmt.Sprintf(
				"Key %q not in session for user, cannot let %q (%s) %s %s",
				rule.Key, userID, userName, action, target)
			e.logger.Error(msg)
			return false, msg
		}

		if sessionValue == "" {
			msg := fmt.Sprintf(
				"Value for key %q not in session, cannot let %q (%s) %s %s",
				rule.Key, userID, userName, action, target)
			e.logger.Error(msg)
			return false, msg
		}

		matcher, ok := e.registry.Matcher(rule.Key)
		if !ok {
			msg := fmt.Sprintf(
				"No validator for ACL type %q, cannot let %q (%s) %s %s",
				rule.Key, userID, userName, action, target)
			e.logger.Error(msg)
			return false, msg
		}

		if !matcher.Match(rule.Value, sessionValue) {
			msg := fmt.Sprintf(
				"Value %q not valid for ACL %q (value %q), cannot let %q (%s) %s %s",
				sessionValue, rule.Key, rule.Value, userID, userName, action, target)
			e.logger.Info(msg)
			return false, msg
		}
	}

	return true, ""
}

func sessionValueOr(sess *session.Context, key, fallback string) string {
	if v, ok := sess.Get(key); ok && v != "" {
		return v
	}
	return fallback
}

// Package pipeline runs every inbound event through a uniform chain: stamp,
// resolve identity, parse, validate, dispatch. The chain always returns a
// terminal (status, message) outcome; panics anywhere inside are contained at
// the boundary and converted to an unknown-error status.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/torocatala/dino/activity"
	"github.com/torocatala/dino/errors"
	"github.com/torocatala/dino/session"
	"github.com/torocatala/dino/status"
)

// Handler is the business handler dispatched after all validation passes.
// It receives the raw payload alongside the parsed envelope.
type Handler func(ctx context.Context, raw map[string]any, act *activity.Activity, sess *session.Context) (status.Code, string)

// Validator is one validation step. A non-OK code aborts the chain with that
// code and message.
type Validator func(ctx context.Context, act *activity.Activity, sess *session.Context) (status.Code, string)

// Event is one registered event kind with its validator chain and handler.
type Event struct {
	// Name is the event kind, matching the envelope verb ("message", "join").
	Name string
	// PreAuth skips identity resolution and base validation. Used by login,
	// which runs before a user id exists in the session.
	PreAuth bool
	// Validate is the named validator bound to this event kind.
	Validate Validator
	// Chain holds additional validators run in registration order after
	// Validate passes.
	Chain []Validator
	// Handle is the business handler.
	Handle Handler
}

// NameStore is the slice of the data-access facade the pipeline needs for
// identity resolution.
type NameStore interface {
	GetUserName(ctx context.Context, userID string) (string, error)
}

// Pipeline routes inbound events through validation to their handlers.
// Registration happens at startup; Process is safe for concurrent use once
// registration is done.
type Pipeline struct {
	events  map[string]*Event
	store   NameStore
	metrics *Metrics
	capture ErrorCapture
	logger  *slog.Logger
	newID   func() string
	now     func() time.Time
}

// New creates a pipeline. metrics may be nil to disable recording.
func New(store NameStore, metrics *Metrics, capture ErrorCapture, logger *slog.Logger) *Pipeline {
	if capture == nil {
		capture = NewLogCapture(logger)
	}
	return &Pipeline{
		events:  map[string]*Event{},
		store:   store,
		metrics: metrics,
		capture: capture,
		logger:  logger,
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
}

// Register binds an event kind. It fails on a duplicate name or a missing
// handler so wiring mistakes surface at startup.
func (p *Pipeline) Register(event *Event) error {
	if event.Name == "" {
		return errors.WrapFatal(
			fmt.Errorf("event has no name"),
			"Pipeline", "Register", "register event")
	}
	if event.Handle == nil {
		return errors.WrapFatal(
			fmt.Errorf("event %q has no handler", event.Name),
			"Pipeline", "Register", "register event")
	}
	if _, exists := p.events[event.Name]; exists {
		return errors.WrapFatal(
			fmt.Errorf("event %q already registered", event.Name),
			"Pipeline", "Register", "register event")
	}
	p.events[event.Name] = event
	return nil
}

// Process runs one inbound event to a terminal outcome. It never panics and
// never returns without a status code.
func (p *Pipeline) Process(
	ctx context.Context,
	eventName string,
	raw map[string]any,
	sess *session.Context,
) (code status.Code, message string) {
	start := p.now()
	p.metrics.recordCount(eventName)

	defer func() {
		if recovered := recover(); recovered != nil {
			stack := debug.Stack()
			p.logger.Error("pipeline invocation panicked",
				"event", eventName,
				"recovered", recovered)
			p.capture.Capture(ctx, eventName, recovered, stack)
			p.metrics.recordException(eventName)
			code = status.UnknownError
			message = fmt.Sprintf("%v", recovered)
			return
		}
		if code == status.OK {
			p.metrics.recordDuration(eventName, p.now().Sub(start))
		} else {
			p.metrics.recordError(eventName)
			p.logger.Warn("event rejected",
				"event", eventName,
				"status", int(code),
				"message", message)
		}
	}()

	event, ok := p.events[eventName]
	if !ok {
		p.metrics.recordException(eventName)
		return status.UnknownError, fmt.Sprintf("no event registered for %q", eventName)
	}

	p.stamp(raw)

	if !event.PreAuth {
		if code, message := p.resolveIdentity(ctx, eventName, raw, sess); code != status.OK {
			return code, message
		}
	}

	act, err := activity.Parse(raw)
	if err != nil {
		p.logger.Error("could not parse event payload",
			"event", eventName,
			"error", err)
		p.capture.Capture(ctx, eventName, err, nil)
		p.metrics.recordException(eventName)
		return status.UnknownError, err.Error()
	}

	if !event.PreAuth {
		if ok, msg := baseValidate(act); !ok {
			return status.ValidationError, msg
		}
	}

	if event.Validate != nil {
		if code, msg := event.Validate(ctx, act, sess); code != status.OK {
			return code, msg
		}
	}

	for _, validator := range event.Chain {
		if code, msg := validator(ctx, act, sess); code != status.OK {
			return code, msg
		}
	}

	return event.Handle(ctx, raw, act, sess)
}

// stamp assigns the server-side id and published timestamp. Client-supplied
// values are discarded, which keeps event ordering and identity out of the
// client's hands.
func (p *Pipeline) stamp(raw map[string]any) {
	raw["id"] = p.newID()
	raw["published"] = p.now().UTC().Format(activity.PublishedFormat)
	if _, ok := raw["actor"].(map[string]any); !ok {
		raw["actor"] = map[string]any{}
	}
}

// resolveIdentity sets actor.id and actor.displayName from the session,
// falling back to the facade for the display name.
func (p *Pipeline) resolveIdentity(
	ctx context.Context,
	eventName string,
	raw map[string]any,
	sess *session.Context,
) (status.Code, string) {
	userID, ok := sess.Get(session.KeyUserID)
	if !ok || userID == "" {
		msg := fmt.Sprintf("[%s] no user id in session", eventName)
		p.logger.Error(msg)
		return status.NoUserInSession, msg
	}

	userName, _ := sess.Get(session.KeyUserName)
	if userName == "" {
		var err error
		userName, err = p.store.GetUserName(ctx, userID)
		if err != nil {
			msg := fmt.Sprintf("[%s] no user found for user_id %q in session", eventName, userID)
			p.logger.Error(msg, "error", err)
			return status.NoUserInSession, msg
		}
	}

	actor := raw["actor"].(map[string]any)
	actor["id"] = userID
	actor["displayName"] = activity.B64Encode(userName)
	return status.OK, ""
}

// baseValidate holds the event-type-independent structural checks.
func baseValidate(act *activity.Activity) (bool, string) {
	if act.ActorID() == "" {
		return false, "no actor id on event"
	}
	if act.Verb == "" {
		return false, "no verb on event"
	}
	return true, ""
}

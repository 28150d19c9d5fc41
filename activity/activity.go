// Package activity defines the event envelope that every inbound request is
// parsed into. The envelope follows the activity-streams field layout on the
// wire: actor, verb, object, target and provider, with a server-assigned id
// and published timestamp at the root.
package activity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/torocatala/dino/errors"
)

// PublishedFormat is the timestamp layout used for the published field.
// Activity streams only accept RFC3339.
const PublishedFormat = time.RFC3339

// Object types carried in target.objectType.
const (
	ObjectTypeRoom    = "room"
	ObjectTypeChannel = "channel"
	ObjectTypePrivate = "private"
)

// Actor is the user initiating the event.
type Actor struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"` // base64-encoded
	URL         string `json:"url,omitempty"`         // origin room for cross-room events
	Summary     string `json:"summary,omitempty"`
}

// Object carries the payload of the event: a message body, a ban duration, or
// the id of the user an admin action is aimed at.
type Object struct {
	ID          string `json:"id,omitempty"`
	URL         string `json:"url,omitempty"` // owning channel
	Content     string `json:"content,omitempty"`
	Summary     string `json:"summary,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	ObjectType  string `json:"objectType,omitempty"`
}

// Target identifies the room or channel the event acts on.
type Target struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"` // base64-encoded
	ObjectType  string `json:"objectType,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Provider identifies the channel context the event was sent from; used by
// cross-room delivery to verify both rooms share a channel.
type Provider struct {
	URL string `json:"url,omitempty"`
}

// Activity is the typed event envelope. Id and Published are server-assigned
// by the pipeline before parsing; client-supplied values are discarded.
type Activity struct {
	ID        string    `json:"id,omitempty"`
	Published string    `json:"published,omitempty"`
	Verb      string    `json:"verb,omitempty"`
	Actor     *Actor    `json:"actor,omitempty"`
	Object    *Object   `json:"object,omitempty"`
	Target    *Target   `json:"target,omitempty"`
	Provider  *Provider `json:"provider,omitempty"`
}

// Parse converts a raw event payload into a typed Activity.
func Parse(raw map[string]any) (*Activity, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Activity", "Parse", "marshal raw event")
	}

	var act Activity
	if err := json.Unmarshal(data, &act); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Activity", "Parse", "unmarshal event envelope")
	}

	return &act, nil
}

// ActorID returns the actor id, or the empty string when no actor is set.
func (a *Activity) ActorID() string {
	if a == nil || a.Actor == nil {
		return ""
	}
	return a.Actor.ID
}

// TargetID returns the target id, or the empty string when no target is set.
func (a *Activity) TargetID() string {
	if a == nil || a.Target == nil {
		return ""
	}
	return a.Target.ID
}

// ObjectURL returns object.url, the owning channel for room-scoped events.
func (a *Activity) ObjectURL() string {
	if a == nil || a.Object == nil {
		return ""
	}
	return a.Object.URL
}

// ProviderURL returns provider.url, the channel the event was sent from.
func (a *Activity) ProviderURL() string {
	if a == nil || a.Provider == nil {
		return ""
	}
	return a.Provider.URL
}

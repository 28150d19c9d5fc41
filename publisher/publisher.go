// Package publisher delivers activity events to downstream consumers over
// NATS. Internal events fan out to the other server nodes; external events
// are mirrored to the integration subject for third-party systems.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/torocatala/dino/activity"
	"github.com/torocatala/dino/errors"
	"github.com/torocatala/dino/natsclient"
)

// Default subjects for event fan-out.
const (
	DefaultInternalSubject = "dino.events.internal"
	DefaultExternalSubject = "dino.events.external"
)

// Publisher delivers one activity. When external is true the event is also
// mirrored to the external subject after internal delivery.
type Publisher interface {
	Publish(ctx context.Context, act *activity.Activity, external bool) error
}

// NATS publishes activities as JSON over a NATS connection.
type NATS struct {
	client          *natsclient.Client
	internalSubject string
	externalSubject string
	logger          *slog.Logger
}

// Option configures a NATS publisher.
type Option func(*NATS)

// WithSubjects overrides the default internal and external subjects.
func WithSubjects(internal, external string) Option {
	return func(p *NATS) {
		p.internalSubject = internal
		p.externalSubject = external
	}
}

// NewNATS creates a publisher over an existing client.
func NewNATS(client *natsclient.Client, logger *slog.Logger, opts ...Option) *NATS {
	p := &NATS{
		client:          client,
		internalSubject: DefaultInternalSubject,
		externalSubject: DefaultExternalSubject,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish implements Publisher. Internal delivery failures are returned;
// a failed external mirror is logged but does not fail the event, the
// internal consumers already have it.
func (p *NATS) Publish(_ context.Context, act *activity.Activity, external bool) error {
	data, err := json.Marshal(act)
	if err != nil {
		return errors.WrapInvalid(err, "Publisher", "Publish", "encode activity")
	}

	if err := p.client.Publish(p.internalSubject, data); err != nil {
		return errors.WrapTransient(err, "Publisher", "Publish", "publish internal event")
	}

	if external {
		if err := p.client.Publish(p.externalSubject, data); err != nil {
			p.logger.Warn("external event delivery failed",
				"subject", p.externalSubject,
				"activity_id", act.ID,
				"verb", act.Verb,
				"error", err)
		}
	}
	return nil
}

// Recorder captures published activities for inspection. Test use only.
type Recorder struct {
	mu       sync.Mutex
	Events   []*activity.Activity
	External []bool
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, act *activity.Activity, external bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, act)
	r.External = append(r.External, external)
	return nil
}

// Last returns the most recent event, or nil when nothing was published.
func (r *Recorder) Last() *activity.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Events) == 0 {
		return nil
	}
	return r.Events[len(r.Events)-1]
}

// Package dino is a chat server core built around attribute-based
// authorization. Every inbound event passes through a request pipeline that
// stamps server-side identity, validates the event's structure, and evaluates
// a declarative rule document before the event is acted on and published.
//
// The module is organized as:
//
//   - activity: the activity-streams style event envelope
//   - session: the immutable per-connection attribute context
//   - status: the numeric status codes returned to clients
//   - acl: the attribute registry, rule document loader, and rule engine
//   - pipeline: the request pipeline with validators and panic containment
//   - hooks: the post-authorization side effects (membership, bans, publish)
//   - store: the data-access facade with in-memory and JetStream KV backends
//   - publisher: NATS fan-out of accepted events
//   - gateway: the websocket front end
//   - metric, config, errors, natsclient: shared infrastructure
//
// The cmd/dino binary wires all of this together.
package dino

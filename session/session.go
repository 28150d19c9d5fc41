// Package session holds the per-connection ambient attributes describing the
// authenticated actor. A Context is populated once at authentication time and
// is read-only during validation; it is always passed explicitly into the
// rule engine and pipeline, never looked up from process-wide state.
package session

import "strings"

// Well-known session attribute keys. The ACL keys double as attribute
// registry keys: a rule on a room or channel references one of these and is
// matched against the value the actor carries in its session.
const (
	KeyUserID      = "user_id"
	KeyUserName    = "user_name"
	KeyToken       = "token"
	KeyAge         = "age"
	KeyGender      = "gender"
	KeyMembership  = "membership"
	KeyGroup       = "group"
	KeyCountry     = "country"
	KeyCity        = "city"
	KeyImage       = "image"
	KeyHasWebcam   = "has_webcam"
	KeyFakeChecked = "fake_checked"
	KeyCrossgroup  = "crossgroup"
)

// ACLKeys lists the attribute keys that may appear in room or channel rules.
func ACLKeys() []string {
	return []string{
		KeyAge,
		KeyGender,
		KeyMembership,
		KeyGroup,
		KeyCountry,
		KeyCity,
		KeyImage,
		KeyHasWebcam,
		KeyFakeChecked,
		KeyCrossgroup,
	}
}

// Context is the ambient attribute set for one connected actor.
type Context struct {
	values map[string]string
}

// New creates a session context from an attribute map. The map is copied so
// the caller cannot mutate the session after creation.
func New(values map[string]string) *Context {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Context{values: copied}
}

// Get returns the value for a key and whether the key is present at all.
// A present key may still carry an empty value; callers that care about the
// distinction (the rule engine does) check both.
func (c *Context) Get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.values[key]
	return v, ok
}

// Value returns the value for a key, or the empty string when absent.
func (c *Context) Value(key string) string {
	v, _ := c.Get(key)
	return v
}

// Has reports whether the key is present with a non-blank value.
func (c *Context) Has(key string) bool {
	v, ok := c.Get(key)
	return ok && len(strings.TrimSpace(v)) > 0
}

// UserID returns the actor id, or the empty string for an unauthenticated
// connection.
func (c *Context) UserID() string {
	return c.Value(KeyUserID)
}

// UserName returns the actor display name from the session.
func (c *Context) UserName() string {
	return c.Value(KeyUserName)
}

// Provider supplies the session context for the current connection. The
// gateway implements this per websocket connection; tests construct contexts
// directly.
type Provider interface {
	Session() *Context
}

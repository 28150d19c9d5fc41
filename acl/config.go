package acl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/torocatala/dino/errors"
)

// Validation methods accepted in the rule configuration document.
const (
	MethodStrInCSV = "str_in_csv"
	MethodAnything = "anything"
	MethodRange    = "range"
)

// Target types that can carry per-action rules.
const (
	TargetRoom    = "room"
	TargetChannel = "channel"
)

// actionsPerTarget lists the actions each target type accepts rules for.
var actionsPerTarget = map[string][]string{
	TargetRoom:    {"join", "create", "list", "kick", "message", "crossroom", "ban"},
	TargetChannel: {"create", "list", "message", "crossroom", "ban"},
}

// ruleKeys are the only keys allowed inside an action's rule block.
var ruleKeys = []string{"acls", "exclude"}

// configRoots are the only keys allowed at the document root.
var configRoots = []string{"validation", "room", "available", "channel"}

// ValidationSpec declares how values for one attribute are validated when a
// rule is stored.
type ValidationSpec struct {
	Method string `json:"type"`
	Value  string `json:"value,omitempty"`
}

// ActionRules holds the rule sets for one action on one target type.
type ActionRules struct {
	ACLs    []string `json:"acls,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// Config is the declarative ACL configuration document. It is validated
// eagerly at load time: a document that fails any check is rejected before
// it can be used to serve traffic, so a single typo cannot silently open or
// close a room to everyone at runtime.
type Config struct {
	Available  []string                  `json:"-"`
	Validation map[string]ValidationSpec `json:"validation,omitempty"`
	Room       map[string]*ActionRules   `json:"room,omitempty"`
	Channel    map[string]*ActionRules   `json:"channel,omitempty"`
}

// rawConfig mirrors the wire shape, where "available" is a nested section.
type rawConfig struct {
	Available *struct {
		ACLs []string `json:"acls"`
	} `json:"available"`
	Validation map[string]ValidationSpec  `json:"validation"`
	Room       map[string]json.RawMessage `json:"room"`
	Channel    map[string]json.RawMessage `json:"channel"`
}

func configError(format string, args ...any) error {
	return errors.WrapFatal(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...)),
		"ACLConfig", "Load", "validate rule document")
}

// LoadConfig parses and validates a rule configuration document against the
// attribute registry. All checks run here, not lazily per request.
func LoadConfig(data []byte, registry *Registry) (*Config, error) {
	var roots map[string]json.RawMessage
	if err := json.Unmarshal(data, &roots); err != nil {
		return nil, errors.WrapFatal(err, "ACLConfig", "Load", "parse rule document")
	}

	for root := range roots {
		if !contains(configRoots, root) {
			return nil, configError("invalid ACL root %q", root)
		}
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapFatal(err, "ACLConfig", "Load", "parse rule document")
	}

	if raw.Available == nil {
		return nil, configError(`no ACLs in root "available"`)
	}
	if raw.Available.ACLs == nil {
		return nil, configError("no ACLs defined in available ACLs")
	}

	cfg := &Config{
		Available:  raw.Available.ACLs,
		Validation: raw.Validation,
		Room:       map[string]*ActionRules{},
		Channel:    map[string]*ActionRules{},
	}

	if err := cfg.checkValidationMethods(registry); err != nil {
		return nil, err
	}

	if err := parseTargetRules(TargetRoom, raw.Room, cfg.Room, cfg.Available); err != nil {
		return nil, err
	}
	if err := parseTargetRules(TargetChannel, raw.Channel, cfg.Channel, cfg.Available); err != nil {
		return nil, err
	}

	return cfg, nil
}

// checkValidationMethods verifies the validation section: every entry must
// reference an available attribute and use a recognized method, and
// str_in_csv must carry a non-empty allow-list.
func (c *Config) checkValidationMethods(registry *Registry) error {
	for key, spec := range c.Validation {
		if !contains(c.Available, key) {
			return configError("validation for unknown ACL %q", key)
		}
		if spec.Method == "" {
			return configError("no type in validation for ACL %q", key)
		}

		switch spec.Method {
		case MethodStrInCSV:
			if len(strings.TrimSpace(spec.Value)) == 0 {
				return configError(
					"validation method set to %q but no validation value specified", spec.Method)
			}
		case MethodAnything:
			// value, if present, is ignored
		case MethodRange:
			if spec.Value != "" && !IsValidRange(spec.Value) {
				return configError("invalid range expression %q for ACL %q", spec.Value, key)
			}
		default:
			return configError(
				"unknown validation method %q, use one of [%s]",
				spec.Method, strings.Join([]string{MethodStrInCSV, MethodAnything, MethodRange}, ","))
		}

		if registry != nil && !registry.Known(key) {
			return configError("no registered validator for ACL %q", key)
		}
	}
	return nil
}

// parseTargetRules parses and checks all actions declared for one target
// type: the action must exist for the target, rule keys must be acls or
// exclude, and every referenced attribute must be declared available.
func parseTargetRules(
	target string,
	raw map[string]json.RawMessage,
	out map[string]*ActionRules,
	available []string,
) error {
	validActions := actionsPerTarget[target]

	for action, ruleDoc := range raw {
		if !contains(validActions, action) {
			return configError(
				"action %q is not available for target type %q", action, target)
		}

		if string(ruleDoc) == "null" {
			continue
		}

		var keys map[string]json.RawMessage
		if err := json.Unmarshal(ruleDoc, &keys); err != nil {
			return configError(
				"acls for action %q on %q need to be a mapping", action, target)
		}
		for key := range keys {
			if !contains(ruleKeys, key) {
				return configError(
					"unknown rule %q, need to be one of [%s]", key, strings.Join(ruleKeys, ","))
			}
		}

		var rules ActionRules
		if err := json.Unmarshal(ruleDoc, &rules); err != nil {
			return configError(
				"could not parse rules for action %q on %q: %v", action, target, err)
		}

		for _, acl := range rules.ACLs {
			if !contains(available, acl) {
				return configError(
					"specified %s ACL %q is not in available: %s",
					target, acl, strings.Join(available, ","))
			}
		}
		for _, exclude := range rules.Exclude {
			if !contains(available, exclude) {
				return configError(
					"can not exclude %q, not in available acls", exclude)
			}
		}

		out[action] = &rules
	}

	return nil
}

// RulesFor returns the rule declaration for a (target type, action) pair.
// Unconfigured pairs return nil: absence of configuration never blocks.
func (c *Config) RulesFor(target, action string) *ActionRules {
	switch target {
	case TargetRoom:
		return c.Room[action]
	case TargetChannel:
		return c.Channel[action]
	default:
		return nil
	}
}

// IsAvailable reports whether an attribute key may be used in rules at all.
func (c *Config) IsAvailable(key string) bool {
	return contains(c.Available, key)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

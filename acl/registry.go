// Package acl implements the access-control rule engine: a static registry of
// attribute matchers and validators, an eagerly-checked declarative rule
// configuration, and the engine that evaluates per-action rules against a
// session context with privileged-actor bypass.
package acl

import (
	"regexp"
	"strconv"
	"strings"
)

// Matcher decides whether an actor's session value satisfies the expected
// value persisted on a room or channel rule.
type Matcher interface {
	Match(expected, actual string) bool
}

// Validator decides whether a value is legal for an attribute at all. It is
// distinct from the Matcher: validators gate what may be stored as a rule or
// session value, matchers compare stored rules against session values.
type Validator interface {
	IsValid(value string) bool
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(expected, actual string) bool

// Match implements Matcher.
func (f MatcherFunc) Match(expected, actual string) bool { return f(expected, actual) }

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(value string) bool

// IsValid implements Validator.
func (f ValidatorFunc) IsValid(value string) bool { return f(value) }

// isDigits reports whether s is a non-empty string of ASCII digits.
func isDigits(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// splitRange splits a range expression into its optional start and end.
// Accepted forms: "N:" (open end), ":N" (open start), "N:M" (both bounds).
func splitRange(expr string) (start, end string, ok bool) {
	expr = strings.TrimSpace(expr)
	if len(expr) < 2 {
		return "", "", false
	}
	switch {
	case strings.HasSuffix(expr, ":"):
		return expr[:len(expr)-1], "", true
	case strings.HasPrefix(expr, ":"):
		return "", expr[1:], true
	default:
		parts := strings.Split(expr, ":")
		if len(parts) != 2 {
			return "", "", false
		}
		return parts[0], parts[1], true
	}
}

// IsValidRange reports whether expr is a well-formed age range expression:
// both bounds non-negative integers, start <= end when both are given.
// Malformed expressions are rejected here, at config-check time, so the
// matcher never sees one at request time.
func IsValidRange(expr string) bool {
	start, end, ok := splitRange(expr)
	if !ok {
		return false
	}
	if start != "" && !isDigits(start) {
		return false
	}
	if end != "" && !isDigits(end) {
		return false
	}
	if start != "" && end != "" {
		s, _ := strconv.Atoi(start)
		e, _ := strconv.Atoi(end)
		if s > e {
			return false
		}
	}
	return true
}

// RangeMatcher matches a plain integer session value against an inclusive,
// possibly open-ended range expression. An empty expected value matches
// everything: absence of configuration never blocks.
type RangeMatcher struct{}

// Match implements Matcher.
func (RangeMatcher) Match(expected, actual string) bool {
	if expected == "" {
		return true
	}
	if !IsValidRange(expected) || !isDigits(actual) {
		return false
	}

	start, end, _ := splitRange(expected)
	value, _ := strconv.Atoi(actual)

	if start != "" {
		if s, _ := strconv.Atoi(start); value < s {
			return false
		}
	}
	if end != "" {
		if e, _ := strconv.Atoi(end); value > e {
			return false
		}
	}
	return true
}

// CSVMatcher matches a session value against a comma-separated allow-list.
// An empty expected value matches everything.
type CSVMatcher struct{}

// Match implements Matcher.
func (CSVMatcher) Match(expected, actual string) bool {
	if expected == "" {
		return true
	}
	for _, allowed := range strings.Split(expected, ",") {
		if actual == allowed {
			return true
		}
	}
	return false
}

// csvMembersOf returns a validator accepting a comma-separated list whose
// every element is one of the allowed values.
func csvMembersOf(allowed ...string) Validator {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return ValidatorFunc(func(value string) bool {
		if value == "" {
			return false
		}
		for _, part := range strings.Split(value, ",") {
			if _, ok := set[part]; !ok {
				return false
			}
		}
		return true
	})
}

// triState accepts exactly one of y (yes), n (no), a (all).
var triState = csvMembersOf("y", "n", "a")

// matchPattern returns a validator accepting values that match the pattern.
func matchPattern(pattern string) Validator {
	re := regexp.MustCompile(pattern)
	return ValidatorFunc(func(value string) bool {
		return re.MatchString(value)
	})
}

// nonEmpty accepts any non-blank string.
var nonEmpty = ValidatorFunc(func(value string) bool {
	return len(strings.TrimSpace(value)) > 0
})

// Entry pairs the matcher and validator for one attribute key. A key may
// carry a validator without a matcher; rules on such a key fail evaluation
// with an unknown-ACL-type message.
type Entry struct {
	Matcher   Matcher
	Validator Validator
}

// Registry is the static attribute table. It is built once at startup and
// read-only afterwards, so it is safe to share across concurrent pipeline
// invocations without locking.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry builds the default attribute registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]Entry{
		"age": {
			Matcher:   RangeMatcher{},
			Validator: ValidatorFunc(IsValidRange),
		},
		"gender": {
			Matcher:   CSVMatcher{},
			Validator: csvMembersOf("m", "f", "ts"),
		},
		"membership": {
			Matcher:   CSVMatcher{},
			Validator: csvMembersOf("0", "1", "2", "3", "4"),
		},
		"group": {
			Matcher:   CSVMatcher{},
			Validator: nonEmpty,
		},
		// 2 character country codes, no spaces
		"country": {
			Matcher:   CSVMatcher{},
			Validator: matchPattern(`^([A-Za-z]{2},)*([A-Za-z]{2})+$`),
		},
		// city names can have spaces and dashes in them
		"city": {
			Matcher:   CSVMatcher{},
			Validator: matchPattern(`^([\w -]+,)*([\w -]+)+$`),
		},
		"image": {
			Matcher:   CSVMatcher{},
			Validator: triState,
		},
		"has_webcam": {
			Matcher:   CSVMatcher{},
			Validator: triState,
		},
		"fake_checked": {
			Matcher:   CSVMatcher{},
			Validator: triState,
		},
		// crossgroup carries a validator only; it gates room configuration,
		// not per-session matching.
		"crossgroup": {
			Validator: triState,
		},
		"user_id": {
			Validator: ValidatorFunc(isDigits),
		},
		"user_name": {
			Validator: nonEmpty,
		},
		"token": {
			Validator: nonEmpty,
		},
	}}
}

// Matcher returns the matcher registered for an attribute key.
func (r *Registry) Matcher(key string) (Matcher, bool) {
	entry, ok := r.entries[key]
	if !ok || entry.Matcher == nil {
		return nil, false
	}
	return entry.Matcher, true
}

// Validator returns the validator registered for an attribute key.
func (r *Registry) Validator(key string) (Validator, bool) {
	entry, ok := r.entries[key]
	if !ok || entry.Validator == nil {
		return nil, false
	}
	return entry.Validator, true
}

// IsValidValue reports whether a value is legal for an attribute key.
// Unknown keys are never valid.
func (r *Registry) IsValidValue(key, value string) bool {
	validator, ok := r.Validator(key)
	if !ok {
		return false
	}
	return validator.IsValid(value)
}

// Known reports whether the key has any registration at all.
func (r *Registry) Known(key string) bool {
	_, ok := r.entries[key]
	return ok
}

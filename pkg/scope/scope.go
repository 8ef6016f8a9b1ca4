// Package scope defines the identity space for vaulter variables.
//
// Every variable lives under a (project, environment, scope) triple. The
// scope is either the shared pool, whose variables are inherited by every
// service in the project, or a single named service whose variables override
// shared ones of the same key.
//
// Scope strings are parsed once at the CLI boundary into the Scope value and
// never re-stringified for comparisons. Accepted forms:
//
//	shared            the shared pool
//	service:billing   the "billing" service
//	billing           shorthand for service:billing
//
// "shared" is reserved: it can never name a real service.
package scope

import (
	"encoding/json"
	"sort"
	"strings"

	vlerrors "github.com/forattini-dev/vaulter-sub005/internal/errors"
)

// SharedName is the reserved scope name for the shared pool.
const SharedName = "shared"

// servicePrefix introduces an explicit service scope in string form.
const servicePrefix = "service"

// Scope is a closed variant: either the shared pool or one named service.
// The zero value is the shared scope. Scope is comparable and safe to use as
// a map key.
type Scope struct {
	service string
}

// Shared is the shared-pool scope.
var Shared = Scope{}

// ForService returns the scope for the named service.
//
// The name must be non-empty, must not contain ':' and must not be the
// reserved name "shared".
func ForService(name string) (Scope, error) {
	if name == "" {
		return Scope{}, vlerrors.ValidationError{
			Field:      "scope",
			Message:    "service name is empty",
			Suggestion: "Use 'shared' or 'service:<name>'",
		}
	}
	if name == SharedName {
		return Scope{}, vlerrors.ValidationError{
			Field:      "scope",
			Value:      name,
			Message:    "'shared' is reserved and cannot name a service",
			Suggestion: "Rename the service or use the shared scope",
		}
	}
	if strings.Contains(name, ":") {
		return Scope{}, vlerrors.ValidationError{
			Field:   "scope",
			Value:   name,
			Message: "service name must not contain ':'",
		}
	}
	return Scope{service: name}, nil
}

// Parse parses a scope string. Malformed input is rejected with a
// ValidationError; callers surface it, never guess intent.
func Parse(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Scope{}, vlerrors.ValidationError{
			Field:      "scope",
			Message:    "scope is empty",
			Suggestion: "Use 'shared', 'service:<name>' or a bare service name",
		}
	}
	if raw == SharedName {
		return Shared, nil
	}

	if strings.Contains(raw, ":") {
		parts := strings.Split(raw, ":")
		if len(parts) != 2 {
			return Scope{}, vlerrors.ValidationError{
				Field:      "scope",
				Value:      raw,
				Message:    "scope has more than one ':' segment",
				Suggestion: "Use 'service:<name>' with a single ':'",
			}
		}
		if parts[0] != servicePrefix {
			return Scope{}, vlerrors.ValidationError{
				Field:      "scope",
				Value:      raw,
				Message:    "unknown scope prefix '" + parts[0] + "'",
				Suggestion: "Only the 'service:' prefix is recognized",
			}
		}
		return ForService(parts[1])
	}

	// Bare name is shorthand for a service scope.
	return ForService(raw)
}

// String renders the canonical scope string. It is the left inverse of Parse:
// Parse(s.String()) == s for every valid Scope.
func (s Scope) String() string {
	if s.service == "" {
		return SharedName
	}
	return servicePrefix + ":" + s.service
}

// IsShared reports whether this is the shared-pool scope.
func (s Scope) IsShared() bool {
	return s.service == ""
}

// IsService reports whether this scope names a service.
func (s Scope) IsService() bool {
	return s.service != ""
}

// ServiceName returns the service name, or "" for the shared scope.
func (s Scope) ServiceName() string {
	return s.service
}

// MarshalJSON encodes the scope as its canonical string form.
func (s Scope) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a canonical scope string, rejecting malformed input.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MergeForService materializes the effective variable map for one service.
//
// With inherit true the result starts from a copy of shared and overlays the
// service overrides, later writes winning on key collision. With inherit
// false only the overrides are returned (copied). Inputs are never mutated.
func MergeForService(shared, serviceOverrides map[string]string, inherit bool) map[string]string {
	merged := make(map[string]string, len(shared)+len(serviceOverrides))
	if inherit {
		for k, v := range shared {
			merged[k] = v
		}
	}
	for k, v := range serviceOverrides {
		merged[k] = v
	}
	return merged
}

// SortedKeys returns the keys of a variable map in lexicographic order.
// Deterministic iteration keeps diffs, plans and rendered files stable.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

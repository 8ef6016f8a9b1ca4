package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	vlerrors "github.com/forattini-dev/vaulter-sub005/internal/errors"
	"github.com/forattini-dev/vaulter-sub005/internal/logging"
)

// artifactSchema validates serialized plan documents before they are trusted
// by apply-from-file. It guards CI gating flows against truncated or
// hand-edited artifacts.
const artifactSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "operation", "project", "environment", "scope", "changes", "generated_at", "status"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "operation": {"enum": ["merge", "push", "pull"]},
    "project": {"type": "string", "minLength": 1},
    "environment": {"type": "string", "minLength": 1},
    "scope": {"type": "string", "minLength": 1},
    "strategy": {"enum": ["error", "local-wins", "remote-wins"]},
    "changes": {
      "type": "object",
      "required": ["added", "updated", "deleted", "unchanged"],
      "properties": {
        "added": {"type": "object", "additionalProperties": {"type": "string"}},
        "updated": {"type": "object", "additionalProperties": {"$ref": "#/definitions/change"}},
        "deleted": {"type": "object", "additionalProperties": {"type": "string"}},
        "unchanged": {"type": "object", "additionalProperties": {"type": "string"}},
        "conflicts": {"type": "object", "additionalProperties": {"$ref": "#/definitions/change"}}
      }
    },
    "sensitive": {"type": "object", "additionalProperties": {"type": "boolean"}},
    "generated_at": {"type": "string"},
    "generated_by": {"type": "string"},
    "status": {"enum": ["planned", "applied", "blocked", "failed"]}
  },
  "definitions": {
    "change": {
      "type": "object",
      "required": ["local", "remote"],
      "properties": {
        "local": {"type": "string"},
        "remote": {"type": "string"}
      }
    }
  }
}`

// WriteFile serializes a plan as an indented JSON artifact.
func WriteFile(p Plan, path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write plan artifact: %w", err)
	}
	return nil
}

// LoadFile reads and schema-validates a plan artifact.
func LoadFile(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, vlerrors.UserError{
			Message:    "Failed to read plan artifact",
			Details:    err.Error(),
			Suggestion: "Check the path passed to --plan",
			Err:        err,
		}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(artifactSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return Plan{}, vlerrors.UserError{
			Message:    "Failed to validate plan artifact",
			Details:    err.Error(),
			Suggestion: "The file does not look like JSON produced by 'vaulter plan'",
			Err:        err,
		}
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return Plan{}, vlerrors.ValidationError{
			Field:      path,
			Message:    "plan artifact does not match the expected schema",
			Suggestion: strings.Join(details, "; "),
		}
	}

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("failed to unmarshal plan artifact: %w", err)
	}
	return p, nil
}

// Summary renders the human-readable review form of a plan. Sensitive values
// are masked; the summary is safe to paste into a review thread.
func Summary(p Plan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Plan %s (%s)\n", p.ID, p.Status)
	fmt.Fprintf(&b, "  %s %s/%s scope=%s", p.Operation, p.Project, p.Environment, p.Scope)
	if p.Strategy != "" {
		fmt.Fprintf(&b, " strategy=%s", p.Strategy)
	}
	fmt.Fprintf(&b, "\n  generated %s", p.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	if p.GeneratedBy != "" {
		fmt.Fprintf(&b, " by %s", p.GeneratedBy)
	}
	b.WriteString("\n\n")

	display := func(key, value string) string {
		return logging.Mask(value, p.Sensitive[key])
	}

	for _, key := range p.Changes.AddedKeys() {
		fmt.Fprintf(&b, "  + %s = %s\n", key, display(key, p.Changes.Added[key]))
	}
	for _, key := range p.Changes.UpdatedKeys() {
		change := p.Changes.Updated[key]
		fmt.Fprintf(&b, "  ~ %s = %s (was %s)\n", key, display(key, change.Local), display(key, change.Remote))
	}
	for _, key := range p.Changes.DeletedKeys() {
		fmt.Fprintf(&b, "  - %s (was %s)\n", key, display(key, p.Changes.Deleted[key]))
	}

	if len(p.Changes.Conflicts) > 0 {
		b.WriteString("\n  Conflicts:\n")
		conflictKeys := make([]string, 0, len(p.Changes.Conflicts))
		for key := range p.Changes.Conflicts {
			conflictKeys = append(conflictKeys, key)
		}
		sort.Strings(conflictKeys)
		for _, key := range conflictKeys {
			change := p.Changes.Conflicts[key]
			fmt.Fprintf(&b, "    ! %s local=%s remote=%s\n", key, display(key, change.Local), display(key, change.Remote))
		}
	}

	fmt.Fprintf(&b, "\n  %d to add, %d to update, %d to delete, %d unchanged\n",
		len(p.Changes.Added), len(p.Changes.Updated), len(p.Changes.Deleted), len(p.Changes.Unchanged))

	return b.String()
}

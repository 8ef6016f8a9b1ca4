package localstate

import (
	"fmt"
	"sort"
	"strings"

	vlerrors "github.com/forattini-dev/vaulter-sub005/internal/errors"
)

// parseEnvFile parses KEY=value lines. Full-line '#' comments and blank lines
// are ignored. Double-quoted values support \n, \r, \\ and \" escapes.
func parseEnvFile(path string, data []byte) (map[string]string, error) {
	vars := make(map[string]string)

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		eq := strings.Index(trimmed, "=")
		if eq <= 0 {
			return nil, vlerrors.ValidationError{
				Field:      path,
				Value:      trimmed,
				Message:    fmt.Sprintf("malformed line %d: expected KEY=value", i+1),
				Suggestion: "Fix the line or prefix it with '#' to comment it out",
			}
		}

		key := strings.TrimSpace(trimmed[:eq])
		rawValue := strings.TrimSpace(trimmed[eq+1:])

		value, err := unquoteValue(rawValue)
		if err != nil {
			return nil, vlerrors.ValidationError{
				Field:   path,
				Value:   key,
				Message: fmt.Sprintf("line %d: %v", i+1, err),
			}
		}

		vars[key] = value
	}

	return vars, nil
}

// unquoteValue strips surrounding double quotes and processes escapes. Bare
// values are returned as-is.
func unquoteValue(raw string) (string, error) {
	if !strings.HasPrefix(raw, `"`) {
		return raw, nil
	}
	if len(raw) < 2 || !strings.HasSuffix(raw, `"`) {
		return "", fmt.Errorf("unterminated quoted value")
	}

	inner := raw[1 : len(raw)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if c != '\\' {
			if c == '"' {
				return "", fmt.Errorf("unescaped quote inside quoted value")
			}
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(inner) {
			return "", fmt.Errorf("dangling escape at end of value")
		}
		switch inner[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		default:
			return "", fmt.Errorf("unknown escape '\\%c'", inner[i])
		}
	}
	return b.String(), nil
}

// serializeEnvFile renders a deterministic env file: keys sorted
// lexicographically, one KEY=value per line, exactly one trailing newline.
// An empty set serializes to a single newline so the trailing-newline rule
// holds for every written file.
func serializeEnvFile(vars map[string]string) []byte {
	if len(vars) == 0 {
		return []byte("\n")
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quoteValue(vars[k]))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// needsQuoting reports whether a value must be double-quoted: whitespace,
// '#', quote characters, or newlines would otherwise be ambiguous on re-read.
func needsQuoting(value string) bool {
	return strings.ContainsAny(value, " \t\n\r#\"'")
}

func quoteValue(value string) string {
	if !needsQuoting(value) {
		return value
	}

	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(value[i])
		}
	}
	b.WriteByte('"')
	return b.String()
}

package task

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

var (
	paramKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	integerPattern  = regexp.MustCompile(`^(0|-?[1-9][0-9]*)$`)
)

// DecodeConfig decodes raw parameters into a typed config struct.
func DecodeConfig[T any](raw any) (T, error) {
	var cfg T
	if raw == nil {
		return cfg, nil
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, fmt.Errorf("encode config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// ParseAssignment parses a `key=value` command-line parameter. Values that
// look like YAML lists, maps, booleans or integers are decoded as such; any
// other value is kept verbatim as a string.
func ParseAssignment(assignment string) (string, any, error) {
	key, value, ok := strings.Cut(assignment, "=")
	if !ok {
		return "", nil, fmt.Errorf("invalid parameter %q: expected key=value", assignment)
	}
	key = strings.TrimSpace(key)
	if !paramKeyPattern.MatchString(key) {
		return "", nil, fmt.Errorf("invalid parameter name %q", key)
	}

	trimmed := strings.TrimSpace(value)
	if !looksStructured(trimmed) {
		return key, value, nil
	}

	var decoded any
	if err := yaml.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return "", nil, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if decoded == nil {
		if strings.HasPrefix(trimmed, "[") {
			return key, []any{}, nil
		}
		return key, map[string]any{}, nil
	}
	return key, decoded, nil
}

// ParseAssignments parses repeated `key=value` parameters into a map.
func ParseAssignments(assignments []string) (map[string]any, error) {
	out := make(map[string]any, len(assignments))
	for _, assignment := range assignments {
		key, value, err := ParseAssignment(assignment)
		if err != nil {
			return nil, err
		}
		if _, exists := out[key]; exists {
			return nil, fmt.Errorf("parameter %q given more than once", key)
		}
		out[key] = value
	}
	return out, nil
}

func looksStructured(value string) bool {
	switch {
	case strings.HasPrefix(value, "["), strings.HasPrefix(value, "{"):
		return true
	case value == "true", value == "false":
		return true
	case integerPattern.MatchString(value):
		return true
	}
	return false
}

// Words is a list parameter that also accepts a whitespace-separated string.
type Words []string

func (w *Words) UnmarshalYAML(data []byte) error {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		*w = list
		return nil
	}
	var text string
	if err := yaml.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("expected a list or a string: %w", err)
	}
	*w = strings.Fields(text)
	return nil
}

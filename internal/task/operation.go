package task

import (
	"embed"
	"fmt"
	"path"
	"reflect"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/tpodg/serverkit/internal/console"
	"github.com/tpodg/serverkit/internal/server"
)

//go:embed defaults
var defaultsFS embed.FS

// MissingParameterError reports a required parameter that was found neither
// in the explicit arguments, the ambient settings nor the operation defaults.
type MissingParameterError struct {
	Operation string
	Key       string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("operation %s: parameter %q must be set (use --set %s=... or settings.%s)", e.Operation, e.Key, e.Key, e.Key)
}

// Param declares a parameter accepted by an operation.
type Param struct {
	Key         string
	Required    bool
	Description string
}

// Invocation carries what a builder needs besides its typed parameters.
type Invocation struct {
	Operation string
	// Params holds the resolved parameters.
	Params map[string]any
	// Ambient holds the settings of the target server.
	Ambient map[string]any
	Console console.Console
	Runner  *Runner
	// Dial resolves host strings for steps that run on another server.
	Dial server.Dialer
	// AssumeYes skips confirmation gates.
	AssumeYes bool
	// Strict turns file edits whose text is absent into errors.
	Strict bool
}

// Operation is a named, parameterized sequence of tasks.
type Operation struct {
	Key          string
	Summary      string
	DefaultsPath string
	Params       []Param
	build        func(params map[string]any, inv Invocation) ([]Task, error)
}

// OperationFor creates an Operation that decodes its resolved parameters into
// T before building tasks.
func OperationFor[T any](key, summary, defaultsPath string, params []Param, build func(T, Invocation) ([]Task, error)) Operation {
	return Operation{
		Key:          key,
		Summary:      summary,
		DefaultsPath: defaultsPath,
		Params:       params,
		build: func(raw map[string]any, inv Invocation) ([]Task, error) {
			cfg, err := DecodeConfig[T](raw)
			if err != nil {
				return nil, fmt.Errorf("operation %s: %w", key, err)
			}
			return build(cfg, inv)
		},
	}
}

// Defaults returns the operation's embedded default parameters.
func (op Operation) Defaults() (map[string]any, error) {
	if op.DefaultsPath == "" {
		return map[string]any{}, nil
	}

	defaultsPath := path.Join("defaults", op.DefaultsPath)
	data, err := defaultsFS.ReadFile(defaultsPath)
	if err != nil {
		return nil, fmt.Errorf("read defaults for %s: %w", op.Key, err)
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}

	var defaults map[string]any
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return nil, fmt.Errorf("parse defaults for %s: %w", op.Key, err)
	}
	if defaults == nil {
		defaults = map[string]any{}
	}
	return defaults, nil
}

// Resolve computes the value of every declared parameter. Explicit values win
// even when empty. Ambient values count only when non-empty. Defaults come
// last, and a required parameter left unresolved yields a
// MissingParameterError.
func (op Operation) Resolve(explicit, ambient map[string]any) (map[string]any, error) {
	declared := make(map[string]Param, len(op.Params))
	for _, p := range op.Params {
		declared[p.Key] = p
	}

	var unknown []string
	for key := range explicit {
		if _, ok := declared[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("operation %s: unknown parameters: %v", op.Key, unknown)
	}

	defaults, err := op.Defaults()
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]any, len(op.Params))
	for _, p := range op.Params {
		if value, ok := explicit[p.Key]; ok {
			resolved[p.Key] = mergeConfig(nil, value)
			continue
		}
		if value, ok := ambient[p.Key]; ok && !isEmpty(value) {
			resolved[p.Key] = mergeConfig(asMap(defaults[p.Key]), value)
			continue
		}
		if value, ok := defaults[p.Key]; ok && value != nil {
			resolved[p.Key] = mergeConfig(nil, value)
			continue
		}
		if p.Required {
			return nil, &MissingParameterError{Operation: op.Key, Key: p.Key}
		}
	}
	return resolved, nil
}

// Plan resolves parameters and builds the ordered task list. It never
// contacts the server.
func (op Operation) Plan(explicit, ambient map[string]any, inv Invocation) ([]Task, error) {
	params, err := op.Resolve(explicit, ambient)
	if err != nil {
		return nil, err
	}
	inv.Operation = op.Key
	inv.Params = params
	inv.Ambient = ambient
	return op.build(params, inv)
}

// TemplateData returns the values uploaded templates are rendered against:
// the ambient settings overlaid with the resolved parameters.
func (inv Invocation) TemplateData() map[string]any {
	out := copyMap(inv.Ambient)
	for key, value := range inv.Params {
		out[key] = value
	}
	return out
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}

func asMap(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}

func mergeConfig(defaults map[string]any, override any) any {
	if override == nil {
		if defaults == nil {
			return nil
		}
		return copyMap(defaults)
	}

	overrideMap, ok := override.(map[string]any)
	if !ok {
		return override
	}
	if defaults == nil {
		return copyMap(overrideMap)
	}
	return mergeMaps(defaults, overrideMap)
}

func mergeMaps(base, override map[string]any) map[string]any {
	out := copyMap(base)
	for key, value := range override {
		overrideMap, ok := value.(map[string]any)
		if !ok {
			out[key] = value
			continue
		}

		baseMap, ok := out[key].(map[string]any)
		if !ok {
			out[key] = copyMap(overrideMap)
			continue
		}
		out[key] = mergeMaps(baseMap, overrideMap)
	}
	return out
}

func copyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}

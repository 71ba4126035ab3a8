package config

// Settings holds ambient operation parameters keyed by parameter name.
type Settings map[string]any

// Merge returns a copy of s with override applied on top. Nested maps are
// merged key by key.
func (s Settings) Merge(override Settings) Settings {
	return Settings(mergeMaps(s, override))
}

// Bool reports whether key holds true.
func (s Settings) Bool(key string) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "yes" || v == "1"
	default:
		return false
	}
}

func mergeMaps(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range override {
		overrideMap, ok := value.(map[string]any)
		if !ok {
			out[key] = value
			continue
		}
		baseMap, ok := out[key].(map[string]any)
		if !ok {
			out[key] = mergeMaps(nil, overrideMap)
			continue
		}
		out[key] = mergeMaps(baseMap, overrideMap)
	}
	return out
}

package recipe

// mergeMaps deep-merges override onto base and returns a new map.
// Nested maps merge key by key; any other value in override replaces
// the base value outright. Neither input is mutated.
func mergeMaps(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		ov, ok := v.(map[string]any)
		if !ok {
			out[k] = v
			continue
		}
		bv, ok := out[k].(map[string]any)
		if !ok {
			out[k] = deepCopyMap(ov)
			continue
		}
		out[k] = mergeMaps(bv, ov)
	}
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if mv, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(mv)
			continue
		}
		out[k] = v
	}
	return out
}

// setNested sets parent.key = value in m, creating the parent map if
// absent.
func setNested(m map[string]any, parent, key string, value any) {
	p, ok := m[parent].(map[string]any)
	if !ok {
		p = map[string]any{}
		m[parent] = p
	}
	p[key] = value
}

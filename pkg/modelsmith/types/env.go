package types

import "sort"

// EnvMap is the environment-variable mapping handed to a serving or
// training container. Keys are variable names, values are their string
// representations.
type EnvMap map[string]string

// Clone returns a deep copy of the map. Cloning a nil map returns an
// empty, non-nil map so callers can mutate the result safely.
func (e EnvMap) Clone() EnvMap {
	out := make(EnvMap, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into e, overwriting existing keys.
func (e EnvMap) Merge(other EnvMap) {
	for k, v := range other {
		e[k] = v
	}
}

// Equal reports whether e and other contain exactly the same entries.
func (e EnvMap) Equal(other EnvMap) bool {
	if len(e) != len(other) {
		return false
	}
	for k, v := range e {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// SortedKeys returns the map's keys in lexical order, for deterministic
// rendering and logging.
func (e EnvMap) SortedKeys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

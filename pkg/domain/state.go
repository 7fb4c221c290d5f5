package domain

import (
	"sort"

	"github.com/spf13/cast"
)

// State is the shared key-value mapping of a session.
// Values are JSON-like: strings, numbers, bools, nil, []any and map[string]any.
//
// Tools and agents hand off data through well-known keys. Keys are not
// namespaced, so two writers using the same key overwrite each other.
type State map[string]any

// StateView is the read-only surface of State handed to policies and guardrails.
type StateView interface {
	Get(key string) (any, bool)
	GetOr(key string, def any) any
	GetString(key, def string) string
	Has(key string) bool
	Keys() []string
}

var _ StateView = State(nil)

// NewState creates a state seeded with a copy of initial.
func NewState(initial map[string]any) State {
	s := make(State, len(initial))
	for k, v := range initial {
		s[k] = deepCopyValue(v)
	}
	return s
}

// Get returns the value stored under key.
func (s State) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

// GetOr returns the value stored under key, or def when the key is absent.
func (s State) GetOr(key string, def any) any {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

// GetString returns the value under key converted to a string, or def when
// the key is absent or not convertible.
func (s State) GetString(key, def string) string {
	v, ok := s[key]
	if !ok {
		return def
	}
	str, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return str
}

// GetFloat returns the value under key as a float64, or def.
func (s State) GetFloat(key string, def float64) float64 {
	v, ok := s[key]
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

// GetInt returns the value under key as an int, or def.
func (s State) GetInt(key string, def int) int {
	v, ok := s[key]
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// GetBool returns the value under key as a bool, or def.
func (s State) GetBool(key string, def bool) bool {
	v, ok := s[key]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// Has reports whether key is present.
func (s State) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Set stores value under key. The last write wins.
func (s State) Set(key string, value any) {
	s[key] = value
}

// Delete removes key.
func (s State) Delete(key string) {
	delete(s, key)
}

// Keys returns the keys in lexical order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of nested maps and slices.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	case State:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i], _ = deepCopyValue(item).(map[string]any)
		}
		return out
	default:
		return v
	}
}

package domain

import (
	"reflect"
)

// DiffState returns the keys whose values were added, modified or deleted
// between before and after. Deleted keys map to nil.
// It returns nil when nothing changed so that omitempty drops the field.
func DiffState(before, after State) map[string]any {
	delta := make(map[string]any)

	// Added or modified
	for k, newVal := range after {
		oldVal, exists := before[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = deepCopyValue(newVal)
		}
	}

	// Deleted
	for k := range before {
		if _, exists := after[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// MergeDelta folds b into a, returning a (allocated when nil).
func MergeDelta(a, b map[string]any) map[string]any {
	if len(b) == 0 {
		return a
	}
	if a == nil {
		a = make(map[string]any, len(b))
	}
	for k, v := range b {
		a[k] = v
	}
	return a
}

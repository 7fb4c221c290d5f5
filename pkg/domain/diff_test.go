package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffState(t *testing.T) {
	tests := []struct {
		name   string
		before State
		after  State
		want   map[string]any
	}{
		{
			name:   "No Changes",
			before: State{"a": 1},
			after:  State{"a": 1},
			want:   nil,
		},
		{
			name:   "Added Key",
			before: State{"a": 1},
			after:  State{"a": 1, "b": "x"},
			want:   map[string]any{"b": "x"},
		},
		{
			name:   "Modified Nested",
			before: State{"outline": map[string]any{"act1": "setup"}},
			after:  State{"outline": map[string]any{"act1": "climax"}},
			want:   map[string]any{"outline": map[string]any{"act1": "climax"}},
		},
		{
			name:   "Deleted Key",
			before: State{"a": 1, "b": 2},
			after:  State{"a": 1},
			want:   map[string]any{"b": nil},
		},
		{
			name:   "Initial Load",
			before: nil,
			after:  State{"a": 1},
			want:   map[string]any{"a": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DiffState(tt.before, tt.after))
		})
	}
}

func TestMergeDelta(t *testing.T) {
	assert.Nil(t, MergeDelta(nil, nil))
	got := MergeDelta(nil, map[string]any{"a": 1})
	got = MergeDelta(got, map[string]any{"a": 2, "b": 3})
	assert.Equal(t, map[string]any{"a": 2, "b": 3}, got)
}

package weather

import (
	"context"
	"testing"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/tool"
	"github.com/stretchr/testify/assert"
)

func TestWeather(t *testing.T) {
	w := New(nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		state    domain.State
		city     string
		want     domain.Result
		lastCity any
	}{
		{
			name:     "Default Celsius",
			state:    domain.State{},
			city:     "London",
			want:     domain.OK("The weather in London is cloudy with a temperature of 15°C."),
			lastCity: "London",
		},
		{
			name:     "Fahrenheit Preference",
			state:    domain.State{KeyUnitPreference: Fahrenheit},
			city:     "New York",
			want:     domain.OK("The weather in New york is sunny with a temperature of 77°F."),
			lastCity: "New York",
		},
		{
			name:     "Unknown City",
			state:    domain.State{},
			city:     "Paris",
			want:     domain.Fail("Sorry, I don't have weather information for 'Paris'."),
			lastCity: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tool.Invoke(ctx, w, map[string]any{"city": tt.city}, tt.state)
			assert.Equal(t, tt.want, res)
			assert.Equal(t, tt.lastCity, tt.state.GetOr(KeyLastCity, nil))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "newyork", Normalize(" New York "))
}

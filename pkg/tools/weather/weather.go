// Package weather provides a stateful weather lookup backed by a fixed report table.
package weather

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/tool"
)

// Name of the weather tool.
const Name = "get_weather"

// State keys read and written by the tool.
const (
	KeyUnitPreference = "user_preference_temperature_unit"
	KeyLastCity       = "last_city_checked_stateful"
)

// Units accepted in KeyUnitPreference.
const (
	Celsius    = "Celsius"
	Fahrenheit = "Fahrenheit"
)

// Report is a Celsius reading for a city.
type Report struct {
	TempC     float64
	Condition string
}

// DefaultReports is the built-in report table, keyed by normalized city name.
var DefaultReports = map[string]Report{
	"newyork": {TempC: 25, Condition: "sunny"},
	"london":  {TempC: 15, Condition: "cloudy"},
	"tokyo":   {TempC: 18, Condition: "light rain"},
}

// Args are the arguments of the weather tool.
type Args struct {
	City string `json:"city" validate:"required"`
}

// New returns the weather tool over reports (DefaultReports when nil).
//
// It reads KeyUnitPreference (default Celsius) and, on success, writes the
// requested city to KeyLastCity.
func New(reports map[string]Report) tool.Tool {
	if reports == nil {
		reports = DefaultReports
	}
	return tool.Typed(Name,
		"Retrieves the current weather report for a city, honoring the user's temperature unit preference.",
		func(ctx context.Context, in Args, state domain.State) (any, error) {
			report, ok := reports[Normalize(in.City)]
			if !ok {
				return nil, fmt.Errorf("Sorry, I don't have weather information for '%s'.", in.City)
			}

			temp, unit := report.TempC, "°C"
			if state.GetString(KeyUnitPreference, Celsius) == Fahrenheit {
				temp, unit = report.TempC*9/5+32, "°F"
			}

			state.Set(KeyLastCity, in.City)
			return fmt.Sprintf("The weather in %s is %s with a temperature of %.0f%s.",
				capitalize(in.City), report.Condition, temp, unit), nil
		},
		tool.WithParameters(tool.Object(map[string]any{
			"city": tool.Property("string", "The name of the city, e.g. 'New York'."),
		}, "city")),
	)
}

// Normalize lowercases a city name and strips spaces.
func Normalize(city string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(city)), " ", "")
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) > 0 {
		runes[0] = unicode.ToUpper(runes[0])
	}
	return string(runes)
}

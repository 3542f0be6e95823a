package climate

import (
	"context"
	"errors"
	"testing"

	"github.com/rubiojr/tripcost/internal/trip"
)

type stubProvider struct {
	obs Observation
	err error
}

func (s stubProvider) Current(ctx context.Context, c trip.Coordinate) (Observation, error) {
	return s.obs, s.err
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		obs      Observation
		expected trip.ClimateCategory
	}{
		{"snow beats cold", Observation{TemperatureC: -3, Condition: "Snow"}, trip.ClimateSnowy},
		{"rain", Observation{TemperatureC: 18, Condition: "Rain"}, trip.ClimateRainy},
		{"drizzle", Observation{TemperatureC: 12, Condition: "Drizzle"}, trip.ClimateRainy},
		{"cold", Observation{TemperatureC: 2, Condition: "Clear"}, trip.ClimateCold},
		{"hot", Observation{TemperatureC: 34, Condition: "Clear"}, trip.ClimateHot},
		{"windy", Observation{TemperatureC: 20, WindSpeedMS: 14, Condition: "Clouds"}, trip.ClimateWindy},
		{"mild", Observation{TemperatureC: 20, WindSpeedMS: 3, Condition: "Clouds"}, trip.ClimateMild},
		{"boundary is not cold", Observation{TemperatureC: 5}, trip.ClimateMild},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.obs); got != tt.expected {
				t.Errorf("Categorize(%+v) = %s, want %s", tt.obs, got, tt.expected)
			}
		})
	}
}

func TestClassifyFailsOpen(t *testing.T) {
	c := NewClassifier(stubProvider{err: errors.New("503 service unavailable")}, nil)
	if got := c.Classify(context.Background(), trip.Coordinate{Lat: 4.7, Lng: -74}); got != trip.ClimateMild {
		t.Errorf("Classify() = %s, want mild on provider error", got)
	}
}

func TestClassify(t *testing.T) {
	c := NewClassifier(stubProvider{obs: Observation{TemperatureC: 36}}, nil)
	if got := c.Classify(context.Background(), trip.Coordinate{Lat: 24.4, Lng: 54.4}); got != trip.ClimateHot {
		t.Errorf("Classify() = %s, want hot", got)
	}
}

func TestClassifyWithoutProvider(t *testing.T) {
	c := NewClassifier(nil, nil)
	if got := c.Classify(context.Background(), trip.Coordinate{}); got != trip.ClimateMild {
		t.Errorf("Classify() = %s, want mild", got)
	}
}

// Package climate classifies the current weather at a coordinate into a
// climate category. Classification fails open: a degraded weather
// provider yields ClimateMild instead of an error.
package climate

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/rubiojr/tripcost/internal/metrics"
	"github.com/rubiojr/tripcost/internal/trip"
)

const (
	ColdBelowC     = 5.0
	HotAboveC      = 30.0
	WindyAboveMS   = 10.0
	DefaultTimeout = 5 * time.Second
)

// Observation is a normalised weather reading.
type Observation struct {
	TemperatureC float64
	WindSpeedMS  float64
	Condition    string
}

// WeatherProvider returns the current weather at a coordinate.
type WeatherProvider interface {
	Current(ctx context.Context, c trip.Coordinate) (Observation, error)
}

type Classifier struct {
	provider WeatherProvider
	timeout  time.Duration
	log      *slog.Logger
}

func NewClassifier(p WeatherProvider, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Classifier{provider: p, timeout: DefaultTimeout, log: logger}
}

// Classify never fails: provider errors are logged and reported as mild.
func (c *Classifier) Classify(ctx context.Context, coord trip.Coordinate) trip.ClimateCategory {
	if c.provider == nil {
		return trip.ClimateMild
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	obs, err := c.provider.Current(ctx, coord)
	metrics.ProviderDuration.WithLabelValues("weather").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ClimateFallbacks.Inc()
		c.log.Warn("weather provider unavailable, assuming mild climate", "coord", coord.String(), "error", err)
		return trip.ClimateMild
	}

	category := Categorize(obs)
	c.log.Debug("climate classified", "coord", coord.String(), "climate", category, "temp", obs.TemperatureC)
	return category
}

// Categorize maps an observation onto a climate category. Precipitation
// wins over temperature, which wins over wind.
func Categorize(o Observation) trip.ClimateCategory {
	cond := strings.ToLower(o.Condition)
	switch {
	case strings.Contains(cond, "snow") || strings.Contains(cond, "sleet"):
		return trip.ClimateSnowy
	case strings.Contains(cond, "rain") || strings.Contains(cond, "drizzle") || strings.Contains(cond, "thunderstorm"):
		return trip.ClimateRainy
	case o.TemperatureC < ColdBelowC:
		return trip.ClimateCold
	case o.TemperatureC > HotAboveC:
		return trip.ClimateHot
	case o.WindSpeedMS > WindyAboveMS:
		return trip.ClimateWindy
	default:
		return trip.ClimateMild
	}
}

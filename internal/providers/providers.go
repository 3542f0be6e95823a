// Package providers adapts the pkg/api clients to the ports of the core
// packages (route, climate, catalog) and maps their errors onto the trip
// error taxonomy.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rubiojr/tripcost/internal/catalog"
	"github.com/rubiojr/tripcost/internal/climate"
	"github.com/rubiojr/tripcost/internal/trip"
	"github.com/rubiojr/tripcost/pkg/api"
)

// litersPer100KmPerMPG converts US miles per gallon to L/100km.
const litersPer100KmPerMPG = 235.215

// Maps serves distances and elevations from the Google Maps APIs.
type Maps struct {
	api *api.MapsAPI
}

func NewMaps(m *api.MapsAPI) *Maps {
	return &Maps{api: m}
}

func (m *Maps) Distance(ctx context.Context, o, d trip.Coordinate) (float64, error) {
	km, err := m.api.DistanceKm(ctx, o.Lat, o.Lng, d.Lat, d.Lng)
	if errors.Is(err, api.ErrNoRoute) {
		return 0, fmt.Errorf("%w: %w", trip.ErrRouteUnavailable, err)
	}
	return km, err
}

func (m *Maps) Elevations(ctx context.Context, o, d trip.Coordinate) ([2]float64, error) {
	return m.api.Elevations(ctx, o.Lat, o.Lng, d.Lat, d.Lng)
}

// Weather serves observations from OpenWeatherMap.
type Weather struct {
	api *api.WeatherAPI
}

func NewWeather(w *api.WeatherAPI) *Weather {
	return &Weather{api: w}
}

func (w *Weather) Current(ctx context.Context, c trip.Coordinate) (climate.Observation, error) {
	cw, err := w.api.Current(ctx, c.Lat, c.Lng)
	if err != nil {
		return climate.Observation{}, err
	}
	obs := climate.Observation{
		TemperatureC: cw.Main.Temp,
		WindSpeedMS:  cw.Wind.Speed,
	}
	if len(cw.Weather) > 0 {
		obs.Condition = cw.Weather[0].Main
	}
	return obs, nil
}

// Catalog serves brands, models and specifications from the remote catalog.
type Catalog struct {
	api *api.CatalogAPI
}

func NewCatalog(c *api.CatalogAPI) *Catalog {
	return &Catalog{api: c}
}

func (c *Catalog) ListBrands(ctx context.Context, year int) ([]trip.Option, error) {
	opts, err := c.api.Brands(ctx, year)
	if err != nil {
		return nil, err
	}
	return toOptions(opts), nil
}

func (c *Catalog) ListModels(ctx context.Context, brandKey string) ([]trip.Option, error) {
	opts, err := c.api.Models(ctx, brandKey)
	if err != nil {
		return nil, err
	}
	return toOptions(opts), nil
}

func (c *Catalog) GetSpec(ctx context.Context, brandKey, modelKey string, year int) (trip.VehicleSpec, error) {
	s, err := c.api.Spec(ctx, brandKey, modelKey, year)
	if errors.Is(err, api.ErrVehicleNotFound) {
		return trip.VehicleSpec{}, fmt.Errorf("%s %s %d: %w", brandKey, modelKey, year, trip.ErrVehicleNotFound)
	}
	if err != nil {
		return trip.VehicleSpec{}, err
	}
	return ToVehicleSpec(s)
}

func toOptions(in []api.CatalogOption) []trip.Option {
	out := make([]trip.Option, 0, len(in))
	for _, o := range in {
		out = append(out, trip.Option{Label: o.Label, Value: o.Value})
	}
	return out
}

// ToVehicleSpec converts a catalog entry. Electric vehicles take their
// consumption from kWh/100km; others from L/100km, falling back to MPG.
func ToVehicleSpec(s *api.CatalogSpec) (trip.VehicleSpec, error) {
	v := trip.VehicleSpec{
		Brand:              s.Make,
		Model:              s.Model,
		Year:               s.Year,
		FuelType:           NormalizeFuelType(s.FuelType),
		EngineCC:           s.EngineCC,
		Cylinders:          s.Cylinders,
		WeightKg:           s.WeightKg,
		HighwayConsumption: s.LkmHighway,
	}

	switch {
	case v.IsElectric():
		v.CombinedConsumption = s.KWhPer100Km
		v.HighwayConsumption = 0
	case s.LkmMixed > 0:
		v.CombinedConsumption = s.LkmMixed
	case s.MpgMixed > 0:
		v.CombinedConsumption = litersPer100KmPerMPG / s.MpgMixed
	}

	if v.CombinedConsumption <= 0 {
		return trip.VehicleSpec{}, &trip.ComputationError{Reason: fmt.Sprintf("%s has no consumption figure", v.Ref())}
	}
	return v, nil
}

// NormalizeFuelType maps catalog fuel names onto the trip fuel constants.
func NormalizeFuelType(s string) string {
	f := strings.ToLower(s)
	switch {
	case strings.Contains(f, "plug-in"), strings.Contains(f, "hybrid"):
		return trip.FuelHybrid
	case strings.Contains(f, "electric"), f == "ev", f == "bev":
		return trip.FuelElectric
	case strings.Contains(f, "diesel"):
		return trip.FuelDiesel
	default:
		return trip.FuelGasoline
	}
}

// CalibrationStore reads per-vehicle calibration factors.
type CalibrationStore interface {
	Calibration(ctx context.Context, ref trip.VehicleRef) (float64, int, error)
}

// Calibrated overlays locally stored calibration factors on the specs of
// another catalog provider.
type Calibrated struct {
	Provider catalog.Provider
	Store    CalibrationStore
}

func (c Calibrated) ListBrands(ctx context.Context, year int) ([]trip.Option, error) {
	return c.Provider.ListBrands(ctx, year)
}

func (c Calibrated) ListModels(ctx context.Context, brandKey string) ([]trip.Option, error) {
	return c.Provider.ListModels(ctx, brandKey)
}

func (c Calibrated) GetSpec(ctx context.Context, brandKey, modelKey string, year int) (trip.VehicleSpec, error) {
	v, err := c.Provider.GetSpec(ctx, brandKey, modelKey, year)
	if err != nil {
		return v, err
	}
	factor, _, err := c.Store.Calibration(ctx, v.Ref())
	if err != nil {
		return trip.VehicleSpec{}, err
	}
	v.CalibrationFactor = factor
	return v, nil
}

// FuelPrices looks up the average pump price around a coordinate.
type FuelPrices struct {
	api      *api.FuelPriceAPI
	radiusKm float64
}

func NewFuelPrices(f *api.FuelPriceAPI, radiusKm float64) *FuelPrices {
	return &FuelPrices{api: f, radiusKm: radiusKm}
}

// PriceFor returns the price per liter for the vehicle's fuel near c.
func (f *FuelPrices) PriceFor(ctx context.Context, v trip.VehicleSpec, c trip.Coordinate) (float64, error) {
	if v.IsElectric() {
		return 0, &trip.InputError{Field: "price_per_unit", Reason: "pump prices do not apply to electric vehicles"}
	}
	fuel := "gasoline95"
	if v.FuelType == trip.FuelDiesel {
		fuel = "diesel"
	}
	p, err := f.api.AveragePrice(ctx, c.Lat, c.Lng, f.radiusKm, fuel)
	if err != nil {
		return 0, trip.NewProviderError("fuel_prices", err)
	}
	return p, nil
}

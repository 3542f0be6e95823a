// Package trip holds the trip cost domain: value types, the consumption
// and cost models, and the error taxonomy shared by every other package.
package trip

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Coordinate is an immutable WGS84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is finite and inside WGS84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

type ClimateCategory string

const (
	ClimateMild  ClimateCategory = "mild"
	ClimateHot   ClimateCategory = "hot"
	ClimateCold  ClimateCategory = "cold"
	ClimateRainy ClimateCategory = "rainy"
	ClimateSnowy ClimateCategory = "snowy"
	ClimateWindy ClimateCategory = "windy"
)

// ParseClimate maps a free-form string onto the closed category set.
// Unknown values fall back to mild.
func ParseClimate(s string) ClimateCategory {
	switch c := ClimateCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case ClimateHot, ClimateCold, ClimateRainy, ClimateSnowy, ClimateWindy:
		return c
	default:
		return ClimateMild
	}
}

const (
	FuelGasoline = "gasoline"
	FuelDiesel   = "diesel"
	FuelHybrid   = "hybrid"
	FuelElectric = "electric"
)

// RouteGeometry is the resolved shape of a trip between two points.
type RouteGeometry struct {
	DistanceKm            float64 `json:"distance_km"`
	OriginElevationM      float64 `json:"origin_elevation_m"`
	DestinationElevationM float64 `json:"destination_elevation_m"`
	RoadGradePercent      float64 `json:"road_grade_percent"`
}

// Option is a selectable catalog entry (a brand or a model).
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// VehicleRef identifies a vehicle in the catalog.
type VehicleRef struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
	Year  int    `json:"year"`
}

func (r VehicleRef) String() string {
	return fmt.Sprintf("%s %s %d", r.Brand, r.Model, r.Year)
}

// VehicleSpec describes a vehicle as needed by the consumption model.
// Consumption figures are L/100km, or kWh/100km for electric vehicles.
type VehicleSpec struct {
	Brand               string  `json:"brand"`
	Model               string  `json:"model"`
	Year                int     `json:"year"`
	FuelType            string  `json:"fuel_type"`
	EngineCC            int     `json:"engine_cc,omitempty"`
	Cylinders           int     `json:"cylinders,omitempty"`
	WeightKg            float64 `json:"weight_kg"`
	CombinedConsumption float64 `json:"combined_consumption"`
	HighwayConsumption  float64 `json:"highway_consumption,omitempty"`
	CalibrationFactor   float64 `json:"calibration_factor,omitempty"`
}

func (v VehicleSpec) Ref() VehicleRef {
	return VehicleRef{Brand: v.Brand, Model: v.Model, Year: v.Year}
}

// IsElectric reports whether the vehicle runs on batteries only.
func (v VehicleSpec) IsElectric() bool {
	return strings.Contains(strings.ToLower(v.FuelType), FuelElectric)
}

// Unit is the unit AmountUsed is expressed in.
func (v VehicleSpec) Unit() string {
	if v.IsElectric() {
		return "kWh"
	}
	return "L"
}

// TripRequest is the input of a trip estimate. When Spec is nil the
// vehicle is resolved from the catalog using Vehicle.
type TripRequest struct {
	Vehicle           VehicleRef   `json:"vehicle"`
	Spec              *VehicleSpec `json:"spec,omitempty"`
	Origin            Coordinate   `json:"origin"`
	Destination       Coordinate   `json:"destination"`
	Passengers        int          `json:"passengers"`
	CargoWeightKg     float64      `json:"cargo_weight_kg"`
	PricePerUnit      *float64     `json:"price_per_unit,omitempty"`
	EnergyPricePerKWh *float64     `json:"energy_price_per_kwh,omitempty"`
}

// TripResult is the immutable outcome of a successful estimate.
// TotalCost is nil for electric vehicles without an energy price.
type TripResult struct {
	DistanceKm          float64         `json:"distance_km"`
	BaseConsumption     float64         `json:"base_consumption"`
	AdjustedConsumption float64         `json:"adjusted_consumption"`
	AmountUsed          float64         `json:"amount_used"`
	TotalCost           *float64        `json:"total_cost"`
	Climate             ClimateCategory `json:"climate"`
	RoadGradePercent    float64         `json:"road_grade_percent"`
	Unit                string          `json:"unit"`
	Electric            bool            `json:"electric"`
	Vehicle             VehicleSpec     `json:"vehicle"`
	Generation          uint64          `json:"generation"`
	// Superseded is set when the result was computed for a newer request
	// than the one passed to ComputeTrip.
	Superseded          bool            `json:"superseded,omitempty"`
}

// TripRecord is a persisted estimate.
type TripRecord struct {
	ID        uuid.UUID   `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Request   TripRequest `json:"request"`
	Result    TripResult  `json:"result"`
}

// Float returns a pointer to v, handy for the optional price fields.
func Float(v float64) *float64 {
	return &v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

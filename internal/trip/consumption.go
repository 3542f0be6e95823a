package trip

import (
	"fmt"
	"math"
)

const (
	// DefaultVehicleWeightKg is used when the catalog has no curb weight.
	DefaultVehicleWeightKg = 1500.0
	// PassengerWeightKg is the average mass added per extra occupant.
	PassengerWeightKg = 75.0
	// LoadSensitivity is the consumption increase per unit of payload/curb weight ratio.
	LoadSensitivity = 0.3

	// MaxGradePercent bounds the grade fed into the grade factor.
	MaxGradePercent = 30.0
	// DownhillFloor is the lowest grade factor a descent can produce.
	DownhillFloor = 0.7

	ShortTripKm     = 5.0
	ShortTripFactor = 1.15

	MinCalibration = 0.85
	MaxCalibration = 1.25
)

var climateFactors = map[ClimateCategory]float64{
	ClimateMild:  1.00,
	ClimateHot:   1.05,
	ClimateRainy: 1.07,
	ClimateWindy: 1.08,
	ClimateCold:  1.10,
	ClimateSnowy: 1.12,
}

// ClimateFactor is 1.0 for mild weather and above 1.0 for every other category.
func ClimateFactor(c ClimateCategory) float64 {
	if f, ok := climateFactors[c]; ok {
		return f
	}
	return 1.0
}

// GradeFactor scales consumption by road grade. Uphill grows linearly,
// downhill saves half as much and never drops below DownhillFloor.
func GradeFactor(gradePercent float64) float64 {
	g := math.Max(-MaxGradePercent, math.Min(MaxGradePercent, gradePercent))
	switch {
	case g > 0:
		return 1 + g/100
	case g < 0:
		return math.Max(DownhillFloor, 1+g/200)
	default:
		return 1.0
	}
}

// LoadFactor scales consumption by the payload carried on top of the
// vehicle baseline (curb weight plus driver).
func LoadFactor(vehicleWeightKg float64, passengers int, cargoWeightKg float64) float64 {
	if vehicleWeightKg <= 0 {
		vehicleWeightKg = DefaultVehicleWeightKg
	}
	payload := math.Max(0, float64(passengers-1))*PassengerWeightKg + math.Max(0, cargoWeightKg)
	return 1 + LoadSensitivity*payload/vehicleWeightKg
}

// ShortTripPenalty accounts for cold starts on very short trips.
func ShortTripPenalty(distanceKm float64) float64 {
	if distanceKm < ShortTripKm {
		return ShortTripFactor
	}
	return 1.0
}

func calibration(f float64) float64 {
	if f <= 0 {
		return 1.0
	}
	return math.Max(MinCalibration, math.Min(MaxCalibration, f))
}

// Consumption is the output of the consumption model.
type Consumption struct {
	Base     float64
	Adjusted float64
	Amount   float64
}

// ConsumptionInput gathers everything the consumption model depends on.
type ConsumptionInput struct {
	Vehicle       VehicleSpec
	Route         RouteGeometry
	Climate       ClimateCategory
	Passengers    int
	CargoWeightKg float64
}

// EstimateConsumption applies the climate, load, grade, short trip and
// calibration factors to the base consumption and derives the amount of
// fuel (or energy) used over the route.
func EstimateConsumption(in ConsumptionInput) (Consumption, error) {
	base := in.Vehicle.CombinedConsumption
	if math.IsNaN(base) || base <= 0 {
		return Consumption{}, &ComputationError{Reason: fmt.Sprintf("vehicle %s has no base consumption", in.Vehicle.Ref())}
	}
	if in.Route.DistanceKm <= 0 {
		return Consumption{}, &ComputationError{Reason: "route distance must be positive"}
	}

	adjusted := base *
		ClimateFactor(in.Climate) *
		LoadFactor(in.Vehicle.WeightKg, in.Passengers, in.CargoWeightKg) *
		GradeFactor(in.Route.RoadGradePercent) *
		ShortTripPenalty(in.Route.DistanceKm) *
		calibration(in.Vehicle.CalibrationFactor)

	return Consumption{
		Base:     base,
		Adjusted: round(adjusted, 3),
		Amount:   round(adjusted*in.Route.DistanceKm/100, 3),
	}, nil
}

// Calibrate folds a real/estimated sample into the running calibration
// factor. Samples with non-positive amounts are ignored.
func Calibrate(current float64, samples int, estimated, real float64) (float64, int) {
	if estimated <= 0 || real <= 0 {
		return current, samples
	}
	if current <= 0 {
		current = 1.0
	}
	ratio := math.Max(0.75, math.Min(real/estimated, 1.25))
	next := (current*float64(samples) + ratio) / float64(samples+1)
	next = math.Max(MinCalibration, math.Min(next, MaxCalibration))
	return round(next, 4), samples + 1
}

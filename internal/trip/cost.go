package trip

import (
	"fmt"
	"math"
)

// Cost computes the monetary cost of amountUsed. Fuel vehicles multiply by
// the fuel price; electric vehicles use the energy price when one is given
// and report no cost otherwise.
func Cost(spec VehicleSpec, amountUsed float64, pricePerUnit, energyPricePerKWh *float64) (*float64, error) {
	if spec.IsElectric() {
		if energyPricePerKWh == nil {
			return nil, nil
		}
		if err := checkPrice("energy_price_per_kwh", *energyPricePerKWh); err != nil {
			return nil, err
		}
		return Float(round(amountUsed**energyPricePerKWh, 2)), nil
	}

	if pricePerUnit == nil {
		return nil, &InputError{Field: "price_per_unit", Reason: "required for " + spec.FuelType + " vehicles"}
	}
	if err := checkPrice("price_per_unit", *pricePerUnit); err != nil {
		return nil, err
	}
	return Float(round(amountUsed**pricePerUnit, 2)), nil
}

func checkPrice(field string, p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return &InputError{Field: field, Reason: fmt.Sprintf("must be a positive number, got %g", p)}
	}
	return nil
}

// BuildResult runs the consumption and cost models for a resolved request.
func BuildResult(req TripRequest, spec VehicleSpec, route RouteGeometry, climate ClimateCategory) (TripResult, error) {
	if err := ValidatePrice(req, spec); err != nil {
		return TripResult{}, err
	}

	c, err := EstimateConsumption(ConsumptionInput{
		Vehicle:       spec,
		Route:         route,
		Climate:       climate,
		Passengers:    req.Passengers,
		CargoWeightKg: req.CargoWeightKg,
	})
	if err != nil {
		return TripResult{}, err
	}

	cost, err := Cost(spec, c.Amount, req.PricePerUnit, req.EnergyPricePerKWh)
	if err != nil {
		return TripResult{}, err
	}

	return TripResult{
		DistanceKm:          round(route.DistanceKm, 2),
		BaseConsumption:     c.Base,
		AdjustedConsumption: c.Adjusted,
		AmountUsed:          c.Amount,
		TotalCost:           cost,
		Climate:             climate,
		RoadGradePercent:    route.RoadGradePercent,
		Unit:                spec.Unit(),
		Electric:            spec.IsElectric(),
		Vehicle:             spec,
	}, nil
}

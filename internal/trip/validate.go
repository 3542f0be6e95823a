package trip

import (
	"math"
	"strings"
)

// Validate checks the parts of a request that do not depend on the
// resolved vehicle. Every failing field is reported.
func Validate(req TripRequest) error {
	var errs InputErrors

	if !req.Origin.Valid() {
		errs = append(errs, &InputError{Field: "origin", Reason: "invalid coordinates"})
	}
	if !req.Destination.Valid() {
		errs = append(errs, &InputError{Field: "destination", Reason: "invalid coordinates"})
	}
	if req.Passengers < 1 {
		errs = append(errs, &InputError{Field: "passengers", Reason: "at least one passenger is required"})
	}
	if math.IsNaN(req.CargoWeightKg) || req.CargoWeightKg < 0 {
		errs = append(errs, &InputError{Field: "cargo_weight_kg", Reason: "must not be negative"})
	}

	if req.Spec == nil {
		if strings.TrimSpace(req.Vehicle.Brand) == "" {
			errs = append(errs, &InputError{Field: "brand", Reason: "a vehicle brand is required"})
		}
		if strings.TrimSpace(req.Vehicle.Model) == "" {
			errs = append(errs, &InputError{Field: "model", Reason: "a vehicle model is required"})
		}
		if req.Vehicle.Year <= 0 {
			errs = append(errs, &InputError{Field: "year", Reason: "a vehicle year is required"})
		}
	} else if err := ValidatePrice(req, *req.Spec); err != nil {
		errs = append(errs, err.(*InputError))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidatePrice enforces that fuel vehicles carry a positive unit price.
// Electric vehicles never require one.
func ValidatePrice(req TripRequest, spec VehicleSpec) error {
	if spec.IsElectric() {
		if req.EnergyPricePerKWh != nil {
			return checkPrice("energy_price_per_kwh", *req.EnergyPricePerKWh)
		}
		return nil
	}
	if req.PricePerUnit == nil {
		return &InputError{Field: "price_per_unit", Reason: "required for non electric vehicles"}
	}
	return checkPrice("price_per_unit", *req.PricePerUnit)
}

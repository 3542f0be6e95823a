package trip

import (
	"fmt"
	"math"
)

const metersPerKm = 1000.0

// RoadGrade returns the average grade in percent between two elevations
// separated by distanceKm, rounded to two decimals. Ascending routes are
// positive.
func RoadGrade(distanceKm, originElevationM, destinationElevationM float64) (float64, error) {
	if math.IsNaN(distanceKm) || distanceKm <= 0 {
		return 0, &ComputationError{Reason: fmt.Sprintf("distance must be positive, got %g km", distanceKm)}
	}
	rise := destinationElevationM - originElevationM
	return round(rise/(distanceKm*metersPerKm)*100, 2), nil
}

// NewRouteGeometry builds a RouteGeometry enforcing DistanceKm > 0.
func NewRouteGeometry(distanceKm, originElevationM, destinationElevationM float64) (RouteGeometry, error) {
	grade, err := RoadGrade(distanceKm, originElevationM, destinationElevationM)
	if err != nil {
		return RouteGeometry{}, err
	}
	return RouteGeometry{
		DistanceKm:            distanceKm,
		OriginElevationM:      originElevationM,
		DestinationElevationM: destinationElevationM,
		RoadGradePercent:      grade,
	}, nil
}

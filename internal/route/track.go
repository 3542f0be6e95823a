package route

import (
	"context"
	"errors"
	"fmt"

	"github.com/rubiojr/tripcost/internal/trip"
	"github.com/tkrajina/gpxgo/gpx"
)

// EndpointToleranceM is how far a requested endpoint may be from the
// recorded track endpoint and still match it.
const EndpointToleranceM = 500.0

// Track replays a recorded GPX track as both distance and elevation
// provider. It only answers for the pair of points the track connects.
type Track struct {
	origin      gpx.GPXPoint
	destination gpx.GPXPoint
	lengthKm    float64
}

// LoadTrack parses a GPX file and keeps its endpoints and 2D length.
func LoadTrack(path string) (*Track, error) {
	g, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("error parsing GPX file: %w", err)
	}
	return NewTrack(g)
}

func NewTrack(g *gpx.GPX) (*Track, error) {
	var points []gpx.GPXPoint
	for _, t := range g.Tracks {
		for _, s := range t.Segments {
			points = append(points, s.Points...)
		}
	}
	lengthM := g.Length2D()

	// Planned routes carry no track, measure their waypoints instead.
	if len(points) < 2 {
		points = points[:0]
		for _, r := range g.Routes {
			points = append(points, r.Points...)
		}
		lengthM = 0
		for i := 1; i < len(points); i++ {
			lengthM += gpx.Distance2D(points[i-1].Latitude, points[i-1].Longitude, points[i].Latitude, points[i].Longitude, true)
		}
	}
	if len(points) < 2 {
		return nil, errors.New("GPX file has fewer than two points")
	}

	return &Track{
		origin:      points[0],
		destination: points[len(points)-1],
		lengthKm:    lengthM / 1000,
	}, nil
}

func (t *Track) Origin() trip.Coordinate {
	return trip.Coordinate{Lat: t.origin.Latitude, Lng: t.origin.Longitude}
}

func (t *Track) Destination() trip.Coordinate {
	return trip.Coordinate{Lat: t.destination.Latitude, Lng: t.destination.Longitude}
}

func (t *Track) LengthKm() float64 {
	return t.lengthKm
}

func (t *Track) matches(origin, destination trip.Coordinate) bool {
	near := func(c trip.Coordinate, p gpx.GPXPoint) bool {
		return gpx.Distance2D(c.Lat, c.Lng, p.Latitude, p.Longitude, true) <= EndpointToleranceM
	}
	return near(origin, t.origin) && near(destination, t.destination)
}

func (t *Track) Distance(_ context.Context, origin, destination trip.Coordinate) (float64, error) {
	if !t.matches(origin, destination) {
		return 0, fmt.Errorf("%w: %s -> %s is not covered by the track", trip.ErrRouteUnavailable, origin, destination)
	}
	return t.lengthKm, nil
}

func (t *Track) Elevations(_ context.Context, origin, destination trip.Coordinate) ([2]float64, error) {
	if !t.matches(origin, destination) {
		return [2]float64{}, fmt.Errorf("%w: %s -> %s is not covered by the track", trip.ErrRouteUnavailable, origin, destination)
	}
	if t.origin.Elevation.Null() || t.destination.Elevation.Null() {
		return [2]float64{}, &trip.ComputationError{Reason: "track endpoints have no elevation"}
	}
	return [2]float64{t.origin.Elevation.Value(), t.destination.Elevation.Value()}, nil
}

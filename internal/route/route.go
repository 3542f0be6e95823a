// Package route resolves the distance and road grade between two points.
package route

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rubiojr/tripcost/internal/metrics"
	"github.com/rubiojr/tripcost/internal/trip"
	"golang.org/x/sync/errgroup"
)

// DistanceProvider returns the road distance in kilometers between two points.
type DistanceProvider interface {
	Distance(ctx context.Context, origin, destination trip.Coordinate) (float64, error)
}

// ElevationProvider returns the elevation in meters of the origin and destination.
type ElevationProvider interface {
	Elevations(ctx context.Context, origin, destination trip.Coordinate) ([2]float64, error)
}

// Resolver turns a coordinate pair into a RouteGeometry. Results are not
// cached: geometry is specific to each pair and rarely reused.
type Resolver struct {
	distance  DistanceProvider
	elevation ElevationProvider
	log       *slog.Logger
}

func NewResolver(d DistanceProvider, e ElevationProvider, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{distance: d, elevation: e, log: logger}
}

// Resolve queries both providers concurrently and computes the road grade.
func (r *Resolver) Resolve(ctx context.Context, origin, destination trip.Coordinate) (trip.RouteGeometry, error) {
	var (
		km   float64
		elev [2]float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer observe("distance", time.Now())
		d, err := r.distance.Distance(gctx, origin, destination)
		if err != nil {
			return trip.NewProviderError("distance", err)
		}
		km = d
		return nil
	})
	g.Go(func() error {
		defer observe("elevation", time.Now())
		e, err := r.elevation.Elevations(gctx, origin, destination)
		if err != nil {
			return trip.NewProviderError("elevation", err)
		}
		elev = e
		return nil
	})

	if err := g.Wait(); err != nil {
		r.log.Debug("route resolution failed", "origin", origin, "destination", destination, "error", err)
		return trip.RouteGeometry{}, fmt.Errorf("error resolving route %s -> %s: %w", origin, destination, err)
	}

	geom, err := trip.NewRouteGeometry(km, elev[0], elev[1])
	if err != nil {
		return trip.RouteGeometry{}, err
	}

	r.log.Debug("route resolved", "distance_km", geom.DistanceKm, "grade", geom.RoadGradePercent)
	return geom, nil
}

func observe(provider string, start time.Time) {
	metrics.ProviderDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

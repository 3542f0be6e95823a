package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rubiojr/tripcost/internal/catalog"
	"github.com/rubiojr/tripcost/internal/orchestrator"
	"github.com/rubiojr/tripcost/internal/trip"
	"github.com/rubiojr/tripcost/internal/tripdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, vehicles ...trip.VehicleSpec) *orchestrator.Orchestrator {
	t.Helper()
	ctx := context.Background()
	storage, err := tripdb.NewStorage(ctx, filepath.Join(t.TempDir(), "trips.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	if len(vehicles) > 0 {
		require.NoError(t, storage.UpsertVehicles(ctx, vehicles))
	}

	o := orchestrator.New(catalog.New(storage), fakeRoutes{}, fixedClimate(trip.ClimateMild),
		orchestrator.WithDebounce(0))
	t.Cleanup(o.Close)
	return o
}

type failingPrice struct{}

func (failingPrice) PriceFor(ctx context.Context, v trip.VehicleSpec, c trip.Coordinate) (float64, error) {
	return 0, errors.New("stations offline")
}

func TestAutoPrice(t *testing.T) {
	leaf := trip.VehicleSpec{Brand: "Nissan", Model: "Leaf", Year: 2022, FuelType: trip.FuelElectric, WeightKg: 1580, CombinedConsumption: 17.1}
	ibiza := trip.VehicleSpec{Brand: "Seat", Model: "Ibiza", Year: 2020, FuelType: trip.FuelGasoline, WeightKg: 1100, CombinedConsumption: 5.5}
	o := newTestOrchestrator(t, leaf, ibiza)
	ctx := context.Background()

	base := trip.TripRequest{
		Origin:      trip.Coordinate{Lat: 40.4168, Lng: -3.7038},
		Destination: trip.Coordinate{Lat: 41.3851, Lng: 2.1734},
		Passengers:  1,
	}

	t.Run("catalog vehicle", func(t *testing.T) {
		req := base
		req.Vehicle = ibiza.Ref()
		spec, err := autoPrice(ctx, o, fixedPrice(1.5894), &req)
		require.NoError(t, err)
		assert.Equal(t, trip.FuelGasoline, spec.FuelType)
		require.NotNil(t, req.PricePerUnit)
		assert.Equal(t, 1.589, *req.PricePerUnit)
	})

	t.Run("electric vehicle is not priced", func(t *testing.T) {
		req := base
		req.Vehicle = leaf.Ref()
		_, err := autoPrice(ctx, o, failingPrice{}, &req)
		require.NoError(t, err)
		assert.Nil(t, req.PricePerUnit)
	})

	t.Run("manual spec", func(t *testing.T) {
		req := base
		spec := trip.VehicleSpec{Brand: "custom", Model: "custom", FuelType: trip.FuelDiesel, CombinedConsumption: 6}
		req.Spec = &spec
		_, err := autoPrice(ctx, o, fixedPrice(1.4), &req)
		require.NoError(t, err)
		assert.Equal(t, 1.4, *req.PricePerUnit)
	})

	t.Run("invalid request", func(t *testing.T) {
		req := base
		_, err := autoPrice(ctx, o, fixedPrice(1.4), &req)
		var ie *trip.InputError
		assert.True(t, errors.As(err, &ie))
	})

	t.Run("lookup failure", func(t *testing.T) {
		req := base
		req.Vehicle = ibiza.Ref()
		_, err := autoPrice(ctx, o, failingPrice{}, &req)
		assert.ErrorContains(t, err, "stations offline")
		assert.Nil(t, req.PricePerUnit)
	})
}

func TestFormatCost(t *testing.T) {
	tests := []struct {
		name     string
		res      trip.TripResult
		expected string
	}{
		{"fuel", trip.TripResult{TotalCost: trip.Float(8.8)}, "8.80"},
		{"electric without price", trip.TripResult{Electric: true}, "n/a (no energy price)"},
		{"missing", trip.TripResult{}, "n/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatCost(tt.res); got != tt.expected {
				t.Errorf("formatCost() = %q, want %q", got, tt.expected)
			}
		})
	}
}

const climbGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="tripcost-test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg>
    <trkpt lat="40.00" lon="-3.70"><ele>600</ele></trkpt>
    <trkpt lat="40.02" lon="-3.70"><ele>700</ele></trkpt>
  </trkseg></trk>
</gpx>`

// captureStdout runs fn and returns what it wrote to os.Stdout.
func captureStdout(t *testing.T, fn func() error) []byte {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	out := make(chan []byte)
	go func() {
		b, _ := io.ReadAll(r)
		out <- b
	}()
	runErr := fn()
	w.Close()
	require.NoError(t, runErr)
	return <-out
}

func TestEstimateJSONOutput(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENWEATHER_API_KEY", "")
	t.Setenv("TRIPCOST_DEBOUNCE", "1ms")
	t.Setenv("TRIPCOST_LOG_LEVEL", "error")

	track := filepath.Join(dir, "climb.gpx")
	require.NoError(t, os.WriteFile(track, []byte(climbGPX), 0o644))

	stdout := captureStdout(t, func() error {
		return newApp().Run([]string{"tripcost", "--env-file", filepath.Join(dir, "none.env"),
			"estimate", "--gpx", track, "--from", "40.0,-3.7",
			"--consumption", "6", "--price", "1.5",
			"--db", filepath.Join(dir, "trips.db"), "--json"})
	})

	var res trip.TripResult
	require.NoError(t, json.Unmarshal(stdout, &res), string(stdout))
	assert.InDelta(t, 2.22, res.DistanceKm, 0.02)
	assert.Equal(t, trip.ClimateMild, res.Climate)
	require.NotNil(t, res.TotalCost)
}

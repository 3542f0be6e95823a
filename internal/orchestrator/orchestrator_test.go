package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rubiojr/tripcost/internal/catalog"
	"github.com/rubiojr/tripcost/internal/trip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pointA = trip.Coordinate{Lat: 40.4168, Lng: -3.7038}
	pointB = trip.Coordinate{Lat: 41.3851, Lng: 2.1734}
	pointX = trip.Coordinate{Lat: 37.3891, Lng: -5.9845}
	pointY = trip.Coordinate{Lat: 39.4699, Lng: -0.3763}
	dest   = trip.Coordinate{Lat: 43.2630, Lng: -2.9350}
)

type fakeCatalog struct {
	calls atomic.Int32
	spec  trip.VehicleSpec
}

func (f *fakeCatalog) ListBrands(ctx context.Context, year int) ([]trip.Option, error) {
	return []trip.Option{{Label: "Seat", Value: "seat"}}, nil
}

func (f *fakeCatalog) ListModels(ctx context.Context, brandKey string) ([]trip.Option, error) {
	return []trip.Option{{Label: "Ibiza", Value: "ibiza"}}, nil
}

func (f *fakeCatalog) GetSpec(ctx context.Context, brandKey, modelKey string, year int) (trip.VehicleSpec, error) {
	f.calls.Add(1)
	s := f.spec
	s.Brand, s.Model, s.Year = brandKey, modelKey, year
	return s, nil
}

// fakeRoutes answers with a distance per origin. Origins listed in hold
// block until released, ignoring cancellation, to simulate late replies.
type fakeRoutes struct {
	mu       sync.Mutex
	distance map[trip.Coordinate]float64
	hold     map[trip.Coordinate]chan struct{}
	started  map[trip.Coordinate]bool
	err      error
}

func newFakeRoutes() *fakeRoutes {
	return &fakeRoutes{
		distance: map[trip.Coordinate]float64{},
		hold:     map[trip.Coordinate]chan struct{}{},
		started:  map[trip.Coordinate]bool{},
	}
}

func (f *fakeRoutes) Resolve(ctx context.Context, origin, destination trip.Coordinate) (trip.RouteGeometry, error) {
	f.mu.Lock()
	f.started[origin] = true
	gate := f.hold[origin]
	km := f.distance[origin]
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return trip.RouteGeometry{}, err
	}
	return trip.NewRouteGeometry(km, 100, 100)
}

func (f *fakeRoutes) hasStarted(c trip.Coordinate) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started[c]
}

type recordingClimate struct {
	mu     sync.Mutex
	coords []trip.Coordinate
	result trip.ClimateCategory
}

func (r *recordingClimate) Classify(ctx context.Context, c trip.Coordinate) trip.ClimateCategory {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coords = append(r.coords, c)
	if r.result == "" {
		return trip.ClimateMild
	}
	return r.result
}

func (r *recordingClimate) calls() []trip.Coordinate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]trip.Coordinate(nil), r.coords...)
}

func gasolineCar() trip.VehicleSpec {
	return trip.VehicleSpec{FuelType: trip.FuelGasoline, WeightKg: 1100, CombinedConsumption: 5.5}
}

func request(origin trip.Coordinate) trip.TripRequest {
	return trip.TripRequest{
		Vehicle:      trip.VehicleRef{Brand: "seat", Model: "ibiza", Year: 2020},
		Origin:       origin,
		Destination:  dest,
		Passengers:   1,
		PricePerUnit: trip.Float(1.6),
	}
}

func TestComputeTrip(t *testing.T) {
	routes := newFakeRoutes()
	routes.distance[pointA] = 200
	climate := &recordingClimate{result: trip.ClimateCold}
	o := New(&fakeCatalog{spec: gasolineCar()}, routes, climate, WithDebounce(10*time.Millisecond))
	defer o.Close()

	res, err := o.ComputeTrip(context.Background(), request(pointA))
	require.NoError(t, err)

	assert.Equal(t, 200.0, res.DistanceKm)
	assert.Equal(t, trip.ClimateCold, res.Climate)
	assert.Equal(t, 5.5, res.BaseConsumption)
	assert.Equal(t, 6.05, res.AdjustedConsumption)
	assert.Equal(t, 12.1, res.AmountUsed)
	require.NotNil(t, res.TotalCost)
	assert.Equal(t, 19.36, *res.TotalCost)
	assert.Equal(t, uint64(1), res.Generation)
	assert.Equal(t, Done, o.State())
}

func TestComputeTripDebouncesWeather(t *testing.T) {
	routes := newFakeRoutes()
	routes.distance[pointA] = 50
	routes.distance[pointB] = 80
	climate := &recordingClimate{}
	o := New(&fakeCatalog{spec: gasolineCar()}, routes, climate, WithDebounce(100*time.Millisecond))
	defer o.Close()

	var wg sync.WaitGroup
	results := make([]trip.TripResult, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = o.ComputeTrip(context.Background(), request(pointA))
	}()
	require.Eventually(t, func() bool { return hasPending(o.debounce) }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = o.ComputeTrip(context.Background(), request(pointB))
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, []trip.Coordinate{pointB}, climate.calls())
	assert.Equal(t, 80.0, results[0].DistanceKm, "superseded call returns the newest outcome")
	assert.Equal(t, 80.0, results[1].DistanceKm)
	assert.True(t, results[0].Superseded)
	assert.False(t, results[1].Superseded)
}

func TestComputeTripDropsStaleResults(t *testing.T) {
	routes := newFakeRoutes()
	routes.distance[pointX] = 500
	routes.distance[pointY] = 300
	releaseX := make(chan struct{})
	routes.hold[pointX] = releaseX
	o := New(&fakeCatalog{spec: gasolineCar()}, routes, &recordingClimate{}, WithDebounce(5*time.Millisecond))
	defer o.Close()

	staleDone := make(chan struct{})
	var staleRes trip.TripResult
	var staleErr error
	go func() {
		defer close(staleDone)
		staleRes, staleErr = o.ComputeTrip(context.Background(), request(pointX))
	}()
	require.Eventually(t, func() bool { return routes.hasStarted(pointX) }, time.Second, time.Millisecond)

	res, err := o.ComputeTrip(context.Background(), request(pointY))
	require.NoError(t, err)
	assert.Equal(t, 300.0, res.DistanceKm)
	assert.Equal(t, uint64(2), res.Generation)
	assert.False(t, res.Superseded)

	// Token 1's route reply arrives after Y settled and must be discarded.
	close(releaseX)
	<-staleDone

	require.NoError(t, staleErr)
	assert.Equal(t, 300.0, staleRes.DistanceKm)
	assert.Equal(t, uint64(2), staleRes.Generation)
	assert.True(t, staleRes.Superseded, "result belongs to the newer request")
	assert.Equal(t, Done, o.State())
}

func TestComputeTripNewestCallerCancelled(t *testing.T) {
	routes := newFakeRoutes()
	routes.distance[pointX] = 500
	routes.distance[pointY] = 300
	releaseX := make(chan struct{})
	routes.hold[pointX] = releaseX
	o := New(&fakeCatalog{spec: gasolineCar()}, routes, &recordingClimate{}, WithDebounce(time.Hour))
	defer o.Close()

	xErr := make(chan error, 1)
	go func() {
		_, err := o.ComputeTrip(context.Background(), request(pointX))
		xErr <- err
	}()
	require.Eventually(t, func() bool { return routes.hasStarted(pointX) }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	yErr := make(chan error, 1)
	go func() {
		_, err := o.ComputeTrip(ctx, request(pointY))
		yErr <- err
	}()
	require.Eventually(t, func() bool { return routes.hasStarted(pointY) }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-yErr, context.Canceled)

	close(releaseX)
	err := <-xErr
	assert.ErrorIs(t, err, trip.ErrSuperseded)
	assert.NotErrorIs(t, err, context.Canceled)
}

func TestComputeTripElectricWithoutPrice(t *testing.T) {
	routes := newFakeRoutes()
	routes.distance[pointA] = 100
	o := New(&fakeCatalog{}, routes, &recordingClimate{}, WithDebounce(time.Millisecond))
	defer o.Close()

	req := request(pointA)
	req.PricePerUnit = nil
	req.Spec = &trip.VehicleSpec{Brand: "Nissan", Model: "Leaf", Year: 2022, FuelType: trip.FuelElectric, WeightKg: 1580, CombinedConsumption: 17}

	res, err := o.ComputeTrip(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Electric)
	assert.Nil(t, res.TotalCost)
	assert.Equal(t, "kWh", res.Unit)
	assert.Equal(t, 17.0, res.AmountUsed)
}

func TestComputeTripInputError(t *testing.T) {
	cat := &fakeCatalog{spec: gasolineCar()}
	o := New(cat, newFakeRoutes(), &recordingClimate{}, WithDebounce(time.Millisecond))
	defer o.Close()

	req := request(pointA)
	req.Passengers = 0
	_, err := o.ComputeTrip(context.Background(), req)

	var ie *trip.InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "passengers", ie.Field)
	assert.Equal(t, uint64(0), o.Generation())
	assert.Equal(t, int32(0), cat.calls.Load())
}

func TestComputeTripMissingPriceAfterResolution(t *testing.T) {
	routes := newFakeRoutes()
	routes.distance[pointA] = 10
	o := New(&fakeCatalog{spec: gasolineCar()}, routes, &recordingClimate{}, WithDebounce(time.Millisecond))
	defer o.Close()

	req := request(pointA)
	req.PricePerUnit = nil
	_, err := o.ComputeTrip(context.Background(), req)

	var ie *trip.InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "price_per_unit", ie.Field)
	assert.Equal(t, Failed, o.State())
}

func TestComputeTripProviderError(t *testing.T) {
	routes := newFakeRoutes()
	routes.err = &trip.ProviderError{Provider: "distance", Err: errors.New("dial tcp: i/o timeout"), Retryable: true}
	o := New(&fakeCatalog{spec: gasolineCar()}, routes, &recordingClimate{}, WithDebounce(time.Millisecond))
	defer o.Close()

	_, err := o.ComputeTrip(context.Background(), request(pointA))
	var pe *trip.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable)
	assert.Equal(t, Failed, o.State())
}

func TestResolveVehicleIsCached(t *testing.T) {
	cat := &fakeCatalog{spec: gasolineCar()}
	o := New(catalog.New(cat), newFakeRoutes(), &recordingClimate{})
	defer o.Close()

	ctx := context.Background()
	first, err := o.ResolveVehicle(ctx, "seat", "ibiza", 2020)
	require.NoError(t, err)
	second, err := o.ResolveVehicle(ctx, "seat", "ibiza", 2020)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), cat.calls.Load())
}

func hasPending(d *Debouncer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Close()

	var fired atomic.Int32
	first := make(chan error, 1)
	go func() {
		first <- d.Do(context.Background(), func() { fired.Add(1) })
	}()
	require.Eventually(t, func() bool { return hasPending(d) }, time.Second, time.Millisecond)

	require.NoError(t, d.Do(context.Background(), func() { fired.Add(10) }))
	assert.ErrorIs(t, <-first, trip.ErrStale)
	assert.Equal(t, int32(10), fired.Load())
}

func TestDebouncerContextCancel(t *testing.T) {
	d := NewDebouncer(time.Hour)
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := d.Do(ctx, func() { t.Error("must not fire") })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDebouncerClosed(t *testing.T) {
	d := NewDebouncer(time.Millisecond)
	d.Close()
	assert.ErrorIs(t, d.Do(context.Background(), func() {}), ErrClosed)
}

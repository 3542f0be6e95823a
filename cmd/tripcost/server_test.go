package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/google/uuid"
	"github.com/rubiojr/tripcost/internal/catalog"
	"github.com/rubiojr/tripcost/internal/geocode"
	"github.com/rubiojr/tripcost/internal/orchestrator"
	"github.com/rubiojr/tripcost/internal/trip"
	"github.com/rubiojr/tripcost/internal/tripdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var unreachable = trip.Coordinate{Lat: 28.1, Lng: -15.4}

type fakeRoutes struct{}

func (fakeRoutes) Resolve(ctx context.Context, o, d trip.Coordinate) (trip.RouteGeometry, error) {
	if d == unreachable {
		return trip.RouteGeometry{}, fmt.Errorf("%w: no road to the islands", trip.ErrRouteUnavailable)
	}
	return trip.RouteGeometry{DistanceKm: 100}, nil
}

type fixedClimate trip.ClimateCategory

func (c fixedClimate) Classify(ctx context.Context, coord trip.Coordinate) trip.ClimateCategory {
	return trip.ClimateCategory(c)
}

type fixedPrice float64

func (p fixedPrice) PriceFor(ctx context.Context, v trip.VehicleSpec, c trip.Coordinate) (float64, error) {
	return float64(p), nil
}

// heldRoutes answers with a distance per origin. Origins with a gate
// block until it is closed, ignoring cancellation.
type heldRoutes struct {
	mu       sync.Mutex
	distance map[trip.Coordinate]float64
	gate     map[trip.Coordinate]chan struct{}
	started  map[trip.Coordinate]bool
}

func (h *heldRoutes) Resolve(ctx context.Context, o, d trip.Coordinate) (trip.RouteGeometry, error) {
	h.mu.Lock()
	h.started[o] = true
	gate := h.gate[o]
	km := h.distance[o]
	h.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return trip.RouteGeometry{DistanceKm: km}, nil
}

func (h *heldRoutes) hasStarted(c trip.Coordinate) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started[c]
}

func newTestServer(t *testing.T, opts ...serverOption) (*server, http.Handler) {
	t.Helper()
	return newTestServerWithRoutes(t, fakeRoutes{}, opts...)
}

func newTestServerWithRoutes(t *testing.T, routes orchestrator.RouteResolver, opts ...serverOption) (*server, http.Handler) {
	t.Helper()
	ctx := context.Background()
	storage, err := tripdb.NewStorage(ctx, filepath.Join(t.TempDir(), "trips.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	require.NoError(t, storage.UpsertVehicle(ctx, trip.VehicleSpec{
		Brand: "Seat", Model: "Ibiza", Year: 2020, FuelType: trip.FuelGasoline,
		WeightKg: 1100, CombinedConsumption: 5.5,
	}))

	log := slog.New(slog.DiscardHandler)
	srv := newServer(catalog.New(storage), routes, fixedClimate(trip.ClimateMild),
		geocode.New("", log), storage, log, opts...)
	t.Cleanup(srv.Close)

	logger := httplog.NewLogger("tripcost-test", httplog.Options{
		LogLevel: slog.LevelError,
		Concise:  true,
		Writer:   io.Discard,
	})
	return srv, srv.handler(logger)
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const ibizaTrip = `{"vehicle":{"brand":"Seat","model":"Ibiza","year":2020},
	"from":"40.4168,-3.7038","to":"41.3851,2.1734","price_per_unit":1.6}`

func TestServerEstimateAndSave(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/trips/estimate?save=true", ibizaTrip)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out estimateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotNil(t, out.ID)
	assert.Equal(t, 100.0, out.DistanceKm)
	assert.Equal(t, 5.5, out.AmountUsed)
	require.NotNil(t, out.TotalCost)
	assert.InDelta(t, 8.8, *out.TotalCost, 1e-9)
	assert.Equal(t, trip.ClimateMild, out.Climate)

	rec = do(t, h, http.MethodGet, "/api/trips/"+out.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var saved trip.TripRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, *out.ID, saved.ID)
	assert.Equal(t, 40.4168, saved.Request.Origin.Lat)

	rec = do(t, h, http.MethodGet, "/api/trips?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []trip.TripRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestServerEstimateWithoutSave(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/trips/estimate", ibizaTrip)
	require.Equal(t, http.StatusOK, rec.Code)
	var out estimateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Nil(t, out.ID)

	rec = do(t, h, http.MethodGet, "/api/trips", "")
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestServerDefaultPassengers(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/trips/estimate?save=true", ibizaTrip)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out estimateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	rec = do(t, h, http.MethodGet, "/api/trips/"+out.ID.String(), "")
	var saved trip.TripRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, 1, saved.Request.Passengers)
}

func TestServerSupersededEstimateIsNotSaved(t *testing.T) {
	older := trip.Coordinate{Lat: 10, Lng: 10}
	newer := trip.Coordinate{Lat: 20, Lng: 20}
	release := make(chan struct{})
	routes := &heldRoutes{
		distance: map[trip.Coordinate]float64{older: 500, newer: 300},
		gate:     map[trip.Coordinate]chan struct{}{older: release},
		started:  map[trip.Coordinate]bool{},
	}
	_, h := newTestServerWithRoutes(t, routes, withDebounce(5*time.Millisecond))

	const body = `{"vehicle":{"brand":"Seat","model":"Ibiza","year":2020},
		"origin":{"lat":%g,"lng":%g},"destination":{"lat":11,"lng":11},"price_per_unit":1.6}`

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- do(t, h, http.MethodPost, "/api/trips/estimate?save=true",
			fmt.Sprintf(body, older.Lat, older.Lng), sessionHeader, "s1")
	}()
	require.Eventually(t, func() bool { return routes.hasStarted(older) }, time.Second, time.Millisecond)

	rec := do(t, h, http.MethodPost, "/api/trips/estimate",
		fmt.Sprintf(body, newer.Lat, newer.Lng), sessionHeader, "s1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out estimateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 300.0, out.DistanceKm)
	assert.False(t, out.Superseded)

	close(release)
	rec = <-first
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/trips", "")
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestServerAutoPrice(t *testing.T) {
	_, h := newTestServer(t, withPrices(fixedPrice(1.5)))

	body := `{"vehicle":{"brand":"seat","model":"ibiza","year":2020},
		"origin":{"lat":40.4168,"lng":-3.7038},"destination":{"lat":41.3851,"lng":2.1734},
		"auto_price":true}`
	rec := do(t, h, http.MethodPost, "/api/trips/estimate", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out estimateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotNil(t, out.TotalCost)
	assert.InDelta(t, 8.25, *out.TotalCost, 1e-9)
}

func TestServerErrors(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name, method, target, body string
		status                     int
		field                      string
	}{
		{
			name: "malformed body", method: http.MethodPost, target: "/api/trips/estimate",
			body: `{"vehicle":`, status: http.StatusBadRequest, field: "body",
		},
		{
			name: "missing vehicle", method: http.MethodPost, target: "/api/trips/estimate",
			body:   `{"from":"40.4,-3.7","to":"41.3,2.1","price_per_unit":1.6}`,
			status: http.StatusBadRequest, field: "brand",
		},
		{
			name: "unknown vehicle", method: http.MethodPost, target: "/api/trips/estimate",
			body:   `{"vehicle":{"brand":"Seat","model":"Panda","year":2020},"from":"40.4,-3.7","to":"41.3,2.1","price_per_unit":1.6}`,
			status: http.StatusNotFound,
		},
		{
			name: "no route", method: http.MethodPost, target: "/api/trips/estimate",
			body:   `{"vehicle":{"brand":"Seat","model":"Ibiza","year":2020},"from":"40.4,-3.7","to":"28.1,-15.4","price_per_unit":1.6}`,
			status: http.StatusUnprocessableEntity,
		},
		{
			name: "no passengers", method: http.MethodPost, target: "/api/trips/estimate",
			body:   `{"vehicle":{"brand":"Seat","model":"Ibiza","year":2020},"from":"40.4,-3.7","to":"41.3,2.1","price_per_unit":1.6,"passengers":0}`,
			status: http.StatusBadRequest, field: "passengers",
		},
		{
			name: "missing price", method: http.MethodPost, target: "/api/trips/estimate",
			body:   `{"vehicle":{"brand":"Seat","model":"Ibiza","year":2020},"from":"40.4,-3.7","to":"41.3,2.1"}`,
			status: http.StatusBadRequest, field: "price_per_unit",
		},
		{
			name: "auto price unavailable", method: http.MethodPost, target: "/api/trips/estimate",
			body:   `{"vehicle":{"brand":"Seat","model":"Ibiza","year":2020},"from":"40.4,-3.7","to":"41.3,2.1","auto_price":true}`,
			status: http.StatusBadRequest, field: "auto_price",
		},
		{name: "bad trip id", method: http.MethodGet, target: "/api/trips/nope", status: http.StatusBadRequest, field: "id"},
		{name: "unknown trip", method: http.MethodGet, target: "/api/trips/" + uuid.NewString(), status: http.StatusNotFound},
		{name: "bad year", method: http.MethodGet, target: "/api/vehicles/seat/ibiza/soon", status: http.StatusBadRequest, field: "year"},
		{name: "models without brand", method: http.MethodGet, target: "/api/models", status: http.StatusBadRequest, field: "brand"},
		{name: "weather without coordinates", method: http.MethodGet, target: "/api/weather?lat=north", status: http.StatusBadRequest, field: "lat"},
		{name: "weather out of range", method: http.MethodGet, target: "/api/weather?lat=91&lng=0", status: http.StatusBadRequest, field: "coordinate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.field, resp.Field)
		})
	}
}

func TestServerCatalog(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/brands", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"label":"Seat","value":"seat"}]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/models?brand=seat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"label":"Ibiza","value":"ibiza"}]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/vehicles/seat/ibiza/2020", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var spec trip.VehicleSpec
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	assert.Equal(t, 5.5, spec.CombinedConsumption)
	assert.Equal(t, 1.0, spec.CalibrationFactor)
}

func TestServerWeather(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/weather?lat=40.4&lng=-3.7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"climate":"mild"}`, rec.Body.String())
}

func TestServerSessions(t *testing.T) {
	srv, h := newTestServer(t, withDebounce(10*time.Millisecond))

	for i := 0; i < 3; i++ {
		rec := do(t, h, http.MethodPost, "/api/trips/estimate", ibizaTrip, sessionHeader, "alice")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/api/trips/estimate", ibizaTrip, sessionHeader, "bob")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/trips/estimate", ibizaTrip)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 2, srv.sessions.ItemCount())

	srv.Close()
	assert.Equal(t, 0, srv.sessions.ItemCount())
}

func TestServerMetrics(t *testing.T) {
	_, h := newTestServer(t)

	do(t, h, http.MethodPost, "/api/trips/estimate", ibizaTrip)
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tripcost_trips_computed_total")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&trip.InputError{Field: "origin", Reason: "invalid"}, http.StatusBadRequest},
		{trip.InputErrors{{Field: "brand", Reason: "missing"}}, http.StatusBadRequest},
		{fmt.Errorf("seat panda 2020: %w", trip.ErrVehicleNotFound), http.StatusNotFound},
		{tripdb.ErrTripNotFound, http.StatusNotFound},
		{trip.ErrRouteUnavailable, http.StatusUnprocessableEntity},
		{&trip.ComputationError{Reason: "zero distance"}, http.StatusUnprocessableEntity},
		{trip.ErrSuperseded, http.StatusConflict},
		{trip.NewProviderError("weather", errors.New("boom")), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.status {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rubiojr/tripcost/internal/geocode"
	"github.com/rubiojr/tripcost/internal/metrics"
	"github.com/rubiojr/tripcost/internal/orchestrator"
	"github.com/rubiojr/tripcost/internal/trip"
	"github.com/rubiojr/tripcost/internal/tripdb"
)

const (
	sessionHeader       = "X-Session-ID"
	maxBodyBytes        = 1 << 20
	defaultSessionTTL   = 30 * time.Minute
	sessionCleanupRatio = 3
)

type placeResolver interface {
	Resolve(ctx context.Context, place string) (geocode.Place, error)
}

type tripStore interface {
	orchestrator.TripSaver
	ListTrips(ctx context.Context, limit int) ([]trip.TripRecord, error)
	GetTrip(ctx context.Context, id uuid.UUID) (trip.TripRecord, error)
}

// server exposes the estimator over HTTP. Clients sending an X-Session-ID
// header share one orchestrator per session, so a newer estimate
// supersedes their older in-flight ones. Requests without a session get a
// private orchestrator.
type server struct {
	catalog   orchestrator.VehicleCatalog
	routes    orchestrator.RouteResolver
	climate   orchestrator.ClimateClassifier
	places    placeResolver
	prices    priceLookup
	trips     tripStore
	debounce  time.Duration
	rateLimit int
	sessions  *cache.Cache
	log       *slog.Logger
}

type serverOption func(*server)

func withPrices(p priceLookup) serverOption {
	return func(s *server) { s.prices = p }
}

func withDebounce(d time.Duration) serverOption {
	return func(s *server) { s.debounce = d }
}

func withRateLimit(n int) serverOption {
	return func(s *server) { s.rateLimit = n }
}

func withSessionTTL(ttl time.Duration) serverOption {
	return func(s *server) {
		s.sessions = cache.New(ttl, sessionCleanupRatio*ttl)
	}
}

func newServer(cat orchestrator.VehicleCatalog, routes orchestrator.RouteResolver, climate orchestrator.ClimateClassifier,
	places placeResolver, trips tripStore, logger *slog.Logger, opts ...serverOption) *server {
	s := &server{
		catalog:   cat,
		routes:    routes,
		climate:   climate,
		places:    places,
		trips:     trips,
		debounce:  orchestrator.DefaultDebounce,
		rateLimit: 60,
		sessions:  cache.New(defaultSessionTTL, sessionCleanupRatio*defaultSessionTTL),
		log:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions.OnEvicted(func(id string, v any) {
		v.(*orchestrator.Orchestrator).Close()
		metrics.Sessions.Dec()
		s.log.Debug("session expired", "session", id)
	})
	return s
}

func (s *server) handler(logger *httplog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))

		r.Get("/brands", s.listBrands)
		r.Get("/models", s.listModels)
		r.Get("/vehicles/{brand}/{model}/{year}", s.getVehicle)
		r.Get("/weather", s.getWeather)
		r.Post("/trips/estimate", s.estimate)
		r.Get("/trips", s.listTrips)
		r.Get("/trips/{id}", s.getTrip)
	})
	return r
}

// session returns the orchestrator for the request and a release func.
func (s *server) session(r *http.Request) (*orchestrator.Orchestrator, func()) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		o := s.private()
		return o, o.Close
	}

	if v, ok := s.sessions.Get(id); ok {
		s.sessions.SetDefault(id, v)
		return v.(*orchestrator.Orchestrator), func() {}
	}
	o := orchestrator.New(s.catalog, s.routes, s.climate,
		orchestrator.WithDebounce(s.debounce),
		orchestrator.WithLogger(s.log.With("session", id)))
	if err := s.sessions.Add(id, o, cache.DefaultExpiration); err != nil {
		// Another request created the session first.
		o.Close()
		if v, ok := s.sessions.Get(id); ok {
			return v.(*orchestrator.Orchestrator), func() {}
		}
		o = s.private()
		return o, o.Close
	}
	metrics.Sessions.Inc()
	s.log.Debug("session started", "session", id)
	return o, func() {}
}

func (s *server) private() *orchestrator.Orchestrator {
	return orchestrator.New(s.catalog, s.routes, s.climate,
		orchestrator.WithDebounce(0),
		orchestrator.WithLogger(s.log))
}

// Close releases every session orchestrator.
func (s *server) Close() {
	for id := range s.sessions.Items() {
		s.sessions.Delete(id)
	}
}

func (s *server) listBrands(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r, "year")
	if err != nil {
		writeError(w, err)
		return
	}
	brands, err := s.catalog.ListBrands(r.Context(), year)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, brands)
}

func (s *server) listModels(w http.ResponseWriter, r *http.Request) {
	brand := r.URL.Query().Get("brand")
	if brand == "" {
		writeError(w, &trip.InputError{Field: "brand", Reason: "a vehicle brand is required"})
		return
	}
	models, err := s.catalog.ListModels(r.Context(), brand)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

func (s *server) getVehicle(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, &trip.InputError{Field: "year", Reason: "must be a number"})
		return
	}
	spec, err := s.catalog.GetSpec(r.Context(), chi.URLParam(r, "brand"), chi.URLParam(r, "model"), year)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (s *server) getWeather(w http.ResponseWriter, r *http.Request) {
	c, err := queryCoordinate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]trip.ClimateCategory{
		"climate": s.climate.Classify(r.Context(), c),
	})
}

// estimateRequest is a trip request whose endpoints may be given as
// place names. AutoPrice looks the fuel price up around the origin.
type estimateRequest struct {
	trip.TripRequest
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	AutoPrice  bool   `json:"auto_price,omitempty"`
	// Passengers shadows the embedded field so an absent value can
	// default to the driver alone.
	Passengers *int   `json:"passengers,omitempty"`
}

type estimateResponse struct {
	ID *uuid.UUID `json:"id,omitempty"`
	trip.TripResult
}

func (s *server) estimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body estimateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, &trip.InputError{Field: "body", Reason: err.Error()})
		return
	}
	req := body.TripRequest
	req.Passengers = 1
	if body.Passengers != nil {
		req.Passengers = *body.Passengers
	}
	if body.From != "" {
		p, err := s.places.Resolve(ctx, body.From)
		if err != nil {
			writeError(w, err)
			return
		}
		req.Origin = p.Coord
	}
	if body.To != "" {
		p, err := s.places.Resolve(ctx, body.To)
		if err != nil {
			writeError(w, err)
			return
		}
		req.Destination = p.Coord
	}

	o, release := s.session(r)
	defer release()

	if body.AutoPrice && req.PricePerUnit == nil {
		if s.prices == nil {
			writeError(w, &trip.InputError{Field: "auto_price", Reason: "fuel price lookup is not available"})
			return
		}
		if _, err := autoPrice(ctx, o, s.prices, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	res, err := o.ComputeTrip(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	out := estimateResponse{TripResult: res}
	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save {
		if res.Superseded {
			writeError(w, trip.ErrSuperseded)
			return
		}
		rec, err := s.trips.SaveTrip(ctx, req, res)
		if err != nil {
			writeError(w, err)
			return
		}
		out.ID = &rec.ID
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) listTrips(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	trips, err := s.trips.ListTrips(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

func (s *server) getTrip(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, &trip.InputError{Field: "id", Reason: "not a trip id"})
		return
	}
	rec, err := s.trips.GetTrip(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &trip.InputError{Field: key, Reason: "must be a number"}
	}
	return n, nil
}

func queryCoordinate(r *http.Request) (trip.Coordinate, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return trip.Coordinate{}, &trip.InputError{Field: "lat", Reason: "must be a number"}
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		return trip.Coordinate{}, &trip.InputError{Field: "lng", Reason: "must be a number"}
	}
	c := trip.Coordinate{Lat: lat, Lng: lng}
	if !c.Valid() {
		return c, &trip.InputError{Field: "coordinate", Reason: "out of range"}
	}
	return c, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps the trip error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		ie *trip.InputError
		ce *trip.ComputationError
		pe *trip.ProviderError
	)
	switch {
	case errors.As(err, &ie):
		return http.StatusBadRequest
	case errors.Is(err, trip.ErrVehicleNotFound), errors.Is(err, tripdb.ErrTripNotFound):
		return http.StatusNotFound
	case errors.Is(err, trip.ErrRouteUnavailable), errors.As(err, &ce):
		return http.StatusUnprocessableEntity
	case errors.Is(err, trip.ErrSuperseded):
		return http.StatusConflict
	case errors.As(err, &pe):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var ie *trip.InputError
	if errors.As(err, &ie) {
		resp.Field = ie.Field
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

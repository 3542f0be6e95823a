// Package orchestrator sequences vehicle, route and climate resolution
// into a trip estimate. Every ComputeTrip call takes a new generation
// token and only the newest generation may settle a result: superseded
// calls drop their own late results and return the newest outcome,
// flagged as Superseded.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rubiojr/tripcost/internal/metrics"
	"github.com/rubiojr/tripcost/internal/trip"
	"golang.org/x/sync/errgroup"
)

// VehicleCatalog is the session shared vehicle catalog (see catalog.Cache).
type VehicleCatalog interface {
	ListBrands(ctx context.Context, year int) ([]trip.Option, error)
	ListModels(ctx context.Context, brandKey string) ([]trip.Option, error)
	GetSpec(ctx context.Context, brandKey, modelKey string, year int) (trip.VehicleSpec, error)
}

type RouteResolver interface {
	Resolve(ctx context.Context, origin, destination trip.Coordinate) (trip.RouteGeometry, error)
}

type ClimateClassifier interface {
	Classify(ctx context.Context, c trip.Coordinate) trip.ClimateCategory
}

// TripSaver persists an estimate. It is called by the caller of
// ComputeTrip, never by the orchestrator itself.
type TripSaver interface {
	SaveTrip(ctx context.Context, req trip.TripRequest, res trip.TripResult) (trip.TripRecord, error)
}

type State int

const (
	Idle State = iota
	Resolving
	Computing
	Done
	Failed
)

func (s State) String() string {
	return [...]string{"idle", "resolving", "computing", "done", "failed"}[s]
}

// run is one generation of ComputeTrip.
type run struct {
	gen       uint64
	done      chan struct{}
	result    trip.TripResult
	err       error
	// abandoned is set when the run failed because its caller went away.
	abandoned bool
}

type Option func(*Orchestrator)

func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) { o.debounce = NewDebouncer(d) }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

type Orchestrator struct {
	vehicles VehicleCatalog
	routes   RouteResolver
	climate  ClimateClassifier
	debounce *Debouncer
	log      *slog.Logger

	generation atomic.Uint64

	mu     sync.Mutex
	latest *run
	state  State
}

func New(v VehicleCatalog, r RouteResolver, c ClimateClassifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		vehicles: v,
		routes:   r,
		climate:  c,
		debounce: NewDebouncer(DefaultDebounce),
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generation returns the newest generation token handed out.
func (o *Orchestrator) Generation() uint64 {
	return o.generation.Load()
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Close releases the debounce timer. Pending weather lookups fail with ErrClosed.
func (o *Orchestrator) Close() {
	o.debounce.Close()
}

func (o *Orchestrator) ResolveVehicle(ctx context.Context, brandKey, modelKey string, year int) (trip.VehicleSpec, error) {
	return o.vehicles.GetSpec(ctx, brandKey, modelKey, year)
}

func (o *Orchestrator) ListBrands(ctx context.Context, year int) ([]trip.Option, error) {
	return o.vehicles.ListBrands(ctx, year)
}

func (o *Orchestrator) ListModels(ctx context.Context, brandKey string) ([]trip.Option, error) {
	return o.vehicles.ListModels(ctx, brandKey)
}

// ComputeTrip resolves the vehicle, route and climate of req concurrently
// and returns the estimate. When a newer call supersedes this one, the
// newer call's outcome is returned instead with Superseded set, so it
// must not be paired with req. No partial result is ever returned.
func (o *Orchestrator) ComputeTrip(ctx context.Context, req trip.TripRequest) (trip.TripResult, error) {
	if err := trip.Validate(req); err != nil {
		metrics.TripsComputed.WithLabelValues("invalid").Inc()
		return trip.TripResult{}, err
	}

	r := o.begin()
	res, err := o.resolve(ctx, r, req)
	return o.settle(ctx, r, res, err)
}

func (o *Orchestrator) begin() *run {
	o.mu.Lock()
	r := &run{gen: o.generation.Add(1), done: make(chan struct{})}
	o.latest = r
	o.state = Resolving
	o.mu.Unlock()
	o.log.Debug("trip generation started", "generation", r.gen)
	return r
}

func (o *Orchestrator) current(r *run) bool {
	return o.generation.Load() == r.gen
}

// drop reports whether a branch result belongs to a superseded generation.
func (o *Orchestrator) drop(r *run, branch string) bool {
	if o.current(r) {
		return false
	}
	metrics.StaleResults.WithLabelValues(branch).Inc()
	o.log.Debug("dropping stale result", "branch", branch, "generation", r.gen, "current", o.generation.Load())
	return true
}

func (o *Orchestrator) resolve(ctx context.Context, r *run, req trip.TripRequest) (trip.TripResult, error) {
	var (
		spec    trip.VehicleSpec
		geom    trip.RouteGeometry
		climate trip.ClimateCategory
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if req.Spec != nil {
			spec = *req.Spec
			return nil
		}
		s, err := o.vehicles.GetSpec(gctx, req.Vehicle.Brand, req.Vehicle.Model, req.Vehicle.Year)
		if o.drop(r, "vehicle") {
			return trip.ErrStale
		}
		if err != nil {
			return err
		}
		spec = s
		return nil
	})

	g.Go(func() error {
		geo, err := o.routes.Resolve(gctx, req.Origin, req.Destination)
		if o.drop(r, "route") {
			return trip.ErrStale
		}
		if err != nil {
			return err
		}
		geom = geo
		return nil
	})

	g.Go(func() error {
		var c trip.ClimateCategory
		for {
			err := o.debounce.Do(gctx, func() {
				if o.current(r) {
					c = o.climate.Classify(gctx, req.Origin)
				}
			})
			if o.drop(r, "climate") {
				return trip.ErrStale
			}
			// A late call from an older generation displaced ours.
			if errors.Is(err, trip.ErrStale) {
				continue
			}
			if err != nil {
				return err
			}
			climate = c
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		return trip.TripResult{}, err
	}
	if o.drop(r, "trip") {
		return trip.TripResult{}, trip.ErrStale
	}

	o.mu.Lock()
	if o.latest == r {
		o.state = Computing
	}
	o.mu.Unlock()

	res, err := trip.BuildResult(req, spec, geom, climate)
	if err != nil {
		return trip.TripResult{}, err
	}
	res.Generation = r.gen
	return res, nil
}

// settle publishes the outcome of r if it is still the newest generation.
// A superseded run publishes ErrStale for any follower and then waits for
// the newest generation instead.
func (o *Orchestrator) settle(ctx context.Context, r *run, res trip.TripResult, err error) (trip.TripResult, error) {
	o.mu.Lock()
	if o.latest == r && !errors.Is(err, trip.ErrStale) {
		r.result, r.err = res, err
		r.abandoned = err != nil && ctx.Err() != nil && isContextErr(err)
		if err != nil {
			o.state = Failed
		} else {
			o.state = Done
		}
		close(r.done)
		o.mu.Unlock()

		if err != nil {
			metrics.TripsComputed.WithLabelValues("error").Inc()
			o.log.Debug("trip failed", "generation", r.gen, "error", err)
		} else {
			metrics.TripsComputed.WithLabelValues("ok").Inc()
		}
		return res, err
	}
	r.err = trip.ErrStale
	close(r.done)
	o.mu.Unlock()

	res, err = o.follow(ctx)
	if err != nil {
		return trip.TripResult{}, err
	}
	res.Superseded = true
	return res, nil
}

func (o *Orchestrator) follow(ctx context.Context) (trip.TripResult, error) {
	for {
		o.mu.Lock()
		cur := o.latest
		o.mu.Unlock()

		select {
		case <-cur.done:
			if errors.Is(cur.err, trip.ErrStale) {
				continue
			}
			if cur.abandoned {
				if err := ctx.Err(); err != nil {
					return trip.TripResult{}, err
				}
				return trip.TripResult{}, trip.ErrSuperseded
			}
			return cur.result, cur.err
		case <-ctx.Done():
			return trip.TripResult{}, ctx.Err()
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

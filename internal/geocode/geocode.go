// Package geocode turns place names into coordinates using a Nominatim
// server. Inputs that already look like "lat,lng" are parsed locally.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/muesli/gominatim"
	"github.com/patrickmn/go-cache"
	"github.com/rubiojr/tripcost/internal/metrics"
	"github.com/rubiojr/tripcost/internal/trip"
)

const (
	DefaultServer        = "https://nominatim.openstreetmap.org/"
	cacheExpiration      = 24 * time.Hour
	cacheCleanupInterval = time.Hour
)

var ErrNotFound = errors.New("no results found for location")

// gominatim keeps its server in a package variable.
var serverMu sync.Mutex

type Place struct {
	Name  string
	Coord trip.Coordinate
}

type searchFunc func(q string) ([]gominatim.SearchResult, error)

type Geocoder struct {
	server string
	search searchFunc
	cache  *cache.Cache
	log    *slog.Logger
}

func New(server string, logger *slog.Logger) *Geocoder {
	if server == "" {
		server = DefaultServer
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	g := &Geocoder{
		server: server,
		cache:  cache.New(cacheExpiration, cacheCleanupInterval),
		log:    logger,
	}
	g.search = g.nominatim
	return g
}

func (g *Geocoder) nominatim(q string) ([]gominatim.SearchResult, error) {
	serverMu.Lock()
	defer serverMu.Unlock()
	gominatim.SetServer(g.server)
	qry := gominatim.SearchQuery{Q: q}
	return qry.Get()
}

// Resolve geocodes a place name or parses a "lat,lng" pair.
func (g *Geocoder) Resolve(ctx context.Context, place string) (Place, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return Place{}, &trip.InputError{Field: "location", Reason: "a place name or lat,lng is required"}
	}
	if c, ok := ParseCoordinate(place); ok {
		return Place{Name: c.String(), Coord: c}, nil
	}

	key := strings.ToLower(place)
	if cached, ok := g.cache.Get(key); ok {
		g.log.Debug("Using cached location", "location", place)
		return cached.(Place), nil
	}

	type reply struct {
		results []gominatim.SearchResult
		err     error
	}
	ch := make(chan reply, 1)
	start := time.Now()
	go func() {
		r, err := g.search(place)
		ch <- reply{r, err}
	}()

	var r reply
	select {
	case <-ctx.Done():
		return Place{}, ctx.Err()
	case r = <-ch:
	}
	metrics.ProviderDuration.WithLabelValues("geocode").Observe(time.Since(start).Seconds())

	if r.err != nil {
		return Place{}, trip.NewProviderError("geocode", fmt.Errorf("geocoding error: %w", r.err))
	}
	if len(r.results) == 0 {
		return Place{}, &trip.InputError{Field: "location", Reason: fmt.Sprintf("%s: %q", ErrNotFound, place)}
	}

	coord, err := resultToCoordinate(r.results[0])
	if err != nil {
		return Place{}, trip.NewProviderError("geocode", err)
	}

	p := Place{Name: r.results[0].DisplayName, Coord: coord}
	g.cache.Set(key, p, cache.DefaultExpiration)
	g.log.Debug("location found", "location", place, "name", p.Name, "coord", coord.String())
	return p, nil
}

func resultToCoordinate(result gominatim.SearchResult) (trip.Coordinate, error) {
	lat, err := strconv.ParseFloat(result.Lat, 64)
	if err != nil {
		return trip.Coordinate{}, fmt.Errorf("error parsing latitude: %w", err)
	}

	lng, err := strconv.ParseFloat(result.Lon, 64)
	if err != nil {
		return trip.Coordinate{}, fmt.Errorf("error parsing longitude: %w", err)
	}

	return trip.Coordinate{Lat: lat, Lng: lng}, nil
}

// ParseCoordinate parses "lat,lng". It reports false for anything else,
// including out of range pairs.
func ParseCoordinate(s string) (trip.Coordinate, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return trip.Coordinate{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return trip.Coordinate{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return trip.Coordinate{}, false
	}
	c := trip.Coordinate{Lat: lat, Lng: lng}
	return c, c.Valid()
}

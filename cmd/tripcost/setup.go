package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rubiojr/tripcost/internal/catalog"
	"github.com/rubiojr/tripcost/internal/climate"
	"github.com/rubiojr/tripcost/internal/config"
	"github.com/rubiojr/tripcost/internal/geocode"
	"github.com/rubiojr/tripcost/internal/orchestrator"
	"github.com/rubiojr/tripcost/internal/providers"
	"github.com/rubiojr/tripcost/internal/route"
	"github.com/rubiojr/tripcost/internal/tripdb"
	"github.com/rubiojr/tripcost/pkg/api"
	"github.com/urfave/cli/v2"
)

var errNoMapsKey = errors.New("GOOGLE_MAPS_API_KEY is required to resolve routes")

// app carries the configuration shared by every command.
type app struct {
	cfg *config.Config
	log *slog.Logger
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "db",
		Usage:    "Database file (defaults to $TRIPCOST_DB or trips.db)",
		Required: false,
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Print JSON instead of a table",
	}
}

func setup(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		if cfg.LogLevel, err = config.ParseLevel(lvl); err != nil {
			return nil, err
		}
	}
	if db := c.String("db"); db != "" {
		cfg.DBPath = db
	}
	return &app{cfg: cfg, log: cfg.Logger(os.Stderr)}, nil
}

func (a *app) storage(ctx context.Context) (*tripdb.Storage, error) {
	s, err := tripdb.NewStorage(ctx, a.cfg.DBPath, a.log)
	if err != nil {
		return nil, fmt.Errorf("error initializing storage: %w", err)
	}
	return s, nil
}

func (a *app) catalogAPI() *api.CatalogAPI {
	return api.NewCatalogAPI(a.cfg.CatalogAPIKey, a.cfg.CatalogURL, a.cfg.CatalogYear, a.cfg.HTTPTimeout)
}

// catalog returns the session catalog cache. Specs from the remote
// catalog get the calibration factors stored in s.
func (a *app) catalog(s *tripdb.Storage) *catalog.Cache {
	var p catalog.Provider = s
	if a.cfg.CatalogSource == config.CatalogSourceAPI {
		p = providers.Calibrated{Provider: providers.NewCatalog(a.catalogAPI()), Store: s}
	}
	return catalog.New(p, catalog.WithCooldown(a.cfg.SpecCooldown), catalog.WithLogger(a.log))
}

func (a *app) routes() (*route.Resolver, error) {
	if a.cfg.GoogleMapsAPIKey == "" {
		return nil, errNoMapsKey
	}
	maps := providers.NewMaps(api.NewMapsAPI(a.cfg.GoogleMapsAPIKey, a.cfg.GoogleMapsURL, a.cfg.HTTPTimeout))
	return route.NewResolver(maps, maps, a.log), nil
}

func (a *app) classifier() *climate.Classifier {
	if a.cfg.OpenWeatherAPIKey == "" {
		a.log.Warn("OPENWEATHER_API_KEY not set, climate is always mild")
		return climate.NewClassifier(nil, a.log)
	}
	w := providers.NewWeather(api.NewWeatherAPI(a.cfg.OpenWeatherAPIKey, a.cfg.OpenWeatherURL, a.cfg.HTTPTimeout))
	return climate.NewClassifier(w, a.log)
}

func (a *app) orchestrator(cat *catalog.Cache, routes orchestrator.RouteResolver) *orchestrator.Orchestrator {
	return orchestrator.New(cat, routes, a.classifier(),
		orchestrator.WithDebounce(a.cfg.Debounce),
		orchestrator.WithLogger(a.log))
}

func (a *app) geocoder() *geocode.Geocoder {
	return geocode.New(a.cfg.NominatimURL, a.log)
}

func (a *app) fuelPrices() *providers.FuelPrices {
	return providers.NewFuelPrices(api.NewFuelPriceAPI(a.cfg.FuelPricesURL), a.cfg.PriceRadiusKm)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	return t
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

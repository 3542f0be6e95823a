package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/rubiojr/tripcost/internal/tripdb"
	"github.com/urfave/cli/v2"
)

const (
	pruneInterval   = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the estimator over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to $TRIPCOST_ADDR or :8080)",
			},
			&cli.IntFlag{
				Name:  "prune-days",
				Usage: "Delete saved trips older than this many days once a day (0 keeps them)",
			},
			&cli.BoolFlag{
				Name:  "json-logs",
				Usage: "Log requests as JSON",
			},
			dbFlag(),
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	addr := a.cfg.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	logger := httplog.NewLogger("tripcost", httplog.Options{
		JSON:            c.Bool("json-logs"),
		LogLevel:        a.cfg.LogLevel,
		Concise:         true,
		QuietDownRoutes: []string{"/healthz", "/metrics"},
		QuietDownPeriod: 10 * time.Second,
		Writer:          os.Stderr,
	})
	a.log = logger.Logger

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := a.storage(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	routes, err := a.routes()
	if err != nil {
		return err
	}

	srv := newServer(a.catalog(storage), routes, a.classifier(), a.geocoder(), storage, a.log,
		withPrices(a.fuelPrices()),
		withDebounce(a.cfg.Debounce),
		withRateLimit(a.cfg.RateLimit),
		withSessionTTL(a.cfg.SessionTTL))
	defer srv.Close()

	if days := c.Int("prune-days"); days > 0 {
		go pruneTrips(ctx, storage, days, a)
	}

	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.handler(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			a.log.Error("error shutting down server", "error", err)
		}
	}()

	a.log.Info("starting server", "addr", addr, "catalog", a.cfg.CatalogSource)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// pruneTrips deletes old trips now and then once per pruneInterval.
func pruneTrips(ctx context.Context, storage *tripdb.Storage, days int, a *app) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		if _, err := storage.DeleteOldTrips(ctx, days); err != nil {
			a.log.Error("error pruning trips", "error", err)
		} else if err := storage.VacuumDatabase(ctx); err != nil {
			a.log.Error("error vacuuming database", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

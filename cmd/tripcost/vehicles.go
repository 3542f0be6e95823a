package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/rubiojr/tripcost/internal/providers"
	"github.com/rubiojr/tripcost/internal/trip"
	"github.com/rubiojr/tripcost/pkg/api"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const syncWorkers = 4

func vehiclesCommand() *cli.Command {
	return &cli.Command{
		Name:  "vehicles",
		Usage: "Manage the local vehicle catalog",
		Subcommands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Import vehicle specifications from a JSON file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "JSON array of catalog specifications",
						Required: true,
					},
					dbFlag(),
				},
				Action: vehiclesImportAction,
			},
			{
				Name:  "sync",
				Usage: "Copy a brand's models from the remote catalog into the database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "brand",
						Usage:    "Brand key to sync",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "year",
						Usage: "Model year (defaults to the catalog year)",
					},
					dbFlag(),
				},
				Action: vehiclesSyncAction,
			},
		},
	}
}

func vehiclesImportAction(c *cli.Context) error {
	ctx := c.Context
	a, err := setup(c)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("error reading vehicles file: %w", err)
	}
	var entries []api.CatalogSpec
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("error parsing vehicles file: %w", err)
	}

	vehicles := make([]trip.VehicleSpec, 0, len(entries))
	for i := range entries {
		v, err := providers.ToVehicleSpec(&entries[i])
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		vehicles = append(vehicles, v)
	}

	storage, err := a.storage(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	if err := storage.UpsertVehicles(ctx, vehicles); err != nil {
		return err
	}
	fmt.Printf("Imported %d vehicles\n", len(vehicles))
	return nil
}

func vehiclesSyncAction(c *cli.Context) error {
	ctx := c.Context
	a, err := setup(c)
	if err != nil {
		return err
	}
	if a.cfg.CatalogAPIKey == "" {
		return errors.New("CARSXE_API_KEY is required to sync the catalog")
	}

	remote := providers.NewCatalog(a.catalogAPI())
	brand := c.String("brand")
	year := c.Int("year")

	models, err := remote.ListModels(ctx, brand)
	if err != nil {
		return fmt.Errorf("error listing models: %w", err)
	}
	if len(models) == 0 {
		fmt.Println("No models found.")
		return nil
	}

	pw := progress.NewWriter()
	pw.SetOutputWriter(os.Stderr)
	pw.SetTrackerLength(25)
	pw.SetMessageLength(30)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Visibility.ETA = false
	pw.Style().Visibility.Value = true
	tracker := &progress.Tracker{
		Message: fmt.Sprintf("Syncing %s", brand),
		Total:   int64(len(models)),
		Units:   progress.UnitsDefault,
	}
	pw.AppendTracker(tracker)
	go pw.Render()

	var (
		mu       sync.Mutex
		vehicles []trip.VehicleSpec
		skipped  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncWorkers)
	for _, m := range models {
		g.Go(func() error {
			defer tracker.Increment(1)
			v, err := remote.GetSpec(gctx, brand, m.Value, year)
			var ce *trip.ComputationError
			switch {
			case errors.Is(err, trip.ErrVehicleNotFound), errors.As(err, &ce):
				a.log.Warn("skipping model", "model", m.Value, "error", err)
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			case err != nil:
				return fmt.Errorf("error fetching %s: %w", m.Value, err)
			}
			if v.Year <= 0 {
				v.Year = year
			}
			if v.Year <= 0 {
				a.log.Warn("skipping model without a year", "model", m.Value)
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			vehicles = append(vehicles, v)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	if err != nil {
		tracker.MarkAsErrored()
	} else {
		tracker.MarkAsDone()
	}
	pw.Stop()
	for pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		return err
	}

	storage, err := a.storage(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	if len(vehicles) > 0 {
		if err := storage.UpsertVehicles(ctx, vehicles); err != nil {
			return err
		}
	}
	fmt.Printf("Synced %d vehicles, skipped %d\n", len(vehicles), skipped)
	return nil
}

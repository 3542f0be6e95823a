package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rubiojr/tripcost/internal/config"
	"github.com/rubiojr/tripcost/internal/tripdb"
	"github.com/urfave/cli/v2"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the database contents and configured providers",
		Flags: []cli.Flag{
			dbFlag(),
			jsonFlag(),
		},
		Action: statusAction,
	}
}

type statusReport struct {
	DB        string          `json:"db"`
	Stats     *tripdb.Stats   `json:"stats"`
	Catalog   string          `json:"catalog_source"`
	Providers map[string]bool `json:"providers"`
}

func statusAction(c *cli.Context) error {
	ctx := c.Context
	a, err := setup(c)
	if err != nil {
		return err
	}
	storage, err := a.storage(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	stats, err := storage.Stats(ctx)
	if err != nil {
		return err
	}
	report := statusReport{
		DB:      a.cfg.DBPath,
		Stats:   stats,
		Catalog: a.cfg.CatalogSource,
		Providers: map[string]bool{
			"maps":    a.cfg.GoogleMapsAPIKey != "",
			"weather": a.cfg.OpenWeatherAPIKey != "",
			"catalog": a.cfg.CatalogAPIKey != "" || a.cfg.CatalogSource == config.CatalogSourceDB,
		},
	}
	if c.Bool("json") {
		return printJSON(report)
	}

	t := newTable()
	t.SetTitle(report.DB)
	t.AppendRows([]table.Row{
		{"Schema version", stats.SchemaVersion},
		{"Trips", fmt.Sprintf("%d (%d with real consumption)", stats.Trips, stats.CalibratedTrips)},
		{"Vehicles", fmt.Sprintf("%d (%d calibrated)", stats.Vehicles, stats.CalibratedVehicles)},
	})
	if stats.LastTrip != nil {
		t.AppendRow(table.Row{"Last trip", stats.LastTrip.Local().Format("2006-01-02 15:04")})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Catalog source", report.Catalog})
	for _, p := range []string{"maps", "weather", "catalog"} {
		state := "not configured"
		if report.Providers[p] {
			state = "configured"
		}
		t.AppendRow(table.Row{"Provider " + p, state})
	}
	t.Render()

	if stats.Vehicles == 0 && a.cfg.CatalogSource == config.CatalogSourceDB {
		fmt.Println("The local catalog is empty, run 'tripcost vehicles import' or 'tripcost vehicles sync'.")
	}
	return nil
}

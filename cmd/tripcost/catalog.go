package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rubiojr/tripcost/internal/trip"
	"github.com/urfave/cli/v2"
)

func brandsCommand() *cli.Command {
	return &cli.Command{
		Name:  "brands",
		Usage: "List vehicle brands in the catalog",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "year",
				Usage: "Only brands with models for this year",
			},
			dbFlag(),
			jsonFlag(),
		},
		Action: brandsAction,
	}
}

func brandsAction(c *cli.Context) error {
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

	brands, err := a.catalog(storage).ListBrands(ctx, c.Int("year"))
	if err != nil {
		return fmt.Errorf("error listing brands: %w", err)
	}
	return printOptions(c, "Brand", brands)
}

func modelsCommand() *cli.Command {
	return &cli.Command{
		Name:      "models",
		Usage:     "List the models of a brand",
		ArgsUsage: "<brand>",
		Flags: []cli.Flag{
			dbFlag(),
			jsonFlag(),
		},
		Action: modelsAction,
	}
}

func modelsAction(c *cli.Context) error {
	ctx := c.Context
	brand := c.Args().First()
	if brand == "" {
		return &trip.InputError{Field: "brand", Reason: "a brand is required"}
	}

	a, err := setup(c)
	if err != nil {
		return err
	}
	storage, err := a.storage(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	models, err := a.catalog(storage).ListModels(ctx, brand)
	if err != nil {
		return fmt.Errorf("error listing models: %w", err)
	}
	return printOptions(c, "Model", models)
}

func printOptions(c *cli.Context, title string, opts []trip.Option) error {
	if c.Bool("json") {
		return printJSON(opts)
	}
	if len(opts) == 0 {
		fmt.Println("Nothing found.")
		return nil
	}

	t := newTable()
	t.AppendHeader(table.Row{title, "Key"})
	for _, o := range opts {
		t.AppendRow(table.Row{o.Label, o.Value})
	}
	t.AppendFooter(table.Row{"Total", len(opts)})
	t.Render()
	return nil
}

func specCommand() *cli.Command {
	return &cli.Command{
		Name:      "spec",
		Usage:     "Show the specification of a vehicle",
		ArgsUsage: "<brand> <model> [year]",
		Flags: []cli.Flag{
			dbFlag(),
			jsonFlag(),
		},
		Action: specAction,
	}
}

func specAction(c *cli.Context) error {
	ctx := c.Context
	args := c.Args()
	if args.Len() < 2 {
		return &trip.InputError{Field: "vehicle", Reason: "brand and model are required"}
	}
	var year int
	if args.Len() > 2 {
		if _, err := fmt.Sscanf(args.Get(2), "%d", &year); err != nil {
			return &trip.InputError{Field: "year", Reason: fmt.Sprintf("%q is not a year", args.Get(2))}
		}
	}

	a, err := setup(c)
	if err != nil {
		return err
	}
	storage, err := a.storage(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	spec, err := a.catalog(storage).GetSpec(ctx, args.Get(0), args.Get(1), year)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(spec)
	}
	printSpec(spec)
	return nil
}

func printSpec(v trip.VehicleSpec) {
	t := newTable()
	t.SetTitle(v.Ref().String())
	t.AppendRows([]table.Row{
		{"Fuel", v.FuelType},
		{"Engine", fmt.Sprintf("%d cc, %d cylinders", v.EngineCC, v.Cylinders)},
		{"Weight", fmt.Sprintf("%.0f kg", v.WeightKg)},
		{"Combined", fmt.Sprintf("%.2f %s/100km", v.CombinedConsumption, v.Unit())},
	})
	if v.HighwayConsumption > 0 {
		t.AppendRow(table.Row{"Highway", fmt.Sprintf("%.2f %s/100km", v.HighwayConsumption, v.Unit())})
	}
	if v.CalibrationFactor > 0 && v.CalibrationFactor != 1 {
		t.AppendRow(table.Row{"Calibration", fmt.Sprintf("x%.3f", v.CalibrationFactor)})
	}
	t.Render()
}

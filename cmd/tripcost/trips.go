package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rubiojr/tripcost/internal/trip"
	"github.com/urfave/cli/v2"
)

const defaultPruneDays = 365

var errNoTrip = errors.New("a trip id is required")

func tripsCommand() *cli.Command {
	return &cli.Command{
		Name:  "trips",
		Usage: "Inspect saved trip estimates",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the most recent trips",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of trips",
						Value:   20,
					},
					dbFlag(),
					jsonFlag(),
				},
				Action: tripsListAction,
			},
			{
				Name:      "show",
				Usage:     "Show a saved trip",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					dbFlag(),
					jsonFlag(),
				},
				Action: tripsShowAction,
			},
			{
				Name:  "prune",
				Usage: "Delete old trips",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "days",
						Usage: "Delete trips older than this many days",
						Value: defaultPruneDays,
					},
					dbFlag(),
				},
				Action: tripsPruneAction,
			},
		},
	}
}

func tripsListAction(c *cli.Context) error {
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

	trips, err := storage.ListTrips(ctx, c.Int("limit"))
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(trips)
	}
	if len(trips) == 0 {
		fmt.Println("No trips saved.")
		return nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"ID", "Date", "Vehicle", "Distance", "Used", "Cost"})
	for _, rec := range trips {
		res := rec.Result
		t.AppendRow(table.Row{
			rec.ID.String(),
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			res.Vehicle.Ref().String(),
			fmt.Sprintf("%.1f km", res.DistanceKm),
			fmt.Sprintf("%.2f %s", res.AmountUsed, res.Unit),
			formatCost(res),
		})
	}
	t.Render()
	return nil
}

func parseTripID(c *cli.Context) (uuid.UUID, error) {
	arg := c.Args().First()
	if arg == "" {
		return uuid.Nil, errNoTrip
	}
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, &trip.InputError{Field: "id", Reason: fmt.Sprintf("%q is not a trip id", arg)}
	}
	return id, nil
}

func tripsShowAction(c *cli.Context) error {
	ctx := c.Context
	id, err := parseTripID(c)
	if err != nil {
		return err
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

	rec, err := storage.GetTrip(ctx, id)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(rec)
	}
	fmt.Printf("Trip %s, %s\n", rec.ID, rec.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Printf("From %s to %s\n", rec.Request.Origin, rec.Request.Destination)
	printResult(rec.Request, rec.Result)
	return nil
}

func tripsPruneAction(c *cli.Context) error {
	ctx := c.Context
	days := c.Int("days")
	if days < 0 {
		return &trip.InputError{Field: "days", Reason: "must not be negative"}
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

	n, err := storage.DeleteOldTrips(ctx, days)
	if err != nil {
		return err
	}
	if err := storage.VacuumDatabase(ctx); err != nil {
		return err
	}
	fmt.Printf("Deleted %d trips older than %d days\n", n, days)
	return nil
}

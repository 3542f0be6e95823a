package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func calibrateCommand() *cli.Command {
	return &cli.Command{
		Name:      "calibrate",
		Usage:     "Report the real fuel or energy used on a saved trip",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:     "real",
				Usage:    "Liters (or kWh) actually used",
				Required: true,
			},
			dbFlag(),
			jsonFlag(),
		},
		Action: calibrateAction,
	}
}

func calibrateAction(c *cli.Context) error {
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

	res, err := storage.Calibrate(ctx, id, c.Float64("real"))
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(res)
	}
	fmt.Printf("%s: estimated %.2f, real %.2f\n", res.Vehicle, res.Estimated, res.Real)
	fmt.Printf("Calibration factor is now %.3f (%d samples)\n", res.Factor, res.Samples)
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "tripcost",
		Usage: "Estimate the fuel or energy cost of a road trip",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Environment file to load",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			estimateCommand(),
			brandsCommand(),
			modelsCommand(),
			specCommand(),
			vehiclesCommand(),
			tripsCommand(),
			calibrateCommand(),
			statusCommand(),
			migrateCommand(),
			serveCommand(),
		},
	}
}

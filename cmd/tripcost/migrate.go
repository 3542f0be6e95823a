package main

import (
	"fmt"

	"github.com/rubiojr/tripcost/internal/tripdb"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Migrate the trip database",
		Flags: []cli.Flag{
			dbFlag(),
		},
		Action: migrateAction,
	}
}

func migrateAction(c *cli.Context) error {
	ctx := c.Context
	a, err := setup(c)
	if err != nil {
		return err
	}
	storage, err := tripdb.NewStorageMigrate(ctx, a.cfg.DBPath, a.log)
	if err != nil {
		return err
	}
	defer storage.Close()

	v, err := storage.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s is at schema version %d\n", a.cfg.DBPath, v)
	return nil
}

package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rubiojr/tripcost/internal/geocode"
	"github.com/rubiojr/tripcost/internal/orchestrator"
	"github.com/rubiojr/tripcost/internal/route"
	"github.com/rubiojr/tripcost/internal/trip"
	"github.com/urfave/cli/v2"
)

const priceAuto = "auto"

func estimateCommand() *cli.Command {
	return &cli.Command{
		Name:  "estimate",
		Usage: "Estimate the cost of a trip",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "from",
				Usage: "Origin place name or lat,lng",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "Destination place name or lat,lng",
			},
			&cli.StringFlag{
				Name:  "gpx",
				Usage: "Recorded GPX track to take distance and elevation from",
			},
			&cli.StringFlag{
				Name:  "brand",
				Usage: "Vehicle brand",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Vehicle model",
			},
			&cli.IntFlag{
				Name:  "year",
				Usage: "Vehicle model year",
			},
			&cli.Float64Flag{
				Name:  "consumption",
				Usage: "Use this combined consumption (L/100km or kWh/100km) instead of the catalog",
			},
			&cli.StringFlag{
				Name:  "fuel",
				Usage: "Fuel type with --consumption (gasoline, diesel, hybrid, electric)",
				Value: trip.FuelGasoline,
			},
			&cli.Float64Flag{
				Name:  "weight",
				Usage: "Vehicle weight in kg with --consumption",
			},
			&cli.IntFlag{
				Name:    "passengers",
				Aliases: []string{"p"},
				Usage:   "Number of occupants, driver included",
				Value:   1,
			},
			&cli.Float64Flag{
				Name:  "cargo",
				Usage: "Cargo weight in kg",
			},
			&cli.StringFlag{
				Name:  "price",
				Usage: "Fuel price per liter, or \"auto\" to use nearby station prices",
			},
			&cli.Float64Flag{
				Name:  "energy-price",
				Usage: "Electricity price per kWh for electric vehicles",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Store the estimate in the database",
			},
			dbFlag(),
			jsonFlag(),
		},
		Action: estimateAction,
	}
}

func estimateAction(c *cli.Context) error {
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

	req := trip.TripRequest{
		Vehicle: trip.VehicleRef{
			Brand: c.String("brand"),
			Model: c.String("model"),
			Year:  c.Int("year"),
		},
		Passengers:    c.Int("passengers"),
		CargoWeightKg: c.Float64("cargo"),
	}
	if c.IsSet("consumption") {
		req.Spec = manualSpec(c)
	}
	if c.IsSet("energy-price") {
		req.EnergyPricePerKWh = trip.Float(c.Float64("energy-price"))
	}

	var routes orchestrator.RouteResolver
	if path := c.String("gpx"); path != "" {
		track, err := route.LoadTrack(path)
		if err != nil {
			return err
		}
		routes = route.NewResolver(track, track, a.log)
		req.Origin, req.Destination = track.Origin(), track.Destination()
	} else {
		if routes, err = a.routes(); err != nil {
			return err
		}
	}

	if err := resolvePlaces(ctx, a.geocoder(), c.String("from"), c.String("to"), &req); err != nil {
		return err
	}

	o := a.orchestrator(a.catalog(storage), routes)
	defer o.Close()

	if err := applyPrice(ctx, a, o, c.String("price"), &req); err != nil {
		return err
	}

	res, err := o.ComputeTrip(ctx, req)
	if err != nil {
		return err
	}

	var rec *trip.TripRecord
	if c.Bool("save") {
		r, err := storage.SaveTrip(ctx, req, res)
		if err != nil {
			return err
		}
		rec = &r
	}

	if c.Bool("json") {
		if rec != nil {
			return printJSON(rec)
		}
		return printJSON(res)
	}
	printResult(req, res)
	if rec != nil {
		fmt.Printf("Saved as %s\n", rec.ID)
	}
	return nil
}

func manualSpec(c *cli.Context) *trip.VehicleSpec {
	brand := c.String("brand")
	if brand == "" {
		brand = "custom"
	}
	model := c.String("model")
	if model == "" {
		model = "custom"
	}
	return &trip.VehicleSpec{
		Brand:               brand,
		Model:               model,
		Year:                c.Int("year"),
		FuelType:            strings.ToLower(c.String("fuel")),
		WeightKg:            c.Float64("weight"),
		CombinedConsumption: c.Float64("consumption"),
	}
}

// resolvePlaces geocodes the origin and destination. Either may be left
// empty when a GPX track already provided it.
func resolvePlaces(ctx context.Context, g *geocode.Geocoder, from, to string, req *trip.TripRequest) error {
	if from == "" && req.Origin == (trip.Coordinate{}) {
		return &trip.InputError{Field: "origin", Reason: "--from or --gpx is required"}
	}
	if to == "" && req.Destination == (trip.Coordinate{}) {
		return &trip.InputError{Field: "destination", Reason: "--to or --gpx is required"}
	}

	if from != "" {
		p, err := g.Resolve(ctx, from)
		if err != nil {
			return fmt.Errorf("error resolving origin: %w", err)
		}
		req.Origin = p.Coord
		fmt.Fprintln(os.Stderr, "From:", p.Name)
	}
	if to != "" {
		p, err := g.Resolve(ctx, to)
		if err != nil {
			return fmt.Errorf("error resolving destination: %w", err)
		}
		req.Destination = p.Coord
		fmt.Fprintln(os.Stderr, "To:  ", p.Name)
	}
	return nil
}

// priceLookup finds the pump price of a vehicle's fuel near a coordinate.
type priceLookup interface {
	PriceFor(ctx context.Context, v trip.VehicleSpec, c trip.Coordinate) (float64, error)
}

// autoPrice fills req.PricePerUnit from station prices around the origin
// and returns the spec it priced. Electric vehicles are left untouched.
func autoPrice(ctx context.Context, o *orchestrator.Orchestrator, prices priceLookup, req *trip.TripRequest) (trip.VehicleSpec, error) {
	var spec trip.VehicleSpec
	if req.Spec != nil {
		spec = *req.Spec
	} else {
		if err := trip.Validate(*req); err != nil {
			return spec, err
		}
		s, err := o.ResolveVehicle(ctx, req.Vehicle.Brand, req.Vehicle.Model, req.Vehicle.Year)
		if err != nil {
			return spec, err
		}
		spec = s
	}
	if spec.IsElectric() {
		return spec, nil
	}
	p, err := prices.PriceFor(ctx, spec, req.Origin)
	if err != nil {
		return spec, fmt.Errorf("error looking up fuel prices: %w", err)
	}
	p = math.Round(p*1000) / 1000
	req.PricePerUnit = &p
	return spec, nil
}

func applyPrice(ctx context.Context, a *app, o *orchestrator.Orchestrator, price string, req *trip.TripRequest) error {
	switch price {
	case "":
		return nil
	case priceAuto:
		spec, err := autoPrice(ctx, o, a.fuelPrices(), req)
		if err != nil {
			return err
		}
		if req.PricePerUnit != nil {
			fmt.Fprintf(os.Stderr, "Average %s price near origin: %.3f\n", spec.FuelType, *req.PricePerUnit)
		}
		return nil
	default:
		p, err := strconv.ParseFloat(price, 64)
		if err != nil {
			return &trip.InputError{Field: "price_per_unit", Reason: fmt.Sprintf("%q is not a number or %q", price, priceAuto)}
		}
		req.PricePerUnit = &p
		return nil
	}
}

func printResult(req trip.TripRequest, res trip.TripResult) {
	t := newTable()
	t.SetTitle(res.Vehicle.Ref().String())
	t.AppendRows([]table.Row{
		{"Distance", fmt.Sprintf("%.1f km", res.DistanceKm)},
		{"Road grade", fmt.Sprintf("%.2f %%", res.RoadGradePercent)},
		{"Climate", res.Climate},
		{"Occupants", req.Passengers},
		{"Cargo", fmt.Sprintf("%.0f kg", req.CargoWeightKg)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Base consumption", fmt.Sprintf("%.2f %s/100km", res.BaseConsumption, res.Unit)},
		{"Adjusted consumption", fmt.Sprintf("%.2f %s/100km", res.AdjustedConsumption, res.Unit)},
		{"Used", fmt.Sprintf("%.2f %s", res.AmountUsed, res.Unit)},
	})
	t.AppendFooter(table.Row{"Total cost", formatCost(res)})
	t.Render()
}

func formatCost(res trip.TripResult) string {
	if res.TotalCost == nil {
		if res.Electric {
			return "n/a (no energy price)"
		}
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *res.TotalCost)
}

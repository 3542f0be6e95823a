package tripdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rubiojr/tripcost/internal/trip"
)

const vehicleColumns = `make, model, year, fuel_type, engine_cc, cylinders, weight_kg,
	lkm_mixed, lkm_highway, calibration_factor`

func specCacheKey(makeKey, modelKey string, year int) string {
	return fmt.Sprintf("spec_%s_%s_%d", makeKey, modelKey, year)
}

// UpsertVehicle inserts or refreshes a vehicle. Calibration data is kept.
func (s *Storage) UpsertVehicle(ctx context.Context, v trip.VehicleSpec) error {
	return s.UpsertVehicles(ctx, []trip.VehicleSpec{v})
}

// UpsertVehicles stores vehicles in a single transaction.
func (s *Storage) UpsertVehicles(ctx context.Context, vehicles []trip.VehicleSpec) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer s.rollback(tx)

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vehicles (make, make_key, model, model_key, year, fuel_type, engine_cc,
			cylinders, weight_kg, lkm_mixed, lkm_highway, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(make_key, model_key, year) DO UPDATE SET
			make = excluded.make,
			model = excluded.model,
			fuel_type = excluded.fuel_type,
			engine_cc = excluded.engine_cc,
			cylinders = excluded.cylinders,
			weight_kg = excluded.weight_kg,
			lkm_mixed = excluded.lkm_mixed,
			lkm_highway = excluded.lkm_highway,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("error preparing statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(timeLayout)
	for _, v := range vehicles {
		if v.Brand == "" || v.Model == "" || v.Year <= 0 {
			return &trip.InputError{Field: "vehicle", Reason: fmt.Sprintf("incomplete vehicle %q", v.Ref().String())}
		}
		if v.CombinedConsumption <= 0 {
			return &trip.InputError{Field: "combined_consumption", Reason: fmt.Sprintf("%s has no consumption figure", v.Ref())}
		}
		_, err := stmt.ExecContext(ctx, v.Brand, Key(v.Brand), v.Model, Key(v.Model), v.Year,
			v.FuelType, v.EngineCC, v.Cylinders, v.WeightKg, v.CombinedConsumption, v.HighwayConsumption, now)
		if err != nil {
			return fmt.Errorf("error inserting vehicle %s: %w", v.Ref(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	s.cache.Flush()
	s.log.Debug("vehicles stored", "count", len(vehicles))
	return nil
}

// ListBrands lists the makes of the local catalog. A zero year lists all.
func (s *Storage) ListBrands(ctx context.Context, year int) ([]trip.Option, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT make, make_key FROM vehicles
		WHERE ? = 0 OR year = ?
		GROUP BY make_key ORDER BY make`, year, year)
	if err != nil {
		return nil, fmt.Errorf("error querying brands: %w", err)
	}
	return scanOptions(rows)
}

func (s *Storage) ListModels(ctx context.Context, brandKey string) ([]trip.Option, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model, model_key FROM vehicles
		WHERE make_key = ?
		GROUP BY model_key ORDER BY model`, Key(brandKey))
	if err != nil {
		return nil, fmt.Errorf("error querying models: %w", err)
	}
	return scanOptions(rows)
}

func scanOptions(rows *sql.Rows) ([]trip.Option, error) {
	defer rows.Close()

	opts := []trip.Option{}
	for rows.Next() {
		var o trip.Option
		if err := rows.Scan(&o.Label, &o.Value); err != nil {
			return nil, fmt.Errorf("error scanning option: %w", err)
		}
		opts = append(opts, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error: %w", err)
	}
	return opts, nil
}

// GetSpec returns a vehicle of the local catalog, calibration included.
// A zero year picks the newest model year.
func (s *Storage) GetSpec(ctx context.Context, brandKey, modelKey string, year int) (trip.VehicleSpec, error) {
	makeKey, mKey := Key(brandKey), Key(modelKey)
	cacheKey := specCacheKey(makeKey, mKey, year)
	if cached, found := s.cache.Get(cacheKey); found {
		s.log.Debug("Using cached data", "key", cacheKey)
		return cached.(trip.VehicleSpec), nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+vehicleColumns+` FROM vehicles
		WHERE make_key = ? AND model_key = ? AND (? = 0 OR year = ?)
		ORDER BY year DESC LIMIT 1`, makeKey, mKey, year, year)

	var v trip.VehicleSpec
	err := row.Scan(&v.Brand, &v.Model, &v.Year, &v.FuelType, &v.EngineCC, &v.Cylinders,
		&v.WeightKg, &v.CombinedConsumption, &v.HighwayConsumption, &v.CalibrationFactor)
	if errors.Is(err, sql.ErrNoRows) {
		return trip.VehicleSpec{}, fmt.Errorf("%s %s %d: %w", brandKey, modelKey, year, trip.ErrVehicleNotFound)
	}
	if err != nil {
		return trip.VehicleSpec{}, fmt.Errorf("error querying vehicle: %w", err)
	}

	s.cache.Set(cacheKey, v, cache.DefaultExpiration)
	return v, nil
}

// Calibration returns the stored calibration factor of a vehicle, 1.0 when
// the vehicle is unknown or was never calibrated.
func (s *Storage) Calibration(ctx context.Context, ref trip.VehicleRef) (float64, int, error) {
	var factor float64
	var samples int
	err := s.db.QueryRowContext(ctx, `
		SELECT calibration_factor, calibration_samples FROM vehicles
		WHERE make_key = ? AND model_key = ? AND year = ?`,
		Key(ref.Brand), Key(ref.Model), ref.Year).Scan(&factor, &samples)
	if errors.Is(err, sql.ErrNoRows) {
		return 1.0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("error querying calibration: %w", err)
	}
	return factor, samples, nil
}

// CountVehicles returns the number of vehicles in the local catalog.
func (s *Storage) CountVehicles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vehicles").Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting vehicles: %w", err)
	}
	return n, nil
}

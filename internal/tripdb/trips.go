package tripdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rubiojr/tripcost/internal/metrics"
	"github.com/rubiojr/tripcost/internal/trip"
)

const defaultListLimit = 20

// SaveTrip stores an estimate and returns the persisted record.
func (s *Storage) SaveTrip(ctx context.Context, req trip.TripRequest, res trip.TripResult) (trip.TripRecord, error) {
	rec := trip.TripRecord{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Request:   req,
		Result:    res,
	}

	reqData, err := json.Marshal(req)
	if err != nil {
		return trip.TripRecord{}, fmt.Errorf("error marshaling request: %w", err)
	}
	resData, err := json.Marshal(res)
	if err != nil {
		return trip.TripRecord{}, fmt.Errorf("error marshaling result: %w", err)
	}

	var cost sql.NullFloat64
	if res.TotalCost != nil {
		cost = sql.NullFloat64{Float64: *res.TotalCost, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trips (id, created_at, make_key, model_key, year, distance_km,
			amount_used, total_cost, climate, request, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.CreatedAt.Format(timeLayout),
		Key(res.Vehicle.Brand), Key(res.Vehicle.Model), res.Vehicle.Year,
		res.DistanceKm, res.AmountUsed, cost, string(res.Climate), reqData, resData)
	if err != nil {
		return trip.TripRecord{}, fmt.Errorf("error inserting trip: %w", err)
	}

	metrics.TripsSaved.Inc()
	s.log.Debug("trip saved", "id", rec.ID, "vehicle", res.Vehicle.Ref().String())
	return rec, nil
}

// ListTrips returns the most recent trips first. A non-positive limit
// returns the default page size.
func (s *Storage) ListTrips(ctx context.Context, limit int) ([]trip.TripRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, request, result FROM trips
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying trips: %w", err)
	}
	defer rows.Close()

	records := []trip.TripRecord{}
	for rows.Next() {
		rec, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error: %w", err)
	}
	return records, nil
}

func (s *Storage) GetTrip(ctx context.Context, id uuid.UUID) (trip.TripRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, request, result FROM trips WHERE id = ?`, id.String())
	rec, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return trip.TripRecord{}, fmt.Errorf("%s: %w", id, ErrTripNotFound)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrip(row scanner) (trip.TripRecord, error) {
	var (
		rec              trip.TripRecord
		id, created      string
		reqData, resData []byte
	)
	if err := row.Scan(&id, &created, &reqData, &resData); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("error scanning trip: %w", err)
	}

	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return rec, fmt.Errorf("error parsing trip id %q: %w", id, err)
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return rec, fmt.Errorf("error parsing date %s: %w", created, err)
	}
	if err := json.Unmarshal(reqData, &rec.Request); err != nil {
		return rec, fmt.Errorf("error unmarshaling request: %w", err)
	}
	if err := json.Unmarshal(resData, &rec.Result); err != nil {
		return rec, fmt.Errorf("error unmarshaling result: %w", err)
	}
	return rec, nil
}

// CalibrationResult is the outcome of reporting a real consumption.
type CalibrationResult struct {
	Vehicle   trip.VehicleRef `json:"vehicle"`
	Estimated float64         `json:"estimated"`
	Real      float64         `json:"real"`
	Factor    float64         `json:"factor"`
	Samples   int             `json:"samples"`
}

// Calibrate records the real amount used on a saved trip and folds it into
// the calibration factor of the trip's vehicle. Vehicles missing from the
// local catalog are added from the trip result.
func (s *Storage) Calibrate(ctx context.Context, id uuid.UUID, realAmount float64) (*CalibrationResult, error) {
	if realAmount <= 0 {
		return nil, &trip.InputError{Field: "real_amount", Reason: "must be greater than zero"}
	}

	rec, err := s.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	v := rec.Result.Vehicle
	if v.Brand == "" || v.Model == "" {
		return nil, fmt.Errorf("%s: %w", id, ErrNoVehicleInTrip)
	}

	// Ratios are taken against the uncalibrated estimate so factors never compound.
	estimated := rec.Result.AmountUsed
	if v.CalibrationFactor > 0 {
		estimated /= v.CalibrationFactor
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO vehicles (make, make_key, model, model_key, year, fuel_type,
			engine_cc, cylinders, weight_kg, lkm_mixed, lkm_highway, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Brand, Key(v.Brand), v.Model, Key(v.Model), v.Year, v.FuelType, v.EngineCC,
		v.Cylinders, v.WeightKg, v.CombinedConsumption, v.HighwayConsumption,
		time.Now().UTC().Format(timeLayout)); err != nil {
		return nil, fmt.Errorf("error inserting vehicle %s: %w", v.Ref(), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer s.rollback(tx)

	var current float64
	var samples int
	err = tx.QueryRowContext(ctx, `
		SELECT calibration_factor, calibration_samples FROM vehicles
		WHERE make_key = ? AND model_key = ? AND year = ?`,
		Key(v.Brand), Key(v.Model), v.Year).Scan(&current, &samples)
	if err != nil {
		return nil, fmt.Errorf("error querying calibration: %w", err)
	}

	factor, samples := trip.Calibrate(current, samples, estimated, realAmount)

	if _, err := tx.ExecContext(ctx, `
		UPDATE vehicles SET calibration_factor = ?, calibration_samples = ?, updated_at = ?
		WHERE make_key = ? AND model_key = ? AND year = ?`,
		factor, samples, time.Now().UTC().Format(timeLayout),
		Key(v.Brand), Key(v.Model), v.Year); err != nil {
		return nil, fmt.Errorf("error updating calibration: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE trips SET real_amount = ? WHERE id = ?", realAmount, id.String()); err != nil {
		return nil, fmt.Errorf("error updating trip: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing transaction: %w", err)
	}

	s.cache.Delete(specCacheKey(Key(v.Brand), Key(v.Model), v.Year))
	s.cache.Delete(specCacheKey(Key(v.Brand), Key(v.Model), 0))

	s.log.Info("vehicle calibrated", "vehicle", v.Ref().String(), "factor", factor, "samples", samples)
	return &CalibrationResult{
		Vehicle:   v.Ref(),
		Estimated: estimated,
		Real:      realAmount,
		Factor:    factor,
		Samples:   samples,
	}, nil
}

// DeleteOldTrips removes trips older than daysOld days and returns how
// many were deleted.
func (s *Storage) DeleteOldTrips(ctx context.Context, daysOld int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld).Format(timeLayout)
	s.log.Info("Starting cleanup of old trips", "cutoff_date", cutoff)

	res, err := s.db.ExecContext(ctx, "DELETE FROM trips WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("error deleting trips: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error counting deleted trips: %w", err)
	}

	s.log.Info("Completed trips cleanup", "deleted_count", n)
	return n, nil
}

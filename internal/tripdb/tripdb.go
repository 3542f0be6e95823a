// Package tripdb persists trip estimates, a local vehicle catalog and the
// per-vehicle calibration factors in a SQLite database.
package tripdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/patrickmn/go-cache"
)

const (
	defaultCacheExpirationMinutes = 10
	defaultCacheCleanupMinutes    = 30
	defaultCacheSize              = -16 * 1024 // negative value for KiB
	defaultPageSize               = 4096
	migrationCacheSize            = -256 * 1024
	defaultVacuumPages            = 1000
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	ErrTripNotFound    = errors.New("trip not found")
	ErrNoVehicleInTrip = errors.New("trip has no resolved vehicle")
)

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS trips (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		make_key TEXT NOT NULL,
		model_key TEXT NOT NULL,
		year INTEGER NOT NULL,
		distance_km REAL NOT NULL,
		amount_used REAL NOT NULL,
		total_cost REAL,
		climate TEXT NOT NULL,
		request BLOB NOT NULL,
		result BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trips_created_at ON trips(created_at);

	CREATE TABLE IF NOT EXISTS vehicles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		make TEXT NOT NULL,
		make_key TEXT NOT NULL,
		model TEXT NOT NULL,
		model_key TEXT NOT NULL,
		year INTEGER NOT NULL,
		fuel_type TEXT NOT NULL,
		engine_cc INTEGER NOT NULL DEFAULT 0,
		cylinders INTEGER NOT NULL DEFAULT 0,
		weight_kg REAL NOT NULL DEFAULT 0,
		lkm_mixed REAL NOT NULL,
		lkm_highway REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		UNIQUE(make_key, model_key, year)
	);
	CREATE INDEX IF NOT EXISTS idx_vehicles_make ON vehicles(make_key, year);
	`,
	`
	ALTER TABLE vehicles ADD COLUMN calibration_factor REAL NOT NULL DEFAULT 1.0;
	ALTER TABLE vehicles ADD COLUMN calibration_samples INTEGER NOT NULL DEFAULT 0;
	ALTER TABLE trips ADD COLUMN real_amount REAL;
	`,
	`
	CREATE INDEX IF NOT EXISTS idx_trips_vehicle ON trips(make_key, model_key, year);
	`,
}

type Storage struct {
	db    *sql.DB
	cache *cache.Cache
	log   *slog.Logger
}

func NewStorage(ctx context.Context, dbPath string, logger *slog.Logger) (*Storage, error) {
	return open(ctx, dbPath, logger, false)
}

// NewStorageMigrate opens the database with pragmas tuned for bulk schema
// work, applies pending migrations and reclaims free pages.
func NewStorageMigrate(ctx context.Context, dbPath string, logger *slog.Logger) (*Storage, error) {
	s, err := open(ctx, dbPath, logger, true)
	if err != nil {
		return nil, err
	}
	if err := s.VacuumDatabase(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func open(ctx context.Context, dbPath string, logger *slog.Logger, forMigration bool) (*Storage, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One connection keeps the per-connection pragmas in effect.
	db.SetMaxOpenConns(1)

	cacheSize := defaultCacheSize
	if forMigration {
		cacheSize = migrationCacheSize
	}
	if err := configureSQLitePragmas(ctx, db, forMigration, cacheSize); err != nil {
		db.Close()
		return nil, err
	}

	s := &Storage{
		db:    db,
		cache: cache.New(defaultCacheExpirationMinutes*time.Minute, defaultCacheCleanupMinutes*time.Minute),
		log:   logger,
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func configureSQLitePragmas(ctx context.Context, db *sql.DB, forMigration bool, cacheSize int) error {
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 10000;"); err != nil {
		return fmt.Errorf("error setting busy timeout: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("error setting journal mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA auto_vacuum = INCREMENTAL;"); err != nil {
		return fmt.Errorf("error setting auto vacuum: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return fmt.Errorf("error enabling foreign keys: %w", err)
	}

	syncMode := "NORMAL"
	tempStore := "FILE"
	if forMigration {
		syncMode = "OFF"
		tempStore = "MEMORY"
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA synchronous = %s;", syncMode)); err != nil {
		return fmt.Errorf("error setting synchronous: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA temp_store = %s;", tempStore)); err != nil {
		return fmt.Errorf("error setting temp store: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA cache_size = %d;", cacheSize)); err != nil {
		return fmt.Errorf("error setting cache size: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA page_size = %d;", defaultPageSize)); err != nil {
		return fmt.Errorf("error setting page size: %w", err)
	}
	return nil
}

// SchemaVersion returns the number of applied migrations.
func (s *Storage) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("error reading schema version: %w", err)
	}
	return v, nil
}

func (s *Storage) migrate(ctx context.Context) error {
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("error starting transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			s.rollback(tx)
			return fmt.Errorf("error applying migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			s.rollback(tx)
			return fmt.Errorf("error updating schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("error committing migration %d: %w", i+1, err)
		}
		s.log.Info("applied migration", "version", i+1)
	}
	return nil
}

func (s *Storage) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.log.Error("rollback error", "error", err)
	}
}

func (s *Storage) VacuumDatabase(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA incremental_vacuum(%d)", defaultVacuumPages))
	if err != nil {
		return fmt.Errorf("error performing incremental vacuum: %w", err)
	}
	return nil
}

func (s *Storage) Close() error {
	if s.cache != nil {
		s.cache.Flush()
	}
	return s.db.Close()
}

// Stats summarises the database contents.
type Stats struct {
	SchemaVersion      int        `json:"schema_version"`
	Trips              int        `json:"trips"`
	CalibratedTrips    int        `json:"calibrated_trips"`
	Vehicles           int        `json:"vehicles"`
	CalibratedVehicles int        `json:"calibrated_vehicles"`
	LastTrip           *time.Time `json:"last_trip,omitempty"`
}

func (s *Storage) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	var err error
	if st.SchemaVersion, err = s.SchemaVersion(ctx); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(real_amount) FROM trips").Scan(&st.Trips, &st.CalibratedTrips)
	if err != nil {
		return nil, fmt.Errorf("error counting trips: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(calibration_samples > 0), 0) FROM vehicles").Scan(&st.Vehicles, &st.CalibratedVehicles)
	if err != nil {
		return nil, fmt.Errorf("error counting vehicles: %w", err)
	}

	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(created_at) FROM trips").Scan(&last); err != nil {
		return nil, fmt.Errorf("error querying last trip date: %w", err)
	}
	if last.Valid {
		t, err := time.Parse(timeLayout, last.String)
		if err != nil {
			return nil, fmt.Errorf("error parsing date %s: %w", last.String, err)
		}
		st.LastTrip = &t
	}
	return &st, nil
}

// Key normalises a brand or model name into its lookup key.
func Key(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "-"))
}

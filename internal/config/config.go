// Package config loads runtime settings from the environment. A .env file
// in the working directory is read first; variables already set win.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	CatalogSourceAPI = "api"
	CatalogSourceDB  = "db"
)

type Config struct {
	GoogleMapsAPIKey  string
	GoogleMapsURL     string
	OpenWeatherAPIKey string
	OpenWeatherURL    string
	CatalogAPIKey     string
	CatalogURL        string
	CatalogSource     string
	CatalogYear       int
	FuelPricesURL     string
	NominatimURL      string

	DBPath        string
	Addr          string
	Debounce      time.Duration
	SpecCooldown  time.Duration
	HTTPTimeout   time.Duration
	PriceRadiusKm float64
	RateLimit     int
	SessionTTL    time.Duration
	LogLevel      slog.Level
}

// Load reads the given env files (".env" when none) and then the
// environment. Missing env files are not an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", f, err)
		}
	}

	level, err := ParseLevel(getEnv("TRIPCOST_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	c := &Config{
		GoogleMapsAPIKey:  getEnv("GOOGLE_MAPS_API_KEY", ""),
		GoogleMapsURL:     getEnv("TRIPCOST_MAPS_URL", "https://maps.googleapis.com/maps/api"),
		OpenWeatherAPIKey: getEnv("OPENWEATHER_API_KEY", ""),
		OpenWeatherURL:    getEnv("TRIPCOST_WEATHER_URL", "https://api.openweathermap.org/data/2.5"),
		CatalogAPIKey:     getEnv("CARSXE_API_KEY", ""),
		CatalogURL:        getEnv("TRIPCOST_CATALOG_URL", "https://api.carsxe.com/v1"),
		CatalogSource:     strings.ToLower(getEnv("TRIPCOST_CATALOG_SOURCE", CatalogSourceAPI)),
		CatalogYear:       getEnvAsInt("TRIPCOST_CATALOG_YEAR", 0),
		FuelPricesURL:     getEnv("TRIPCOST_FUEL_PRICES_URL", "https://sedeaplicaciones.minetur.gob.es/ServiciosRESTCarburantes/PreciosCarburantes"),
		NominatimURL:      getEnv("TRIPCOST_NOMINATIM_URL", "https://nominatim.openstreetmap.org/"),

		DBPath:        getEnv("TRIPCOST_DB", "trips.db"),
		Addr:          getEnv("TRIPCOST_ADDR", ":8080"),
		Debounce:      getEnvAsDuration("TRIPCOST_DEBOUNCE", 600*time.Millisecond),
		SpecCooldown:  getEnvAsDuration("TRIPCOST_SPEC_COOLDOWN", 900*time.Millisecond),
		HTTPTimeout:   getEnvAsDuration("TRIPCOST_HTTP_TIMEOUT", 10*time.Second),
		PriceRadiusKm: getEnvAsFloat("TRIPCOST_PRICE_RADIUS_KM", 5),
		RateLimit:     getEnvAsInt("TRIPCOST_RATE_LIMIT", 60),
		SessionTTL:    getEnvAsDuration("TRIPCOST_SESSION_TTL", 30*time.Minute),
		LogLevel:      level,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.CatalogSource {
	case CatalogSourceAPI, CatalogSourceDB:
	default:
		return fmt.Errorf("invalid TRIPCOST_CATALOG_SOURCE %q: want %s or %s", c.CatalogSource, CatalogSourceAPI, CatalogSourceDB)
	}
	if c.Debounce < 0 || c.SpecCooldown < 0 {
		return errors.New("debounce and cool-down windows must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("TRIPCOST_HTTP_TIMEOUT must be positive")
	}
	if c.RateLimit <= 0 {
		return errors.New("TRIPCOST_RATE_LIMIT must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("TRIPCOST_SESSION_TTL must be positive")
	}
	if c.PriceRadiusKm <= 0 {
		return errors.New("TRIPCOST_PRICE_RADIUS_KM must be positive")
	}
	return nil
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}

func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

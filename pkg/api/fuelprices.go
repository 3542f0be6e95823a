package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tkrajina/gpxgo/gpx"
)

const FuelPricesBaseURL = "https://sedeaplicaciones.minetur.gob.es/ServiciosRESTCarburantes/PreciosCarburantes"

// ErrNoPrices is returned when no station near a point sells a fuel type.
var ErrNoPrices = errors.New("no fuel prices found")

// FuelPriceAPI fetches station prices from the Spanish Ministry fuel price service.
type FuelPriceAPI struct {
	client
}

// NewFuelPriceAPI creates a FuelPriceAPI client. An empty baseURL selects the official service.
func NewFuelPriceAPI(baseURL string) *FuelPriceAPI {
	if baseURL == "" {
		baseURL = FuelPricesBaseURL
	}
	return &FuelPriceAPI{client: newClient(baseURL, DefaultTimeout)}
}

// FetchPrices fetches the latest available fuel station prices.
func (api *FuelPriceAPI) FetchPrices(ctx context.Context) (*GasStationList, error) {
	var prices GasStationList
	if err := api.getJSON(ctx, "/EstacionesTerrestres/", nil, &prices); err != nil {
		return nil, err
	}
	if prices.ResultadoConsulta != ApiResultOK {
		return nil, fmt.Errorf("fuel price API returned %q", prices.ResultadoConsulta)
	}
	return &prices, nil
}

// NearbyPrices returns the stations within distance meters of the given coordinates.
func (api *FuelPriceAPI) NearbyPrices(ctx context.Context, lat, lng, distance float64) ([]*GasStation, error) {
	prices, err := api.FetchPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching current prices: %w", err)
	}

	var nearbyStations []*GasStation
	for i := range prices.ListaEESSPrecio {
		station := &prices.ListaEESSPrecio[i]
		stationLat, err := ParseDecimal(station.Latitud)
		if err != nil {
			continue
		}
		stationLng, err := ParseDecimal(station.Longitud)
		if err != nil {
			continue
		}

		if gpx.Distance2D(lat, lng, stationLat, stationLng, true) <= distance {
			nearbyStations = append(nearbyStations, station)
		}
	}

	return nearbyStations, nil
}

// AveragePrice returns the mean price per liter of fuelType among the
// stations within radiusKm of the given coordinates.
func (api *FuelPriceAPI) AveragePrice(ctx context.Context, lat, lng, radiusKm float64, fuelType string) (float64, error) {
	stations, err := api.NearbyPrices(ctx, lat, lng, radiusKm*1000)
	if err != nil {
		return 0, err
	}

	var sum float64
	var n int
	for _, s := range stations {
		p := s.Price(fuelType)
		if p <= 0 {
			continue
		}
		sum += p
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s within %g km", ErrNoPrices, fuelType, radiusKm)
	}
	return sum / float64(n), nil
}

// ParseDecimal parses numbers written with a decimal comma or dot.
func ParseDecimal(s string) (float64, error) {
	s = strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	return strconv.ParseFloat(s, 64)
}

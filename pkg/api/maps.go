package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const GoogleMapsBaseURL = "https://maps.googleapis.com/maps/api"

// ErrNoRoute is returned when the distance matrix has no path between two points.
var ErrNoRoute = errors.New("no route between origin and destination")

// MapsAPI talks to the Google Distance Matrix and Elevation endpoints.
type MapsAPI struct {
	client
	apiKey string
}

// NewMapsAPI creates a MapsAPI client. An empty baseURL selects Google's.
func NewMapsAPI(apiKey, baseURL string, timeout time.Duration) *MapsAPI {
	if baseURL == "" {
		baseURL = GoogleMapsBaseURL
	}
	return &MapsAPI{client: newClient(baseURL, timeout), apiKey: apiKey}
}

func latLng(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lng, 'f', 6, 64)
}

// DistanceKm returns the driving distance in kilometers between two points.
func (m *MapsAPI) DistanceKm(ctx context.Context, originLat, originLng, destLat, destLng float64) (float64, error) {
	q := url.Values{}
	q.Set("origins", latLng(originLat, originLng))
	q.Set("destinations", latLng(destLat, destLng))
	q.Set("units", "metric")
	q.Set("key", m.apiKey)

	var resp DistanceMatrixResponse
	if err := m.getJSON(ctx, "/distancematrix/json", q, &resp); err != nil {
		return 0, err
	}

	if resp.Status != ApiResultOK {
		return 0, fmt.Errorf("distance matrix status %s: %s", resp.Status, resp.ErrorMessage)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return 0, ErrNoRoute
	}

	el := resp.Rows[0].Elements[0]
	switch el.Status {
	case ApiResultOK:
	case "ZERO_RESULTS", "NOT_FOUND":
		return 0, fmt.Errorf("%w: %s", ErrNoRoute, el.Status)
	default:
		return 0, fmt.Errorf("distance matrix element status %s", el.Status)
	}

	return float64(el.Distance.Value) / 1000, nil
}

// Elevations returns the elevation in meters of the origin and destination.
func (m *MapsAPI) Elevations(ctx context.Context, originLat, originLng, destLat, destLng float64) ([2]float64, error) {
	q := url.Values{}
	q.Set("locations", latLng(originLat, originLng)+"|"+latLng(destLat, destLng))
	q.Set("key", m.apiKey)

	var resp ElevationResponse
	if err := m.getJSON(ctx, "/elevation/json", q, &resp); err != nil {
		return [2]float64{}, err
	}

	if resp.Status != ApiResultOK {
		return [2]float64{}, fmt.Errorf("elevation status %s: %s", resp.Status, resp.ErrorMessage)
	}
	if len(resp.Results) != 2 {
		return [2]float64{}, fmt.Errorf("expected 2 elevation results, got %d", len(resp.Results))
	}

	return [2]float64{resp.Results[0].Elevation, resp.Results[1].Elevation}, nil
}

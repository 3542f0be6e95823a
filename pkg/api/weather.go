package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const OpenWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

// WeatherAPI fetches current conditions from OpenWeatherMap.
type WeatherAPI struct {
	client
	apiKey string
}

func NewWeatherAPI(apiKey, baseURL string, timeout time.Duration) *WeatherAPI {
	if baseURL == "" {
		baseURL = OpenWeatherBaseURL
	}
	return &WeatherAPI{client: newClient(baseURL, timeout), apiKey: apiKey}
}

// Current returns the current weather at the given coordinates in metric units.
func (w *WeatherAPI) Current(ctx context.Context, lat, lng float64) (*CurrentWeather, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	q.Set("units", "metric")
	q.Set("appid", w.apiKey)

	var resp CurrentWeather
	if err := w.getJSON(ctx, "/weather", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Weather) == 0 {
		return nil, fmt.Errorf("weather response for %s,%s has no conditions", q.Get("lat"), q.Get("lon"))
	}
	return &resp, nil
}

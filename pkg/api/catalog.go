package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrVehicleNotFound is returned when the catalog has no spec for a vehicle.
var ErrVehicleNotFound = errors.New("vehicle not found in catalog")

// CatalogAPI is a client for a CarsXE style vehicle catalog exposing
// brands, models and specifications.
type CatalogAPI struct {
	client
	apiKey      string
	defaultYear int
}

func NewCatalogAPI(apiKey, baseURL string, defaultYear int, timeout time.Duration) *CatalogAPI {
	c := &CatalogAPI{client: newClient(baseURL, timeout), apiKey: apiKey, defaultYear: defaultYear}
	if apiKey != "" {
		c.header.Set("X-Api-Key", apiKey)
	}
	return c
}

func (c *CatalogAPI) year(y int) string {
	if y <= 0 {
		y = c.defaultYear
	}
	if y <= 0 {
		y = time.Now().Year()
	}
	return strconv.Itoa(y)
}

// Brands lists the vehicle makes available for a model year.
func (c *CatalogAPI) Brands(ctx context.Context, year int) ([]CatalogOption, error) {
	q := url.Values{}
	q.Set("year", c.year(year))

	var opts []CatalogOption
	if err := c.getJSON(ctx, "/brands", q, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// Models lists the models of a make.
func (c *CatalogAPI) Models(ctx context.Context, makeID string) ([]CatalogOption, error) {
	q := url.Values{}
	q.Set("make_id", makeID)
	q.Set("year", c.year(0))

	var opts []CatalogOption
	if err := c.getJSON(ctx, "/models", q, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// Spec returns the specification of a make, model and year.
func (c *CatalogAPI) Spec(ctx context.Context, makeID, modelID string, year int) (*CatalogSpec, error) {
	q := url.Values{}
	q.Set("make_id", makeID)
	q.Set("model_id", modelID)
	q.Set("year", c.year(year))

	var spec CatalogSpec
	if err := c.getJSON(ctx, "/specs", q, &spec); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s %s %d", ErrVehicleNotFound, makeID, modelID, year)
		}
		return nil, err
	}
	return &spec, nil
}

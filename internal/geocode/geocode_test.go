package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/muesli/gominatim"
	"github.com/rubiojr/tripcost/internal/trip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubGeocoder(results []gominatim.SearchResult, err error) (*Geocoder, *int) {
	calls := 0
	g := New("", nil)
	g.search = func(q string) ([]gominatim.SearchResult, error) {
		calls++
		return results, err
	}
	return g, &calls
}

func TestResolvePlaceName(t *testing.T) {
	g, calls := stubGeocoder([]gominatim.SearchResult{
		{DisplayName: "Madrid, Comunidad de Madrid, España", Lat: "40.4167047", Lon: "-3.7035825"},
	}, nil)

	p, err := g.Resolve(context.Background(), "Madrid")
	require.NoError(t, err)
	assert.Equal(t, "Madrid, Comunidad de Madrid, España", p.Name)
	assert.Equal(t, trip.Coordinate{Lat: 40.4167047, Lng: -3.7035825}, p.Coord)

	_, err = g.Resolve(context.Background(), "  madrid ")
	require.NoError(t, err)
	assert.Equal(t, 1, *calls, "second lookup is served from the cache")
}

func TestResolveAgainstNominatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("q") != "Bilbao" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `[{"display_name":"Bilbao, Bizkaia, España","lat":"43.2630","lon":"-2.9350"}]`)
	}))
	defer srv.Close()

	p, err := New(srv.URL, nil).Resolve(context.Background(), "Bilbao")
	require.NoError(t, err)
	assert.Equal(t, "Bilbao, Bizkaia, España", p.Name)
	assert.Equal(t, trip.Coordinate{Lat: 43.2630, Lng: -2.9350}, p.Coord)
}

func TestResolveCoordinatesSkipNominatim(t *testing.T) {
	g, calls := stubGeocoder(nil, errors.New("unreachable"))

	p, err := g.Resolve(context.Background(), "41.3851, 2.1734")
	require.NoError(t, err)
	assert.Equal(t, trip.Coordinate{Lat: 41.3851, Lng: 2.1734}, p.Coord)
	assert.Equal(t, 0, *calls)
}

func TestResolveErrors(t *testing.T) {
	g, _ := stubGeocoder(nil, nil)
	var ie *trip.InputError
	_, err := g.Resolve(context.Background(), "Atlantis")
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "location", ie.Field)

	_, err = g.Resolve(context.Background(), "")
	require.ErrorAs(t, err, &ie)

	g, _ = stubGeocoder(nil, errors.New("connection refused"))
	var pe *trip.ProviderError
	_, err = g.Resolve(context.Background(), "Madrid")
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "geocode", pe.Provider)
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"40.4,-3.7", true},
		{" -33.86 , 151.2 ", true},
		{"91,0", false},
		{"Madrid", false},
		{"1,2,3", false},
		{"Paris, France", false},
	}
	for _, tt := range tests {
		if _, ok := ParseCoordinate(tt.in); ok != tt.ok {
			t.Errorf("ParseCoordinate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
	}
}

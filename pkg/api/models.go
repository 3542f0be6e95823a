package api

import (
	"strings"
)

// GasStationList represents the response structure from the fuel price API.
type GasStationList struct {
	Fecha             string       `json:"Fecha"`
	ListaEESSPrecio   []GasStation `json:"ListaEESSPrecio"`
	ResultadoConsulta string       `json:"ResultadoConsulta"`
}

// GasStation is a fuel station with the prices relevant to trip estimates.
type GasStation struct {
	IDEESS             string `json:"IDEESS"`
	Rotulo             string `json:"Rótulo"`
	Direccion          string `json:"Dirección"`
	Municipio          string `json:"Municipio"`
	Latitud            string `json:"Latitud"`
	Longitud           string `json:"Longitud (WGS84)"`
	PrecioGasoleoA     string `json:"Precio Gasoleo A"`
	PrecioGasolina95E5 string `json:"Precio Gasolina 95 E5"`
	PrecioGasolina98E5 string `json:"Precio Gasolina 98 E5"`
}

// Price returns the station price for a vehicle fuel type, or 0 when the
// station does not sell it.
func (s *GasStation) Price(fuelType string) float64 {
	var raw string
	switch strings.ToLower(fuelType) {
	case "diesel", "gasoleo":
		raw = s.PrecioGasoleoA
	case "gasoline98", "premium":
		raw = s.PrecioGasolina98E5
	default:
		raw = s.PrecioGasolina95E5
	}
	p, err := ParseDecimal(raw)
	if err != nil {
		return 0
	}
	return p
}

// DistanceMatrixResponse is the subset of the Distance Matrix reply we use.
type DistanceMatrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value int    `json:"value"`
				Text  string `json:"text"`
			} `json:"distance"`
		} `json:"elements"`
	} `json:"rows"`
}

// ElevationResponse is the Elevation API reply.
type ElevationResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Elevation float64 `json:"elevation"`
		Location  struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"results"`
}

// CurrentWeather is the OpenWeatherMap current weather reply.
type CurrentWeather struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Name string `json:"name"`
}

// CatalogOption is a brand or model entry of the vehicle catalog.
type CatalogOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// CatalogSpec is a vehicle specification as returned by the catalog.
type CatalogSpec struct {
	Make         string  `json:"make"`
	Model        string  `json:"model"`
	Year         int     `json:"year"`
	FuelType     string  `json:"fuel_type"`
	EngineCC     int     `json:"engine_cc"`
	Cylinders    int     `json:"engine_cylinders"`
	WeightKg     float64 `json:"weight_kg"`
	LkmMixed     float64 `json:"lkm_mixed"`
	LkmHighway   float64 `json:"lkm_highway"`
	KWhPer100Km  float64 `json:"kwh_100km"`
	MpgMixed     float64 `json:"mpg_mixed"`
	DriveType    string  `json:"drive_type"`
	Transmission string  `json:"transmission"`
}

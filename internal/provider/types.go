package provider

import (
	"bytes"
	"encoding/json"
)

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CitySummary is one decoded city search record. ID is the externally
// assigned geoname identifier.
type CitySummary struct {
	Name        string      `json:"name"`
	Country     string      `json:"country"`
	Timezone    string      `json:"timezone"`
	ID          string      `json:"id"`
	Coordinates Coordinates `json:"coordinates"`
}

// WeatherSnapshot holds current conditions for one coordinate pair.
type WeatherSnapshot struct {
	Temperature  float64 `json:"temperature"`
	TempMin      float64 `json:"temp_min"`
	TempMax      float64 `json:"temp_max"`
	Humidity     int     `json:"humidity"`
	PressureHPa  int     `json:"pressure_hpa"`
	WindSpeed    float64 `json:"wind_speed"`
	Description  string  `json:"description"`
	IconID       string  `json:"icon_id"`
	LocationName string  `json:"location_name"`
}

// flexString decodes a JSON string or number into its textual form.
// The search endpoint is not consistent about geoname_id.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

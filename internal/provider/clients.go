package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const httpTimeout = 10 * time.Second

// newHTTPClient returns an http.Client with a 10-second timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// doGet performs a GET request and decodes the JSON response into dst.
// endpoint names the collaborator in errors; the raw URL is never included
// because it may carry an API key.
func doGet(ctx context.Context, client *http.Client, endpoint, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &FetchError{Endpoint: endpoint, Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return &FetchError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &FetchError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}

	return nil
}

// ---- OpenDataSoft city search ----

const (
	citySearchEndpoint   = "city search"
	citySearchDefaultURL = "https://public.opendatasoft.com/api/records/1.0/search/"

	// CityDataset is the fixed dataset identifier sent with every search.
	CityDataset = "geonames-all-cities-with-a-population-1000"
)

// CityClient searches cities on the OpenDataSoft records API.
type CityClient struct {
	baseURL string
	client  *http.Client
}

// NewCityClient constructs a CityClient using the production URL.
func NewCityClient() *CityClient {
	return &CityClient{baseURL: citySearchDefaultURL, client: newHTTPClient()}
}

// NewCityClientWithURL constructs a CityClient pointing at a custom base URL (for tests).
func NewCityClientWithURL(baseURL string) *CityClient {
	return &CityClient{baseURL: baseURL, client: newHTTPClient()}
}

type citySearchResponse struct {
	Records []struct {
		Fields struct {
			Name        string     `json:"name"`
			Country     string     `json:"cou_name_en"`
			Timezone    string     `json:"timezone"`
			GeonameID   flexString `json:"geoname_id"`
			Coordinates []float64  `json:"coordinates"`
		} `json:"fields"`
	} `json:"records"`
}

// Search returns up to rows cities matching query, starting at offset start.
// An empty query yields the endpoint's default ordering.
func (c *CityClient) Search(ctx context.Context, query string, start, rows int) ([]CitySummary, error) {
	params := url.Values{}
	params.Set("dataset", CityDataset)
	params.Set("q", query)
	params.Set("rows", strconv.Itoa(rows))
	params.Set("start", strconv.Itoa(start))

	var raw citySearchResponse
	if err := doGet(ctx, c.client, citySearchEndpoint, c.baseURL+"?"+params.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("searching cities %q at %d: %w", query, start, err)
	}

	cities := make([]CitySummary, 0, len(raw.Records))
	for _, r := range raw.Records {
		f := r.Fields
		city := CitySummary{
			Name:     f.Name,
			Country:  f.Country,
			Timezone: f.Timezone,
			ID:       string(f.GeonameID),
		}
		if len(f.Coordinates) >= 2 {
			city.Coordinates = Coordinates{Lat: f.Coordinates[0], Lon: f.Coordinates[1]}
		}
		cities = append(cities, city)
	}

	return cities, nil
}

// ---- OpenWeatherMap ----

const (
	weatherEndpoint = "openweathermap"
	owmDefaultURL   = "https://api.openweathermap.org/data/2.5/weather"
)

// ErrMissingAPIKey is returned by WeatherClient.Current when no key was configured.
var ErrMissingAPIKey = errors.New("openweathermap api key is not configured")

// WeatherClient fetches current weather from OpenWeatherMap.
type WeatherClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewWeatherClient constructs a WeatherClient with the given API key.
func NewWeatherClient(apiKey string) *WeatherClient {
	return &WeatherClient{apiKey: apiKey, baseURL: owmDefaultURL, client: newHTTPClient()}
}

// NewWeatherClientWithURL constructs a WeatherClient pointing at a custom base URL (for tests).
func NewWeatherClientWithURL(baseURL, apiKey string) *WeatherClient {
	return &WeatherClient{apiKey: apiKey, baseURL: baseURL, client: newHTTPClient()}
}

type owmResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		TempMin  float64 `json:"temp_min"`
		TempMax  float64 `json:"temp_max"`
		Humidity int     `json:"humidity"`
		Pressure int     `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
}

// Current retrieves current conditions for the given coordinates in metric units.
func (c *WeatherClient) Current(ctx context.Context, lat, lon float64) (*WeatherSnapshot, error) {
	if c.apiKey == "" {
		return nil, &FetchError{Endpoint: weatherEndpoint, Err: ErrMissingAPIKey}
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")

	var raw owmResponse
	if err := doGet(ctx, c.client, weatherEndpoint, c.baseURL+"?"+params.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("current weather at %g,%g: %w", lat, lon, err)
	}

	snap := &WeatherSnapshot{
		Temperature:  raw.Main.Temp,
		TempMin:      raw.Main.TempMin,
		TempMax:      raw.Main.TempMax,
		Humidity:     raw.Main.Humidity,
		PressureHPa:  raw.Main.Pressure,
		WindSpeed:    raw.Wind.Speed,
		LocationName: raw.Name,
	}
	if len(raw.Weather) > 0 {
		snap.Description = raw.Weather[0].Description
		snap.IconID = raw.Weather[0].Icon
	}

	return snap, nil
}

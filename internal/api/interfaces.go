package api

import (
	"context"

	"github.com/neexbeast/city-weather/internal/provider"
	"github.com/neexbeast/city-weather/internal/search"
)

// SessionStore defines the list-view session operations needed by handlers.
type SessionStore interface {
	Create() (string, *search.Controller)
	Get(id string) (*search.Controller, error)
	Delete(id string) error
	Len() int
}

// WeatherFetcher defines the current-conditions lookup needed by the detail view.
type WeatherFetcher interface {
	Current(ctx context.Context, lat, lon float64) (*provider.WeatherSnapshot, error)
}

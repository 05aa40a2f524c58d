// Package weather implements the detail viewer: a one-shot fetch of current
// conditions for the coordinate pair carried by a navigation message.
package weather

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/neexbeast/city-weather/internal/provider"
)

// ErrorMessage is shown to the user whenever the fetch fails.
const ErrorMessage = "Failed to fetch weather data. Please try again later."

// Fetcher is satisfied by provider.WeatherClient, which carries the API key
// it was constructed with.
type Fetcher interface {
	Current(ctx context.Context, lat, lon float64) (*provider.WeatherSnapshot, error)
}

// Status is one of the viewer's mutually exclusive render states.
type Status string

const (
	StatusLoading Status = "loading"
	StatusError   Status = "error"
	StatusLoaded  Status = "loaded"
)

// View is what the detail screen renders.
type View struct {
	Status  Status                    `json:"status"`
	Nav     *Nav                      `json:"nav,omitempty"`
	Weather *provider.WeatherSnapshot `json:"weather,omitempty"`
	Message string                    `json:"message,omitempty"`
}

// Title is the heading of the detail screen.
func (v View) Title() string {
	name := ""
	if v.Weather != nil {
		name = v.Weather.LocationName
	}
	if name == "" && v.Nav != nil {
		name = v.Nav.DisplayName
	}
	return "Weather in " + name
}

// IconURL returns the image URL for the snapshot's icon, or "" when absent.
func (v View) IconURL() string {
	if v.Weather == nil || v.Weather.IconID == "" {
		return ""
	}
	return IconURL(v.Weather.IconID)
}

// IconURL returns the OpenWeatherMap image URL for an icon identifier.
func IconURL(iconID string) string {
	return "https://openweathermap.org/img/wn/" + iconID + "@2x.png"
}

// FormatTemperature renders a Celsius reading, e.g. "15°C".
func FormatTemperature(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64) + "°C"
}

// Viewer tracks the coordinate pair last navigated to and its view.
type Viewer struct {
	fetcher Fetcher
	log     *slog.Logger

	mu      sync.Mutex
	current *Nav
	view    View
}

// NewViewer constructs a Viewer. A nil logger discards output.
func NewViewer(fetcher Fetcher, log *slog.Logger) *Viewer {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Viewer{
		fetcher: fetcher,
		log:     log,
		view:    View{Status: StatusLoading},
	}
}

// View returns the current render state.
func (v *Viewer) View() View {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.view
}

// Navigate delivers navigation parameters to the viewer. Parameters without
// a valid pair leave the viewer loading. A pair different from the last one
// triggers exactly one fetch, which Navigate waits for; the same pair is
// served from the existing view with no new request.
func (v *Viewer) Navigate(ctx context.Context, p NavParams) View {
	nav, err := ParseNav(p)
	if err != nil {
		v.log.Debug("navigation not ready", "err", err)
		return v.View()
	}

	v.mu.Lock()
	if v.current != nil && v.current.samePair(nav) {
		view := v.view
		v.mu.Unlock()
		return view
	}
	v.current = &nav
	v.view = View{Status: StatusLoading, Nav: &nav}
	v.mu.Unlock()

	snap, err := v.fetcher.Current(ctx, nav.Lat, nav.Lon)

	v.mu.Lock()
	defer v.mu.Unlock()

	// A newer pair took over while this one was in flight.
	if v.current == nil || !v.current.samePair(nav) {
		return v.view
	}

	if err != nil {
		attrs := []any{"lat", nav.Lat, "lon", nav.Lon, "err", err}
		var fe *provider.FetchError
		if errors.As(err, &fe) && fe.Status != 0 {
			attrs = append(attrs, "status", fe.Status)
		}
		v.log.Error("fetching weather failed", attrs...)
		v.view = View{Status: StatusError, Nav: &nav, Message: ErrorMessage}
		return v.view
	}

	v.view = View{Status: StatusLoaded, Nav: &nav, Weather: snap}
	return v.view
}

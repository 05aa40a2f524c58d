package weather

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrNotReady marks navigation parameters that do not yet carry a usable
// coordinate pair. It is a waiting state, not a failure.
var ErrNotReady = errors.New("coordinates not ready")

// NavParams are the string-encoded parameters carried by a row selection.
type NavParams struct {
	Lat  string `validate:"required,latitude"`
	Lon  string `validate:"required,longitude"`
	Name string
}

// Nav is the typed navigation message the viewer works from.
type Nav struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name"`
}

// ParseNav validates and converts raw navigation parameters. Missing or
// unparseable coordinates yield an error wrapping ErrNotReady.
func ParseNav(p NavParams) (Nav, error) {
	if err := validate.Struct(p); err != nil {
		return Nav{}, fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return Nav{}, fmt.Errorf("%w: lat: %v", ErrNotReady, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return Nav{}, fmt.Errorf("%w: lon: %v", ErrNotReady, err)
	}

	return Nav{Lat: lat, Lon: lon, DisplayName: p.Name}, nil
}

// Params encodes n back into navigation parameters.
func (n Nav) Params() NavParams {
	return NavParams{
		Lat:  strconv.FormatFloat(n.Lat, 'f', -1, 64),
		Lon:  strconv.FormatFloat(n.Lon, 'f', -1, 64),
		Name: n.DisplayName,
	}
}

func (n Nav) samePair(o Nav) bool {
	return n.Lat == o.Lat && n.Lon == o.Lon
}

// Package geocode resolves tracked location addresses to coordinates.
package geocode

import (
	"fmt"
	"strings"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/knmi-point-weather/internal/weather"
)

// Address names a tracked location by city and country.
type Address struct {
	Name    string
	City    string
	Country string
}

// LookupFunc resolves one address. geocoder.Geocoding satisfies it.
type LookupFunc func(geocoder.Address) (geocoder.Location, error)

// Resolver turns addresses into weather locations via the Google geocoding
// API.
type Resolver struct {
	lookup LookupFunc
}

// NewResolver configures the geocoder with the API key.
func NewResolver(apiKey string) *Resolver {
	geocoder.ApiKey = apiKey
	return &Resolver{lookup: geocoder.Geocoding}
}

// Resolve geocodes every address. The first failure aborts.
func (r *Resolver) Resolve(addrs []Address) ([]weather.Location, error) {
	out := make([]weather.Location, 0, len(addrs))
	for _, a := range addrs {
		loc, err := r.lookup(geocoder.Address{City: a.City, Country: a.Country})
		if err != nil {
			return nil, fmt.Errorf("geocode %s, %s: %w", a.City, a.Country, err)
		}
		name := a.Name
		if name == "" {
			name = strings.TrimSpace(a.City)
		}
		out = append(out, weather.Location{Name: name, Lat: loc.Latitude, Lon: loc.Longitude})
	}
	return out, nil
}

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/knmi-point-weather/internal/common"
	"github.com/i474232898/knmi-point-weather/internal/geocode"
	"github.com/i474232898/knmi-point-weather/internal/weather"
)

type AppConfig struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`

	// KNMI source.
	KNMIBaseURL        string        `envconfig:"KNMI_BASE_URL" default:"https://www.daggegevens.knmi.nl/klimatologie/uurgegevens"`
	KNMIChunkWidth     time.Duration `envconfig:"KNMI_CHUNK_WIDTH" default:"672h"`
	KNMIMaxRetries     int           `envconfig:"KNMI_MAX_RETRIES" default:"0"`
	KNMIMaxConcurrency int           `envconfig:"KNMI_MAX_CONCURRENCY" default:"4"`
	HTTPTimeout        time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s"`

	// Pipeline defaults.
	PipelineConcurrency   int    `envconfig:"PIPELINE_CONCURRENCY" default:"8"`
	DefaultCadenceMinutes int    `envconfig:"DEFAULT_CADENCE_MINUTES" default:"15"`
	DefaultTimezone       string `envconfig:"DEFAULT_TIMEZONE" default:"Europe/Amsterdam"`

	// FetchInterval controls how often tracked locations are refreshed and
	// FetchWindow how far back each refresh reaches.
	FetchInterval time.Duration `envconfig:"FETCH_INTERVAL" default:"1h"`
	FetchWindow   time.Duration `envconfig:"FETCH_WINDOW" default:"48h"`
	FetchTimeout  time.Duration `envconfig:"FETCH_TIMEOUT" default:"2m"`

	// Store selection and retention.
	StoreDriver     string        `envconfig:"STORE_DRIVER" default:"memory"`
	StoreSQLitePath string        `envconfig:"STORE_SQLITE_PATH" default:"data/weather.db"`
	StoreMaxHistory int           `envconfig:"STORE_MAX_HISTORY" default:"168"` // snapshots per location (0 = unlimited)
	StoreMaxAge     time.Duration `envconfig:"STORE_MAX_AGE" default:"168h"`    // 0 = unlimited

	// Locations to track, given directly or as addresses to geocode.
	Locations         LocationList `envconfig:"WEATHER_LOCATIONS"`
	GeocoderAPIKey    string       `envconfig:"GEOCODER_API_KEY"`
	LocationAddresses AddressList  `envconfig:"WEATHER_LOCATION_ADDRESSES"`

	Zone *time.Location `ignored:"true"`
}

// IsProduction reports whether APP_ENV selects production logging.
func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "prod") || strings.EqualFold(c.AppEnv, "production")
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Err(err).Msg("no .env file loaded")
	}
	return FromEnv()
}

// FromEnv parses and validates the process environment.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	zone, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE: %w", err)
	}
	cfg.Zone = zone
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.KNMIChunkWidth < 24*time.Hour || c.KNMIChunkWidth%(24*time.Hour) != 0 {
		return fmt.Errorf("invalid KNMI_CHUNK_WIDTH %s: must be whole days", c.KNMIChunkWidth)
	}
	if c.KNMIMaxRetries < 0 {
		return fmt.Errorf("invalid KNMI_MAX_RETRIES: must not be negative")
	}
	if c.KNMIMaxConcurrency < 1 || c.PipelineConcurrency < 1 {
		return fmt.Errorf("KNMI_MAX_CONCURRENCY and PIPELINE_CONCURRENCY must be at least 1")
	}
	if c.DefaultCadenceMinutes < 1 {
		return fmt.Errorf("invalid DEFAULT_CADENCE_MINUTES: must be at least 1")
	}
	if c.FetchWindow <= 0 {
		return fmt.Errorf("invalid FETCH_WINDOW: must be positive")
	}
	switch c.StoreDriver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want memory or sqlite", c.StoreDriver)
	}
	if len(c.LocationAddresses) > 0 && c.GeocoderAPIKey == "" {
		return fmt.Errorf("WEATHER_LOCATION_ADDRESSES requires GEOCODER_API_KEY")
	}
	return nil
}

// LocationList decodes "name:lat:lon,name:lat:lon".
type LocationList []weather.Location

func (l *LocationList) Decode(value string) error {
	var out LocationList
	for _, item := range common.SplitList(value, ",") {
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return fmt.Errorf("location %q: want name:lat:lon", item)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || lat < -90 || lat > 90 {
			return fmt.Errorf("location %q: invalid latitude", item)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil || lon < -180 || lon > 180 {
			return fmt.Errorf("location %q: invalid longitude", item)
		}
		out = append(out, weather.Location{Name: strings.TrimSpace(parts[0]), Lat: lat, Lon: lon})
	}
	*l = out
	return nil
}

// AddressList decodes "name=city;country,...". The name is optional.
type AddressList []geocode.Address

func (l *AddressList) Decode(value string) error {
	var out AddressList
	for _, item := range common.SplitList(value, ",") {
		var a geocode.Address
		if name, rest, ok := strings.Cut(item, "="); ok {
			a.Name = strings.TrimSpace(name)
			item = rest
		}
		city, country, ok := strings.Cut(item, ";")
		if !ok || strings.TrimSpace(city) == "" {
			return fmt.Errorf("address %q: want [name=]city;country", item)
		}
		a.City = strings.TrimSpace(city)
		a.Country = strings.TrimSpace(country)
		out = append(out, a)
	}
	*l = out
	return nil
}

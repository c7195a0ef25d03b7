package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DEFAULT_TIMEZONE", "UTC")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.KNMIChunkWidth != 28*24*time.Hour || cfg.DefaultCadenceMinutes != 15 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.StoreDriver != "memory" || cfg.FetchWindow != 48*time.Hour || cfg.Zone != time.UTC {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.IsProduction() {
		t.Fatal("expected dev environment by default")
	}
}

func TestFromEnvLocations(t *testing.T) {
	t.Setenv("DEFAULT_TIMEZONE", "UTC")
	t.Setenv("WEATHER_LOCATIONS", "De Bilt:52.1:5.18, Eelde:53.12:6.58")
	t.Setenv("WEATHER_LOCATION_ADDRESSES", "office=Utrecht;NL,Delft;Netherlands")
	t.Setenv("GEOCODER_API_KEY", "key")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Locations) != 2 || cfg.Locations[1].Name != "Eelde" || cfg.Locations[1].Lat != 53.12 {
		t.Fatalf("unexpected locations: %+v", cfg.Locations)
	}
	addrs := cfg.LocationAddresses
	if len(addrs) != 2 || addrs[0].Name != "office" || addrs[0].City != "Utrecht" || addrs[1].Name != "" || addrs[1].Country != "Netherlands" {
		t.Fatalf("unexpected addresses: %+v", addrs)
	}
}

func TestFromEnvInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"location":     {"WEATHER_LOCATIONS": "De Bilt:52.1"},
		"latitude":     {"WEATHER_LOCATIONS": "x:123:5"},
		"chunk width":  {"KNMI_CHUNK_WIDTH": "36h"},
		"cadence":      {"DEFAULT_CADENCE_MINUTES": "0"},
		"store driver": {"STORE_DRIVER": "postgres"},
		"timezone":     {"DEFAULT_TIMEZONE": "Mars/Olympus"},
		"duration":     {"FETCH_INTERVAL": "soon"},
		"missing key":  {"WEATHER_LOCATION_ADDRESSES": "Utrecht;NL"},
		"bad address":  {"WEATHER_LOCATION_ADDRESSES": "Utrecht", "GEOCODER_API_KEY": "key"},
		"retries":      {"KNMI_MAX_RETRIES": "-1"},
		"concurrency":  {"PIPELINE_CONCURRENCY": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DEFAULT_TIMEZONE", "UTC")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %v", env)
			}
		})
	}
}

package weather

import (
	"fmt"
	"strings"
)

// MetricSpec maps a KNMI source code to an output column and unit factor.
type MetricSpec struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Scale float64 `json:"scale"`
}

// MetricSet is an ordered set of requested metrics.
type MetricSet []MetricSpec

// Codes returns the source codes in request order.
func (m MetricSet) Codes() []string {
	out := make([]string, len(m))
	for i, s := range m {
		out[i] = s.Code
	}
	return out
}

// Names returns the output names in request order.
func (m MetricSet) Names() []string {
	out := make([]string, len(m))
	for i, s := range m {
		out[i] = s.Name
	}
	return out
}

// Validate checks that the set is non-empty and that codes and output names
// are unique.
func (m MetricSet) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("%w: no metrics requested", ErrInvalidRequest)
	}
	codes := make(map[string]bool, len(m))
	names := make(map[string]bool, len(m))
	for _, s := range m {
		if s.Code == "" || s.Name == "" {
			return fmt.Errorf("%w: metric code and name must not be empty", ErrInvalidRequest)
		}
		if codes[s.Code] {
			return fmt.Errorf("%w: duplicate metric code %q", ErrInvalidRequest, s.Code)
		}
		if names[s.Name] {
			return fmt.Errorf("%w: duplicate output name %q", ErrInvalidRequest, s.Name)
		}
		codes[s.Code] = true
		names[s.Name] = true
	}
	return nil
}

// DefaultMetrics returns the standard hourly metric table with conversions
// to SI units.
func DefaultMetrics() MetricSet {
	return MetricSet{
		// Temperature at 1.5 m in 0.1 degC.
		{Code: "T", Name: "temp_outdoor__degC", Scale: 0.1},
		// Hourly mean wind speed in 0.1 m/s.
		{Code: "FH", Name: "wind__m_s_1", Scale: 0.1},
		// Global radiation in J/cm2 per hour, converted to W/m2.
		{Code: "Q", Name: "sol_ghi__W_m_2", Scale: (100 * 100) / (60 * 60.0)},
		// Air pressure in 0.1 hPa, converted to Pa.
		{Code: "P", Name: "air_outdoor__Pa", Scale: 0.1 * 100},
		// Relative humidity in percent, converted to a fraction.
		{Code: "U", Name: "air_outdoor_rel_humidity__0", Scale: 1 / 100.0},
	}
}

// SelectMetrics picks entries of the default table by source code.
// An empty selection returns the full table.
func SelectMetrics(codes []string) (MetricSet, error) {
	all := DefaultMetrics()
	if len(codes) == 0 {
		return all, nil
	}
	byCode := make(map[string]MetricSpec, len(all))
	for _, s := range all {
		byCode[s.Code] = s
	}
	out := make(MetricSet, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		s, ok := byCode[c]
		if !ok {
			return nil, fmt.Errorf("%w: unknown metric code %q", ErrInvalidRequest, c)
		}
		out = append(out, s)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

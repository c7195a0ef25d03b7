package weather

import (
	"fmt"
	"math"
	"time"
)

// Location is a named target point for which interpolated weather is tracked.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	if l.Name != "" {
		return l.Name
	}
	return fmt.Sprintf("%.6f:%.6f", l.Lat, l.Lon)
}

// TimeInterval is a closed [Start, End] range. The zone of Start is the
// caller's target zone for returned timestamps.
type TimeInterval struct {
	Start time.Time
	End   time.Time
}

// Validate rejects intervals whose end precedes their start.
func (iv TimeInterval) Validate() error {
	if iv.End.Before(iv.Start) {
		return fmt.Errorf("%w: end %s is before start %s",
			ErrInvalidInterval, iv.End.Format(time.RFC3339), iv.Start.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t lies within the closed interval.
func (iv TimeInterval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.End)
}

// StationRecord is one row of the station table in a KNMI response.
type StationRecord struct {
	ID   int     `json:"id"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Alt  float64 `json:"alt"`
	Name string  `json:"name"`
}

// StationCatalog maps station ids to their records.
type StationCatalog map[int]StationRecord

// Lookup returns the coordinates of a station.
func (c StationCatalog) Lookup(id int) (lat, lon float64, ok bool) {
	s, ok := c[id]
	if !ok {
		return 0, 0, false
	}
	return s.Lat, s.Lon, true
}

// ObservationRow is a raw hourly observation of one station.
// Values are aligned with Chunk.Codes; NaN marks a missing value.
type ObservationRow struct {
	StationID int
	Timestamp time.Time // always UTC
	Values    []float64
}

// Chunk is the parsed content of a single source response.
type Chunk struct {
	From     time.Time
	To       time.Time
	Codes    []string
	Stations StationCatalog
	Rows     []ObservationRow
}

// Observation is an assembled, complete row of a Dataset.
type Observation struct {
	Timestamp time.Time
	Lat       float64
	Lon       float64
	Values    []float64 // aligned with Dataset.Metrics
}

// Dataset is the assembled spatial-temporal table, sorted by
// (timestamp, lat, lon) with no duplicate key.
type Dataset struct {
	Metrics []string
	Rows    []Observation
}

// Len returns the number of rows.
func (d Dataset) Len() int {
	return len(d.Rows)
}

// Timestamps returns the distinct timestamps in ascending order.
func (d Dataset) Timestamps() []time.Time {
	var out []time.Time
	for i, r := range d.Rows {
		if i == 0 || !r.Timestamp.Equal(d.Rows[i-1].Timestamp) {
			out = append(out, r.Timestamp)
		}
	}
	return out
}

// Slices splits the rows into consecutive runs sharing one timestamp.
func (d Dataset) Slices() [][]Observation {
	var out [][]Observation
	start := 0
	for i := 1; i <= len(d.Rows); i++ {
		if i == len(d.Rows) || !d.Rows[i].Timestamp.Equal(d.Rows[start].Timestamp) {
			if i > start {
				out = append(out, d.Rows[start:i])
			}
			start = i
		}
	}
	return out
}

// Point is an interpolated value of one metric at the (implicit) target
// location.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
}

// Request describes one pipeline invocation.
type Request struct {
	Interval       TimeInterval
	Lat            float64
	Lon            float64
	Metrics        MetricSet
	CadenceMinutes int
}

// Validate checks the request before any network traffic happens.
func (r Request) Validate() error {
	if err := r.Interval.Validate(); err != nil {
		return err
	}
	if math.IsNaN(r.Lat) || r.Lat < -90 || r.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidRequest, r.Lat)
	}
	if math.IsNaN(r.Lon) || r.Lon < -180 || r.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidRequest, r.Lon)
	}
	if r.CadenceMinutes < 1 {
		return fmt.Errorf("%w: cadence must be at least 1 minute", ErrInvalidRequest)
	}
	return r.Metrics.Validate()
}

// Snapshot is the stored result of one refresh of a tracked location.
type Snapshot struct {
	Location  Location  `json:"location"`
	RunID     string    `json:"runId"`
	FetchedAt time.Time `json:"fetchedAt"`
	Points    []Point   `json:"points"`
}

package weather

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
)

type obsKey struct {
	unix     int64
	lat, lon float64
}

// Assemble joins chunk rows to station coordinates, converts the requested
// metrics to their output units and keeps only complete rows inside the
// interval. Timestamps are converted to the zone of interval.Start and the
// result is sorted by (timestamp, lat, lon).
//
// When two stations share a position and timestamp but disagree on a value,
// the row from the earlier chunk is kept. An interval without usable rows
// yields an empty dataset.
func Assemble(chunks []Chunk, metrics MetricSet, interval TimeInterval, log zerolog.Logger) (Dataset, error) {
	if err := interval.Validate(); err != nil {
		return Dataset{}, err
	}
	if err := metrics.Validate(); err != nil {
		return Dataset{}, err
	}

	zone := interval.Start.Location()

	stations := make(StationCatalog)
	for _, ch := range chunks {
		for id, s := range ch.Stations {
			if _, ok := stations[id]; !ok {
				stations[id] = s
			}
		}
	}

	var (
		rows        []Observation
		seen        = make(map[obsKey]int)
		unknown     int
		incomplete  int
		outside     int
		duplicates  int
		conflicting int
	)

	for _, ch := range chunks {
		log.Debug().
			Str("from", ch.From.Format("20060102")).
			Str("to", ch.To.Format("20060102")).
			Int("stations", len(ch.Stations)).
			Int("rows", len(ch.Rows)).
			Msg("assembling chunk")
		cols := columnIndex(ch.Codes, metrics)

		for _, r := range ch.Rows {
			lat, lon, ok := stations.Lookup(r.StationID)
			if !ok {
				unknown++
				continue
			}
			if !interval.Contains(r.Timestamp) {
				outside++
				continue
			}

			values, ok := scaledValues(r.Values, cols, metrics)
			if !ok {
				incomplete++
				continue
			}

			k := obsKey{unix: r.Timestamp.Unix(), lat: lat, lon: lon}
			if i, dup := seen[k]; dup {
				if equalValues(rows[i].Values, values) {
					duplicates++
				} else {
					conflicting++
				}
				continue
			}
			seen[k] = len(rows)
			rows = append(rows, Observation{
				Timestamp: r.Timestamp.In(zone),
				Lat:       lat,
				Lon:       lon,
				Values:    values,
			})
		}
	}

	if conflicting > 0 {
		log.Warn().Int("rows", conflicting).Msg("conflicting observations for the same station position and time; kept the first")
	}
	log.Debug().
		Int("kept", len(rows)).
		Int("unknown_station", unknown).
		Int("missing_value", incomplete).
		Int("outside_interval", outside).
		Int("duplicate", duplicates).
		Msg("observations assembled")

	if len(rows) == 0 {
		log.Info().
			Time("start", interval.Start).
			Time("end", interval.End).
			Int("chunks", len(chunks)).
			Msg("no station data in interval")
		return Dataset{Metrics: metrics.Names()}, nil
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Lat != b.Lat {
			return a.Lat < b.Lat
		}
		return a.Lon < b.Lon
	})

	return Dataset{Metrics: metrics.Names(), Rows: rows}, nil
}

// columnIndex returns, per requested metric, its column in a chunk or -1.
func columnIndex(codes []string, metrics MetricSet) []int {
	pos := make(map[string]int, len(codes))
	for i, c := range codes {
		pos[c] = i
	}
	out := make([]int, len(metrics))
	for i, m := range metrics {
		j, ok := pos[m.Code]
		if !ok {
			j = -1
		}
		out[i] = j
	}
	return out
}

func scaledValues(raw []float64, cols []int, metrics MetricSet) ([]float64, bool) {
	out := make([]float64, len(metrics))
	for i, c := range cols {
		if c < 0 || c >= len(raw) || math.IsNaN(raw[c]) {
			return nil, false
		}
		out[i] = raw[c] * metrics[i].Scale
	}
	return out, true
}

func equalValues(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

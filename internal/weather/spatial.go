package weather

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/knmi-point-weather/internal/geo"
)

// InterpolateSpatial evaluates every metric of the dataset at (lat, lon),
// fitting one surface per timestamp and metric. Timestamps are processed
// concurrently, at most limit at a time. Fits that cannot be solved are
// logged and left out.
func InterpolateSpatial(ctx context.Context, ds Dataset, lat, lon float64, limit int, log zerolog.Logger) ([]Point, error) {
	slices := ds.Slices()
	results := make([][]Point, len(slices))
	target := geo.Point2D{X: lat, Y: lon}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, rows := range slices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = interpolateSlice(rows, ds.Metrics, target, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("spatial interpolation cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("spatial interpolation cancelled: %w", err)
	}

	var out []Point
	for _, pts := range results {
		out = append(out, pts...)
	}
	SortPoints(out)
	return out, nil
}

func interpolateSlice(rows []Observation, metrics []string, target geo.Point2D, log zerolog.Logger) []Point {
	pts := make([]geo.Point2D, len(rows))
	for i, r := range rows {
		pts[i] = geo.Point2D{X: r.Lat, Y: r.Lon}
	}
	ts := rows[0].Timestamp

	out := make([]Point, 0, len(metrics))
	values := make([]float64, len(rows))
	for m, name := range metrics {
		for i, r := range rows {
			values[i] = r.Values[m]
		}
		surface, err := geo.FitRBF(pts, values)
		if err != nil {
			ev := log.Warn()
			if !errors.Is(err, geo.ErrSingular) {
				ev = log.Error()
			}
			ev.Err(err).Time("timestamp", ts).Str("metric", name).Int("stations", len(rows)).
				Msg("skipping interpolation point")
			continue
		}
		out = append(out, Point{
			Timestamp: ts,
			Metric:    name,
			Value:     float64(float32(surface.At(target))),
		})
	}
	return out
}

// SortPoints orders points by (timestamp, metric).
func SortPoints(pts []Point) {
	sort.SliceStable(pts, func(i, j int) bool {
		if !pts[i].Timestamp.Equal(pts[j].Timestamp) {
			return pts[i].Timestamp.Before(pts[j].Timestamp)
		}
		return pts[i].Metric < pts[j].Metric
	})
}

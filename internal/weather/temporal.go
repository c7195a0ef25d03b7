package weather

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/knmi-point-weather/internal/timeseries"
)

// ResampleTemporal converts each metric series of pts to the cadence in
// minutes. Metrics are resampled concurrently, at most limit at a time.
// Series with fewer than 2 samples are passed through unchanged.
func ResampleTemporal(ctx context.Context, pts []Point, cadenceMin, limit int, log zerolog.Logger) ([]Point, error) {
	if cadenceMin < 1 {
		return nil, fmt.Errorf("%w: cadence must be at least 1 minute", ErrInvalidRequest)
	}

	var names []string
	series := make(map[string][]timeseries.Sample)
	for _, p := range pts {
		if _, ok := series[p.Metric]; !ok {
			names = append(names, p.Metric)
		}
		series[p.Metric] = append(series[p.Metric], timeseries.Sample{T: p.Timestamp, V: p.Value})
	}

	results := make([][]Point, len(names))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			in := series[name]
			if len(in) < 2 {
				log.Debug().Str("metric", name).Int("samples", len(in)).Msg("series too short to resample")
			}
			resampled, err := timeseries.Resample(in, cadenceMin)
			if err != nil {
				return fmt.Errorf("resample %s: %w", name, err)
			}
			out := make([]Point, len(resampled))
			for j, s := range resampled {
				out[j] = Point{Timestamp: s.T, Metric: name, Value: s.V}
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("temporal interpolation cancelled: %w", ctx.Err())
		}
		return nil, err
	}

	var out []Point
	for _, r := range results {
		out = append(out, r...)
	}
	SortPoints(out)
	return out, nil
}

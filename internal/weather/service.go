package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	// Concurrency bounds the per-timestamp and per-metric workers of one run.
	Concurrency int
	// Metrics and CadenceMinutes are used for scheduled refreshes and for
	// requests that do not name their own.
	Metrics        MetricSet
	CadenceMinutes int
	// Zone is the output zone of scheduled refreshes.
	Zone *time.Location
	// Window is the trailing span covered by a scheduled refresh.
	Window time.Duration
	Logger *zerolog.Logger
	// Now is overridden in tests.
	Now func() time.Time
}

// Service runs the interpolation pipeline against a Source and keeps
// snapshots of tracked locations in a Store.
type Service struct {
	source Source
	store  Store

	concurrency int
	metrics     MetricSet
	cadence     int
	zone        *time.Location
	window      time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewService creates a new Service.
func NewService(source Source, store Store, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if len(opts.Metrics) == 0 {
		opts.Metrics = DefaultMetrics()
	}
	if opts.CadenceMinutes <= 0 {
		opts.CadenceMinutes = 15
	}
	if opts.Zone == nil {
		opts.Zone = time.UTC
	}
	if opts.Window <= 0 {
		opts.Window = 48 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Service{
		source:      source,
		store:       store,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		cadence:     opts.CadenceMinutes,
		zone:        opts.Zone,
		window:      opts.Window,
		now:         opts.Now,
		log:         logger.With().Str("component", "weather").Logger(),
	}
}

// Metrics returns the default metric set.
func (s *Service) Metrics() MetricSet {
	return s.metrics
}

// DefaultCadence returns the default output cadence in minutes.
func (s *Service) DefaultCadence() int {
	return s.cadence
}

// Zone returns the default output zone.
func (s *Service) Zone() *time.Location {
	return s.zone
}

// Interpolate fetches station observations for the request interval and
// returns the metrics interpolated at the target location, resampled to the
// requested cadence. Timestamps are in the zone of req.Interval.Start.
//
// The request is validated before anything is fetched.
func (s *Service) Interpolate(ctx context.Context, req Request) ([]Point, error) {
	if len(req.Metrics) == 0 {
		req.Metrics = s.metrics
	}
	if req.CadenceMinutes == 0 {
		req.CadenceMinutes = s.cadence
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.run(ctx, req, s.log.With().Str("run_id", uuid.NewString()).Logger())
}

func (s *Service) run(ctx context.Context, req Request, log zerolog.Logger) ([]Point, error) {
	started := time.Now()
	log.Info().
		Time("start", req.Interval.Start).
		Time("end", req.Interval.End).
		Float64("lat", req.Lat).
		Float64("lon", req.Lon).
		Strs("metrics", req.Metrics.Codes()).
		Int("cadence_min", req.CadenceMinutes).
		Msg("interpolation started")

	chunks, err := s.source.Fetch(ctx, req.Interval, req.Metrics.Codes())
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", s.source.Name(), err)
	}

	ds, err := Assemble(chunks, req.Metrics, req.Interval, log)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("interpolation cancelled: %w", err)
	}

	spatial, err := InterpolateSpatial(ctx, ds, req.Lat, req.Lon, s.concurrency, log)
	if err != nil {
		return nil, err
	}

	points, err := ResampleTemporal(ctx, spatial, req.CadenceMinutes, s.concurrency, log)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("chunks", len(chunks)).
		Int("rows", ds.Len()).
		Int("timestamps", len(ds.Timestamps())).
		Int("points", len(points)).
		Dur("took", time.Since(started)).
		Msg("interpolation finished")
	return points, nil
}

// FetchAndStore interpolates the trailing window for a tracked location and
// saves the result as a new snapshot. When no station data is available the
// last good snapshot is kept.
func (s *Service) FetchAndStore(ctx context.Context, loc Location) error {
	if s.store == nil {
		return fmt.Errorf("no store configured")
	}

	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Str("location", loc.Key()).Logger()

	end := s.now().In(s.zone).Truncate(time.Hour)
	req := Request{
		Interval:       TimeInterval{Start: end.Add(-s.window), End: end},
		Lat:            loc.Lat,
		Lon:            loc.Lon,
		Metrics:        s.metrics,
		CadenceMinutes: s.cadence,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	points, err := s.run(ctx, req, log)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		log.Warn().Msg("no station data in window; keeping last good snapshot")
		return nil
	}

	return s.store.SaveSnapshot(loc, Snapshot{
		Location:  loc,
		RunID:     runID,
		FetchedAt: s.now().UTC(),
		Points:    points,
	})
}

// GetLatest returns the newest stored snapshot with timestamps in the
// service zone.
func (s *Service) GetLatest(loc Location) (Snapshot, error) {
	snap, err := s.store.GetLatest(loc)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Points = s.inZone(snap.Points)
	return snap, nil
}

// GetRange returns stored points with timestamps in the service zone.
func (s *Service) GetRange(loc Location, from, to time.Time) ([]Point, error) {
	points, err := s.store.GetRange(loc, from, to)
	if err != nil {
		return nil, err
	}
	return s.inZone(points), nil
}

// inZone converts timestamps in place; stores may hand back UTC.
func (s *Service) inZone(points []Point) []Point {
	for i := range points {
		points[i].Timestamp = points[i].Timestamp.In(s.zone)
	}
	return points
}

package store

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/i474232898/knmi-point-weather/internal/weather"
)

var (
	base    = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	utrecht = weather.Location{Name: "Utrecht", Lat: 52.09, Lon: 5.12}
)

func snapshot(runID string, fetchedAt time.Time, offset time.Duration, values ...float64) weather.Snapshot {
	snap := weather.Snapshot{Location: utrecht, RunID: runID, FetchedAt: fetchedAt}
	for i, v := range values {
		snap.Points = append(snap.Points, weather.Point{
			Timestamp: base.Add(offset + time.Duration(i)*time.Hour),
			Metric:    "temp_outdoor__degC",
			Value:     v,
		})
	}
	return snap
}

func newSQLiteStore(t *testing.T, maxHistory int, maxAge time.Duration) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:", maxHistory, maxAge, zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return s
}

// storeContract runs the behaviour shared by every weather.Store.
func storeContract(t *testing.T, s weather.Store) {
	t.Helper()

	if _, err := s.GetLatest(utrecht); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetRange(utrecht, base, base.Add(time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.SaveSnapshot(utrecht, snapshot("run-1", base.Add(time.Hour), 0, 1, 2, 3)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveSnapshot(utrecht, snapshot("run-2", base.Add(2*time.Hour), time.Hour, 20, 30, 40)); err != nil {
		t.Fatalf("save: %v", err)
	}

	latest, err := s.GetLatest(utrecht)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.RunID != "run-2" || len(latest.Points) != 3 || latest.Points[0].Value != 20 {
		t.Fatalf("unexpected latest snapshot: %+v", latest)
	}
	if !latest.FetchedAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("unexpected fetch time %s", latest.FetchedAt)
	}

	points, err := s.GetRange(utrecht, base, base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	want := []float64{1, 20, 30, 40}
	if len(points) != len(want) {
		t.Fatalf("expected %d points, got %d: %+v", len(want), len(points), points)
	}
	for i, p := range points {
		if p.Value != want[i] || !p.Timestamp.Equal(base.Add(time.Duration(i)*time.Hour)) {
			t.Fatalf("point %d: expected %v at %s, got %+v", i, want[i], base.Add(time.Duration(i)*time.Hour), p)
		}
	}

	points, err = s.GetRange(utrecht, base.Add(90*time.Minute), base.Add(2*time.Hour))
	if err != nil || len(points) != 1 || points[0].Value != 30 {
		t.Fatalf("unexpected bounded range: %+v (%v)", points, err)
	}

	other := weather.Location{Name: "Vlissingen", Lat: 51.44, Lon: 3.6}
	if _, err := s.GetLatest(other); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other location, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(10, 0))
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, newSQLiteStore(t, 10, 0))
}

func retentionByAge(t *testing.T, s weather.Store) {
	t.Helper()
	for i := 0; i < 3; i++ {
		fetched := base.Add(time.Duration(i) * 24 * time.Hour)
		if err := s.SaveSnapshot(utrecht, snapshot("run", fetched, time.Duration(i)*24*time.Hour, float64(i))); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	points, err := s.GetRange(utrecht, base, base.Add(72*time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	// now is base+50h with a 36h max age: only the snapshots of day 1 and 2
	// survive.
	if len(points) != 2 || points[0].Value != 1 || points[1].Value != 2 {
		t.Fatalf("unexpected points after retention: %+v", points)
	}
}

func TestMemoryStoreRetention(t *testing.T) {
	s := NewMemoryStore(0, 36*time.Hour)
	s.now = func() time.Time { return base.Add(50 * time.Hour) }
	retentionByAge(t, s)

	s = NewMemoryStore(2, 0)
	for i := 0; i < 3; i++ {
		if err := s.SaveSnapshot(utrecht, snapshot("run", base, time.Duration(i)*time.Hour, float64(i))); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if n := len(s.data[utrecht.Key()].Snapshots); n != 2 {
		t.Fatalf("expected 2 snapshots, got %d", n)
	}
}

func TestSQLiteStoreRetention(t *testing.T) {
	s := newSQLiteStore(t, 0, 36*time.Hour)
	s.now = func() time.Time { return base.Add(50 * time.Hour) }
	retentionByAge(t, s)
}

func TestMemoryStoreKeepsNewestSnapshot(t *testing.T) {
	s := NewMemoryStore(0, time.Hour)
	s.now = func() time.Time { return base.Add(240 * time.Hour) }
	if err := s.SaveSnapshot(utrecht, snapshot("old", base, 0, 1)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.GetLatest(utrecht); err != nil {
		t.Fatalf("expected newest snapshot to survive retention, got %v", err)
	}
}

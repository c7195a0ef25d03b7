package weather

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// cornerDataset has four stations on the corners of a unit square with
// values linear in lat and lon, plus a second hour with a constant field.
func cornerDataset() Dataset {
	corners := [][2]float64{{52, 4}, {52, 5}, {53, 4}, {53, 5}}
	var rows []Observation
	for h := 0; h < 2; h++ {
		ts := day0.Add(time.Duration(h) * time.Hour)
		for _, c := range corners {
			temp := 10 + 2*(c[0]-52) + 4*(c[1]-4)
			if h == 1 {
				temp = 3
			}
			rows = append(rows, Observation{Timestamp: ts, Lat: c[0], Lon: c[1], Values: []float64{temp, 5}})
		}
	}
	return Dataset{Metrics: []string{"temp_outdoor__degC", "wind__m_s_1"}, Rows: rows}
}

func TestInterpolateSpatialCentroid(t *testing.T) {
	pts, err := InterpolateSpatial(context.Background(), cornerDataset(), 52.5, 4.5, 2, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pts) != 4 {
		t.Fatalf("expected 4 points, got %d", len(pts))
	}
	want := []Point{
		{Timestamp: day0, Metric: "temp_outdoor__degC", Value: 13},
		{Timestamp: day0, Metric: "wind__m_s_1", Value: 5},
		{Timestamp: day0.Add(time.Hour), Metric: "temp_outdoor__degC", Value: 3},
		{Timestamp: day0.Add(time.Hour), Metric: "wind__m_s_1", Value: 5},
	}
	for i, w := range want {
		p := pts[i]
		if !p.Timestamp.Equal(w.Timestamp) || p.Metric != w.Metric || math.Abs(p.Value-w.Value) > 1e-4 {
			t.Fatalf("point %d: expected %+v, got %+v", i, w, p)
		}
		if p.Value != float64(float32(p.Value)) {
			t.Fatalf("point %d: value %v not rounded to float32", i, p.Value)
		}
	}
}

func TestInterpolateSpatialDeterministic(t *testing.T) {
	ds := cornerDataset()
	a, err := InterpolateSpatial(context.Background(), ds, 52.3, 4.9, 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := InterpolateSpatial(context.Background(), ds, 52.3, 4.9, 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("length mismatch %d != %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("point %d differs: %+v != %+v", i, a[i], b[i])
		}
	}
}

func TestInterpolateSpatialSkipsSingularFit(t *testing.T) {
	// Three collinear stations cannot carry a linear tail.
	var rows []Observation
	for i, lon := range []float64{4, 5, 6} {
		rows = append(rows, Observation{Timestamp: day0, Lat: 52, Lon: lon, Values: []float64{float64(i)}})
	}
	rows = append(rows, Observation{Timestamp: day0.Add(time.Hour), Lat: 52, Lon: 4, Values: []float64{7}})
	ds := Dataset{Metrics: []string{"temp_outdoor__degC"}, Rows: rows}

	pts, err := InterpolateSpatial(context.Background(), ds, 52, 5, 2, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pts) != 1 || pts[0].Value != 7 {
		t.Fatalf("expected only the single-station hour, got %+v", pts)
	}
}

func TestInterpolateSpatialCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pts, err := InterpolateSpatial(ctx, cornerDataset(), 52.5, 4.5, 2, zerolog.Nop())
	if !errors.Is(err, context.Canceled) || pts != nil {
		t.Fatalf("expected cancellation without result, got %v, %v", pts, err)
	}
}

package weather

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func hourly(metric string, values ...float64) []Point {
	out := make([]Point, len(values))
	for i, v := range values {
		out[i] = Point{Timestamp: day0.Add(time.Duration(i) * time.Hour), Metric: metric, Value: v}
	}
	return out
}

func TestResampleTemporalPerMetric(t *testing.T) {
	in := append(hourly("wind__m_s_1", 1, 3, 5), hourly("temp_outdoor__degC", 10, 20, 30)...)

	out, err := ResampleTemporal(context.Background(), in, 30, 2, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 10 {
		t.Fatalf("expected 10 points, got %d", len(out))
	}
	wantTemp := []float64{10, 15, 20, 25, 30}
	wantWind := []float64{1, 2, 3, 4, 5}
	for i := 0; i < 5; i++ {
		ts := day0.Add(time.Duration(i) * 30 * time.Minute)
		temp, wind := out[2*i], out[2*i+1]
		if !temp.Timestamp.Equal(ts) || temp.Metric != "temp_outdoor__degC" || math.Abs(temp.Value-wantTemp[i]) > 1e-9 {
			t.Fatalf("unexpected temperature point %d: %+v", i, temp)
		}
		if !wind.Timestamp.Equal(ts) || wind.Metric != "wind__m_s_1" || math.Abs(wind.Value-wantWind[i]) > 1e-9 {
			t.Fatalf("unexpected wind point %d: %+v", i, wind)
		}
	}
}

func TestResampleTemporalIdentity(t *testing.T) {
	in := hourly("temp_outdoor__degC", 4, 8, 6)
	out, err := ResampleTemporal(context.Background(), in, 60, 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d points, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("point %d changed: %+v != %+v", i, out[i], in[i])
		}
	}
}

func TestResampleTemporalSingleSample(t *testing.T) {
	in := hourly("temp_outdoor__degC", 4)
	out, err := ResampleTemporal(context.Background(), in, 15, 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Fatalf("expected pass-through, got %+v", out)
	}
}

func TestResampleTemporalErrors(t *testing.T) {
	if _, err := ResampleTemporal(context.Background(), hourly("x", 1, 2), 0, 1, zerolog.Nop()); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ResampleTemporal(ctx, hourly("x", 1, 2), 30, 1, zerolog.Nop()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// Package timeseries resamples regularly sampled series to another cadence.
package timeseries

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Sample is a single observation of a series.
type Sample struct {
	T time.Time
	V float64
}

// ErrTooFewSamples is returned when a series is too short to have a sampling
// interval.
var ErrTooFewSamples = errors.New("at least 2 samples are required")

// ModalIntervalMinutes returns the most frequent spacing between consecutive
// samples, rounded to whole minutes. Ties resolve to the shortest spacing.
// samples must be sorted by time.
func ModalIntervalMinutes(samples []Sample) (int, error) {
	if len(samples) < 2 {
		return 0, ErrTooFewSamples
	}
	counts := make(map[int]int)
	for i := 1; i < len(samples); i++ {
		d := int(math.Round(samples[i].T.Sub(samples[i-1].T).Minutes()))
		counts[d]++
	}
	mode, best := 0, -1
	for d, n := range counts {
		if n > best || (n == best && d < mode) {
			mode, best = d, n
		}
	}
	return mode, nil
}

// AlignmentMinutes returns the greatest common divisor of the two intervals,
// floored to one minute. Both the native and the requested grid fall exactly
// on multiples of it.
func AlignmentMinutes(nativeMin, cadenceMin int) int {
	g := gcd(nativeMin, cadenceMin)
	if g < 1 {
		return 1
	}
	return g
}

func gcd(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Resample converts samples to the requested cadence in minutes.
//
// When the cadence equals the native interval the samples are returned
// unchanged. Otherwise the series is placed on the alignment grid (first
// sample per grid cell), gaps are filled by linear interpolation in time, and
// the grid is averaged into cadence buckets labeled by their left edge. Both
// grids are anchored at midnight of the first sample's day in its location.
// Buckets labeled outside the span of the input are dropped.
//
// Series with fewer than 2 samples are returned unchanged.
func Resample(samples []Sample, cadenceMin int) ([]Sample, error) {
	if cadenceMin < 1 {
		return nil, fmt.Errorf("cadence must be at least 1 minute, got %d", cadenceMin)
	}
	s := normalize(samples)
	if len(s) < 2 {
		return s, nil
	}

	nativeMin, err := ModalIntervalMinutes(s)
	if err != nil {
		return nil, err
	}
	if nativeMin == cadenceMin {
		return s, nil
	}

	align := time.Duration(AlignmentMinutes(nativeMin, cadenceMin)) * time.Minute
	cadence := time.Duration(cadenceMin) * time.Minute

	first, last := s[0].T, s[len(s)-1].T
	origin := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, first.Location())

	fine := fineGrid(s, origin, align)

	type bucket struct {
		sum float64
		n   int
	}
	var (
		order   []int64
		buckets = make(map[int64]*bucket)
	)
	firstIdx := int64(first.Sub(origin) / align)
	for i, v := range fine {
		if math.IsNaN(v) {
			continue
		}
		t := origin.Add(time.Duration(firstIdx+int64(i)) * align)
		b := int64(t.Sub(origin) / cadence)
		bk, ok := buckets[b]
		if !ok {
			bk = &bucket{}
			buckets[b] = bk
			order = append(order, b)
		}
		bk.sum += v
		bk.n++
	}

	out := make([]Sample, 0, len(order))
	for _, b := range order {
		label := origin.Add(time.Duration(b) * cadence)
		if label.Before(first) || label.After(last) {
			continue
		}
		bk := buckets[b]
		out = append(out, Sample{T: label, V: bk.sum / float64(bk.n)})
	}
	return out, nil
}

// fineGrid places samples on the alignment grid between the cells of the
// first and last sample and fills empty cells linearly.
func fineGrid(s []Sample, origin time.Time, align time.Duration) []float64 {
	firstIdx := int64(s[0].T.Sub(origin) / align)
	lastIdx := int64(s[len(s)-1].T.Sub(origin) / align)

	grid := make([]float64, lastIdx-firstIdx+1)
	for i := range grid {
		grid[i] = math.NaN()
	}
	for _, p := range s {
		i := int64(p.T.Sub(origin)/align) - firstIdx
		if math.IsNaN(grid[i]) {
			grid[i] = p.V
		}
	}

	prev := -1
	for i, v := range grid {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - grid[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				grid[j] = grid[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
	return grid
}

// normalize returns a time-sorted copy without NaN values and with one
// sample per timestamp (the first one wins).
func normalize(samples []Sample) []Sample {
	out := make([]Sample, 0, len(samples))
	for _, p := range samples {
		if !math.IsNaN(p.V) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].T.Before(out[j].T)
	})
	dedup := out[:0]
	for i, p := range out {
		if i > 0 && p.T.Equal(dedup[len(dedup)-1].T) {
			continue
		}
		dedup = append(dedup, p)
	}
	return dedup
}

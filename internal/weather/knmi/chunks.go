package knmi

import (
	"fmt"
	"time"

	"github.com/i474232898/knmi-point-weather/internal/weather"
)

const day = 24 * time.Hour

// DefaultChunkWidth is the span of one request to the hourly endpoint.
const DefaultChunkWidth = 4 * 7 * day

// gridAnchor is the Sunday on which all chunk grids are aligned.
var gridAnchor = time.Date(1970, 1, 4, 0, 0, 0, 0, time.UTC)

// ChunkRange is an inclusive range of whole UTC days requested at once.
type ChunkRange struct {
	From time.Time // first day, 00:00 UTC
	To   time.Time // last day, 00:00 UTC
}

// Query returns the start and end request parameters of the range, covering
// hour 01 of the first day up to hour 24 of the last day.
func (r ChunkRange) Query() (start, end string) {
	return r.From.Format("20060102") + "01", r.To.Format("20060102") + "24"
}

// SplitInterval partitions the UTC days touched by iv into chunks aligned on
// a fixed grid of the given width. The grid point at or before the first day
// opens the first chunk, so a start that is off-grid is still covered.
func SplitInterval(iv weather.TimeInterval, width time.Duration) ([]ChunkRange, error) {
	if err := iv.Validate(); err != nil {
		return nil, err
	}
	if width < day || width%day != 0 {
		return nil, fmt.Errorf("chunk width %s must be a positive number of whole days", width)
	}

	first := floorDay(iv.Start.UTC())
	last := floorDay(iv.End.UTC())

	offset := first.Sub(gridAnchor)
	k := offset / width
	if offset%width < 0 {
		k--
	}
	grid := gridAnchor.Add(k * width)

	var out []ChunkRange
	for ; !grid.After(last); grid = grid.Add(width) {
		from := grid
		if from.Before(first) {
			from = first
		}
		to := grid.Add(width - day)
		if to.After(last) {
			to = last
		}
		out = append(out, ChunkRange{From: from, To: to})
	}
	return out, nil
}

func floorDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package weather

import (
	"context"
	"time"
)

// Source abstracts the retrieval of raw station observations (e.g. the KNMI
// hourly endpoint). Chunks are returned in chronological order with UTC
// timestamps; chunks that failed to parse are already left out.
type Source interface {
	Name() string
	Fetch(ctx context.Context, interval TimeInterval, codes []string) ([]Chunk, error)
}

// Store is the contract the in-memory and sqlite stores must satisfy.
type Store interface {
	SaveSnapshot(loc Location, snapshot Snapshot) error
	GetLatest(loc Location) (Snapshot, error)
	GetRange(loc Location, from, to time.Time) ([]Point, error)
}

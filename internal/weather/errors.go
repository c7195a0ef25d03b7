package weather

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInterval is returned when an interval ends before it starts.
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrInvalidRequest is returned for malformed pipeline requests.
	ErrInvalidRequest = errors.New("invalid request")
)

// NetworkError reports a failed request for one chunk. It aborts the fetch.
type NetworkError struct {
	From       time.Time
	To         time.Time
	StatusCode int // 0 for transport failures
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s..%s: status %d: %v",
			e.From.Format("20060102"), e.To.Format("20060102"), e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s..%s: %v", e.From.Format("20060102"), e.To.Format("20060102"), e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ChunkParseError reports a malformed chunk payload. The chunk is skipped.
type ChunkParseError struct {
	Line int
	Err  error
}

func (e *ChunkParseError) Error() string {
	return fmt.Sprintf("parse chunk at line %d: %v", e.Line, e.Err)
}

func (e *ChunkParseError) Unwrap() error {
	return e.Err
}

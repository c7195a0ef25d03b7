// Package knmi retrieves hourly station observations from the KNMI
// climatology endpoint.
package knmi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/knmi-point-weather/internal/weather"
)

// DefaultBaseURL is the KNMI hourly station data endpoint.
const DefaultBaseURL = "https://www.daggegevens.knmi.nl/klimatologie/uurgegevens"

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL        string
	ChunkWidth     time.Duration
	MaxConcurrency int
	MaxRetries     int
	Logger         *zerolog.Logger
}

// Client implements weather.Source for the KNMI hourly endpoint.
type Client struct {
	name           string
	baseURL        string
	chunkWidth     time.Duration
	maxConcurrency int
	httpCfg        HTTPClientConfig
	circuit        *gobreaker.CircuitBreaker
	log            zerolog.Logger
}

var _ weather.Source = (*Client)(nil)

// NewClient creates a KNMI client using the shared HTTP client.
func NewClient(client *http.Client, opts Options) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "knmi",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ChunkWidth == 0 {
		opts.ChunkWidth = DefaultChunkWidth
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{
		name:           "knmi",
		baseURL:        opts.BaseURL,
		chunkWidth:     opts.ChunkWidth,
		maxConcurrency: opts.MaxConcurrency,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      opts.MaxRetries,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
		log:     logger.With().Str("source", "knmi").Logger(),
	}
}

func (c *Client) Name() string {
	return c.name
}

// Fetch downloads and parses every chunk of the interval. Chunks are fetched
// concurrently and returned in chronological order. A failed request aborts
// the whole fetch; an unparseable chunk is logged and left out.
func (c *Client) Fetch(ctx context.Context, interval weather.TimeInterval, codes []string) ([]weather.Chunk, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: no metric codes", weather.ErrInvalidRequest)
	}
	ranges, err := SplitInterval(interval, c.chunkWidth)
	if err != nil {
		return nil, err
	}

	c.log.Debug().Int("chunks", len(ranges)).Strs("codes", codes).Msg("fetching station data")

	results := make([]*weather.Chunk, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)
	for i, r := range ranges {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chunk, err := c.fetchChunk(gctx, r, codes)
			if err != nil {
				return err
			}
			results[i] = chunk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch cancelled: %w", ctx.Err())
		}
		return nil, err
	}

	out := make([]weather.Chunk, 0, len(results))
	for _, ch := range results {
		if ch != nil {
			out = append(out, *ch)
		}
	}
	return out, nil
}

// fetchChunk returns nil without error when the payload cannot be parsed.
func (c *Client) fetchChunk(ctx context.Context, r ChunkRange, codes []string) (*weather.Chunk, error) {
	start, end := r.Query()

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("start", start)
		values.Set("end", end)
		values.Set("vars", strings.Join(codes, ":"))

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		netErr := &weather.NetworkError{From: r.From, To: r.To, Err: err}
		var se *statusError
		if errors.As(err, &se) {
			netErr.StatusCode = se.code
		}
		return nil, netErr
	}
	defer resp.Body.Close()

	chunk, err := Parse(resp.Body, codes)
	if err != nil {
		var perr *weather.ChunkParseError
		if errors.As(err, &perr) {
			c.log.Warn().Err(err).Str("start", start).Str("end", end).Msg("skipping unparseable chunk")
			return nil, nil
		}
		return nil, &weather.NetworkError{From: r.From, To: r.To, Err: err}
	}
	chunk.From = r.From
	chunk.To = r.To

	if len(chunk.Rows) == 0 {
		c.log.Info().Str("start", start).Str("end", end).Msg("no data in chunk")
	} else {
		c.log.Debug().Str("start", start).Str("end", end).
			Int("stations", len(chunk.Stations)).Int("rows", len(chunk.Rows)).Msg("chunk parsed")
	}
	return &chunk, nil
}

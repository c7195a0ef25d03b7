package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/knmi-point-weather/internal/common"
	"github.com/i474232898/knmi-point-weather/internal/store"
	"github.com/i474232898/knmi-point-weather/internal/weather"
)

var validate = validator.New()

// Service is the part of weather.Service the handlers use.
type Service interface {
	Interpolate(ctx context.Context, req weather.Request) ([]weather.Point, error)
	GetLatest(loc weather.Location) (weather.Snapshot, error)
	GetRange(loc weather.Location, from, to time.Time) ([]weather.Point, error)
	DefaultCadence() int
	Zone() *time.Location
}

// Options configures the routes.
type Options struct {
	// Locations are the tracked locations served by /weather/latest and
	// /weather/history.
	Locations []weather.Location
	// Timeout bounds one on-demand interpolation.
	Timeout time.Duration
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service Service, opts Options) {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	tracked := make(map[string]weather.Location, len(opts.Locations))
	for _, loc := range opts.Locations {
		tracked[loc.Key()] = loc
	}

	v1 := app.Group("/api/v1")

	v1.Get("/metrics", func(c *fiber.Ctx) error {
		return c.JSON(weather.DefaultMetrics())
	})

	v1.Get("/locations", func(c *fiber.Ctx) error {
		locs := opts.Locations
		if locs == nil {
			locs = []weather.Location{}
		}
		return c.JSON(locs)
	})

	v1.Get("/weather/interpolate", func(c *fiber.Ctx) error {
		var q interpolateQuery
		if err := q.bind(c, service.DefaultCadence(), service.Zone()); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		metrics, err := weather.SelectMetrics(q.Metrics)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), opts.Timeout)
		defer cancel()

		points, err := service.Interpolate(ctx, weather.Request{
			Interval:       weather.TimeInterval{Start: q.Start, End: q.End},
			Lat:            q.Lat,
			Lon:            q.Lon,
			Metrics:        metrics,
			CadenceMinutes: q.Cadence,
		})
		if err != nil {
			return toFiberError(err, "failed to interpolate weather data")
		}

		return c.JSON(fiber.Map{
			"location":       fiber.Map{"lat": q.Lat, "lon": q.Lon},
			"start":          q.Start,
			"end":            q.End,
			"timezone":       q.Zone.String(),
			"cadenceMinutes": q.Cadence,
			"metrics":        metrics.Names(),
			"points":         nonNil(points),
		})
	})

	v1.Get("/weather/latest", func(c *fiber.Ctx) error {
		loc, err := trackedLocation(c, tracked)
		if err != nil {
			return err
		}

		snapshot, err := service.GetLatest(loc)
		if err != nil {
			return toFiberError(err, "failed to fetch weather data")
		}

		return c.JSON(snapshot)
	})

	v1.Get("/weather/history", func(c *fiber.Ctx) error {
		loc, err := trackedLocation(c, tracked)
		if err != nil {
			return err
		}

		var req historyQuery
		if err := req.bind(c, service.Zone()); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		points, err := service.GetRange(loc, req.From, req.To)
		if err != nil {
			return toFiberError(err, "failed to fetch weather history")
		}

		return c.JSON(fiber.Map{
			"location": loc,
			"from":     req.From,
			"to":       req.To,
			"points":   points,
		})
	})
}

// toFiberError maps pipeline and store errors to HTTP status codes.
func toFiberError(err error, fallback string) error {
	var netErr *weather.NetworkError
	switch {
	case errors.Is(err, weather.ErrInvalidInterval), errors.Is(err, weather.ErrInvalidRequest):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "no weather data for requested location")
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, "upstream request timed out")
	case errors.As(err, &netErr):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, fallback)
}

func trackedLocation(c *fiber.Ctx, tracked map[string]weather.Location) (weather.Location, error) {
	name := c.Query("location")
	if name == "" {
		return weather.Location{}, fiber.NewError(fiber.StatusBadRequest, "location query parameter is required")
	}
	loc, ok := tracked[name]
	if !ok {
		return weather.Location{}, fiber.NewError(fiber.StatusNotFound, "location is not tracked")
	}
	return loc, nil
}

// interpolateQuery holds query parameters for the interpolate endpoint.
type interpolateQuery struct {
	Lat     float64        `validate:"gte=-90,lte=90"`
	Lon     float64        `validate:"gte=-180,lte=180"`
	Start   time.Time      `validate:"required"`
	End     time.Time      `validate:"required"`
	Cadence int            `validate:"gte=1,lte=1440"`
	Metrics []string       `validate:"dive,alphanum"`
	Zone    *time.Location `validate:"required"`
}

func (q *interpolateQuery) bind(c *fiber.Ctx, defaultCadence int, defaultZone *time.Location) error {
	var err error
	if c.Query("lat") == "" || c.Query("lon") == "" {
		return errors.New("lat and lon query parameters are required")
	}
	if q.Lat, err = strconv.ParseFloat(c.Query("lat"), 64); err != nil {
		return errors.New("invalid lat")
	}
	if q.Lon, err = strconv.ParseFloat(c.Query("lon"), 64); err != nil {
		return errors.New("invalid lon")
	}

	q.Zone = defaultZone
	if tz := c.Query("tz"); tz != "" {
		if q.Zone, err = time.LoadLocation(tz); err != nil {
			return errors.New("unknown time zone")
		}
	}

	startStr, endStr := c.Query("start"), c.Query("end")
	if startStr == "" || endStr == "" {
		return errors.New("start and end query parameters are required")
	}
	if q.Start, err = parseTime(startStr, q.Zone); err != nil {
		return err
	}
	if q.End, err = parseTime(endStr, q.Zone); err != nil {
		return err
	}

	q.Cadence = defaultCadence
	if s := c.Query("cadence"); s != "" {
		if q.Cadence, err = strconv.Atoi(s); err != nil {
			return errors.New("invalid cadence")
		}
	}

	q.Metrics = common.SplitList(c.Query("metrics"), ",")
	return nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx, zone *time.Location) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr, zone)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr, zone)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// parseTime accepts RFC3339, unix seconds, or a local date/time without
// offset, which is read in zone. The result is expressed in zone.
func parseTime(s string, zone *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.In(zone), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).In(zone), nil
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, s, zone); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339, unix seconds or YYYY-MM-DD[THH:MM[:SS]]")
}

func nonNil(points []weather.Point) []weather.Point {
	if points == nil {
		return []weather.Point{}
	}
	return points
}

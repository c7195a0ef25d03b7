package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/knmi-point-weather/internal/store"
	"github.com/i474232898/knmi-point-weather/internal/weather"
)

type fakeService struct {
	req    weather.Request
	calls  int
	points []weather.Point
	err    error
	store  *store.MemoryStore
}

func (f *fakeService) Interpolate(ctx context.Context, req weather.Request) ([]weather.Point, error) {
	f.calls++
	f.req = req
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return f.points, f.err
}

func (f *fakeService) GetLatest(loc weather.Location) (weather.Snapshot, error) {
	return f.store.GetLatest(loc)
}

func (f *fakeService) GetRange(loc weather.Location, from, to time.Time) ([]weather.Point, error) {
	return f.store.GetRange(loc, from, to)
}

func (f *fakeService) DefaultCadence() int  { return 15 }
func (f *fakeService) Zone() *time.Location { return time.UTC }

var debilt = weather.Location{Name: "debilt", Lat: 52.1, Lon: 5.18}

func newTestApp(svc *fakeService) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": true, "message": err.Error()})
		},
	})
	if svc.store == nil {
		svc.store = store.NewMemoryStore(10, 0)
	}
	RegisterRoutes(app, svc, Options{Locations: []weather.Location{debilt}})
	return app
}

func doGet(t *testing.T, app *fiber.App, target string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resp
}

func TestInterpolateValidation(t *testing.T) {
	svc := &fakeService{}
	app := newTestApp(svc)

	cases := []string{
		"/api/v1/weather/interpolate?start=2024-03-01&end=2024-03-02",
		"/api/v1/weather/interpolate?lat=52&lon=5&start=2024-03-01",
		"/api/v1/weather/interpolate?lat=95&lon=5&start=2024-03-01&end=2024-03-02",
		"/api/v1/weather/interpolate?lat=52&lon=5&start=yesterday&end=2024-03-02",
		"/api/v1/weather/interpolate?lat=52&lon=5&start=2024-03-01&end=2024-03-02&cadence=0",
		"/api/v1/weather/interpolate?lat=52&lon=5&start=2024-03-01&end=2024-03-02&metrics=XYZ",
		"/api/v1/weather/interpolate?lat=52&lon=5&start=2024-03-01&end=2024-03-02&tz=Nowhere/City",
	}
	for _, target := range cases {
		if resp := doGet(t, app, target); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusBadRequest, resp.StatusCode)
		}
	}
	if svc.calls != 0 {
		t.Fatalf("expected no pipeline calls, got %d", svc.calls)
	}

	// A reversed interval reaches the service and is rejected there.
	resp := doGet(t, app, "/api/v1/weather/interpolate?lat=52&lon=5&start=2024-03-02&end=2024-03-01")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestInterpolateSuccess(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	svc := &fakeService{points: []weather.Point{{Timestamp: ts, Metric: "temp_outdoor__degC", Value: 7.5}}}
	app := newTestApp(svc)

	resp := doGet(t, app, "/api/v1/weather/interpolate?lat=52.5&lon=4.5&start=2024-03-01T00:00:00Z&end=1709262000&cadence=30&metrics=T,fh")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var body struct {
		Metrics []string        `json:"metrics"`
		Points  []weather.Point `json:"points"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Points) != 1 || body.Points[0].Value != 7.5 {
		t.Fatalf("unexpected points: %+v", body.Points)
	}
	if len(body.Metrics) != 2 || body.Metrics[1] != "wind__m_s_1" {
		t.Fatalf("unexpected metrics: %v", body.Metrics)
	}

	req := svc.req
	if req.CadenceMinutes != 30 || req.Lat != 52.5 || req.Lon != 4.5 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if !req.Interval.End.Equal(ts.Add(3 * time.Hour)) {
		t.Fatalf("unexpected interval end %s", req.Interval.End)
	}
}

func TestInterpolateErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("fetch from knmi: %w", weather.ErrInvalidRequest), http.StatusBadRequest},
		{&weather.NetworkError{StatusCode: 500, Err: errors.New("down")}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		app := newTestApp(&fakeService{err: c.err})
		resp := doGet(t, app, "/api/v1/weather/interpolate?lat=52&lon=5&start=2024-03-01&end=2024-03-02")
		if resp.StatusCode != c.code {
			t.Fatalf("%v: expected status %d, got %d", c.err, c.code, resp.StatusCode)
		}
	}
}

func TestLatestAndHistory(t *testing.T) {
	svc := &fakeService{}
	app := newTestApp(svc)

	if resp := doGet(t, app, "/api/v1/weather/latest"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
	if resp := doGet(t, app, "/api/v1/weather/latest?location=utopia"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
	if resp := doGet(t, app, "/api/v1/weather/latest?location=debilt"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d before any refresh, got %d", http.StatusNotFound, resp.StatusCode)
	}

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	err := svc.store.SaveSnapshot(debilt, weather.Snapshot{
		Location:  debilt,
		RunID:     "run-1",
		FetchedAt: ts,
		Points:    []weather.Point{{Timestamp: ts, Metric: "temp_outdoor__degC", Value: 9}},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	resp := doGet(t, app, "/api/v1/weather/latest?location=debilt")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var snap weather.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.RunID != "run-1" || len(snap.Points) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	resp = doGet(t, app, "/api/v1/weather/history?location=debilt&from=2024-03-01&to=2024-03-02")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	resp = doGet(t, app, "/api/v1/weather/history?location=debilt&from=2024-03-02&to=2024-03-01")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d for reversed range, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestMetricsAndLocations(t *testing.T) {
	app := newTestApp(&fakeService{})

	resp := doGet(t, app, "/api/v1/metrics")
	var metrics []weather.MetricSpec
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(metrics) != 5 || metrics[0].Code != "T" {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}

	resp = doGet(t, app, "/api/v1/locations")
	var locs []weather.Location
	if err := json.NewDecoder(resp.Body).Decode(&locs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(locs) != 1 || locs[0] != debilt {
		t.Fatalf("unexpected locations: %+v", locs)
	}
}

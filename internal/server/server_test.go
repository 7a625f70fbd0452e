package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/shadowflicker/internal/storage"
	"github.com/chrissnell/shadowflicker/pkg/calendar"
	"github.com/chrissnell/shadowflicker/pkg/geometry"
)

const projectJSON = `{
	"name": "valle",
	"turbines": [{"turbine_id": "T-1", "x": 0, "y": 0, "hub_height_m": 100, "rotor_diameter_m": 120}],
	"aoi": [[-300, -300], [300, -300], [300, 300], [-300, 300]],
	"parameters": {"latitude": 45, "longitude": 10, "year": 2023, "min_solar_elevation_deg": 5,
	               "timezone": "Europe/Rome", "timestep_minutes": 60},
	"limits": {"annual_hours": 30, "daily_minutes": 30}
}`

func newTestController(t *testing.T, withStore bool) *Controller {
	t.Helper()
	var store storage.RunStore
	if withStore {
		s, err := storage.Open(":memory:", nil)
		if err != nil {
			t.Fatalf("storage.Open: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		store = s
	}
	return NewController(context.Background(), &sync.WaitGroup{}, Config{Workers: 2}, store, nil, nil)
}

func do(t *testing.T, c *Controller, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v (status %d)", err, rec.Code)
	}
}

func TestCalendarRunLifecycle(t *testing.T) {
	c := newTestController(t, true)

	rec := do(t, c, http.MethodPost, "/api/v1/calendar", projectJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /calendar = %d: %s", rec.Code, rec.Body.String())
	}
	var resp CalendarResponse
	decode(t, rec, &resp)

	if resp.RunID == "" || rec.Header().Get("Location") != "/api/v1/runs/"+resp.RunID {
		t.Fatalf("run id %q, location %q", resp.RunID, rec.Header().Get("Location"))
	}
	if len(resp.Events) == 0 || resp.DaylightSamples == 0 {
		t.Fatalf("no events computed: %+v", resp)
	}
	if len(resp.Summary.Turbines) != 1 || resp.Summary.Turbines[0].TurbineID != "T-1" {
		t.Errorf("summary turbines = %+v", resp.Summary.Turbines)
	}
	if resp.Summary.TimestepMinutes != 60 {
		t.Errorf("summary timestep = %d", resp.Summary.TimestepMinutes)
	}
	runURL := "/api/v1/runs/" + resp.RunID

	t.Run("get run", func(t *testing.T) {
		rec := do(t, c, http.MethodGet, runURL, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d", rec.Code)
		}
		var run storage.Run
		decode(t, rec, &run)
		if run.Name != "valle" || run.EventCount != len(resp.Events) || len(run.AOI) != 5 {
			t.Errorf("run = %+v", run)
		}
		if run.Limits != (calendar.Limits{AnnualHours: 30, DailyMinutes: 30}) {
			t.Errorf("limits not stored: %+v", run.Limits)
		}
	})

	t.Run("list runs", func(t *testing.T) {
		rec := do(t, c, http.MethodGet, "/api/v1/runs?limit=10", "")
		var runs []storage.Run
		decode(t, rec, &runs)
		if len(runs) != 1 || runs[0].ID != resp.RunID {
			t.Errorf("runs = %+v", runs)
		}
		if rec := do(t, c, http.MethodGet, "/api/v1/runs?limit=x", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("bad limit: status %d", rec.Code)
		}
	})

	t.Run("events json", func(t *testing.T) {
		rec := do(t, c, http.MethodGet, runURL+"/events", "")
		var events []calendar.FlickerEvent
		decode(t, rec, &events)
		if len(events) != len(resp.Events) || events[0].TimestampLocal != resp.Events[0].TimestampLocal {
			t.Errorf("got %d events, first %+v", len(events), events[0])
		}
	})

	t.Run("events of one date", func(t *testing.T) {
		date := resp.Events[len(resp.Events)/2].Date
		want := 0
		for _, ev := range resp.Events {
			if ev.Date == date {
				want++
			}
		}

		rec := do(t, c, http.MethodGet, runURL+"/events?date="+date, "")
		var events []calendar.FlickerEvent
		decode(t, rec, &events)
		if len(events) != want {
			t.Errorf("got %d events on %s, want %d", len(events), date, want)
		}
		for _, ev := range events {
			if ev.Date != date {
				t.Errorf("event on %s in the %s group", ev.Date, date)
			}
		}

		rec = do(t, c, http.MethodGet, runURL+"/events?date=2022-06-21", "")
		if rec.Code != http.StatusOK {
			t.Errorf("day without events: status %d", rec.Code)
		}
		if rec := do(t, c, http.MethodGet, runURL+"/events?date=tomorrow", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("bad date: status %d", rec.Code)
		}
	})

	t.Run("aoi geojson", func(t *testing.T) {
		rec := do(t, c, http.MethodGet, runURL+"/aoi", "")
		if ct := rec.Header().Get("Content-Type"); ct != "application/geo+json" {
			t.Errorf("content type %q", ct)
		}
		var feature struct {
			Type       string         `json:"type"`
			Properties map[string]any `json:"properties"`
			Geometry   struct {
				Type        string         `json:"type"`
				Coordinates [][][2]float64 `json:"coordinates"`
			} `json:"geometry"`
		}
		decode(t, rec, &feature)
		if feature.Type != "Feature" || feature.Geometry.Type != "Polygon" || feature.Properties["run_id"] != resp.RunID {
			t.Errorf("feature = %+v", feature)
		}
		if len(feature.Geometry.Coordinates) != 1 || len(feature.Geometry.Coordinates[0]) != 5 {
			t.Errorf("coordinates = %v", feature.Geometry.Coordinates)
		}
	})

	t.Run("events csv", func(t *testing.T) {
		rec := do(t, c, http.MethodGet, runURL+"/events?format=csv", "")
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
			t.Errorf("content type %q", ct)
		}
		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		if len(lines) != len(resp.Events)+1 || !strings.HasPrefix(lines[0], "turbine_id,") {
			t.Errorf("got %d CSV lines for %d events", len(lines), len(resp.Events))
		}
	})

	t.Run("events msgpack", func(t *testing.T) {
		rec := do(t, c, http.MethodGet, runURL+"/events?format=msgpack", "")
		var events []map[string]any
		if err := msgpack.Unmarshal(rec.Body.Bytes(), &events); err != nil {
			t.Fatal(err)
		}
		if len(events) != len(resp.Events) || events[0]["turbine_id"] != "T-1" {
			t.Errorf("msgpack events = %d", len(events))
		}
	})

	t.Run("summary", func(t *testing.T) {
		rec := do(t, c, http.MethodGet, runURL+"/summary", "")
		var s calendar.Summary
		decode(t, rec, &s)
		if s.DaysAffected != resp.Summary.DaysAffected || s.TotalHours != resp.Summary.TotalHours {
			t.Errorf("stored summary %+v differs from %+v", s, resp.Summary)
		}
		// Every affected day holds at least one 60 minute step, over the
		// stored 30 minute daily limit.
		if !s.ExceedsDailyLimit || s.DaysOverDailyLimit != s.DaysAffected {
			t.Errorf("stored limits not applied: over on %d of %d days", s.DaysOverDailyLimit, s.DaysAffected)
		}
	})

	t.Run("reports", func(t *testing.T) {
		rec := do(t, c, http.MethodGet, runURL+"/report", "")
		if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
			t.Errorf("pdf report: status %d", rec.Code)
		}
		rec = do(t, c, http.MethodGet, runURL+"/report?format=xlsx", "")
		if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
			t.Errorf("xlsx report: status %d", rec.Code)
		}
		if rec := do(t, c, http.MethodGet, runURL+"/report?format=docx", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("docx report: status %d", rec.Code)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if rec := do(t, c, http.MethodDelete, runURL, ""); rec.Code != http.StatusNoContent {
			t.Fatalf("delete: status %d", rec.Code)
		}
		for _, url := range []string{runURL, runURL + "/events", runURL + "/report"} {
			if rec := do(t, c, http.MethodGet, url, ""); rec.Code != http.StatusNotFound {
				t.Errorf("GET %s after delete: status %d", url, rec.Code)
			}
		}
		if rec := do(t, c, http.MethodDelete, runURL, ""); rec.Code != http.StatusNotFound {
			t.Errorf("second delete: status %d", rec.Code)
		}
	})
}

func TestPostCalendarRejectsBadInput(t *testing.T) {
	c := newTestController(t, true)

	params := `"parameters": {"latitude": 45, "longitude": 10, "year": 2023, "min_solar_elevation_deg": 5, "timestep_minutes": 60}`
	turbine := `"turbines": [{"turbine_id": "T-1", "hub_height_m": 100, "rotor_diameter_m": 120}]`
	square := `"aoi": [[-300, -300], [300, -300], [300, 300], [-300, 300]]`

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"turbines": [`},
		{"zero hub height", fmt.Sprintf(`{"turbines": [{"turbine_id": "T-1", "hub_height_m": 0, "rotor_diameter_m": 120}], %s, %s}`, square, params)},
		{"duplicate turbine", fmt.Sprintf(`{"turbines": [{"turbine_id": "T-1", "hub_height_m": 100, "rotor_diameter_m": 120}, {"turbine_id": "T-1", "hub_height_m": 100, "rotor_diameter_m": 120}], %s, %s}`, square, params)},
		{"latitude out of range", fmt.Sprintf(`{%s, %s, "parameters": {"latitude": 100, "longitude": 10, "year": 2023}}`, turbine, square)},
		{"self-intersecting aoi", fmt.Sprintf(`{%s, "aoi": [[0, 0], [100, 100], [100, 0], [0, 100]], %s}`, turbine, params)},
		{"aoi path", fmt.Sprintf(`{%s, "aoi_path": "/etc/passwd", %s}`, turbine, params)},
		{"bad geojson", fmt.Sprintf(`{%s, "aoi_geojson": {"type": "Point", "coordinates": [0, 0]}, %s}`, turbine, params)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, c, http.MethodPost, "/api/v1/calendar", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			var body struct {
				Error string `json:"error"`
			}
			decode(t, rec, &body)
			if body.Error == "" {
				t.Error("missing error message")
			}
		})
	}

	rec := do(t, c, http.MethodGet, "/api/v1/runs", "")
	var runs []storage.Run
	decode(t, rec, &runs)
	if len(runs) != 0 {
		t.Errorf("rejected requests stored %d runs", len(runs))
	}
}

func TestPostCalendarWithoutStore(t *testing.T) {
	c := newTestController(t, false)

	// The AOI is given as GeoJSON here.
	body := strings.Replace(projectJSON,
		`"aoi": [[-300, -300], [300, -300], [300, 300], [-300, 300]]`,
		`"aoi_geojson": {"type": "Feature", "properties": {}, "geometry": {"type": "Polygon",
		 "coordinates": [[[-300, -300], [300, -300], [300, 300], [-300, 300], [-300, -300]]]}}`, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calendar?format=msgpack", strings.NewReader(body))
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := msgpack.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if _, stored := resp["run_id"]; stored {
		t.Errorf("run stored without a store: %v", resp["run_id"])
	}
	if events, _ := resp["events"].([]any); len(events) == 0 {
		t.Error("no events in msgpack response")
	}

	if rec := do(t, c, http.MethodGet, "/api/v1/runs", ""); rec.Code != http.StatusNotFound {
		t.Errorf("runs route registered without a store: status %d", rec.Code)
	}
}

func TestPostCalendarCSV(t *testing.T) {
	c := newTestController(t, true)

	rec := do(t, c, http.MethodPost, "/api/v1/calendar?format=csv&store=false", projectJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Header().Get("X-Run-ID") != "" {
		t.Error("store=false still stored the run")
	}
	if !strings.HasPrefix(rec.Body.String(), "turbine_id,timestamp_local,") {
		t.Errorf("body does not start with the CSV header: %.60q", rec.Body.String())
	}
}

func TestPostTrajectory(t *testing.T) {
	c := newTestController(t, false)

	body := `{
		"turbine": {"turbine_id": "T-1", "x": 0, "y": 0, "hub_height_m": 100, "rotor_diameter_m": 120},
		"aoi": [[-300, -300], [300, -300], [300, 300], [-300, 300]],
		"date": "2023-06-21",
		"parameters": {"latitude": 45, "longitude": 10, "min_solar_elevation_deg": 5, "timestep_minutes": 30}
	}`
	rec := do(t, c, http.MethodPost, "/api/v1/trajectory", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp TrajectoryResponse
	decode(t, rec, &resp)
	if resp.TurbineID != "T-1" || resp.Date != "2023-06-21" {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Points) < 20 {
		t.Fatalf("got %d points for a summer day at 30 minute steps", len(resp.Points))
	}
	hits := 0
	for _, p := range resp.Points {
		if !strings.HasPrefix(p.TimestampLocal, "2023-06-21T") {
			t.Errorf("point outside the date: %s", p.TimestampLocal)
		}
		if len(p.Polygon) != geometry.DefaultVertices+1 {
			t.Errorf("polygon has %d coordinates", len(p.Polygon))
		}
		if p.Intersects {
			hits++
		}
	}
	if hits == 0 {
		t.Error("no frame intersects the AOI around the turbine")
	}

	bad := strings.Replace(body, "2023-06-21", "21/06/2023", 1)
	if rec := do(t, c, http.MethodPost, "/api/v1/trajectory", bad); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: status %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	c := newTestController(t, true)
	rec := do(t, c, http.MethodGet, "/healthz", "")
	var h HealthResponse
	decode(t, rec, &h)
	if h.Status != "ok" || !h.Store {
		t.Errorf("health = %+v", h)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{badRequest("nope"), http.StatusBadRequest},
		{fmt.Errorf("area of interest: %w", geometry.ErrInvalidGeometry), http.StatusBadRequest},
		{calendar.ErrInvalidParameters, http.StatusBadRequest},
		{fmt.Errorf("x: %w", calendar.ErrInvalidTurbine), http.StatusBadRequest},
		{fmt.Errorf("%w: abc", storage.ErrRunNotFound), http.StatusNotFound},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

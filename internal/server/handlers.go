package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/chrissnell/shadowflicker/internal/export"
	"github.com/chrissnell/shadowflicker/internal/metrics"
	"github.com/chrissnell/shadowflicker/internal/storage"
	"github.com/chrissnell/shadowflicker/pkg/calendar"
	"github.com/chrissnell/shadowflicker/pkg/config"
	"github.com/chrissnell/shadowflicker/pkg/geometry"
	"github.com/chrissnell/shadowflicker/pkg/responseformat"
)

const (
	maxBodyBytes     = 32 << 20
	defaultRunsLimit = 100
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, geometry.ErrInvalidGeometry),
		errors.Is(err, calendar.ErrInvalidParameters),
		errors.Is(err, calendar.ErrInvalidTurbine):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrRunNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.controller.logger.Errorw("request failed", "path", req.URL.Path, "error", err)
		msg = "internal error"
	}
	if werr := h.formatter.WriteError(w, req, status, msg); werr != nil {
		h.controller.logger.Debugw("error writing error response", "error", werr)
	}
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, status int, data any, headers map[string]string) {
	if err := h.formatter.WriteResponse(w, req, status, data, headers); err != nil {
		h.controller.logger.Debugw("error writing response", "path", req.URL.Path, "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

// PostCalendar computes the calendar of the posted project. The run is stored
// unless store=false is given or the server has no store.
func (h *Handlers) PostCalendar(w http.ResponseWriter, req *http.Request) {
	var cr CalendarRequest
	if err := decodeJSON(w, req, &cr); err != nil {
		h.writeError(w, req, err)
		return
	}

	aoi, err := cr.Polygon()
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	started := time.Now()
	result, err := h.controller.engine.Compute(aoi, cr.Turbines, cr.Parameters)
	if err != nil {
		metrics.ObserveCalendar(metrics.ResultError, time.Since(started), 0)
		h.writeError(w, req, err)
		return
	}
	metrics.ObserveCalendar(metrics.ResultSuccess, result.Duration, len(result.Events))

	params := cr.Parameters.WithDefaults()
	resp := CalendarResponse{
		Name:            cr.Name,
		DaylightSamples: result.DaylightSamples,
		DurationMS:      result.Duration.Milliseconds(),
		Summary:         calendar.Summarize(result.Events, cr.Turbines, params, cr.Limits),
		Events:          result.Events,
	}
	if result.Warning != nil {
		resp.Warning = result.Warning.Error()
	}

	status := http.StatusOK
	headers := map[string]string{}
	if h.controller.store != nil && req.URL.Query().Get("store") != "false" {
		run := storage.NewRun(cr.Name, aoi.Coords(), cr.Turbines, params, cr.Limits, result)
		id, err := h.controller.store.SaveRun(req.Context(), run, result.Events)
		if err != nil {
			h.writeError(w, req, fmt.Errorf("failed to store run: %w", err))
			return
		}
		resp.RunID = id
		status = http.StatusCreated
		headers["Location"] = "/api/v1/runs/" + id
		headers["X-Run-ID"] = id
	}

	if h.formatter.Format(req) == responseformat.FormatCSV {
		h.writeCSV(w, req, status, "shadow-flicker.csv", result.Events, headers)
		return
	}
	h.write(w, req, status, resp, headers)
}

// PostTrajectory returns the shadow frames of one turbine over one date.
func (h *Handlers) PostTrajectory(w http.ResponseWriter, req *http.Request) {
	var tr TrajectoryRequest
	if err := decodeJSON(w, req, &tr); err != nil {
		h.writeError(w, req, err)
		return
	}

	day, err := time.Parse(calendar.DateLayout, tr.Date)
	if err != nil {
		h.writeError(w, req, badRequest("date must be YYYY-MM-DD, got %q", tr.Date))
		return
	}
	if err := tr.Turbine.Validate(); err != nil {
		h.writeError(w, req, err)
		return
	}

	params := tr.Parameters
	params.Year = day.Year()
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		h.writeError(w, req, err)
		return
	}

	aoi, err := inlinePolygon(tr.AOI, tr.AOIGeoJSON)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	if len(aoi) > 0 {
		if err := aoi.Validate(); err != nil {
			h.writeError(w, req, fmt.Errorf("area of interest: %w", err))
			return
		}
	}

	series, err := h.controller.solar.DaylightSeries(params)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	resp := TrajectoryResponse{
		TurbineID: tr.Turbine.ID,
		Date:      tr.Date,
		Points:    calendar.Trajectory(aoi, tr.Turbine, series.Samples, tr.Date, h.controller.cfg.Vertices),
	}
	if resp.Points == nil {
		resp.Points = []calendar.TrajectoryPoint{}
	}
	if series.Warning != nil {
		resp.Warning = series.Warning.Error()
	}
	h.write(w, req, http.StatusOK, resp, nil)
}

// ListRuns returns stored runs, newest first. ?limit=N caps the list; 0 lists
// every run.
func (h *Handlers) ListRuns(w http.ResponseWriter, req *http.Request) {
	limit := defaultRunsLimit
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, req, badRequest("invalid limit %q", v))
			return
		}
		limit = n
	}

	runs, err := h.controller.store.ListRuns(req.Context(), limit)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, runs, nil)
}

// GetRun returns one stored run without its events.
func (h *Handlers) GetRun(w http.ResponseWriter, req *http.Request) {
	run, err := h.controller.store.GetRun(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, run, nil)
}

// DeleteRun removes a stored run and its events.
func (h *Handlers) DeleteRun(w http.ResponseWriter, req *http.Request) {
	if err := h.controller.store.DeleteRun(req.Context(), mux.Vars(req)["id"]); err != nil {
		h.writeError(w, req, err)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusNoContent)
}

// GetRunEvents returns the events of a stored run as JSON, MessagePack or CSV.
// ?date=YYYY-MM-DD keeps a single day.
func (h *Handlers) GetRunEvents(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	events, err := h.controller.store.Events(req.Context(), id)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	if date := req.URL.Query().Get("date"); date != "" {
		if _, err := time.Parse(calendar.DateLayout, date); err != nil {
			h.writeError(w, req, badRequest("date must be YYYY-MM-DD, got %q", date))
			return
		}
		events = eventsOn(events, date)
	}

	if h.formatter.Format(req) == responseformat.FormatCSV {
		h.writeCSV(w, req, http.StatusOK, "run-"+id+".csv", events, nil)
		return
	}
	h.write(w, req, http.StatusOK, events, nil)
}

// GetRunSummary summarizes a stored run against the limits it was stored
// with, or the server's limits when it has none.
func (h *Handlers) GetRunSummary(w http.ResponseWriter, req *http.Request) {
	run, events, err := h.loadRun(req)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, calendar.Summarize(events, run.Turbines, run.Parameters, h.limitsFor(run)), nil)
}

// GetRunReport renders a stored run as an XLSX workbook or a PDF report,
// selected by ?format=xlsx|pdf (default pdf).
func (h *Handlers) GetRunReport(w http.ResponseWriter, req *http.Request) {
	format := req.URL.Query().Get("format")
	if format == "" {
		format = "pdf"
	}

	var (
		build       func(*export.Report) ([]byte, error)
		contentType string
	)
	switch format {
	case "pdf":
		build, contentType = export.BuildPDF, "application/pdf"
	case "xlsx":
		build, contentType = export.BuildXLSX, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		h.writeError(w, req, badRequest("%v: %s", export.ErrUnsupportedFormat, format))
		return
	}

	run, events, err := h.loadRun(req)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	report := export.NewReport(run.Name, run.Parameters, run.Turbines, events, h.limitsFor(run))
	report.Warning = run.Warning
	data, err := build(report)
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		h.writeError(w, req, err)
		return
	}
	metrics.IncExport(format, metrics.ResultSuccess)

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "run-"+run.ID+"."+format))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetRunAOI returns the area of interest of a stored run as a GeoJSON Feature.
func (h *Handlers) GetRunAOI(w http.ResponseWriter, req *http.Request) {
	run, err := h.controller.store.GetRun(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	data, err := config.MarshalGeoJSON(geometry.NewPolygon(run.AOI), map[string]any{
		"run_id": run.ID,
		"name":   run.Name,
	})
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, req *http.Request) {
	h.write(w, req, http.StatusOK, HealthResponse{Status: "ok", Store: h.controller.store != nil}, nil)
}

func (h *Handlers) limitsFor(run *storage.Run) calendar.Limits {
	if run.Limits == (calendar.Limits{}) {
		return h.controller.cfg.Limits
	}
	return run.Limits
}

func (h *Handlers) loadRun(req *http.Request) (*storage.Run, []calendar.FlickerEvent, error) {
	id := mux.Vars(req)["id"]
	run, err := h.controller.store.GetRun(req.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	events, err := h.controller.store.Events(req.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	return run, events, nil
}

// eventsOn returns the events of one date. Stored events keep calendar order,
// so the date is a single contiguous group.
func eventsOn(events []calendar.FlickerEvent, date string) []calendar.FlickerEvent {
	for _, group := range calendar.GroupByDate(events) {
		if group[0].Date == date {
			return group
		}
	}
	return []calendar.FlickerEvent{}
}

func (h *Handlers) writeCSV(w http.ResponseWriter, req *http.Request, status int, filename string, events []calendar.FlickerEvent, headers map[string]string) {
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(status)

	if err := export.WriteCSV(w, events); err != nil {
		metrics.IncExport(responseformat.FormatCSV, metrics.ResultError)
		h.controller.logger.Warnw("error writing CSV response", "path", req.URL.Path, "error", err)
		return
	}
	metrics.IncExport(responseformat.FormatCSV, metrics.ResultSuccess)
}

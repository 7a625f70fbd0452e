package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chrissnell/shadowflicker/pkg/calendar"
	"github.com/chrissnell/shadowflicker/pkg/config"
	"github.com/chrissnell/shadowflicker/pkg/geometry"
)

// errBadRequest marks client mistakes that are not covered by a domain
// sentinel, e.g. malformed JSON.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// CalendarRequest is a project in the JSON project layout. The AOI is given
// inline, either as a ring or as GeoJSON; aoi_path is rejected since the
// server does not read files on behalf of clients.
type CalendarRequest struct {
	Name       string                     `json:"name,omitempty"`
	Turbines   []calendar.Turbine         `json:"turbines"`
	AOI        [][2]float64               `json:"aoi,omitempty"`
	AOIGeoJSON json.RawMessage            `json:"aoi_geojson,omitempty"`
	AOIPath    string                     `json:"aoi_path,omitempty"`
	Parameters calendar.ProjectParameters `json:"parameters"`
	Limits     calendar.Limits            `json:"limits"`
}

// CalendarResponse carries the events of a computation and their summary.
type CalendarResponse struct {
	RunID           string                  `json:"run_id,omitempty"`
	Name            string                  `json:"name,omitempty"`
	Warning         string                  `json:"warning,omitempty"`
	DaylightSamples int                     `json:"daylight_samples"`
	DurationMS      int64                   `json:"duration_ms"`
	Summary         calendar.Summary        `json:"summary"`
	Events          []calendar.FlickerEvent `json:"events"`
}

// TrajectoryRequest asks for one turbine's shadow over one local date.
type TrajectoryRequest struct {
	Turbine    calendar.Turbine           `json:"turbine"`
	AOI        [][2]float64               `json:"aoi,omitempty"`
	AOIGeoJSON json.RawMessage            `json:"aoi_geojson,omitempty"`
	Date       string                     `json:"date"`
	Parameters calendar.ProjectParameters `json:"parameters"`
}

// TrajectoryResponse lists the shadow frames of the requested date.
type TrajectoryResponse struct {
	TurbineID string                     `json:"turbine_id"`
	Date      string                     `json:"date"`
	Warning   string                     `json:"warning,omitempty"`
	Points    []calendar.TrajectoryPoint `json:"points"`
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Store  bool   `json:"store"`
}

func inlinePolygon(ring [][2]float64, geojson json.RawMessage) (geometry.Polygon, error) {
	if len(ring) > 0 {
		return geometry.NewPolygon(ring), nil
	}
	if len(geojson) == 0 || string(geojson) == "null" {
		return nil, nil
	}
	p, err := config.ParseGeoJSON(geojson)
	if err != nil {
		return nil, badRequest("aoi_geojson: %v", err)
	}
	return p, nil
}

// Polygon returns the request's AOI.
func (r *CalendarRequest) Polygon() (geometry.Polygon, error) {
	if r.AOIPath != "" && len(r.AOI) == 0 && len(r.AOIGeoJSON) == 0 {
		return nil, badRequest("aoi_path is not accepted over HTTP; send aoi or aoi_geojson")
	}
	return inlinePolygon(r.AOI, r.AOIGeoJSON)
}

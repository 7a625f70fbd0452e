package calendar

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/shadowflicker/pkg/solar"
)

const (
	// TimestampLayout is ISO-8601 with a numeric UTC offset, e.g.
	// 2024-06-21T07:15:00+02:00.
	TimestampLayout = "2006-01-02T15:04:05-07:00"
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04:05"
)

var (
	ErrInvalidParameters = errors.New("invalid project parameters")
	ErrInvalidTurbine    = errors.New("invalid turbine")
)

// Turbine is a wind turbine in planar map coordinates (meters).
type Turbine struct {
	ID             string  `json:"turbine_id" yaml:"turbine_id" msgpack:"turbine_id"`
	X              float64 `json:"x" yaml:"x" msgpack:"x"`
	Y              float64 `json:"y" yaml:"y" msgpack:"y"`
	HubHeightM     float64 `json:"hub_height_m" yaml:"hub_height_m" msgpack:"hub_height_m"`
	RotorDiameterM float64 `json:"rotor_diameter_m" yaml:"rotor_diameter_m" msgpack:"rotor_diameter_m"`
}

// RotorRadiusM is half the rotor diameter.
func (t Turbine) RotorRadiusM() float64 {
	return t.RotorDiameterM / 2.0
}

// Validate checks the turbine has an id, finite coordinates and positive
// dimensions.
func (t Turbine) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing turbine_id", ErrInvalidTurbine)
	}
	if !finite(t.X) || !finite(t.Y) {
		return fmt.Errorf("%w: %s has non-finite coordinates", ErrInvalidTurbine, t.ID)
	}
	if !(t.HubHeightM > 0) || !finite(t.HubHeightM) {
		return fmt.Errorf("%w: %s hub_height_m must be positive, got %v", ErrInvalidTurbine, t.ID, t.HubHeightM)
	}
	if !(t.RotorDiameterM > 0) || !finite(t.RotorDiameterM) {
		return fmt.Errorf("%w: %s rotor_diameter_m must be positive, got %v", ErrInvalidTurbine, t.ID, t.RotorDiameterM)
	}
	return nil
}

// ValidateTurbines validates each turbine and rejects duplicate ids.
func ValidateTurbines(turbines []Turbine) error {
	seen := make(map[string]struct{}, len(turbines))
	for _, t := range turbines {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: duplicate turbine_id %q", ErrInvalidTurbine, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// ProjectParameters are the site and run settings of a calendar computation.
type ProjectParameters struct {
	Latitude             float64 `json:"latitude" yaml:"latitude" msgpack:"latitude"`
	Longitude            float64 `json:"longitude" yaml:"longitude" msgpack:"longitude"`
	Year                 int     `json:"year" yaml:"year" msgpack:"year"`
	MinSolarElevationDeg float64 `json:"min_solar_elevation_deg" yaml:"min_solar_elevation_deg" msgpack:"min_solar_elevation_deg"`
	Timezone             string  `json:"timezone" yaml:"timezone" msgpack:"timezone"`
	TimestepMinutes      int     `json:"timestep_minutes" yaml:"timestep_minutes" msgpack:"timestep_minutes"`
}

// WithDefaults fills an empty timezone and a zero timestep.
func (p ProjectParameters) WithDefaults() ProjectParameters {
	if p.Timezone == "" {
		p.Timezone = solar.DefaultTimezone
	}
	if p.TimestepMinutes == 0 {
		p.TimestepMinutes = solar.DefaultTimestepMinutes
	}
	return p
}

// Validate checks ranges. The timezone is not checked here: an unknown zone
// degrades to UTC with a warning.
func (p ProjectParameters) Validate() error {
	if !finite(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidParameters, p.Latitude)
	}
	if !finite(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidParameters, p.Longitude)
	}
	if p.Year < 1 || p.Year > 9998 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidParameters, p.Year)
	}
	if !finite(p.MinSolarElevationDeg) || p.MinSolarElevationDeg >= 90 {
		return fmt.Errorf("%w: min_solar_elevation_deg %v out of range", ErrInvalidParameters, p.MinSolarElevationDeg)
	}
	if p.TimestepMinutes <= 0 || p.TimestepMinutes > 1440 {
		return fmt.Errorf("%w: timestep_minutes %d out of range", ErrInvalidParameters, p.TimestepMinutes)
	}
	return nil
}

// FlickerEvent is one timestamp at which a turbine's shadow reaches the AOI.
type FlickerEvent struct {
	TurbineID       string    `json:"turbine_id" msgpack:"turbine_id"`
	Timestamp       time.Time `json:"-" msgpack:"-"`
	TimestampLocal  string    `json:"timestamp_local" msgpack:"timestamp_local"`
	Date            string    `json:"date" msgpack:"date"`
	Time            string    `json:"time" msgpack:"time"`
	SunAzimuthDeg   float64   `json:"sun_azimuth_deg" msgpack:"sun_azimuth_deg"`
	SunElevationDeg float64   `json:"sun_elevation_deg" msgpack:"sun_elevation_deg"`
}

// NewFlickerEvent formats the local timestamp fields from the sample.
func NewFlickerEvent(turbineID string, s solar.Sample) FlickerEvent {
	return FlickerEvent{
		TurbineID:       turbineID,
		Timestamp:       s.Time,
		TimestampLocal:  s.Time.Format(TimestampLayout),
		Date:            s.Time.Format(DateLayout),
		Time:            s.Time.Format(TimeLayout),
		SunAzimuthDeg:   s.AzimuthDeg,
		SunElevationDeg: s.ApparentElevationDeg,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

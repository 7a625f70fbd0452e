// Package solar builds the yearly solar-position series that drives the shadow
// flicker calendar.
package solar

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // zone lookups must not depend on the host's zoneinfo
)

const (
	// DefaultTimezone is used by project files that do not name a zone.
	DefaultTimezone = "Europe/Rome"

	// DefaultTimestepMinutes is the spacing of the yearly series.
	DefaultTimestepMinutes = 15

	minutesPerDay = 24 * 60
)

var (
	// ErrUnknownTimezone is carried by TimeIndex.Warning when the requested zone
	// could not be loaded and UTC was used instead.
	ErrUnknownTimezone = errors.New("unknown timezone")

	// ErrInvalidTimestep is returned for a timestep outside 1..1440 minutes.
	ErrInvalidTimestep = errors.New("timestep must be between 1 and 1440 minutes")
)

// TimeIndex is an evenly spaced, zone-aware series of instants covering one
// calendar year.
type TimeIndex struct {
	Times    []time.Time
	Location *time.Location

	// Warning is non-nil when the zone fell back to UTC. It is informational;
	// Times is complete either way.
	Warning error
}

// ResolveLocation loads an IANA zone, falling back to UTC with a warning.
func ResolveLocation(timezone string) (*time.Location, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC, fmt.Errorf("%w %q, falling back to UTC: %v", ErrUnknownTimezone, timezone, err)
	}
	return loc, nil
}

// BuildTimeIndex returns every instant from Jan 1 00:00 local time of year
// (inclusive) to Jan 1 00:00 local time of the following year (exclusive),
// spaced timestepMinutes apart in absolute time.
func BuildTimeIndex(year int, timezone string, timestepMinutes int) (TimeIndex, error) {
	if timestepMinutes <= 0 || timestepMinutes > minutesPerDay {
		return TimeIndex{}, fmt.Errorf("%w: got %d", ErrInvalidTimestep, timestepMinutes)
	}

	loc, warning := ResolveLocation(timezone)

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, loc)
	step := time.Duration(timestepMinutes) * time.Minute

	n := int(end.Sub(start) / step)
	if end.Sub(start)%step != 0 {
		n++
	}

	times := make([]time.Time, 0, n)
	for t := start; t.Before(end); t = t.Add(step) {
		times = append(times, t)
	}

	return TimeIndex{
		Times:    times,
		Location: loc,
		Warning:  warning,
	}, nil
}

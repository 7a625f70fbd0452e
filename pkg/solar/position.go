package solar

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/refraction"
	"github.com/soniakeys/meeus/v3/sidereal"
	meeussolar "github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"
)

// refractionCutoffDeg is the true altitude below which no refraction is applied:
// the solar semi-diameter plus standard horizon refraction.
const refractionCutoffDeg = -(0.26667 + 0.5667)

// Sample is the sun position at one instant.
type Sample struct {
	Time time.Time `json:"time" msgpack:"time"`

	// ApparentElevationDeg is corrected for atmospheric refraction.
	ApparentElevationDeg float64 `json:"apparent_elevation_deg" msgpack:"elevation"`

	// AzimuthDeg is measured clockwise from true north, in [0, 360).
	AzimuthDeg float64 `json:"azimuth_deg" msgpack:"azimuth"`
}

// Series is a daylight-filtered solar series together with the zone it was
// built in.
type Series struct {
	Location *time.Location
	Samples  []Sample
	Warning  error
}

// Position returns the apparent elevation and azimuth of the sun at t for an
// observer at latitude/longitude (degrees, east positive).
func Position(t time.Time, latitude, longitude float64) (elevationDeg, azimuthDeg float64) {
	jd := julian.TimeToJD(t.UTC())

	// The ΔT correction moves the sun by well under a thousandth of a degree,
	// so UT stands in for the ephemeris time.
	ra, dec := meeussolar.ApparentEquatorial(jd)

	H := sidereal.Apparent(jd).Rad() + degToRad(longitude) - ra.Rad()
	sinH, cosH := math.Sincos(H)
	sinφ, cosφ := math.Sincos(degToRad(latitude))
	sinδ, cosδ := math.Sincos(dec.Rad())

	altitude := radToDeg(math.Asin(sinφ*sinδ + cosφ*cosδ*cosH))

	// Meeus (13.5) measures azimuth westward from south.
	fromSouth := math.Atan2(sinH, cosH*sinφ-sinδ/cosδ*cosφ)
	azimuthDeg = fixAngle(radToDeg(fromSouth) + 180)

	elevationDeg = altitude
	if altitude > refractionCutoffDeg {
		elevationDeg += refraction.Saemundsson(unit.AngleFromDeg(altitude)).Deg()
	}
	if elevationDeg >= 90 {
		elevationDeg = math.Nextafter(90, 0)
	}

	return elevationDeg, azimuthDeg
}

// ComputeSolarPosition evaluates Position for every timestamp, preserving order.
func ComputeSolarPosition(times []time.Time, latitude, longitude float64) []Sample {
	samples := make([]Sample, len(times))
	for i, t := range times {
		elevation, azimuth := Position(t, latitude, longitude)
		samples[i] = Sample{
			Time:                 t,
			ApparentElevationDeg: elevation,
			AzimuthDeg:           azimuth,
		}
	}
	return samples
}

// FilterDaylight keeps samples whose apparent elevation is strictly above
// minElevationDeg.
func FilterDaylight(samples []Sample, minElevationDeg float64) []Sample {
	daylight := make([]Sample, 0, len(samples)/2)
	for _, s := range samples {
		if s.ApparentElevationDeg > minElevationDeg {
			daylight = append(daylight, s)
		}
	}
	return daylight
}

// Daylight builds the time index, evaluates the sun and filters to daylight in
// one pass.
func Daylight(year int, timezone string, timestepMinutes int, latitude, longitude, minElevationDeg float64) (*Series, error) {
	index, err := BuildTimeIndex(year, timezone, timestepMinutes)
	if err != nil {
		return nil, err
	}

	samples := ComputeSolarPosition(index.Times, latitude, longitude)

	return &Series{
		Location: index.Location,
		Samples:  FilterDaylight(samples, minElevationDeg),
		Warning:  index.Warning,
	}, nil
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func radToDeg(rad float64) float64 { return rad * 180.0 / math.Pi }
func fixAngle(a float64) float64 {
	a -= 360.0 * math.Floor(a/360.0)
	if a >= 360.0 {
		return 0
	}
	return a
}

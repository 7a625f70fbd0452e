package solar

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/globe"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/rise"
	"github.com/soniakeys/meeus/v3/sidereal"
	meeussolar "github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"
)

// SunriseSunset returns sunrise and sunset for the calendar day of date, in
// date's location. Sunrise is the moment the upper limb of the sun touches the
// horizon under standard refraction. ok is false on polar days (sun never
// sets) and polar nights (sun never rises).
func SunriseSunset(date time.Time, latitude, longitude float64) (sunrise, sunset time.Time, ok bool) {
	loc := date.Location()
	y, m, d := date.Date()

	// The local day straddles two UT days away from Greenwich, so look for the
	// event on the UT days around it and keep the one on the local date.
	utDay := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	var riseFound, setFound bool
	for _, offset := range []int{0, -1, 1} {
		day := utDay.AddDate(0, 0, offset)
		r, s, err := riseSetUT(day, latitude, longitude)
		if err != nil {
			continue
		}
		if r = r.In(loc); !riseFound && sameDate(r, y, m, d) {
			sunrise, riseFound = r, true
		}
		if s = s.In(loc); !setFound && sameDate(s, y, m, d) {
			sunset, setFound = s, true
		}
	}
	if !riseFound || !setFound {
		return time.Time{}, time.Time{}, false
	}
	return sunrise, sunset, true
}

// DayLength returns the time between sunrise and sunset, zero on polar nights
// and 24h on polar days.
func DayLength(date time.Time, latitude, longitude float64) time.Duration {
	sunrise, sunset, ok := SunriseSunset(date, latitude, longitude)
	if ok {
		return sunset.Sub(sunrise)
	}
	noon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, date.Location())
	if elevation, _ := Position(noon, latitude, longitude); elevation > 0 {
		return 24 * time.Hour
	}
	return 0
}

// riseSetUT computes rise and set on the UT day starting at day (midnight UTC).
// Meeus counts longitude positive west. Like Position, UT stands in for the
// ephemeris time.
func riseSetUT(day time.Time, latitude, longitude float64) (sunrise, sunset time.Time, err error) {
	jd0 := julian.TimeToJD(day)

	ra3 := make([]unit.RA, 3)
	dec3 := make([]unit.Angle, 3)
	for i := range ra3 {
		ra3[i], dec3[i] = meeussolar.ApparentEquatorial(jd0 + float64(i-1))
	}
	// Right ascension wraps at the March equinox; interpolation needs it
	// continuous across the three days.
	for _, i := range []int{0, 2} {
		switch diff := ra3[i].Rad() - ra3[1].Rad(); {
		case diff > math.Pi:
			ra3[i] = unit.RA(ra3[i].Rad() - 2*math.Pi)
		case diff < -math.Pi:
			ra3[i] = unit.RA(ra3[i].Rad() + 2*math.Pi)
		}
	}

	p := globe.Coord{
		Lat: unit.AngleFromDeg(latitude),
		Lon: unit.AngleFromDeg(-longitude),
	}
	tRise, _, tSet, err := rise.Times(p, 0, rise.Stdh0Solar, sidereal.Apparent0UT(jd0), ra3, dec3)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day.Add(seconds(tRise.Sec())), day.Add(seconds(tSet.Sec())), nil
}

func sameDate(t time.Time, y int, m time.Month, d int) bool {
	ty, tm, td := t.Date()
	return ty == y && tm == m && td == d
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

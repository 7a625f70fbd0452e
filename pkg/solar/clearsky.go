package solar

import (
	"math"
)

const solarConstant = 1361.0 // W/m²

// linkeTurbidity is a typical clear-sky value (range 2-6).
const linkeTurbidity = 2.0

// Irradiance is the clear-sky estimate for one sample, in W/m².
type Irradiance struct {
	DNI float64 `json:"dni" msgpack:"dni"`
	DHI float64 `json:"dhi" msgpack:"dhi"`
	GHI float64 `json:"ghi" msgpack:"ghi"`
}

// ClearSky estimates irradiance for the sample using an Ineichen-Perez style
// clear-sky model at the given site altitude (meters). A sun at or below the
// horizon yields zero.
func ClearSky(s Sample, altitudeM float64) Irradiance {
	if s.ApparentElevationDeg <= 0 {
		return Irradiance{}
	}
	zenith := 90 - s.ApparentElevationDeg
	n := float64(s.Time.YearDay())

	// Extraterrestrial radiation, corrected for the Earth-Sun distance
	g0 := solarConstant * (1 + 0.033*math.Cos(degToRad(360.0*(n-3)/365.0)))

	// Kasten-Young air mass
	am := 1.0 / (math.Cos(degToRad(zenith)) + 0.50572*math.Pow(96.07995-zenith, -1.6364))

	dni := g0 * 0.7 * math.Exp(-0.027*am*linkeTurbidity*math.Exp(-altitudeM/8000.0))
	fh := 0.1 + 0.05*math.Sin(math.Pi*(n-100)/365.0)
	dhi := fh * g0 * math.Sin(degToRad(zenith))

	return Irradiance{
		DNI: dni,
		DHI: dhi,
		GHI: dni*math.Cos(degToRad(zenith)) + dhi,
	}
}

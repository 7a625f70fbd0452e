package solar

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestBuildTimeIndex(t *testing.T) {
	tests := []struct {
		name        string
		year        int
		timezone    string
		timestep    int
		expectCount int
		expectWarn  bool
	}{
		{
			name:        "non-leap year hourly",
			year:        2023,
			timezone:    "Europe/Rome",
			timestep:    60,
			expectCount: 365 * 24,
		},
		{
			name:        "leap year hourly",
			year:        2024,
			timezone:    "Europe/Rome",
			timestep:    60,
			expectCount: 366 * 24,
		},
		{
			name:        "quarter hour across DST changes",
			year:        2023,
			timezone:    "Europe/Rome",
			timestep:    15,
			expectCount: 365 * 96,
		},
		{
			name:        "step not dividing the year",
			year:        2023,
			timezone:    "UTC",
			timestep:    7,
			expectCount: int(math.Ceil(365 * 1440 / 7.0)),
		},
		{
			name:        "unknown zone falls back to UTC",
			year:        2023,
			timezone:    "Mars/Olympus_Mons",
			timestep:    60,
			expectCount: 365 * 24,
			expectWarn:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, err := BuildTimeIndex(tt.year, tt.timezone, tt.timestep)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(index.Times) != tt.expectCount {
				t.Errorf("got %d timestamps, want %d", len(index.Times), tt.expectCount)
			}

			if tt.expectWarn {
				if !errors.Is(index.Warning, ErrUnknownTimezone) {
					t.Errorf("warning = %v, want ErrUnknownTimezone", index.Warning)
				}
				if index.Location != time.UTC {
					t.Errorf("location = %v, want UTC", index.Location)
				}
			} else if index.Warning != nil {
				t.Errorf("unexpected warning: %v", index.Warning)
			}

			first := index.Times[0]
			wantFirst := time.Date(tt.year, time.January, 1, 0, 0, 0, 0, index.Location)
			if !first.Equal(wantFirst) {
				t.Errorf("first = %v, want %v", first, wantFirst)
			}

			end := time.Date(tt.year+1, time.January, 1, 0, 0, 0, 0, index.Location)
			last := index.Times[len(index.Times)-1]
			if !last.Before(end) {
				t.Errorf("last = %v, want before %v", last, end)
			}

			step := time.Duration(tt.timestep) * time.Minute
			for i := 1; i < len(index.Times); i++ {
				if d := index.Times[i].Sub(index.Times[i-1]); d != step {
					t.Fatalf("gap at %d = %v, want %v", i, d, step)
				}
			}
		})
	}
}

func TestBuildTimeIndexInvalidTimestep(t *testing.T) {
	for _, step := range []int{0, -15, 1441} {
		if _, err := BuildTimeIndex(2024, "UTC", step); !errors.Is(err, ErrInvalidTimestep) {
			t.Errorf("timestep %d: err = %v, want ErrInvalidTimestep", step, err)
		}
	}
}

func TestComputeSolarPositionRanges(t *testing.T) {
	index, err := BuildTimeIndex(2024, "Europe/Rome", 15)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// First day plus the summer solstice week
	times := append([]time.Time{}, index.Times[:96]...)
	times = append(times, index.Times[172*96:179*96]...)

	samples := ComputeSolarPosition(times, 45.0, 10.0)
	if len(samples) != len(times) {
		t.Fatalf("got %d samples, want %d", len(samples), len(times))
	}

	for i, s := range samples {
		if !s.Time.Equal(times[i]) {
			t.Fatalf("sample %d out of order", i)
		}
		if !(s.ApparentElevationDeg > -90 && s.ApparentElevationDeg < 90) {
			t.Errorf("%v: elevation %f out of range", s.Time, s.ApparentElevationDeg)
		}
		if !(s.AzimuthDeg >= 0 && s.AzimuthDeg < 360) {
			t.Errorf("%v: azimuth %f out of range", s.Time, s.AzimuthDeg)
		}
	}
}

func TestPositionKnownValues(t *testing.T) {
	tests := []struct {
		name            string
		time            time.Time
		latitude        float64
		longitude       float64
		expectElevation float64
		expectAzimuth   float64
		epsilon         float64
	}{
		{
			// Local solar noon: elevation 90 - 45 + 23.44
			name:            "solstice noon at 45N 10E",
			time:            time.Date(2024, 6, 21, 11, 22, 0, 0, time.UTC),
			latitude:        45.0,
			longitude:       10.0,
			expectElevation: 68.45,
			expectAzimuth:   180.0,
			epsilon:         0.6,
		},
		{
			name:            "equinox noon on the equator",
			time:            time.Date(2024, 3, 20, 12, 7, 0, 0, time.UTC),
			latitude:        0.0,
			longitude:       0.0,
			expectElevation: 89.9,
			expectAzimuth:   -1, // undefined near the zenith
			epsilon:         0.6,
		},
		{
			name:            "winter solstice noon at 45N 10E",
			time:            time.Date(2024, 12, 21, 11, 18, 0, 0, time.UTC),
			latitude:        45.0,
			longitude:       10.0,
			expectElevation: 21.6,
			expectAzimuth:   180.0,
			epsilon:         0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elevation, azimuth := Position(tt.time, tt.latitude, tt.longitude)
			if math.Abs(elevation-tt.expectElevation) > tt.epsilon {
				t.Errorf("elevation = %.3f, want %.3f ± %.2f", elevation, tt.expectElevation, tt.epsilon)
			}
			if tt.expectAzimuth >= 0 && math.Abs(azimuth-tt.expectAzimuth) > 2.0 {
				t.Errorf("azimuth = %.3f, want %.3f ± 2", azimuth, tt.expectAzimuth)
			}
		})
	}
}

func TestPositionDirection(t *testing.T) {
	// Mid-morning the sun is in the east, mid-afternoon in the west.
	morningElev, morningAz := Position(time.Date(2024, 6, 21, 7, 0, 0, 0, time.UTC), 45.0, 10.0)
	afternoonElev, afternoonAz := Position(time.Date(2024, 6, 21, 16, 0, 0, 0, time.UTC), 45.0, 10.0)

	if morningElev <= 0 || afternoonElev <= 0 {
		t.Fatalf("expected the sun above the horizon, got %f and %f", morningElev, afternoonElev)
	}
	if morningAz <= 45 || morningAz >= 135 {
		t.Errorf("morning azimuth = %f, want east", morningAz)
	}
	if afternoonAz <= 225 || afternoonAz >= 315 {
		t.Errorf("afternoon azimuth = %f, want west", afternoonAz)
	}

	// Midnight in January is well below the horizon
	if elev, _ := Position(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 45.0, 10.0); elev > -45 {
		t.Errorf("midnight elevation = %f, want deep below the horizon", elev)
	}
}

func TestFilterDaylight(t *testing.T) {
	base := time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)
	samples := []Sample{
		{Time: base, ApparentElevationDeg: -10},
		{Time: base.Add(time.Hour), ApparentElevationDeg: 5},
		{Time: base.Add(2 * time.Hour), ApparentElevationDeg: 5.0001},
		{Time: base.Add(3 * time.Hour), ApparentElevationDeg: 40},
		{Time: base.Add(4 * time.Hour), ApparentElevationDeg: 4.9},
	}

	daylight := FilterDaylight(samples, 5)
	if len(daylight) != 2 {
		t.Fatalf("got %d samples, want 2", len(daylight))
	}
	if !daylight[0].Time.Equal(samples[2].Time) || !daylight[1].Time.Equal(samples[3].Time) {
		t.Errorf("unexpected samples kept: %+v", daylight)
	}
}

func TestDaylight(t *testing.T) {
	series, err := Daylight(2024, "Europe/Rome", 60, 45.0, 10.0, 5.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if series.Warning != nil {
		t.Errorf("unexpected warning: %v", series.Warning)
	}
	// Roughly half the hours of a year at 45N are daylight; the threshold trims some.
	if n := len(series.Samples); n < 3500 || n > 4600 {
		t.Errorf("got %d daylight samples, want between 3500 and 4600", n)
	}
	for _, s := range series.Samples {
		if s.ApparentElevationDeg <= 5.0 {
			t.Fatalf("sample at %v below threshold: %f", s.Time, s.ApparentElevationDeg)
		}
		if s.Time.Location() != series.Location {
			t.Fatalf("sample at %v not in %v", s.Time, series.Location)
		}
	}
}

func TestClearSky(t *testing.T) {
	noon := time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)

	if got := ClearSky(Sample{Time: noon, ApparentElevationDeg: -2}, 0); got != (Irradiance{}) {
		t.Errorf("below horizon = %+v, want zero", got)
	}

	high := ClearSky(Sample{Time: noon, ApparentElevationDeg: 65}, 0)
	low := ClearSky(Sample{Time: noon, ApparentElevationDeg: 5}, 0)
	if !(high.GHI > low.GHI) || !(high.DNI > low.DNI) {
		t.Errorf("high sun %+v should beat low sun %+v", high, low)
	}
	if high.GHI > solarConstant*1.04 || high.GHI < 500 {
		t.Errorf("noon GHI = %v, outside plausible range", high.GHI)
	}

	mountain := ClearSky(Sample{Time: noon, ApparentElevationDeg: 65}, 3000)
	if !(mountain.DNI > high.DNI) {
		t.Errorf("DNI at altitude %v should exceed sea level %v", mountain.DNI, high.DNI)
	}
	if math.IsNaN(low.DHI) {
		t.Errorf("DHI is NaN")
	}
}

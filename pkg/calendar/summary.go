package calendar

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/shadowflicker/pkg/geometry"
	"github.com/chrissnell/shadowflicker/pkg/solar"
)

// Limits are exposure thresholds a receptor should stay under. Zero disables
// a limit.
type Limits struct {
	AnnualHours  float64 `json:"annual_hours" yaml:"annual_hours"`
	DailyMinutes float64 `json:"daily_minutes" yaml:"daily_minutes"`
}

// TurbineSummary aggregates the events of one turbine.
type TurbineSummary struct {
	TurbineID        string  `json:"turbine_id" msgpack:"turbine_id"`
	Events           int     `json:"events" msgpack:"events"`
	Hours            float64 `json:"hours" msgpack:"hours"`
	Days             int     `json:"days" msgpack:"days"`
	MaxDailyMinutes  float64 `json:"max_daily_minutes" msgpack:"max_daily_minutes"`
	MeanDailyMinutes float64 `json:"mean_daily_minutes" msgpack:"mean_daily_minutes"`
	FirstDate        string  `json:"first_date,omitempty" msgpack:"first_date,omitempty"`
	LastDate         string  `json:"last_date,omitempty" msgpack:"last_date,omitempty"`
}

// DaySummary aggregates the events of one local date.
type DaySummary struct {
	Date string `json:"date" msgpack:"date"`

	// Minutes counts timestamps with at least one turbine casting onto the AOI;
	// overlapping turbines are not double counted.
	Minutes   float64  `json:"minutes" msgpack:"minutes"`
	Events    int      `json:"events" msgpack:"events"`
	Turbines  []string `json:"turbines" msgpack:"turbines"`
	FirstTime string   `json:"first_time" msgpack:"first_time"`
	LastTime  string   `json:"last_time" msgpack:"last_time"`
	Sunrise   string   `json:"sunrise,omitempty" msgpack:"sunrise,omitempty"`
	Sunset    string   `json:"sunset,omitempty" msgpack:"sunset,omitempty"`

	// DayLengthMinutes is sunrise to sunset; 1440 on polar days, 0 on polar
	// nights.
	DayLengthMinutes float64 `json:"day_length_minutes" msgpack:"day_length_minutes"`
}

// Summary is the per-turbine and per-day view of a calendar.
type Summary struct {
	TotalHours         float64          `json:"total_hours" msgpack:"total_hours"`
	DaysAffected       int              `json:"days_affected" msgpack:"days_affected"`
	MaxDailyMinutes    float64          `json:"max_daily_minutes" msgpack:"max_daily_minutes"`
	Turbines           []TurbineSummary `json:"turbines" msgpack:"turbines"`
	Days               []DaySummary     `json:"days" msgpack:"days"`
	ExceedsAnnualLimit bool             `json:"exceeds_annual_limit" msgpack:"exceeds_annual_limit"`
	ExceedsDailyLimit  bool             `json:"exceeds_daily_limit" msgpack:"exceeds_daily_limit"`
	DaysOverDailyLimit int              `json:"days_over_daily_limit" msgpack:"days_over_daily_limit"`
	TimestepMinutes    int              `json:"timestep_minutes" msgpack:"timestep_minutes"`
}

// Summarize groups events by turbine and by date. Each event stands for one
// timestep of exposure. turbines fixes the order of Summary.Turbines; turbines
// without events are included with zero counts.
func Summarize(events []FlickerEvent, turbines []Turbine, params ProjectParameters, limits Limits) Summary {
	params = params.WithDefaults()
	step := float64(params.TimestepMinutes)
	loc, _ := solar.ResolveLocation(params.Timezone)

	perTurbineDay := make(map[string]map[string]int)
	days := make(map[string]*DaySummary)
	stamps := make(map[string]map[string]struct{})
	var dayOrder []string

	for _, ev := range events {
		if perTurbineDay[ev.TurbineID] == nil {
			perTurbineDay[ev.TurbineID] = make(map[string]int)
		}
		perTurbineDay[ev.TurbineID][ev.Date]++

		day, ok := days[ev.Date]
		if !ok {
			day = &DaySummary{Date: ev.Date, FirstTime: ev.Time, LastTime: ev.Time}
			days[ev.Date] = day
			stamps[ev.Date] = make(map[string]struct{})
			dayOrder = append(dayOrder, ev.Date)
		}
		day.Events++
		if ev.Time < day.FirstTime {
			day.FirstTime = ev.Time
		}
		if ev.Time > day.LastTime {
			day.LastTime = ev.Time
		}
		if !containsString(day.Turbines, ev.TurbineID) {
			day.Turbines = append(day.Turbines, ev.TurbineID)
		}
		stamps[ev.Date][ev.TimestampLocal] = struct{}{}
	}

	sort.Strings(dayOrder)

	summary := Summary{
		DaysAffected:    len(dayOrder),
		TimestepMinutes: params.TimestepMinutes,
		Days:            make([]DaySummary, 0, len(dayOrder)),
	}

	for _, date := range dayOrder {
		day := days[date]
		day.Minutes = float64(len(stamps[date])) * step

		if d, err := time.ParseInLocation(DateLayout, date, loc); err == nil {
			if sunrise, sunset, ok := solar.SunriseSunset(d, params.Latitude, params.Longitude); ok {
				day.Sunrise = sunrise.Format(TimeLayout)
				day.Sunset = sunset.Format(TimeLayout)
			}
			day.DayLengthMinutes = math.Round(solar.DayLength(d, params.Latitude, params.Longitude).Minutes())
		}

		if limits.DailyMinutes > 0 && day.Minutes > limits.DailyMinutes {
			summary.DaysOverDailyLimit++
		}
		summary.Days = append(summary.Days, *day)
	}

	dailyMinutes := make([]float64, len(summary.Days))
	for i, d := range summary.Days {
		dailyMinutes[i] = d.Minutes
	}
	if len(dailyMinutes) > 0 {
		summary.MaxDailyMinutes = floats.Max(dailyMinutes)
		summary.TotalHours = floats.Sum(dailyMinutes) / 60
	}

	ids := make([]string, 0, len(turbines))
	for _, t := range turbines {
		ids = append(ids, t.ID)
	}
	// Events from turbines the caller did not list still get a row.
	extra := make([]string, 0)
	for id := range perTurbineDay {
		if !containsString(ids, id) {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	ids = append(ids, extra...)

	for _, id := range ids {
		summary.Turbines = append(summary.Turbines, summarizeTurbine(id, perTurbineDay[id], step))
	}

	summary.ExceedsAnnualLimit = limits.AnnualHours > 0 && summary.TotalHours > limits.AnnualHours
	summary.ExceedsDailyLimit = summary.DaysOverDailyLimit > 0

	return summary
}

func summarizeTurbine(id string, byDay map[string]int, step float64) TurbineSummary {
	ts := TurbineSummary{TurbineID: id, Days: len(byDay)}
	if len(byDay) == 0 {
		return ts
	}

	dates := make([]string, 0, len(byDay))
	for date := range byDay {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	minutes := make([]float64, len(dates))
	for i, date := range dates {
		ts.Events += byDay[date]
		minutes[i] = float64(byDay[date]) * step
	}

	ts.Hours = float64(ts.Events) * step / 60
	ts.MaxDailyMinutes = floats.Max(minutes)
	ts.MeanDailyMinutes = stat.Mean(minutes, nil)
	ts.FirstDate = dates[0]
	ts.LastDate = dates[len(dates)-1]
	return ts
}

// GroupByDate splits an ordered event sequence into per-date runs, relying on
// the chronological ordering of calendar output.
func GroupByDate(events []FlickerEvent) [][]FlickerEvent {
	var groups [][]FlickerEvent
	start := 0
	for i := 1; i <= len(events); i++ {
		if i == len(events) || events[i].Date != events[start].Date {
			groups = append(groups, events[start:i])
			start = i
		}
	}
	return groups
}

// TrajectoryPoint is one frame of a turbine's shadow over a day.
type TrajectoryPoint struct {
	TimestampLocal  string       `json:"timestamp_local" msgpack:"timestamp_local"`
	SunAzimuthDeg   float64      `json:"sun_azimuth_deg" msgpack:"sun_azimuth_deg"`
	SunElevationDeg float64      `json:"sun_elevation_deg" msgpack:"sun_elevation_deg"`
	Center          [2]float64   `json:"center" msgpack:"center"`
	Polygon         [][2]float64 `json:"polygon" msgpack:"polygon"`
	Intersects      bool         `json:"intersects" msgpack:"intersects"`

	// DNI is the clear-sky direct normal irradiance at sea level, W/m².
	DNI float64 `json:"dni" msgpack:"dni"`
}

// Trajectory returns the shadow of turbine t for each daylight sample of the
// given local date ("2006-01-02"), with its intersection flag against aoi.
func Trajectory(aoi geometry.Polygon, t Turbine, samples []solar.Sample, date string, vertices int) []TrajectoryPoint {
	prepared := geometry.Prepare(aoi)
	builder := geometry.NewShadowBuilder(vertices)

	var points []TrajectoryPoint
	for _, s := range samples {
		if s.Time.Format(DateLayout) != date {
			continue
		}
		shadow := geometry.NewShadow(t.X, t.Y, t.HubHeightM, t.RotorRadiusM(), s.AzimuthDeg, s.ApparentElevationDeg)
		poly := builder.Build(shadow)
		points = append(points, TrajectoryPoint{
			TimestampLocal:  s.Time.Format(TimestampLayout),
			SunAzimuthDeg:   s.AzimuthDeg,
			SunElevationDeg: s.ApparentElevationDeg,
			Center:          [2]float64{shadow.Center.X, shadow.Center.Y},
			Polygon:         poly.Coords(),
			Intersects:      len(aoi) > 0 && prepared.Intersects(poly),
			DNI:             solar.ClearSky(s, 0).DNI,
		})
	}
	return points
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

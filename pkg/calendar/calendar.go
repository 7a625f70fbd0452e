// Package calendar computes the shadow flicker calendar: every daylight
// timestamp at which a turbine's rotor shadow reaches the area of interest.
package calendar

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/shadowflicker/pkg/geometry"
	"github.com/chrissnell/shadowflicker/pkg/solar"
)

// positiveRateEstimate sizes the event buffer: the share of
// (sample, turbine) pairs expected to intersect a typical residential AOI.
const positiveRateEstimate = 0.02

// SolarSource supplies the daylight-filtered solar series for a project.
type SolarSource interface {
	DaylightSeries(params ProjectParameters) (*solar.Series, error)
}

// ComputedSolar evaluates the series from scratch on every call.
type ComputedSolar struct{}

// DaylightSeries implements SolarSource.
func (ComputedSolar) DaylightSeries(p ProjectParameters) (*solar.Series, error) {
	return solar.Daylight(p.Year, p.Timezone, p.TimestepMinutes, p.Latitude, p.Longitude, p.MinSolarElevationDeg)
}

// Result is the outcome of one calendar computation.
type Result struct {
	Events []FlickerEvent

	// Warning carries the timezone fallback, if any. It does not invalidate
	// Events.
	Warning error

	DaylightSamples int
	Turbines        int
	Duration        time.Duration
}

// Engine runs calendar computations.
type Engine struct {
	logger   *zap.SugaredLogger
	solar    SolarSource
	workers  int
	vertices int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSolarSource replaces the solar series provider, e.g. with a cache.
func WithSolarSource(src SolarSource) Option {
	return func(e *Engine) {
		if src != nil {
			e.solar = src
		}
	}
}

// WithWorkers splits the daylight samples across n goroutines. Values below 2
// keep the computation on the calling goroutine.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithVertices sets the shadow ring size. Zero keeps the default.
func WithVertices(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.vertices = n
		}
	}
}

// NewEngine returns an engine with the given options applied.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:   zap.NewNop().Sugar(),
		solar:    ComputedSolar{},
		workers:  1,
		vertices: geometry.DefaultVertices,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute runs a calendar with a default engine.
func Compute(aoi geometry.Polygon, turbines []Turbine, params ProjectParameters) (*Result, error) {
	return NewEngine().Compute(aoi, turbines, params)
}

// Compute returns the flicker events for the AOI, in chronological order and,
// within one timestamp, in the order of turbines.
func (e *Engine) Compute(aoi geometry.Polygon, turbines []Turbine, params ProjectParameters) (*Result, error) {
	started := time.Now()
	params = params.WithDefaults()

	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateTurbines(turbines); err != nil {
		return nil, err
	}
	if len(aoi) == 0 || len(turbines) == 0 {
		return &Result{Events: []FlickerEvent{}, Turbines: len(turbines)}, nil
	}
	if err := aoi.Validate(); err != nil {
		return nil, fmt.Errorf("area of interest: %w", err)
	}

	series, err := e.solar.DaylightSeries(params)
	if err != nil {
		return nil, fmt.Errorf("solar series: %w", err)
	}
	if series.Warning != nil {
		e.logger.Warnw("timezone fallback", "timezone", params.Timezone, "warning", series.Warning)
	}

	events := e.ComputeSeries(geometry.Prepare(aoi), turbines, series.Samples)

	result := &Result{
		Events:          events,
		Warning:         series.Warning,
		DaylightSamples: len(series.Samples),
		Turbines:        len(turbines),
		Duration:        time.Since(started),
	}

	e.logger.Debugw("calendar computed",
		"year", params.Year,
		"daylight_samples", result.DaylightSamples,
		"turbines", result.Turbines,
		"events", len(result.Events),
		"workers", e.workers,
		"duration", result.Duration)

	return result, nil
}

// ComputeSeries runs the (sample × turbine) loop over an already filtered
// series. Inputs are only read.
func (e *Engine) ComputeSeries(aoi *geometry.Prepared, turbines []Turbine, samples []solar.Sample) []FlickerEvent {
	workers := e.workers
	if workers > len(samples) {
		workers = len(samples)
	}
	if workers < 2 {
		return scan(aoi, turbines, samples, geometry.NewShadowBuilder(e.vertices))
	}

	// Contiguous chunks keep each worker's output in order; joining the chunks
	// in sequence restores the global ordering.
	chunks := make([][]FlickerEvent, workers)
	size := (len(samples) + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * size
		hi := min(lo+size, len(samples))
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			chunks[w] = scan(aoi, turbines, samples[lo:hi], geometry.NewShadowBuilder(e.vertices))
		}(w, lo, hi)
	}
	wg.Wait()

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	events := make([]FlickerEvent, 0, total)
	for _, c := range chunks {
		events = append(events, c...)
	}
	return events
}

func scan(aoi *geometry.Prepared, turbines []Turbine, samples []solar.Sample, builder *geometry.ShadowBuilder) []FlickerEvent {
	events := make([]FlickerEvent, 0, int(float64(len(samples)*len(turbines))*positiveRateEstimate)+1)

	for _, s := range samples {
		for _, t := range turbines {
			shadow := geometry.NewShadow(t.X, t.Y, t.HubHeightM, t.RotorRadiusM(), s.AzimuthDeg, s.ApparentElevationDeg)

			// The ellipse's own box contains the ring, so rejecting on it
			// skips building vertices for far-away shadows.
			if !geometry.BoxesOverlap(aoi.Box, shadow.Bounds()) {
				continue
			}
			if aoi.Intersects(builder.Build(shadow)) {
				events = append(events, NewFlickerEvent(t.ID, s))
			}
		}
	}
	return events
}

// Package metrics exposes Prometheus instrumentation for calendar runs, the
// solar cache and the HTTP API.
package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "shadowflicker_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	calendarRuns     *prometheus.CounterVec
	calendarDuration *prometheus.HistogramVec
	calendarEvents   prometheus.Counter

	solarCacheLookups *prometheus.CounterVec

	exportsTotal *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
)

// Init registers the collectors with the default registry. When db is not nil
// gauges backed by the run store are registered too. Safe to call more than
// once.
func Init(db *sql.DB, logger *zap.SugaredLogger) {
	registerOnce.Do(func() {
		calendarRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "calendar_runs_total",
				Help: "Total calendar computations by result",
			},
			[]string{"result"},
		)
		calendarDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "calendar_duration_seconds",
				Help:    "Calendar computation time in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"result"},
		)
		calendarEvents = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "calendar_events_total",
				Help: "Total flicker events produced",
			},
		)

		solarCacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "solar_cache_lookups_total",
				Help: "Solar series cache lookups by outcome",
			},
			[]string{"outcome"},
		)

		exportsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "exports_total",
				Help: "Total exports by format and result",
			},
			[]string{"format", "result"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		)

		prometheus.MustRegister(
			calendarRuns,
			calendarDuration,
			calendarEvents,
			solarCacheLookups,
			exportsTotal,
			httpRequests,
			httpLatency,
		)
		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveCalendar records one calendar computation.
func ObserveCalendar(result string, duration time.Duration, events int) {
	if result == "" {
		result = ResultSuccess
	}
	if calendarRuns != nil {
		calendarRuns.WithLabelValues(result).Inc()
	}
	if calendarDuration != nil {
		calendarDuration.WithLabelValues(result).Observe(duration.Seconds())
	}
	if calendarEvents != nil && events > 0 {
		calendarEvents.Add(float64(events))
	}
}

// IncSolarCache counts a cache lookup; outcome is "hit" or "miss".
func IncSolarCache(outcome string) {
	if solarCacheLookups != nil {
		solarCacheLookups.WithLabelValues(outcome).Inc()
	}
}

// IncExport counts one export.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if exportsTotal != nil {
		exportsTotal.WithLabelValues(format, result).Inc()
	}
}

// ObserveHTTP records one HTTP request.
func ObserveHTTP(route string, code int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(route, statusCode(code)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(route).Observe(duration.Seconds())
	}
}

func statusCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}

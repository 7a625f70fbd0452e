package log

import (
	"time"

	"go.uber.org/zap"
)

// HTTPLogEntry represents an HTTP request/response log entry
type HTTPLogEntry struct {
	Method     string
	Path       string
	Route      string
	Status     int
	Duration   time.Duration
	Size       int
	RemoteAddr string
	UserAgent  string
}

// LogHTTPRequest writes one access log line. Server errors are logged at
// error level, everything else at debug.
func LogHTTPRequest(logger *zap.SugaredLogger, e HTTPLogEntry) {
	if logger == nil {
		return
	}
	fields := []interface{}{
		"method", e.Method,
		"path", e.Path,
		"status", e.Status,
		"duration_ms", e.Duration.Milliseconds(),
		"size", e.Size,
		"remote_addr", e.RemoteAddr,
	}
	if e.Route != "" {
		fields = append(fields, "route", e.Route)
	}
	if e.UserAgent != "" {
		fields = append(fields, "user_agent", e.UserAgent)
	}

	if e.Status >= 500 {
		logger.Errorw("http request", fields...)
		return
	}
	logger.Debugw("http request", fields...)
}

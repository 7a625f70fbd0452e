package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/chrissnell/shadowflicker/internal/log"
	"github.com/chrissnell/shadowflicker/internal/metrics"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// instrument records request metrics by route template and writes the access
// log.
func (c *Controller) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, req)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		route := ""
		if cur := mux.CurrentRoute(req); cur != nil {
			route, _ = cur.GetPathTemplate()
		}
		elapsed := time.Since(started)

		metrics.ObserveHTTP(route, rec.status, elapsed)
		log.LogHTTPRequest(c.logger, log.HTTPLogEntry{
			Method:     req.Method,
			Path:       req.URL.Path,
			Route:      route,
			Status:     rec.status,
			Duration:   elapsed,
			Size:       rec.size,
			RemoteAddr: req.RemoteAddr,
			UserAgent:  req.UserAgent(),
		})
	})
}

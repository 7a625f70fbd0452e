// Package server exposes calendar computations and stored runs over HTTP.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chrissnell/shadowflicker/internal/storage"
	"github.com/chrissnell/shadowflicker/pkg/calendar"
	"github.com/chrissnell/shadowflicker/pkg/geometry"
)

const (
	defaultListenAddr = "0.0.0.0:8080"
	shutdownTimeout   = 10 * time.Second
)

// Config holds the HTTP API settings.
type Config struct {
	ListenAddr string
	Workers    int
	Vertices   int

	// Limits apply to summaries and reports of stored runs that were saved
	// without limits of their own.
	Limits calendar.Limits
}

// Controller represents the HTTP API server
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	cfg      Config
	Server   http.Server
	engine   *calendar.Engine
	solar    calendar.SolarSource
	store    storage.RunStore
	logger   *zap.SugaredLogger
	handlers *Handlers
}

// NewController creates the API server. store may be nil, in which case runs
// are not persisted and the /api/v1/runs routes are not registered. A nil
// solar source computes every series from scratch.
func NewController(ctx context.Context, wg *sync.WaitGroup, cfg Config, store storage.RunStore, src calendar.SolarSource, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if src == nil {
		src = calendar.ComputedSolar{}
	}
	if cfg.ListenAddr == "" {
		logger.Infof("listen address not provided; defaulting to %s", defaultListenAddr)
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.Vertices <= 0 {
		cfg.Vertices = geometry.DefaultVertices
	}

	c := &Controller{
		ctx:    ctx,
		wg:     wg,
		cfg:    cfg,
		solar:  src,
		store:  store,
		logger: logger,
	}
	c.engine = calendar.NewEngine(
		calendar.WithLogger(logger.Named("calendar")),
		calendar.WithSolarSource(src),
		calendar.WithWorkers(cfg.Workers),
		calendar.WithVertices(cfg.Vertices),
	)
	c.handlers = NewHandlers(c)

	c.Server.Addr = cfg.ListenAddr
	c.Server.Handler = c.setupRouter()
	c.Server.ReadHeaderTimeout = 10 * time.Second

	return c
}

// Handler returns the routed API, for tests and embedding.
func (c *Controller) Handler() http.Handler {
	return c.Server.Handler
}

// StartController starts the HTTP server and shuts it down when the
// controller's context is cancelled.
func (c *Controller) StartController() error {
	c.logger.Infow("starting HTTP API", "addr", c.cfg.ListenAddr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			c.logger.Errorf("HTTP server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("shutting down the HTTP API...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.Server.Shutdown(ctx); err != nil {
			c.logger.Warnw("HTTP shutdown", "error", err)
		}
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(c.instrument)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/calendar", c.handlers.PostCalendar).Methods(http.MethodPost)
	api.HandleFunc("/trajectory", c.handlers.PostTrajectory).Methods(http.MethodPost)

	// Run history needs a store.
	if c.store != nil {
		api.HandleFunc("/runs", c.handlers.ListRuns).Methods(http.MethodGet)
		api.HandleFunc("/runs/{id}", c.handlers.GetRun).Methods(http.MethodGet)
		api.HandleFunc("/runs/{id}", c.handlers.DeleteRun).Methods(http.MethodDelete)
		api.HandleFunc("/runs/{id}/events", c.handlers.GetRunEvents).Methods(http.MethodGet)
		api.HandleFunc("/runs/{id}/aoi", c.handlers.GetRunAOI).Methods(http.MethodGet)
		api.HandleFunc("/runs/{id}/summary", c.handlers.GetRunSummary).Methods(http.MethodGet)
		api.HandleFunc("/runs/{id}/report", c.handlers.GetRunReport).Methods(http.MethodGet)
	}

	router.HandleFunc("/healthz", c.handlers.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())

	return router
}

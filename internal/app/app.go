// Package app wires the project file, run store, calendar engine and HTTP API
// into the two modes of the shadowflicker command.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/chrissnell/shadowflicker/internal/export"
	"github.com/chrissnell/shadowflicker/internal/metrics"
	"github.com/chrissnell/shadowflicker/internal/server"
	"github.com/chrissnell/shadowflicker/internal/storage"
	"github.com/chrissnell/shadowflicker/pkg/calendar"
	"github.com/chrissnell/shadowflicker/pkg/config"
)

// DefaultResultsFile is written when neither -out nor the project's
// results_path names an output.
const DefaultResultsFile = "shadow_flicker_events.csv"

// Options selects what the application does.
type Options struct {
	// ProjectFile is computed once when set and Listen is empty.
	ProjectFile string

	// OutFile overrides the project's results_path. The extension picks the
	// format: .csv, .xlsx or .pdf.
	OutFile string

	// DBPath enables the run store and the solar cache.
	DBPath string

	// Listen serves the HTTP API on this address.
	Listen string

	// SaveProject writes the loaded project, defaults filled in, to this file
	// and stops. The extension picks YAML or JSON.
	SaveProject string

	// EventsFile rebuilds the results from an events CSV written by an
	// earlier run instead of recomputing the calendar.
	EventsFile string

	// Limits apply when the project sets none, and to stored runs served
	// over the API that were saved without limits.
	Limits calendar.Limits

	Workers  int
	Vertices int
}

// App represents the main application
type App struct {
	opts   Options
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(opts Options, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		opts:   opts,
		logger: logger,
	}
}

// Run serves the API when a listen address is set and otherwise computes the
// project once.
func (a *App) Run(ctx context.Context) error {
	if a.opts.Listen != "" {
		return a.Serve(ctx)
	}
	if a.opts.ProjectFile == "" {
		return errors.New("nothing to do: pass a project file or a listen address")
	}
	if a.opts.SaveProject != "" {
		return a.SaveProject()
	}
	_, err := a.ComputeProject(ctx)
	return err
}

// SaveProject copies the project file to Options.SaveProject, converting
// between YAML and JSON as the extensions ask.
func (a *App) SaveProject() error {
	project, err := config.Load(a.opts.ProjectFile)
	if err != nil {
		return fmt.Errorf("error loading project: %w", err)
	}

	provider := config.NewFileProvider(a.opts.SaveProject)
	defer provider.Close()
	if err := provider.SaveProject(project); err != nil {
		return fmt.Errorf("error saving project: %w", err)
	}

	a.logger.Infow("project saved", "from", a.opts.ProjectFile, "to", a.opts.SaveProject)
	return nil
}

func (a *App) openStore() (*storage.Store, error) {
	if a.opts.DBPath == "" {
		return nil, nil
	}
	return storage.Open(a.opts.DBPath, a.logger.Named("storage"))
}

// ComputeProject runs the calendar of the project file, writes the results
// file and, with a store, records the run. It returns the path written.
func (a *App) ComputeProject(ctx context.Context) (string, error) {
	provider := config.NewFileProvider(a.opts.ProjectFile)
	defer provider.Close()

	project, err := provider.LoadProject()
	if err != nil {
		return "", fmt.Errorf("error loading project: %w", err)
	}
	aoi, turbines, params, err := project.Calendar()
	if err != nil {
		return "", err
	}

	store, err := a.openStore()
	if err != nil {
		return "", err
	}
	opts := []calendar.Option{
		calendar.WithLogger(a.logger.Named("calendar")),
		calendar.WithWorkers(a.opts.Workers),
		calendar.WithVertices(a.opts.Vertices),
	}
	if store != nil {
		defer store.Close()
		metrics.Init(store.DB(), a.logger)
		opts = append(opts, calendar.WithSolarSource(store.SolarCache(nil)))
	} else {
		metrics.Init(nil, a.logger)
	}

	var result *calendar.Result
	if a.opts.EventsFile != "" {
		result, err = readEvents(a.opts.EventsFile)
		if err != nil {
			return "", err
		}
	} else {
		result, err = calendar.NewEngine(opts...).Compute(aoi, turbines, params)
		if err != nil {
			metrics.ObserveCalendar(metrics.ResultError, 0, 0)
			return "", err
		}
		metrics.ObserveCalendar(metrics.ResultSuccess, result.Duration, len(result.Events))
	}

	limits := project.Limits
	if limits == (calendar.Limits{}) {
		limits = a.opts.Limits
	}

	name := project.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(a.opts.ProjectFile), filepath.Ext(a.opts.ProjectFile))
	}

	out := a.opts.OutFile
	if out == "" {
		out = project.ResultsFile(DefaultResultsFile)
	}
	report := export.NewReport(name, params, turbines, result.Events, limits)
	if result.Warning != nil {
		report.Warning = result.Warning.Error()
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
	if err := export.WriteFile(out, report); err != nil {
		metrics.IncExport(format, metrics.ResultError)
		return "", fmt.Errorf("error writing results: %w", err)
	}
	metrics.IncExport(format, metrics.ResultSuccess)

	if store != nil {
		run := storage.NewRun(name, aoi.Coords(), turbines, params, limits, result)
		if _, err := store.SaveRun(ctx, run, result.Events); err != nil {
			return out, err
		}
	}

	a.logger.Infow("calendar written",
		"project", a.opts.ProjectFile,
		"out", out,
		"events", len(result.Events),
		"hours", report.Summary.TotalHours,
		"days", report.Summary.DaysAffected,
		"duration", result.Duration)
	return out, nil
}

// readEvents loads an events CSV as a finished result.
func readEvents(filename string) (*calendar.Result, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("error opening events: %w", err)
	}
	defer f.Close()

	events, err := export.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("error reading events %s: %w", filename, err)
	}
	return &calendar.Result{Events: events}, nil
}

// Serve runs the HTTP API and blocks until shutdown
func (a *App) Serve(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := a.openStore()
	if err != nil {
		return err
	}

	var (
		runs  storage.RunStore
		solar calendar.SolarSource
	)
	if store != nil {
		defer store.Close()
		runs = store
		solar = store.SolarCache(nil)
		metrics.Init(store.DB(), a.logger)
	} else {
		metrics.Init(nil, a.logger)
	}

	ctrl := server.NewController(ctx, &wg, server.Config{
		ListenAddr: a.opts.Listen,
		Workers:    a.opts.Workers,
		Vertices:   a.opts.Vertices,
		Limits:     a.opts.Limits,
	}, runs, solar, a.logger.Named("server"))
	if err := ctrl.StartController(); err != nil {
		return err
	}

	a.logger.Info("application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	cancel()

	a.logger.Info("waiting for the HTTP server to stop...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}

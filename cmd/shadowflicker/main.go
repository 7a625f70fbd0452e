package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/chrissnell/shadowflicker/internal/app"
	"github.com/chrissnell/shadowflicker/internal/log"
	"github.com/chrissnell/shadowflicker/pkg/calendar"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	projectFile := flag.String("project", "", "Project file to compute (.json, .yaml or .yml)")
	outFile := flag.String("out", "", "Results file; .csv, .xlsx or .pdf (default: the project's results_path, else "+app.DefaultResultsFile+")")
	dbPath := flag.String("db", "", "SQLite database for the run store and solar cache (disabled when empty)")
	listen := flag.String("listen", "", "Serve the HTTP API on this address, e.g. 0.0.0.0:8080")
	workers := flag.Int("workers", runtime.NumCPU(), "Goroutines sharing the calendar computation")
	vertices := flag.Int("vertices", 0, "Vertices of the shadow ellipse (default 64)")
	saveProject := flag.String("save", "", "Write the project, defaults filled in, to this .json or .yaml file and exit")
	eventsFile := flag.String("events", "", "Build the results from this events CSV instead of recomputing the calendar")
	limitHours := flag.Float64("limit-hours", 0, "Annual flicker limit in hours for projects without limits (0 disables)")
	limitMinutes := flag.Float64("limit-minutes", 0, "Daily flicker limit in minutes for projects without limits (0 disables)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("shadowflicker %s\n", version)
		os.Exit(0)
	}

	if *saveProject != "" && *projectFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -save needs -project")
		os.Exit(2)
	}

	if *projectFile == "" && *listen == "" {
		fmt.Fprintln(os.Stderr, "Error: pass -project to compute a calendar or -listen to serve the API")
		flag.Usage()
		os.Exit(2)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	application := app.New(app.Options{
		ProjectFile: *projectFile,
		OutFile:     *outFile,
		DBPath:      *dbPath,
		Listen:      *listen,
		SaveProject: *saveProject,
		EventsFile:  *eventsFile,
		Limits: calendar.Limits{
			AnnualHours:  *limitHours,
			DailyMinutes: *limitMinutes,
		},
		Workers:  *workers,
		Vertices: *vertices,
	}, log.GetSugaredLogger())

	log.Infow("starting shadowflicker", "version", version, "project", *projectFile, "listen", *listen)

	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

// Package export writes flicker calendars to CSV, XLSX and PDF.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chrissnell/shadowflicker/pkg/calendar"
)

// ErrUnsupportedFormat is returned by WriteFile for unknown extensions.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Report bundles a calendar with the inputs that produced it.
type Report struct {
	Title      string
	Parameters calendar.ProjectParameters
	Turbines   []calendar.Turbine
	Events     []calendar.FlickerEvent
	Summary    calendar.Summary
	Warning    string
	Generated  time.Time
}

// NewReport summarizes events and stamps the report with the current time.
func NewReport(title string, params calendar.ProjectParameters, turbines []calendar.Turbine, events []calendar.FlickerEvent, limits calendar.Limits) *Report {
	if title == "" {
		title = "Shadow Flicker Calendar"
	}
	return &Report{
		Title:      title,
		Parameters: params.WithDefaults(),
		Turbines:   turbines,
		Events:     events,
		Summary:    calendar.Summarize(events, turbines, params, limits),
		Generated:  time.Now(),
	}
}

// WriteFile writes the report in the format given by the file extension
// (.csv, .xlsx or .pdf), creating parent directories as needed. CSV output
// holds the events only.
func WriteFile(filename string, r *Report) error {
	var write func(f *os.File) error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		write = func(f *os.File) error { return WriteCSV(f, r.Events) }
	case ".xlsx":
		write = func(f *os.File) error {
			data, err := BuildXLSX(r)
			if err != nil {
				return err
			}
			_, err = f.Write(data)
			return err
		}
	case ".pdf":
		write = func(f *os.File) error {
			data, err := BuildPDF(r)
			if err != nil {
				return err
			}
			_, err = f.Write(data)
			return err
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", filename, err)
	}
	return f.Close()
}

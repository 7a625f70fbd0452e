// Package config loads and saves shadow flicker project files.
package config

import (
	"errors"

	"github.com/chrissnell/shadowflicker/pkg/calendar"
)

// ErrUnsupportedFormat is returned for project or AOI files whose extension
// or content type is not understood.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ProjectProvider defines the interface for project data sources
type ProjectProvider interface {
	LoadProject() (*Project, error)
	SaveProject(p *Project) error
	Close() error
}

// Project is the on-disk description of a calendar run. The layout follows
// the desktop project JSON: turbines, aoi_path, parameters,
// results_path. An inline aoi ring may replace aoi_path.
type Project struct {
	Name        string                     `json:"name,omitempty" yaml:"name,omitempty"`
	Turbines    []calendar.Turbine         `json:"turbines" yaml:"turbines"`
	AOI         [][2]float64               `json:"aoi,omitempty" yaml:"aoi,omitempty"`
	AOIPath     string                     `json:"aoi_path,omitempty" yaml:"aoi_path,omitempty"`
	Parameters  calendar.ProjectParameters `json:"parameters" yaml:"parameters"`
	ResultsPath string                     `json:"results_path,omitempty" yaml:"results_path,omitempty"`
	Limits      calendar.Limits            `json:"limits,omitempty" yaml:"limits,omitempty"`

	// dir is the directory of the file the project was read from; relative
	// paths resolve against it.
	dir string
}

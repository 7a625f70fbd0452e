package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chrissnell/shadowflicker/pkg/calendar"
	"github.com/chrissnell/shadowflicker/pkg/geometry"
)

// FileProvider implements ProjectProvider for YAML and JSON project files.
// The format follows the file extension.
type FileProvider struct {
	filename string
	project  *Project
}

// NewFileProvider creates a new file-backed project provider
func NewFileProvider(filename string) *FileProvider {
	return &FileProvider{
		filename: filename,
	}
}

// LoadProject reads the project file. Subsequent calls return the cached
// project.
func (f *FileProvider) LoadProject() (*Project, error) {
	if f.project != nil {
		return f.project, nil
	}
	p, err := Load(f.filename)
	if err != nil {
		return nil, err
	}
	f.project = p
	return p, nil
}

// SaveProject writes p to the provider's file. Relative aoi_path and
// results_path are rewritten so they still name the same files from the new
// location.
func (f *FileProvider) SaveProject(p *Project) error {
	out := p.rebase(filepath.Dir(f.filename))
	if err := Save(f.filename, out); err != nil {
		return err
	}
	f.project = out
	return nil
}

// Close is a no-op for file providers
func (f *FileProvider) Close() error {
	return nil
}

// Load reads a project from a .yaml, .yml or .json file and applies parameter
// defaults.
func Load(filename string) (*Project, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var p Project
	switch ext(filename) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(&p)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing project %s: %w", filename, err)
	}

	p.Parameters = p.Parameters.WithDefaults()
	p.dir = filepath.Dir(filename)
	return &p, nil
}

// Save writes the project to filename, creating parent directories as
// needed. JSON output is indented with two spaces.
func Save(filename string, p *Project) error {
	var (
		data []byte
		err  error
	)
	switch ext(filename) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(p)
	case ".json":
		data, err = json.MarshalIndent(p, "", "  ")
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	if err != nil {
		return fmt.Errorf("error encoding project: %w", err)
	}

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(filename, data, 0o644)
}

// ResolvePath makes a relative path relative to the project file's directory.
func (p *Project) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

// rebase returns a copy of p whose relative paths resolve the same way from
// dir. Paths that cannot be expressed relative to dir become absolute.
func (p *Project) rebase(dir string) *Project {
	out := *p
	out.dir = dir
	if p.dir == "" || p.dir == dir {
		return &out
	}

	move := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		target, err := filepath.Abs(p.ResolvePath(path))
		if err != nil {
			return path
		}
		base, err := filepath.Abs(dir)
		if err != nil {
			return target
		}
		rel, err := filepath.Rel(base, target)
		if err != nil {
			return target
		}
		return rel
	}
	out.AOIPath = move(p.AOIPath)
	out.ResultsPath = move(p.ResultsPath)
	return &out
}

// Polygon returns the AOI: the inline ring when present, otherwise the GeoJSON
// file at AOIPath. A project without either has an empty AOI.
func (p *Project) Polygon() (geometry.Polygon, error) {
	if len(p.AOI) > 0 {
		return geometry.NewPolygon(p.AOI), nil
	}
	if p.AOIPath == "" {
		return nil, nil
	}
	return ReadGeoJSON(p.ResolvePath(p.AOIPath))
}

// Calendar returns the inputs of a calendar computation.
func (p *Project) Calendar() (geometry.Polygon, []calendar.Turbine, calendar.ProjectParameters, error) {
	aoi, err := p.Polygon()
	if err != nil {
		return nil, nil, calendar.ProjectParameters{}, fmt.Errorf("error loading area of interest: %w", err)
	}
	return aoi, p.Turbines, p.Parameters.WithDefaults(), nil
}

// ResultsFile returns the resolved results path, or fallback when the project
// does not name one.
func (p *Project) ResultsFile(fallback string) string {
	if p.ResultsPath == "" {
		return fallback
	}
	return p.ResolvePath(p.ResultsPath)
}

func ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chrissnell/shadowflicker/pkg/calendar"
)

// Run is the stored record of one calendar computation.
type Run struct {
	ID              string                     `json:"id" msgpack:"id"`
	Name            string                     `json:"name,omitempty" msgpack:"name,omitempty"`
	CreatedAt       time.Time                  `json:"created_at" msgpack:"created_at"`
	Parameters      calendar.ProjectParameters `json:"parameters" msgpack:"parameters"`
	Turbines        []calendar.Turbine         `json:"turbines" msgpack:"turbines"`
	AOI             [][2]float64               `json:"aoi" msgpack:"aoi"`
	Limits          calendar.Limits            `json:"limits" msgpack:"limits"`
	Warning         string                     `json:"warning,omitempty" msgpack:"warning,omitempty"`
	EventCount      int                        `json:"event_count" msgpack:"event_count"`
	DaylightSamples int                        `json:"daylight_samples" msgpack:"daylight_samples"`
	DurationMS      int64                      `json:"duration_ms" msgpack:"duration_ms"`
}

// NewRun describes a finished computation for SaveRun. limits are kept with
// the run so later summaries and reports flag the same exceedances.
func NewRun(name string, aoi [][2]float64, turbines []calendar.Turbine, params calendar.ProjectParameters, limits calendar.Limits, result *calendar.Result) *Run {
	run := &Run{
		Name:       name,
		Parameters: params.WithDefaults(),
		Turbines:   turbines,
		AOI:        aoi,
		Limits:     limits,
	}
	if result != nil {
		run.EventCount = len(result.Events)
		run.DaylightSamples = result.DaylightSamples
		run.DurationMS = result.Duration.Milliseconds()
		if result.Warning != nil {
			run.Warning = result.Warning.Error()
		}
	}
	return run
}

// createdLayout is fixed width so created_at sorts lexically.
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

const insertRunSQL = `
	INSERT INTO runs (id, name, created_at, parameters, turbines, aoi, limits, warning,
	                  event_count, daylight_samples, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertEventSQL = `
	INSERT INTO events (run_id, seq, turbine_id, timestamp_local, date, time,
	                    sun_azimuth_deg, sun_elevation_deg)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const selectRunSQL = `
	SELECT id, name, created_at, parameters, turbines, aoi, limits, warning,
	       event_count, daylight_samples, duration_ms
	FROM runs`

// SaveRun stores the run and its events in one transaction and returns the
// new run id. run.ID and run.CreatedAt are assigned here.
func (s *Store) SaveRun(ctx context.Context, run *Run, events []calendar.FlickerEvent) (string, error) {
	run.ID = uuid.NewString()
	run.CreatedAt = time.Now().UTC()
	run.EventCount = len(events)

	params, err := json.Marshal(run.Parameters)
	if err != nil {
		return "", err
	}
	turbines, err := json.Marshal(run.Turbines)
	if err != nil {
		return "", err
	}
	aoi, err := json.Marshal(run.AOI)
	if err != nil {
		return "", err
	}
	limits, err := json.Marshal(run.Limits)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, insertRunSQL,
		run.ID, run.Name, run.CreatedAt.Format(createdLayout), string(params), string(turbines), string(aoi),
		string(limits), run.Warning, run.EventCount, run.DaylightSamples, run.DurationMS)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertEventSQL)
	if err != nil {
		return "", fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		_, err := stmt.ExecContext(ctx, run.ID, i, ev.TurbineID, ev.TimestampLocal, ev.Date, ev.Time,
			ev.SunAzimuthDeg, ev.SunElevationDeg)
		if err != nil {
			return "", fmt.Errorf("failed to insert event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Infow("stored run", "id", run.ID, "events", run.EventCount)
	return run.ID, nil
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRunSQL+" WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectRunSQL+" ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Events returns the stored events of a run in insertion order.
func (s *Store) Events(ctx context.Context, id string) ([]calendar.FlickerEvent, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT turbine_id, timestamp_local, date, time, sun_azimuth_deg, sun_elevation_deg
		FROM events WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []calendar.FlickerEvent{}
	for rows.Next() {
		var ev calendar.FlickerEvent
		if err := rows.Scan(&ev.TurbineID, &ev.TimestampLocal, &ev.Date, &ev.Time, &ev.SunAzimuthDeg, &ev.SunElevationDeg); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if ts, err := time.Parse(calendar.TimestampLayout, ev.TimestampLocal); err == nil {
			ev.Timestamp = ts
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteRun removes a run and its events.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                   Run
		created               string
		params, turbines, aoi string
		limits                string
	)
	err := row.Scan(&run.ID, &run.Name, &created, &params, &turbines, &aoi, &limits, &run.Warning,
		&run.EventCount, &run.DaylightSamples, &run.DurationMS)
	if err != nil {
		return nil, err
	}

	if run.CreatedAt, err = time.Parse(createdLayout, created); err != nil {
		return nil, fmt.Errorf("run %s: bad created_at: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(params), &run.Parameters); err != nil {
		return nil, fmt.Errorf("run %s: bad parameters: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(turbines), &run.Turbines); err != nil {
		return nil, fmt.Errorf("run %s: bad turbines: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(aoi), &run.AOI); err != nil {
		return nil, fmt.Errorf("run %s: bad aoi: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(limits), &run.Limits); err != nil {
		return nil, fmt.Errorf("run %s: bad limits: %w", run.ID, err)
	}
	return &run, nil
}

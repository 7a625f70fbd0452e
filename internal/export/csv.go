package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/chrissnell/shadowflicker/pkg/calendar"
)

// CSVHeader is the column layout of exported calendars.
var CSVHeader = []string{
	"turbine_id",
	"timestamp_local",
	"date",
	"time",
	"sun_azimuth_deg",
	"sun_elevation_deg",
}

// WriteCSV writes the header and one row per event. Angles keep full
// precision.
func WriteCSV(w io.Writer, events []calendar.FlickerEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	row := make([]string, len(CSVHeader))
	for _, ev := range events {
		row[0] = ev.TurbineID
		row[1] = ev.TimestampLocal
		row[2] = ev.Date
		row[3] = ev.Time
		row[4] = strconv.FormatFloat(ev.SunAzimuthDeg, 'f', -1, 64)
		row[5] = strconv.FormatFloat(ev.SunElevationDeg, 'f', -1, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a file written by WriteCSV.
func ReadCSV(r io.Reader) ([]calendar.FlickerEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CSVHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV header: %w", err)
	}
	for i, name := range CSVHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected CSV column %d: %q, want %q", i+1, header[i], name)
		}
	}

	var events []calendar.FlickerEvent
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		ts, err := time.Parse(calendar.TimestampLayout, rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		az, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: sun_azimuth_deg: %w", line, err)
		}
		elev, err := strconv.ParseFloat(rec[5], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: sun_elevation_deg: %w", line, err)
		}

		events = append(events, calendar.FlickerEvent{
			TurbineID:       rec[0],
			Timestamp:       ts,
			TimestampLocal:  rec[1],
			Date:            rec[2],
			Time:            rec[3],
			SunAzimuthDeg:   az,
			SunElevationDeg: elev,
		})
	}
	return events, nil
}

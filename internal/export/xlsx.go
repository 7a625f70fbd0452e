package export

import (
	"bytes"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "summary"
	daysSheet     = "days"
	turbinesSheet = "turbines"
	eventsSheet   = "events"
)

// BuildXLSX renders the report as a workbook with summary, days, turbines and
// events sheets.
func BuildXLSX(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	for _, name := range []string{daysSheet, turbinesSheet, eventsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	p := r.Parameters
	s := r.Summary
	summaryRows := [][]interface{}{
		{r.Title},
		{},
		{"Generated", r.Generated.Format(time.RFC3339)},
		{"Latitude", p.Latitude},
		{"Longitude", p.Longitude},
		{"Year", p.Year},
		{"Timezone", p.Timezone},
		{"Timestep (min)", p.TimestepMinutes},
		{"Min solar elevation (deg)", p.MinSolarElevationDeg},
		{"Turbines", len(r.Turbines)},
		{},
		{"Events", len(r.Events)},
		{"Total flicker (h)", s.TotalHours},
		{"Days affected", s.DaysAffected},
		{"Max daily flicker (min)", s.MaxDailyMinutes},
		{"Days over daily limit", s.DaysOverDailyLimit},
		{"Exceeds annual limit", s.ExceedsAnnualLimit},
	}
	if r.Warning != "" {
		summaryRows = append(summaryRows, []interface{}{"Warning", r.Warning})
	}
	if err := writeRows(f, summarySheet, summaryRows); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(summarySheet, "A1", "A1", bold)
	_ = f.SetColWidth(summarySheet, "A", "A", 28)

	days := [][]interface{}{{"Date", "Minutes", "Events", "Turbines", "First", "Last", "Sunrise", "Sunset", "Day length (min)"}}
	for _, d := range s.Days {
		days = append(days, []interface{}{d.Date, d.Minutes, d.Events, strings.Join(d.Turbines, " "), d.FirstTime, d.LastTime, d.Sunrise, d.Sunset, d.DayLengthMinutes})
	}
	if err := writeTable(f, daysSheet, days, bold); err != nil {
		return nil, err
	}

	turbines := [][]interface{}{{"Turbine", "Events", "Hours", "Days", "Max daily (min)", "Mean daily (min)", "First date", "Last date"}}
	for _, t := range s.Turbines {
		turbines = append(turbines, []interface{}{t.TurbineID, t.Events, t.Hours, t.Days, t.MaxDailyMinutes, t.MeanDailyMinutes, t.FirstDate, t.LastDate})
	}
	if err := writeTable(f, turbinesSheet, turbines, bold); err != nil {
		return nil, err
	}

	events := make([][]interface{}, 0, len(r.Events)+1)
	header := make([]interface{}, len(CSVHeader))
	for i, h := range CSVHeader {
		header[i] = h
	}
	events = append(events, header)
	for _, ev := range r.Events {
		events = append(events, []interface{}{ev.TurbineID, ev.TimestampLocal, ev.Date, ev.Time, ev.SunAzimuthDeg, ev.SunElevationDeg})
	}
	if err := writeTable(f, eventsSheet, events, bold); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// writeTable writes rows with a bold, frozen header row.
func writeTable(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	if err := writeRows(f, sheet, rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

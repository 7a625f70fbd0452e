package export

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/chrissnell/shadowflicker/pkg/calendar"
	"github.com/chrissnell/shadowflicker/pkg/solar"
)

func sampleReport(t *testing.T) *Report {
	t.Helper()
	rome, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Fatal(err)
	}
	events := []calendar.FlickerEvent{
		calendar.NewFlickerEvent("WTG-01", solar.Sample{Time: time.Date(2024, 6, 21, 7, 15, 0, 0, rome), ApparentElevationDeg: 12.345678901, AzimuthDeg: 81.25}),
		calendar.NewFlickerEvent("WTG-02", solar.Sample{Time: time.Date(2024, 6, 21, 7, 15, 0, 0, rome), ApparentElevationDeg: 12.345678901, AzimuthDeg: 81.25}),
		calendar.NewFlickerEvent("WTG-01", solar.Sample{Time: time.Date(2024, 12, 1, 15, 30, 0, 0, rome), ApparentElevationDeg: 6.5, AzimuthDeg: 230.125}),
	}
	turbines := []calendar.Turbine{
		{ID: "WTG-01", HubHeightM: 100, RotorDiameterM: 120},
		{ID: "WTG-02", X: 300, HubHeightM: 100, RotorDiameterM: 120},
	}
	params := calendar.ProjectParameters{Latitude: 45, Longitude: 10, Year: 2024, MinSolarElevationDeg: 5}
	return NewReport("", params, turbines, events, calendar.Limits{DailyMinutes: 10})
}

func TestWriteCSV(t *testing.T) {
	r := sampleReport(t)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, r.Events); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if lines[0] != "turbine_id,timestamp_local,date,time,sun_azimuth_deg,sun_elevation_deg" {
		t.Errorf("header = %q", lines[0])
	}
	if want := "WTG-01,2024-06-21T07:15:00+02:00,2024-06-21,07:15:00,81.25,12.345678901"; lines[1] != want {
		t.Errorf("row = %q, want %q", lines[1], want)
	}
	if !strings.HasPrefix(lines[3], "WTG-01,2024-12-01T15:30:00+01:00,") {
		t.Errorf("winter row = %q", lines[3])
	}

	back, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(back) != len(r.Events) {
		t.Fatalf("read %d events", len(back))
	}
	for i := range back {
		if !back[i].Timestamp.Equal(r.Events[i].Timestamp) {
			t.Errorf("event %d: timestamp %v, want %v", i, back[i].Timestamp, r.Events[i].Timestamp)
		}
		back[i].Timestamp = r.Events[i].Timestamp
	}
	if !reflect.DeepEqual(back, r.Events) {
		t.Errorf("events changed through CSV:\n%+v\n%+v", back, r.Events)
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("expected only the header, got %d lines", got)
	}
}

func TestReadCSVRejectsForeignHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b,c,d,e,f\n"))
	if err == nil {
		t.Error("expected an error for a foreign header")
	}
}

func TestBuildXLSX(t *testing.T) {
	r := sampleReport(t)
	data, err := BuildXLSX(r)
	if err != nil {
		t.Fatalf("BuildXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); !reflect.DeepEqual(got, []string{"summary", "days", "turbines", "events"}) {
		t.Errorf("sheets = %v", got)
	}

	events, err := f.GetRows("events")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 4 || events[0][0] != "turbine_id" || events[2][0] != "WTG-02" {
		t.Errorf("events sheet = %v", events)
	}

	days, err := f.GetRows("days")
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 3 || days[1][0] != "2024-06-21" || days[1][1] != "15" {
		t.Errorf("days sheet = %v", days)
	}

	summary, err := f.GetRows("summary")
	if err != nil {
		t.Fatal(err)
	}
	if summary[0][0] != "Shadow Flicker Calendar" {
		t.Errorf("title = %q", summary[0][0])
	}
}

func TestBuildPDF(t *testing.T) {
	r := sampleReport(t)
	r.Warning = "unknown timezone"

	data, err := BuildPDF(r)
	if err != nil {
		t.Fatalf("BuildPDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("output does not start with a PDF header")
	}
	if len(data) < 1000 {
		t.Errorf("suspiciously small PDF: %d bytes", len(data))
	}
}

func TestWriteFile(t *testing.T) {
	r := sampleReport(t)
	dir := t.TempDir()

	for _, name := range []string{"out/flicker.csv", "out/flicker.xlsx", "deep/er/flicker.pdf"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := WriteFile(path, r); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Size() == 0 {
				t.Errorf("%s is empty", name)
			}
		})
	}

	if err := WriteFile(filepath.Join(dir, "flicker.docx"), r); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("docx: err = %v", err)
	}
}

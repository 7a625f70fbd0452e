package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// BuildPDF renders a printable summary: parameters, totals, the per-turbine
// table and the per-day table. Individual events are left to CSV/XLSX.
func BuildPDF(r *Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(r.Title, true)
	pdf.SetCreator("shadowflicker", true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, r.Title)
	pdf.Ln(10)

	p := r.Parameters
	s := r.Summary
	pdf.SetFont("Arial", "", 10)
	lines := []string{
		fmt.Sprintf("Generated: %s", r.Generated.Format(time.RFC3339)),
		fmt.Sprintf("Site: %.5f, %.5f", p.Latitude, p.Longitude),
		fmt.Sprintf("Year: %d   Timezone: %s   Timestep: %d min", p.Year, p.Timezone, p.TimestepMinutes),
		fmt.Sprintf("Minimum solar elevation: %.2f deg", p.MinSolarElevationDeg),
		fmt.Sprintf("Turbines: %d   Events: %d", len(r.Turbines), len(r.Events)),
		fmt.Sprintf("Total flicker: %.2f h   Days affected: %d   Max daily: %.0f min", s.TotalHours, s.DaysAffected, s.MaxDailyMinutes),
	}
	if s.ExceedsAnnualLimit || s.ExceedsDailyLimit {
		lines = append(lines, fmt.Sprintf("Limits exceeded: annual %t, daily on %d days", s.ExceedsAnnualLimit, s.DaysOverDailyLimit))
	}
	if r.Warning != "" {
		lines = append(lines, "Warning: "+r.Warning)
	}
	for _, line := range lines {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}
	pdf.Ln(6)

	// Turbines table
	tableHeader(pdf, []string{"Turbine", "Events", "Hours", "Days", "Max min/day", "Mean min/day"}, []float64{40, 25, 25, 20, 30, 30})
	for _, t := range s.Turbines {
		pdf.CellFormat(40, 6, t.TurbineID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", t.Events), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.2f", t.Hours), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", t.Days), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.0f", t.MaxDailyMinutes), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.1f", t.MeanDailyMinutes), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	// Days table
	widths := []float64{28, 20, 22, 22, 22, 22, 54}
	tableHeader(pdf, []string{"Date", "Minutes", "First", "Last", "Sunrise", "Sunset", "Turbines"}, widths)
	for _, d := range s.Days {
		pdf.CellFormat(widths[0], 6, d.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 6, fmt.Sprintf("%.0f", d.Minutes), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 6, d.FirstTime, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], 6, d.LastTime, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[4], 6, d.Sunrise, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[5], 6, d.Sunset, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[6], 6, truncate(strings.Join(d.Turbines, " "), 30), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tableHeader(pdf *gofpdf.Fpdf, titles []string, widths []float64) {
	pdf.SetFont("Arial", "B", 10)
	for i, title := range titles {
		pdf.CellFormat(widths[i], 6, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

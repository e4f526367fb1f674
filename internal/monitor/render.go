package monitor

import (
	"bufio"
	"fmt"
	"io"
)

const (
	localLayout = "2006-01-02 15:04:05"
	rowFormat   = "%-12s %8s %8s %7s %20s %20s\n"

	// ClearScreen resets an ANSI terminal before a redraw.
	ClearScreen = "\x1b[2J\x1b[H"
)

// RenderOptions controls how a Report is printed.
type RenderOptions struct {
	Header string
	// HideInvalid blanks the values of stations whose last reading was invalid.
	HideInvalid bool
}

// Render writes the dashboard for r as plain text. Alerts are not included.
func Render(w io.Writer, r Report, opts RenderOptions) error {
	bw := bufio.NewWriter(w)

	if opts.Header != "" {
		fmt.Fprintln(bw, opts.Header)
	}
	fmt.Fprintf(bw, "Updated: %s\n\n", r.At.Local().Format(localLayout))
	fmt.Fprintf(bw, rowFormat, "Station", "Temp", "Hum", "Valid", "Last Seen", "5m Avg T/H")

	for _, row := range r.Rows {
		t, h := row.Temperature, row.Humidity
		if opts.HideInvalid && !row.Valid {
			t, h = nil, nil
		}
		valid := "OK"
		if !row.Valid {
			valid = "⚠︎"
		}
		lastSeen := "-"
		if !row.LastSeen.IsZero() {
			lastSeen = row.LastSeen.Local().Format(localLayout)
		}
		fmt.Fprintf(bw, rowFormat,
			row.StationID, formatValue(t), formatValue(h), valid, lastSeen,
			formatValue(row.AvgTemperature)+" / "+formatValue(row.AvgHumidity))
	}

	fmt.Fprintln(bw)
	for _, row := range r.Rows {
		if row.Day == nil {
			continue
		}
		d := row.Day
		fmt.Fprintf(bw, "[%s] Day %s  T min/max: %.1f / %.1f  H min/max: %.1f / %.1f\n",
			row.StationID, d.Date, d.MinTemperature, d.MaxTemperature, d.MinHumidity, d.MaxHumidity)
	}

	for _, s := range r.Hours {
		fmt.Fprintln(bw, FormatHourly(s))
	}

	return bw.Flush()
}

// FormatHourly renders a completed hour as a single line.
func FormatHourly(s HourlySummary) string {
	return fmt.Sprintf("[Hourly] %s %s:00Z  avgT=%.1f  avgH=%.1f  min/max T=%.1f/%.1f  H=%.1f/%.1f  n=%d",
		s.StationID, s.Hour, s.AvgTemperature(), s.AvgHumidity(),
		s.MinTemperature, s.MaxTemperature, s.MinHumidity, s.MaxHumidity, s.Count)
}

func formatValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

package output

import (
	"bytes"
	"fmt"
	"strings"
)

// PrettyFormatter formats a report with colors and styling using
// lipgloss, for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	if len(r.Candidates) == 0 {
		w.WriteString(MutedStyle.Render("No candidates succeeded; the configuration is unchanged."))
		w.WriteString("\n")
	} else {
		w.WriteString(f.formatTable(r))
	}

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		for _, warning := range r.Warnings {
			w.WriteString(WarningStyle.Render("warning: " + warning))
			w.WriteString("\n")
		}
	}
	return nil
}

// formatHeader builds the header box with sweep metadata.
func (f *PrettyFormatter) formatHeader(r *Report) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("%s %s  %s %s",
		LabelStyle.Render("Model:"), ValueStyle.Render(r.Model),
		LabelStyle.Render("Server:"), ValueStyle.Render(r.Server)))

	info := fmt.Sprintf("%s %s  %s %s",
		LabelStyle.Render("Mode:"), ValueStyle.Render(r.Mode),
		LabelStyle.Render("Swept in:"), ValueStyle.Render(r.Duration.String()))
	lines = append(lines, info)

	if r.Winner != 0 {
		lines = append(lines, fmt.Sprintf("%s %s",
			LabelStyle.Render("Winner:"),
			WinnerStyle.Render(fmt.Sprintf("%s=%d", r.Parameter, r.Winner))))
	}

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

// formatTable builds the candidate result table.
func (f *PrettyFormatter) formatTable(r *Report) string {
	var b strings.Builder

	header := fmt.Sprintf("%-8s %-12s %-12s %-9s %-9s %-12s",
		"DEGREE", "AVG", "P90", "TOK/S", "REQ/S", "STDDEV")
	b.WriteString(TableHeaderStyle.Render(header))
	b.WriteString("\n")

	for _, c := range r.Candidates {
		degree := fmt.Sprintf("%d", c.Degree)
		if c.Best {
			degree += " *"
		}
		row := fmt.Sprintf("%-8s %-12s %-12s %-9.1f %-9.2f %-12s",
			degree,
			c.AvgLatency, c.P90Latency,
			c.TokensPerSec, c.ThroughputPerSec, c.StdDev)
		if c.Best {
			b.WriteString(WinnerStyle.Render(row))
		} else {
			b.WriteString(ValueStyle.Render(row))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
